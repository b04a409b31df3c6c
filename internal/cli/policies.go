package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/servicedesk-realtime/internal/service"
)

// NewPoliciesCmd creates the policies command group.
func NewPoliciesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Manage SLA policies",
	}
	cmd.AddCommand(newPoliciesListCmd(app), newPoliciesImportCmd(app))
	return cmd
}

func newPoliciesListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List SLA policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withBackend(cmd.Context(), func(admin PolicyAdmin) error {
				policies, err := admin.ListPolicies(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tPRIORITY\tFIRST RESPONSE\tRESOLUTION\tBUSINESS HOURS\tACTIVE")
				for _, p := range policies {
					hours := "-"
					if p.BusinessHours != nil {
						hours = fmt.Sprintf("%02d-%02d", p.BusinessHours.StartHour, p.BusinessHours.EndHour)
						if p.BusinessHours.Timezone != "" {
							hours += " " + p.BusinessHours.Timezone
						}
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%dm\t%dm\t%s\t%t\n",
						p.ID, p.Name, p.Priority, p.FirstResponseMinutes, p.ResolutionMinutes, hours, p.Active)
				}
				return w.Flush()
			})
		},
	}
}

func newPoliciesImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create policies and their escalation rules from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := readPolicyFile(args[0])
			if err != nil {
				return err
			}
			return app.withBackend(cmd.Context(), func(admin PolicyAdmin) error {
				created, err := admin.Import(cmd.Context(), defs)
				for _, p := range created {
					fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) %s\n", p.Name, p.Priority, p.ID)
				}
				return err
			})
		},
	}
}

func readPolicyFile(path string) ([]service.PolicyDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var defs []service.PolicyDefinition
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("%s defines no policies", path)
	}
	return defs, nil
}

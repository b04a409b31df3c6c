package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSweepCmd creates the one-shot breach sweep command.
func NewSweepCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Flag overdue SLA targets and run their escalations once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withBackend(cmd.Context(), func(admin PolicyAdmin) error {
				n, err := admin.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "flagged %d ticket(s)\n", n)
				return nil
			})
		},
	}
}

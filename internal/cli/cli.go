package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/spec-kit/servicedesk-realtime/internal/domain"
	"github.com/spec-kit/servicedesk-realtime/internal/service"
)

// PolicyAdmin is the SLA administration surface the commands drive.
type PolicyAdmin interface {
	ListPolicies(ctx context.Context) ([]domain.SLAPolicy, error)
	Import(ctx context.Context, defs []service.PolicyDefinition) ([]domain.SLAPolicy, error)
	Sweep(ctx context.Context) (int, error)
}

// Backend is a connected PolicyAdmin plus its cleanup.
type Backend struct {
	Admin PolicyAdmin
	Close func()
}

// App is the slactl command tree.
type App struct {
	rootCmd *cobra.Command
	verbose bool
	connect func(ctx context.Context, verbose bool) (*Backend, error)
}

// New builds the CLI wired against the configured database.
func New() *App {
	return NewWithBackend(Connect)
}

// NewWithBackend builds the CLI with a custom backend factory.
func NewWithBackend(connect func(ctx context.Context, verbose bool) (*Backend, error)) *App {
	app := &App{connect: connect}
	app.setupRootCmd()
	return app
}

// Execute runs the CLI.
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// Root exposes the root command.
func (a *App) Root() *cobra.Command {
	return a.rootCmd
}

func (a *App) setupRootCmd() {
	a.rootCmd = &cobra.Command{
		Use:           "slactl",
		Short:         "Administer SLA policies and escalation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	a.rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Verbose logging")
	a.rootCmd.AddCommand(NewPoliciesCmd(a), NewSweepCmd(a), NewTokenCmd())
}

func (a *App) withBackend(ctx context.Context, fn func(PolicyAdmin) error) error {
	backend, err := a.connect(ctx, a.verbose)
	if err != nil {
		return err
	}
	if backend.Close != nil {
		defer backend.Close()
	}
	return fn(backend.Admin)
}

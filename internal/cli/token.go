package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/servicedesk-realtime/internal/auth"
	"github.com/spec-kit/servicedesk-realtime/internal/config"
)

// NewTokenCmd creates the command that signs a bearer token for a user, for
// connecting test clients to the live endpoint.
func NewTokenCmd() *cobra.Command {
	var ttlMinutes int
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Sign a bearer token with the configured secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if ttlMinutes <= 0 {
				ttlMinutes = cfg.Auth.AccessTokenTTLMinutes
			}
			token, expiresAt, err := auth.NewTokenManager(cfg.Auth.JWTSecret, ttlMinutes).GenerateToken(args[0])
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().IntVar(&ttlMinutes, "ttl", 0, "Lifetime in minutes (default AUTH_ACCESS_TOKEN_TTL_MINUTES)")
	return cmd
}

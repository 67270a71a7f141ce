package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/access"
	"github.com/zulandar/switchboard/internal/api"
	"github.com/zulandar/switchboard/internal/config"
)

func newTokenCmd() *cobra.Command {
	var (
		configPath string
		actorID    string
		role       string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		Long:  "Signs a bearer token for the API with auth.jwt_secret from the config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not set in %s", configPath)
			}
			token, err := api.IssueToken(cfg.Auth.JWTSecret, access.Actor{ID: actorID, Role: role}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&actorID, "as", "", "user ID the token identifies (required)")
	cmd.Flags().StringVar(&role, "role", "", "role claim, e.g. admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}

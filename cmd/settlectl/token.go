package main

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/baharkarakas/pixelmart/internal/auth"
	"github.com/baharkarakas/pixelmart/internal/config"
	"github.com/baharkarakas/pixelmart/internal/models"
)

func tokenCmd() *cobra.Command {
	var (
		userID string
		role   string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token signed with the configured JWT secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			if role != models.RoleUser && role != models.RoleAdmin {
				return errors.Errorf("unknown role %q", role)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tm := auth.NewTokenManager(cfg.JWTIssuer, cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
			access, _, _, err := tm.GeneratePair(userID, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), access)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id to embed")
	cmd.Flags().StringVarP(&role, "role", "r", models.RoleAdmin, "Role: user or admin")
	return cmd
}

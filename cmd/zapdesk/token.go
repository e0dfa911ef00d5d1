package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zapdesk/zapdesk/internal/auth"
)

var (
	tokenUserID   string
	tokenTenantID string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token for an agent scoped to one tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := provideConfig()
		if err != nil {
			return err
		}
		expiresIn, err := time.ParseDuration(cfg.Auth.JWTExpiresIn)
		if err != nil {
			return fmt.Errorf("jwt_expires_in: %w", err)
		}
		signed, expiresAt, err := auth.GenerateToken(tokenUserID, tokenTenantID, cfg.Auth.JWTSecret, expiresIn)
		if err != nil {
			return err
		}
		fmt.Println(signed)
		fmt.Printf("expires at %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "agent id to embed in the token")
	tokenCmd.Flags().StringVar(&tokenTenantID, "tenant", "", "tenant id the token is scoped to")
	_ = tokenCmd.MarkFlagRequired("user")
	_ = tokenCmd.MarkFlagRequired("tenant")
}

package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/zapdesk/zapdesk/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := provideConfig()
		if err != nil {
			return err
		}
		if err := db.Migrate(cfg.Postgres); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Println("migrate: ok")
		return nil
	},
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zapdesk/zapdesk/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "zapdesk",
	Short:   "Conversation session and routing engine for WhatsApp support desks",
	Version: version.String(),
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

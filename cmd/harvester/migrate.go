package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-harvester/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the jobs table if it does not exist",
	RunE:  runMigrateCmd,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrateCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := db.Open(cmd.Context(), cfg.StoreOptions())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(cmd.Context()); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Table %s ready (%s)\n", cfg.Storage.Table, cfg.Storage.Driver)
	return nil
}

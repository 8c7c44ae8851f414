// Package main provides the entry point for the job harvester CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonathan/job-harvester/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "Job posting harvester",
	Long: `Harvester sweeps the 104 job search API for every configured region and
category, enriches each posting with its detail and employer profile, and
stores the normalized rows in PostgreSQL, MySQL or SQLite.`,
	SilenceUsage: true,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to harvester.yaml (defaults to ./harvester.yaml when present)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

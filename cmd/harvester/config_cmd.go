package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-harvester/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the harvester configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with credentials masked",
	RunE:  runConfigShow,
}

var (
	configInitPath  string
	configInitForce bool
)

func init() {
	configInitCmd.Flags().StringVar(&configInitPath, "path", config.DefaultFile, "Where to write the file")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file (kept as .bak)")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	if err := config.WriteDefault(configInitPath, configInitForce); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configInitPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out, err := config.Marshal(cfg.Redacted())
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

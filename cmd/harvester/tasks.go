package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the (region, category) tasks a run would sweep",
	RunE:  runTasksCmd,
}

var (
	tasksRegions    []string
	tasksCategories []string
)

func init() {
	tasksCmd.Flags().StringSliceVarP(&tasksRegions, "region", "r", nil, "Region codes or names")
	tasksCmd.Flags().StringSliceVarP(&tasksCategories, "category", "c", nil, "Category codes or names")
	rootCmd.AddCommand(tasksCmd)
}

func runTasksCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tasks, err := cfg.Tasks(tasksRegions, tasksCategories)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "REGION\tCATEGORY\tLABEL")
	for _, t := range tasks {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s / %s\n", t.Region.Code, t.Category.Code, t.Region.Label(), t.Category.Label())
	}
	return tw.Flush()
}

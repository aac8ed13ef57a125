package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/orderstats/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config file and print the resolved run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAndValidate(configPath)
		if err != nil {
			return err
		}
		date, err := cfg.RunDate(time.Now())
		if err != nil {
			return fmt.Errorf("resolve run date: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "config ok: %s\n", configPath)
		fmt.Fprintf(out, "run date:   %s\n", date.Format(time.DateOnly))
		fmt.Fprintf(out, "source:     %s %s\n", cfg.Source.Kind, cfg.Source.Path)
		fmt.Fprintf(out, "backend:    %s\n", cfg.Tables.Backend)
		fmt.Fprintf(out, "statistics: %s / %s\n", cfg.Statistics.Spreadsheet, cfg.Statistics.Sheet)
		for i, g := range cfg.ModelGroups() {
			fmt.Fprintf(out, "group %d:    %s -> %s / %s\n", i+1, g.Label, g.Spreadsheet, g.Sheet)
		}
		return nil
	},
}

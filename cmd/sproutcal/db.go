package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect the local database",
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show record counts and sizes per collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		stats, err := deps.Store.Stats()
		if err != nil {
			return fmt.Errorf("reading store: %w", err)
		}
		if wantJSON() {
			return printJSON(cmd.OutOrStdout(), stats)
		}
		fmt.Fprintln(cmd.OutOrStdout(), deps.Store.Path())
		printSimpleTable(cmd.OutOrStdout(), []string{"COLLECTION", "RECORDS", "BYTES"}, func(add func(...string)) {
			for _, s := range stats {
				add(s.Name, strconv.Itoa(s.Count), strconv.FormatInt(s.Bytes, 10))
			}
		})
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long:  "Print the configuration after file, environment and flag overrides. The API key is never shown.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	dbCmd.AddCommand(dbStatsCmd)
	rootCmd.AddCommand(dbCmd, configCmd)
}

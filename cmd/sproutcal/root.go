package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sproutcal/internal/app"
	"sproutcal/internal/config"
	appLog "sproutcal/internal/log"
)

const version = "0.1.0"

// globalFlags holds the parsed values of all persistent flags.
var globalFlags struct {
	ConfigPath string
	Family     string
	DBPath     string
	Format     string
	Debug      bool
}

var rootCmd = &cobra.Command{
	Use:   "sproutcal",
	Short: "sproutcal: a family calendar for recurring kids' activities",
	Long: `sproutcal keeps track of recurring activities (classes, practices,
lessons) and one-off outings, resolves them onto week and month calendars,
and reconciles them with what actually happened.

Quick start:
  sproutcal series add Soccer --category sport --days mon,wed --time 16:00
  sproutcal calendar week
  sproutcal serve`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if globalFlags.Debug {
			appLog.SetLevel(appLog.LevelDebug)
		}
	},
}

func execute() {
	err := rootCmd.Execute()
	appLog.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies environment and flag
// overrides, in that order.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(globalFlags.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	if globalFlags.DBPath != "" {
		cfg.DBPath = globalFlags.DBPath
	}
	if globalFlags.Family != "" {
		cfg.Family = globalFlags.Family
	}
	return cfg, nil
}

// buildDeps resolves config and constructs the dependency container.
// Called at the start of each command's RunE.
func buildDeps() (*app.Deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	appLog.Debug("effective config",
		"db_path", cfg.DBPath,
		"family", cfg.Family,
		"timezone", cfg.Timezone,
		"ai_enabled", cfg.AI.Enabled,
	)
	return app.New(cfg)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globalFlags.ConfigPath, "config", "./config.yaml",
		"path to config.yaml (created with defaults if missing)")
	pf.StringVar(&globalFlags.Family, "family", "",
		"family id to act on (default: config family)")
	pf.StringVar(&globalFlags.DBPath, "db", "",
		"database path (default: "+config.DefaultDBPath+")")
	pf.StringVar(&globalFlags.Format, "format", formatTable,
		"output format: table|json")
	pf.BoolVar(&globalFlags.Debug, "debug", false,
		"enable debug logging")
}

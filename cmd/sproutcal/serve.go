package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appLog "sproutcal/internal/log"
	"sproutcal/internal/web"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		// CLI --listen overrides config file listen if provided.
		if serveListen != "" {
			deps.Config.Listen = serveListen
		}
		appLog.Info("sproutcal starting",
			"version", version,
			"listen", deps.Config.Listen,
			"timezone", deps.Config.Timezone,
			"db_path", deps.Config.DBPath,
			"family", deps.Config.Family,
		)

		// Root context with cancellation on SIGINT/SIGTERM.
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := web.NewServer(deps.Config, deps.Engine, deps.Store, globalFlags.Debug)
		deps.Icons.SetOnChange(srv.PurgeCache)
		refresh, err := srv.StartRefresh()
		if err != nil {
			return err
		}
		defer refresh.Stop()

		if err := srv.ListenAndServe(ctx); err != nil {
			return err
		}
		appLog.Info("sproutcal exiting; waiting for icon generation")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

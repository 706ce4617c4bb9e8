package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sproutcal/internal/ics"
	"sproutcal/internal/model"
)

var icsCmd = &cobra.Command{
	Use:   "ics",
	Short: "Exchange series with other calendars as iCalendar",
}

var icsExportOut string

var icsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write active series as an .ics calendar",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		series, err := deps.Engine.ListSeries(cmd.Context(), deps.Config.Family)
		if err != nil {
			return err
		}
		body, err := ics.Export(series, deps.Engine.Location(), time.Now())
		if err != nil {
			return err
		}
		if icsExportOut == "" {
			_, err = cmd.OutOrStdout().Write(body)
			return err
		}
		if err := os.WriteFile(icsExportOut, body, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", icsExportOut, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", icsExportOut)
		return nil
	},
}

var icsImportFlags struct {
	file   string
	url    string
	dryRun bool
}

var icsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Create series from an .ics file or feed URL",
	Long: `Import weekly and nth-weekday monthly events as series; one-off events
become one-off series. Other rules are skipped.`,
	Example: `  sproutcal ics import --file school.ics
  sproutcal ics import --url https://example.com/club.ics --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (icsImportFlags.file == "") == (icsImportFlags.url == "") {
			return errors.New("exactly one of --file or --url is required")
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		var body []byte
		if icsImportFlags.file != "" {
			if body, err = os.ReadFile(icsImportFlags.file); err != nil {
				return err
			}
		} else {
			res, err := deps.Fetcher.Fetch(cmd.Context(), icsImportFlags.url)
			if err != nil {
				return err
			}
			if res.FromCache {
				fmt.Fprintln(cmd.ErrOrStderr(), "Using cached copy of the feed.")
			}
			body = res.Body
		}

		inputs, err := ics.Import(body, deps.Engine.Location())
		if err != nil {
			return err
		}
		today := deps.Engine.Today()
		var created []model.Series
		for _, in := range inputs {
			if icsImportFlags.dryRun {
				created = append(created, in.Normalize(today))
				continue
			}
			s, err := deps.Engine.CreateSeries(cmd.Context(), deps.Config.Family, in)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Skipped %q: %v\n", in.Name, err)
				continue
			}
			created = append(created, s)
		}

		if wantJSON() {
			return printJSON(cmd.OutOrStdout(), created)
		}
		verb := "Imported"
		if icsImportFlags.dryRun {
			verb = "Would import"
		}
		printSimpleTable(cmd.OutOrStdout(), []string{"ID", "NAME", "RULE", "TIME", "START", "END"}, func(add func(...string)) {
			for _, s := range created {
				add(s.ID, s.Name, s.Describe(), s.StartTime, s.StartDate.String(), endDateString(s.EndDate))
			}
		})
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d of %d events\n", verb, len(created), len(inputs))
		return nil
	},
}

func init() {
	icsExportCmd.Flags().StringVarP(&icsExportOut, "out", "o", "", "write to file instead of stdout")

	f := icsImportCmd.Flags()
	f.StringVar(&icsImportFlags.file, "file", "", "path to an .ics file")
	f.StringVar(&icsImportFlags.url, "url", "", "feed URL (cached under ics_cache_dir)")
	f.BoolVar(&icsImportFlags.dryRun, "dry-run", false, "parse and show, do not save")

	icsCmd.AddCommand(icsExportCmd, icsImportCmd)
	rootCmd.AddCommand(icsCmd)
}

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"sproutcal/internal/calendar"
)

var statsFlags struct {
	from string
	to   string
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise scheduled activities per category",
	Long:  "Summarise a date range (default: the current Monday-first week).",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		from, to := calendar.Range(calendar.ViewWeek, deps.Engine.Today())
		if d, err := parseOptionalDate("--from", statsFlags.from); err != nil {
			return err
		} else if d != nil {
			from = *d
		}
		if d, err := parseOptionalDate("--to", statsFlags.to); err != nil {
			return err
		} else if d != nil {
			to = *d
		}
		if to.Before(from) {
			return fmt.Errorf("--to %s is before --from %s", to, from)
		}

		series, err := deps.Engine.ListSeries(cmd.Context(), deps.Config.Family)
		if err != nil {
			return err
		}
		st := calendar.RangeStats(series, from, to)
		if wantJSON() {
			return printJSON(cmd.OutOrStdout(), st)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s .. %s\n", from, to)
		printSimpleTable(cmd.OutOrStdout(), []string{"CATEGORY", "COUNT", "HOURS"}, func(add func(...string)) {
			for _, c := range st.ByCategory {
				add(string(c.Category), strconv.Itoa(c.Count), formatHours(c.Hours))
			}
			add("TOTAL", strconv.Itoa(st.ClassCount), formatHours(st.TotalHours))
		})
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsFlags.from, "from", "", "first date YYYY-MM-DD")
	statsCmd.Flags().StringVar(&statsFlags.to, "to", "", "last date YYYY-MM-DD")
	rootCmd.AddCommand(statsCmd)
}

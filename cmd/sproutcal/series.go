package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sproutcal/internal/model"
	"sproutcal/internal/recur"
	"sproutcal/internal/schedule"
)

// nextHorizonDays bounds the NEXT column lookup.
const nextHorizonDays = 366

var seriesCmd = &cobra.Command{
	Use:     "series",
	Aliases: []string{"s"},
	Short:   "Create, inspect, edit and delete activity series",
}

// ─── series list ──────────────────────────────────────────────────────────────

var seriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every series of the family",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		list, err := deps.Engine.ListSeries(cmd.Context(), deps.Config.Family)
		if err != nil {
			return err
		}
		if wantJSON() {
			return printJSON(cmd.OutOrStdout(), list)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No series yet.")
			fmt.Fprintln(cmd.OutOrStdout(), "  Use: sproutcal series add <name> --days mon,wed")
			return nil
		}
		today := deps.Engine.Today()
		printSimpleTable(cmd.OutOrStdout(), []string{"ID", "NAME", "CATEGORY", "RULE", "TIME", "HOURS", "START", "END", "STATUS", "NEXT"}, func(add func(...string)) {
			for _, s := range list {
				next := "-"
				if o, ok := recur.Next(s, today, nextHorizonDays); ok {
					next = o.Date.String() + " " + o.Time
				}
				add(s.ID, s.Name, string(s.Category), s.Describe(), s.StartTime,
					formatHours(s.DurationHours), s.StartDate.String(), endDateString(s.EndDate), string(s.Status), next)
			}
		})
		return nil
	},
}

// ─── series show ──────────────────────────────────────────────────────────────

var seriesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one series as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		s, err := deps.Engine.GetSeries(cmd.Context(), deps.Config.Family, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), s)
	},
}

// ─── series add ───────────────────────────────────────────────────────────────

var addFlags struct {
	category string
	days     string
	weeks    string
	at       string
	dayTimes []string
	duration float64
	start    string
	end      string
}

var seriesAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a recurring or one-off activity",
	Long: `Add a series. With --days the series repeats weekly on those days;
without it the activity happens once on --start (default today).`,
	Example: `  sproutcal series add Soccer --category sport --days mon,wed --time 16:00 --duration 1.5
  sproutcal series add "Art club" --days tue --weeks 1,3
  sproutcal series add Swim --days mon,fri --time 16:00 --day-time fri=17:30
  sproutcal series add "Zoo trip" --category travel --start 2024-03-09 --time 10:30`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := model.SeriesInput{
			Name:          args[0],
			Category:      model.Category(addFlags.category),
			StartTime:     addFlags.at,
			DurationHours: addFlags.duration,
		}
		var err error
		if in.Days, err = parseDays(addFlags.days); err != nil {
			return err
		}
		if in.WeekOccurrences, err = parseWeeks(addFlags.weeks); err != nil {
			return err
		}
		if in.DayTimeMap, err = parseDayTimes(addFlags.dayTimes); err != nil {
			return err
		}
		start, err := parseOptionalDate("--start", addFlags.start)
		if err != nil {
			return err
		}
		if start != nil {
			in.StartDate = *start
		}
		if in.EndDate, err = parseOptionalDate("--end", addFlags.end); err != nil {
			return err
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		s, err := deps.Engine.CreateSeries(cmd.Context(), deps.Config.Family, in)
		if err != nil {
			return err
		}
		if wantJSON() {
			return printJSON(cmd.OutOrStdout(), s)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s, %s at %s)\n", s.Name, s.ID, s.Describe(), s.StartTime)
		return nil
	},
}

// parseDayTimes turns ["fri=17:30"] into the wire day-time map.
func parseDayTimes(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		day, at, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --day-time %q: expected day=HH:MM", p)
		}
		days, err := parseDays(day)
		if err != nil || len(days) != 1 {
			return nil, fmt.Errorf("invalid --day-time %q: bad weekday", p)
		}
		out[fmt.Sprint(days[0])] = strings.TrimSpace(at)
	}
	return out, nil
}

// ─── series update ────────────────────────────────────────────────────────────

var updateFlags struct {
	scope    string
	on       string
	name     string
	category string
	days     string
	weeks    string
	at       string
	duration float64
	start    string
	end      string
	noEnd    bool
	status   string
}

var seriesUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Edit a series",
	Long: `Edit a series. For recurring series --scope decides what changes:

  this    only the occurrence on --on (default today) becomes a one-off
  future  occurrences from tomorrow on move to a new series
  all     the whole series is edited in place (default)`,
	Example: `  sproutcal series update 3f2a --time 17:00
  sproutcal series update 3f2a --scope future --days tue,thu
  sproutcal series update 3f2a --scope this --on 2024-01-15 --time 18:00`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := schedule.ParseScope(updateFlags.scope)
		if err != nil {
			return err
		}
		changes, err := buildChanges(cmd)
		if err != nil {
			return err
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		s, err := deps.Engine.UpdateSeries(cmd.Context(), deps.Config.Family, args[0], scope, changes)
		if err != nil {
			return err
		}
		if wantJSON() {
			return printJSON(cmd.OutOrStdout(), s)
		}
		if s.ID != args[0] {
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s, %s) from %s\n", s.Name, s.ID, s.Describe(), args[0])
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (%s, %s)\n", s.Name, s.ID, s.Describe())
		return nil
	},
}

// buildChanges copies only the flags the user actually set.
func buildChanges(cmd *cobra.Command) (model.SeriesChanges, error) {
	var c model.SeriesChanges
	f := cmd.Flags()
	var err error
	if f.Changed("name") {
		c.Name = &updateFlags.name
	}
	if f.Changed("category") {
		cat := model.Category(updateFlags.category)
		c.Category = &cat
	}
	if f.Changed("days") {
		if c.Days, err = parseDays(updateFlags.days); err != nil {
			return c, err
		}
		if c.Days == nil {
			c.Days = []int{}
		}
	}
	if f.Changed("weeks") {
		if c.WeekOccurrences, err = parseWeeks(updateFlags.weeks); err != nil {
			return c, err
		}
		if c.WeekOccurrences == nil {
			c.WeekOccurrences = []int{}
		}
	}
	if f.Changed("time") {
		c.StartTime = &updateFlags.at
	}
	if f.Changed("duration") {
		c.DurationHours = &updateFlags.duration
	}
	if c.StartDate, err = parseOptionalDate("--start", updateFlags.start); err != nil {
		return c, err
	}
	if c.EndDate, err = parseOptionalDate("--end", updateFlags.end); err != nil {
		return c, err
	}
	c.ClearEndDate = updateFlags.noEnd
	if f.Changed("status") {
		st, err := model.ParseStatus(updateFlags.status)
		if err != nil {
			return c, err
		}
		c.Status = &st
	}
	if c.OccurrenceDate, err = parseOptionalDate("--on", updateFlags.on); err != nil {
		return c, err
	}
	return c, nil
}

// ─── series delete ────────────────────────────────────────────────────────────

var deleteFlags struct {
	scope string
	yes   bool
}

var seriesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a series (asks for confirmation)",
	Long: `Delete a series. With --scope this or future a recurring series that
has already started is ended today instead of removed, keeping its history.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := schedule.ParseScope(deleteFlags.scope)
		if err != nil {
			return err
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		ctx := cmd.Context()
		p, err := deps.Engine.RequestDeletion(ctx, deps.Config.Family, args[0], scope)
		if err != nil {
			return err
		}
		if p.Name == "" {
			_ = deps.Engine.CancelDeletion(p.Family, p.Token)
			fmt.Fprintf(cmd.OutOrStdout(), "Series %s is already gone.\n", p.SeriesID)
			return nil
		}
		if !deleteFlags.yes {
			fmt.Fprintf(cmd.OutOrStdout(), "Delete %q (%s, scope %s)? [y/N] ", p.Name, p.SeriesID, p.Scope)
			answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
				_ = deps.Engine.CancelDeletion(p.Family, p.Token)
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
		}
		if _, err := deps.Engine.ConfirmDeletion(ctx, p.Family, p.Token); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (%s)\n", p.Name, p.Scope)
		return nil
	},
}

func init() {
	af := seriesAddCmd.Flags()
	af.StringVar(&addFlags.category, "category", string(model.CategoryAdhoc),
		"sport|art|media|academic|adhoc|travel")
	af.StringVar(&addFlags.days, "days", "", "weekdays, e.g. mon,wed (omit for a one-off)")
	af.StringVar(&addFlags.weeks, "weeks", "", "weeks of the month, e.g. 1,3 (default: every week)")
	af.StringVar(&addFlags.at, "time", model.DefaultStartTime, "start time HH:MM")
	af.StringArrayVar(&addFlags.dayTimes, "day-time", nil, "per-day start time, e.g. fri=17:30 (repeatable)")
	af.Float64Var(&addFlags.duration, "duration", 1, "duration in hours")
	af.StringVar(&addFlags.start, "start", "", "first date YYYY-MM-DD (default: today)")
	af.StringVar(&addFlags.end, "end", "", "last date YYYY-MM-DD")

	uf := seriesUpdateCmd.Flags()
	uf.StringVar(&updateFlags.scope, "scope", string(schedule.ScopeAll), "this|future|all")
	uf.StringVar(&updateFlags.on, "on", "", "occurrence date for --scope this (default: today)")
	uf.StringVar(&updateFlags.name, "name", "", "new name")
	uf.StringVar(&updateFlags.category, "category", "", "new category")
	uf.StringVar(&updateFlags.days, "days", "", "new weekdays (empty clears)")
	uf.StringVar(&updateFlags.weeks, "weeks", "", "new weeks of the month (empty means every week)")
	uf.StringVar(&updateFlags.at, "time", "", "new start time HH:MM")
	uf.Float64Var(&updateFlags.duration, "duration", 0, "new duration in hours")
	uf.StringVar(&updateFlags.start, "start", "", "new start date")
	uf.StringVar(&updateFlags.end, "end", "", "new end date")
	uf.BoolVar(&updateFlags.noEnd, "no-end", false, "remove the end date")
	uf.StringVar(&updateFlags.status, "status", "", "active|paused|discontinued")

	df := seriesDeleteCmd.Flags()
	df.StringVar(&deleteFlags.scope, "scope", string(schedule.ScopeAll), "this|future|all")
	df.BoolVarP(&deleteFlags.yes, "yes", "y", false, "skip the confirmation prompt")

	seriesCmd.AddCommand(seriesListCmd, seriesShowCmd, seriesAddCmd, seriesUpdateCmd, seriesDeleteCmd)
	rootCmd.AddCommand(seriesCmd)
}

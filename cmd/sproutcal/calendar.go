package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"sproutcal/internal/calendar"
	"sproutcal/internal/model"
)

var calendarDate string

var calendarCmd = &cobra.Command{
	Use:       "calendar [week|month]",
	Aliases:   []string{"cal"},
	Short:     "Show the resolved week or month grid",
	Example:   "  sproutcal calendar month --date 2024-02-01",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(calendar.ViewWeek), string(calendar.ViewMonth)},
	RunE: func(cmd *cobra.Command, args []string) error {
		var viewArg string
		if len(args) == 1 {
			viewArg = args[0]
		}
		view, err := calendar.ParseView(viewArg)
		if err != nil {
			return err
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		ref := deps.Engine.Today()
		if d, err := parseOptionalDate("--date", calendarDate); err != nil {
			return err
		} else if d != nil {
			ref = *d
		}

		snap, err := deps.Engine.Snapshot(cmd.Context(), deps.Config.Family)
		if err != nil {
			return err
		}
		g := calendar.Build(view, ref, snap)
		if wantJSON() {
			return printJSON(cmd.OutOrStdout(), g)
		}
		renderGrid(cmd.OutOrStdout(), g)
		return nil
	},
}

// renderGrid prints one table row per calendar week.
func renderGrid(w io.Writer, g calendar.Grid) {
	fmt.Fprintf(w, "%s %s .. %s\n", strings.ToUpper(string(g.View)), g.From, g.To)

	tw := tablewriter.NewWriter(w)
	tw.SetHeader(g.Columns)
	tw.SetBorder(true)
	tw.SetRowLine(true)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)

	row := make([]string, 0, 7)
	for _, c := range g.Cells {
		row = append(row, cellText(c))
		if len(row) == 7 {
			tw.Append(row)
			row = make([]string, 0, 7)
		}
	}
	tw.Render()

	fmt.Fprintf(w, "%d activities, %s\n", g.Stats.ClassCount, formatHours(g.Stats.TotalHours))
}

func cellText(c calendar.Cell) string {
	if c.Date == nil {
		return ""
	}
	lines := []string{fmt.Sprintf("%02d", c.Date.Day)}
	if c.Today {
		lines[0] += " *"
	}
	for _, o := range c.Occurrences {
		line := o.Time + " " + o.Name
		if isGlyph(o.Icon) {
			line = o.Icon + " " + line
		}
		if m := completionMark(o.Completion); m != "" {
			line += " " + m
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// isGlyph reports whether an icon ref is a short emoji rather than an image
// URL.
func isGlyph(ref string) bool {
	return ref != "" && !strings.HasPrefix(ref, "data:") && !strings.Contains(ref, "://")
}

func completionMark(s model.ActivityStatus) string {
	switch s {
	case model.ActivityAttended:
		return "✓"
	case model.ActivityMissed:
		return "✗"
	case model.ActivityCancelled:
		return "(cancelled)"
	}
	return ""
}

func init() {
	calendarCmd.Flags().StringVar(&calendarDate, "date", "", "any date inside the week or month (default: today)")
	rootCmd.AddCommand(calendarCmd)
}

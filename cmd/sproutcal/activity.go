package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sproutcal/internal/model"
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Record what actually happened",
}

var activityFlags struct {
	status   string
	at       string
	category string
	duration float64
}

var activityLogCmd = &cobra.Command{
	Use:   "log <name>",
	Short: "Log an attended, missed or cancelled activity",
	Long: `Log an activity. It is matched to a scheduled occurrence with exactly
the same name on the same calendar date.`,
	Example: `  sproutcal activity log Soccer
  sproutcal activity log Piano --status missed --at "2024-01-08 16:00"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		a := model.LoggedActivity{
			Name:          args[0],
			Category:      model.Category(activityFlags.category),
			Status:        model.ActivityStatus(activityFlags.status),
			DurationHours: activityFlags.duration,
		}
		if activityFlags.at != "" {
			if a.Timestamp, err = parseWhen(activityFlags.at, deps.Engine.Location()); err != nil {
				return err
			}
		}
		a, err = deps.Engine.LogActivity(cmd.Context(), deps.Config.Family, a)
		if err != nil {
			return err
		}
		if wantJSON() {
			return printJSON(cmd.OutOrStdout(), a)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged %s as %s at %s\n", a.Name, a.Status, a.Timestamp.Format("2006-01-02 15:04"))
		return nil
	},
}

var activityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List logged activities, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		acts, err := deps.Engine.ListActivities(cmd.Context(), deps.Config.Family)
		if err != nil {
			return err
		}
		if wantJSON() {
			return printJSON(cmd.OutOrStdout(), acts)
		}
		loc := deps.Engine.Location()
		printSimpleTable(cmd.OutOrStdout(), []string{"WHEN", "NAME", "STATUS", "CATEGORY", "HOURS"}, func(add func(...string)) {
			for _, a := range acts {
				add(a.Timestamp.In(loc).Format("2006-01-02 15:04"), a.Name, string(a.Status),
					string(a.Category), formatHours(a.DurationHours))
			}
		})
		return nil
	},
}

func init() {
	lf := activityLogCmd.Flags()
	lf.StringVar(&activityFlags.status, "status", string(model.ActivityAttended), "attended|missed|cancelled")
	lf.StringVar(&activityFlags.at, "at", "", `when it happened, RFC 3339 or "YYYY-MM-DD HH:MM" (default: now)`)
	lf.StringVar(&activityFlags.category, "category", "", "category")
	lf.Float64Var(&activityFlags.duration, "duration", 0, "hours spent")

	activityCmd.AddCommand(activityLogCmd, activityListCmd)
	rootCmd.AddCommand(activityCmd)
}

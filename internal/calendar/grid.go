// Package calendar lays out Monday-first week and month grids and fills
// each cell with the occurrences resolved for that date.
//
// Weekday indices stay 0 = Sunday everywhere else in the module; the
// Monday-first ordering exists only here, at the display boundary.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"sproutcal/internal/model"
)

// View selects the grid shape.
type View string

const (
	ViewWeek  View = "week"
	ViewMonth View = "month"
)

func ParseView(s string) (View, error) {
	switch View(strings.ToLower(strings.TrimSpace(s))) {
	case ViewWeek, "":
		return ViewWeek, nil
	case ViewMonth:
		return ViewMonth, nil
	}
	return "", fmt.Errorf("unknown view %q (want week or month)", s)
}

// ColumnLabels are the Monday-first column headers.
var ColumnLabels = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Column returns the Monday-first column (0..6) for a weekday.
func Column(w time.Weekday) int {
	return (int(w) + 6) % 7
}

// WeekStart returns the Monday of the week containing d.
func WeekStart(d model.Date) model.Date {
	return d.AddDays(-Column(d.Weekday()))
}

// WeekGrid returns the 7 dates Monday..Sunday of the week containing ref.
func WeekGrid(ref model.Date) []model.Date {
	start := WeekStart(ref)
	out := make([]model.Date, 7)
	for i := range out {
		out[i] = start.AddDays(i)
	}
	return out
}

// MonthGrid returns full Monday-first weeks covering ref's month. Cells
// before the 1st and after the last day are nil.
func MonthGrid(ref model.Date) []*model.Date {
	first := model.Date{Year: ref.Year, Month: ref.Month, Day: 1}
	days := model.DaysIn(ref.Year, ref.Month)
	lead := Column(first.Weekday())

	total := lead + days
	if rem := total % 7; rem != 0 {
		total += 7 - rem
	}

	cells := make([]*model.Date, total)
	for i := 0; i < days; i++ {
		d := first.AddDays(i)
		cells[lead+i] = &d
	}
	return cells
}

// Range returns the first and last real dates a view covers.
func Range(view View, ref model.Date) (model.Date, model.Date) {
	if view == ViewMonth {
		first := model.Date{Year: ref.Year, Month: ref.Month, Day: 1}
		return first, first.AddDays(model.DaysIn(ref.Year, ref.Month) - 1)
	}
	start := WeekStart(ref)
	return start, start.AddDays(6)
}

package calendar_test

import (
	"testing"
	"time"

	"sproutcal/internal/calendar"
	"sproutcal/internal/model"
)

func d(s string) model.Date { return model.MustParseDate(s) }

func series(id, name string, cat model.Category, hours float64, start string, days ...time.Weekday) model.Series {
	return model.Series{
		ID:            id,
		Name:          name,
		Category:      cat,
		Recurrence:    model.NewWeekly(days, nil),
		StartTime:     "10:00",
		DurationHours: hours,
		StartDate:     d(start),
		Status:        model.StatusActive,
	}
}

func TestWeekStart(t *testing.T) {
	cases := map[string]string{
		"2024-01-01": "2024-01-01", // Monday
		"2024-01-03": "2024-01-01", // Wednesday
		"2024-01-07": "2024-01-01", // Sunday -> 6 days earlier
		"2024-03-01": "2024-02-26", // crosses a month
	}
	for in, want := range cases {
		if got := calendar.WeekStart(d(in)).String(); got != want {
			t.Errorf("WeekStart(%s): expected %s, got %s", in, want, got)
		}
	}
}

func TestWeekGrid(t *testing.T) {
	g := calendar.WeekGrid(d("2024-01-07"))
	if len(g) != 7 {
		t.Fatalf("expected 7 cells, got %d", len(g))
	}
	if g[0].String() != "2024-01-01" || g[6].String() != "2024-01-07" {
		t.Errorf("expected 2024-01-01..2024-01-07, got %s..%s", g[0], g[6])
	}
	for i := 1; i < 7; i++ {
		if g[i] != g[i-1].AddDays(1) {
			t.Errorf("cell %d not consecutive", i)
		}
	}
}

func TestMonthGridLeadingNulls(t *testing.T) {
	// May 2024 starts on a Wednesday.
	cells := calendar.MonthGrid(d("2024-05-17"))
	if cells[0] != nil || cells[1] != nil {
		t.Error("Mon and Tue should be padding")
	}
	if cells[2] == nil || cells[2].String() != "2024-05-01" {
		t.Errorf("Wed should be May 1, got %v", cells[2])
	}
	if len(cells)%7 != 0 || len(cells) > 42 {
		t.Errorf("grid length %d is not full weeks within 42", len(cells))
	}
	last := cells[len(cells)-1]
	if last == nil {
		// trailing padding: the last real day must precede it
		var lastReal *model.Date
		for _, c := range cells {
			if c != nil {
				lastReal = c
			}
		}
		if lastReal.String() != "2024-05-31" {
			t.Errorf("last real day: got %s", lastReal)
		}
	}
}

func TestMonthGridShapes(t *testing.T) {
	cases := []struct {
		ref   string
		cells int
		lead  int
	}{
		{"2024-01-10", 35, 0}, // Jan 2024 starts Monday
		{"2021-02-01", 28, 0}, // Feb 2021: Monday start, 28 days
		{"2024-09-01", 42, 6}, // Sep 2024 starts Sunday, 30 days
		{"2024-06-30", 35, 5}, // Jun 2024 starts Saturday, 30 days
	}
	for _, c := range cases {
		cells := calendar.MonthGrid(d(c.ref))
		if len(cells) != c.cells {
			t.Errorf("%s: expected %d cells, got %d", c.ref, c.cells, len(cells))
		}
		lead := 0
		for lead < len(cells) && cells[lead] == nil {
			lead++
		}
		if lead != c.lead {
			t.Errorf("%s: expected %d leading nils, got %d", c.ref, c.lead, lead)
		}
	}
}

func TestSummarizeByCategory(t *testing.T) {
	snap := calendar.Snapshot{Series: []model.Series{
		series("a", "Soccer", model.CategorySport, 2, "2024-01-01", time.Tuesday),
		series("b", "Drawing", model.CategoryArt, 1, "2024-01-01", time.Thursday),
	}}
	g := calendar.Build(calendar.ViewWeek, d("2024-01-10"), snap)

	if g.Stats.ClassCount != 2 || g.Stats.TotalHours != 3 {
		t.Errorf("totals: expected 2 classes / 3h, got %d / %g", g.Stats.ClassCount, g.Stats.TotalHours)
	}
	if len(g.Stats.ByCategory) != len(model.Categories) {
		t.Fatalf("expected a row per category, got %d", len(g.Stats.ByCategory))
	}
	for i, row := range g.Stats.ByCategory {
		if row.Category != model.Categories[i] {
			t.Errorf("row %d: expected %s, got %s", i, model.Categories[i], row.Category)
		}
		switch row.Category {
		case model.CategorySport:
			if row.Count != 1 || row.Hours != 2 {
				t.Errorf("sport: expected 1/2h, got %d/%g", row.Count, row.Hours)
			}
		case model.CategoryArt:
			if row.Count != 1 || row.Hours != 1 {
				t.Errorf("art: expected 1/1h, got %d/%g", row.Count, row.Hours)
			}
		default:
			if row.Count != 0 || row.Hours != 0 {
				t.Errorf("%s: expected zero, got %d/%g", row.Category, row.Count, row.Hours)
			}
		}
	}
}

func TestBuildCellsSortedAndAnnotated(t *testing.T) {
	late := series("a", "Swim", model.CategorySport, 1, "2024-01-01", time.Monday)
	late.StartTime = "17:00"
	early := series("b", "Piano", model.CategoryArt, 0.5, "2024-01-01", time.Monday)
	early.DayTimes = map[time.Weekday]string{time.Monday: "07:45"}

	snap := calendar.Snapshot{
		Series: []model.Series{late, early},
		Activities: []model.LoggedActivity{
			{Name: "Swim", Timestamp: time.Date(2024, time.January, 8, 17, 5, 0, 0, time.Local), Status: model.ActivityAttended},
		},
		Icons: map[string]string{"Piano": "🎹"},
		Today: d("2024-01-08"),
	}
	g := calendar.Build(calendar.ViewWeek, d("2024-01-08"), snap)

	mon, ok := g.Day(d("2024-01-08"))
	if !ok {
		t.Fatal("Monday missing from grid")
	}
	if !mon.Today {
		t.Error("Monday should be flagged as today")
	}
	if len(mon.Occurrences) != 2 {
		t.Fatalf("expected 2 occurrences, got %d", len(mon.Occurrences))
	}
	first, second := mon.Occurrences[0], mon.Occurrences[1]
	if first.Name != "Piano" || first.Time != "07:45" || first.Icon != "🎹" {
		t.Errorf("first: got %+v", first)
	}
	if second.Name != "Swim" || second.Completion != model.ActivityAttended {
		t.Errorf("second: got %+v", second)
	}

	tue, _ := g.Day(d("2024-01-09"))
	if tue.Occurrences == nil || len(tue.Occurrences) != 0 {
		t.Errorf("empty day should hold an empty, non-nil slice: %#v", tue.Occurrences)
	}
}

func TestBuildMonthStatsIgnorePadding(t *testing.T) {
	snap := calendar.Snapshot{Series: []model.Series{
		series("a", "Soccer", model.CategorySport, 1, "2024-01-01", time.Monday),
	}}
	// April 2024 has 5 Mondays: 1, 8, 15, 22, 29.
	g := calendar.Build(calendar.ViewMonth, d("2024-04-10"), snap)
	if g.Stats.ClassCount != 5 {
		t.Errorf("expected 5 Mondays, got %d", g.Stats.ClassCount)
	}
	if g.From.String() != "2024-04-01" || g.To.String() != "2024-04-30" {
		t.Errorf("range: got %s..%s", g.From, g.To)
	}
}

func TestRangeStats(t *testing.T) {
	s := []model.Series{series("a", "Chess", model.CategoryAcademic, 1.5, "2024-01-01", time.Saturday, time.Sunday)}
	st := calendar.RangeStats(s, d("2024-01-01"), d("2024-01-14"))
	if st.ClassCount != 4 || st.TotalHours != 6 {
		t.Errorf("expected 4 / 6h, got %d / %g", st.ClassCount, st.TotalHours)
	}
}

func TestParseView(t *testing.T) {
	if v, err := calendar.ParseView("Month"); err != nil || v != calendar.ViewMonth {
		t.Errorf("Month: got %v, %v", v, err)
	}
	if v, err := calendar.ParseView(""); err != nil || v != calendar.ViewWeek {
		t.Errorf("empty should default to week: got %v, %v", v, err)
	}
	if _, err := calendar.ParseView("year"); err == nil {
		t.Error("year should be rejected")
	}
}

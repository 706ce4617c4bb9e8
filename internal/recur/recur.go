// Package recur resolves series into concrete occurrences. Everything here is
// a pure function of its arguments.
package recur

import (
	"cmp"
	"slices"
	"time"

	"sproutcal/internal/model"
)

// OccursOn reports whether s has an occurrence on date.
func OccursOn(s model.Series, date model.Date) bool {
	if s.Status != model.StatusActive {
		return false
	}

	weekday := date.Weekday()

	var dayMatch bool
	weekly, recurring := s.Recurrence.(model.Weekly)
	if recurring {
		dayMatch = weekly.HasDay(weekday)
	} else {
		dayMatch = date == s.StartDate
	}
	if !dayMatch {
		return false
	}

	if date.Before(s.StartDate) {
		return false
	}
	if s.EndDate != nil && date.After(*s.EndDate) {
		return false
	}

	if recurring && len(weekly.Weeks) > 0 {
		return slices.Contains(weekly.Weeks, WeekOfMonth(date))
	}
	return true
}

// WeekOfMonth returns ceil(day/7): days 1-7 are week 1, 29-31 week 5.
func WeekOfMonth(d model.Date) int {
	return (d.Day + 6) / 7
}

// EffectiveTime returns the start time of s on the given weekday.
func EffectiveTime(s model.Series, weekday time.Weekday) string {
	if t, ok := s.DayTimes[weekday]; ok && t != "" {
		return t
	}
	if s.StartTime != "" {
		return s.StartTime
	}
	return model.DefaultStartTime
}

// Resolve materialises the occurrence of s on date, if there is one.
func Resolve(s model.Series, date model.Date) (model.Occurrence, bool) {
	if !OccursOn(s, date) {
		return model.Occurrence{}, false
	}
	return model.Occurrence{
		SeriesID:      s.ID,
		Name:          s.Name,
		Category:      s.Category,
		Date:          date,
		Time:          EffectiveTime(s, date.Weekday()),
		DurationHours: s.DurationHours,
	}, true
}

// OnDate resolves every series for a single date, sorted by effective time.
// "HH:MM" is zero-padded 24h so string order is chronological.
func OnDate(series []model.Series, date model.Date) []model.Occurrence {
	var out []model.Occurrence
	for _, s := range series {
		if occ, ok := Resolve(s, date); ok {
			out = append(out, occ)
		}
	}
	slices.SortStableFunc(out, compareInDay)
	return out
}

// Between resolves every series over the inclusive range [from, to], ordered
// by date, then time, then name.
func Between(series []model.Series, from, to model.Date) []model.Occurrence {
	var out []model.Occurrence
	for d := from; !d.After(to); d = d.AddDays(1) {
		out = append(out, OnDate(series, d)...)
	}
	return out
}

// Next returns the first occurrence of s on or after from, looking at most
// horizon days ahead.
func Next(s model.Series, from model.Date, horizon int) (model.Occurrence, bool) {
	for i := 0; i <= horizon; i++ {
		if occ, ok := Resolve(s, from.AddDays(i)); ok {
			return occ, true
		}
	}
	return model.Occurrence{}, false
}

func compareInDay(a, b model.Occurrence) int {
	return cmp.Or(
		cmp.Compare(a.Time, b.Time),
		cmp.Compare(a.Name, b.Name),
	)
}

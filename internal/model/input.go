package model

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// SeriesInput is what a caller supplies to create a series. Day (singular)
// and Days (plural) are both accepted and folded together.
type SeriesInput struct {
	Name            string            `json:"name"`
	Category        Category          `json:"category"`
	IsRecurring     *bool             `json:"isRecurring,omitempty"`
	Day             *int              `json:"day,omitempty"`
	Days            []int             `json:"days,omitempty"`
	WeekOccurrences []int             `json:"weekOccurrences,omitempty"`
	StartTime       string            `json:"startTime,omitempty"`
	DayTimeMap      map[string]string `json:"dayTimeMap,omitempty"`
	DurationHours   float64           `json:"durationHours,omitempty"`
	StartDate       Date              `json:"startDate,omitzero"`
	EndDate         *Date             `json:"endDate,omitempty"`
	Status          Status            `json:"status,omitempty"`
}

// Normalize turns the input into a Series (without ID or timestamps),
// filling defaults relative to today. It does not validate.
func (in SeriesInput) Normalize(today Date) Series {
	days := mergeDays(in.Day, in.Days)
	recurring := len(days) > 0
	if in.IsRecurring != nil {
		recurring = *in.IsRecurring
	}

	s := Series{
		Name:          strings.TrimSpace(in.Name),
		Category:      in.Category,
		StartTime:     in.StartTime,
		DayTimes:      DayTimesFromWire(in.DayTimeMap),
		DurationHours: in.DurationHours,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		Status:        in.Status,
	}
	if s.Category == "" {
		s.Category = CategoryAdhoc
	}
	if s.StartDate.IsZero() {
		s.StartDate = today
	}
	if s.StartTime == "" {
		s.StartTime = DefaultStartTime
	}
	if s.DurationHours == 0 {
		s.DurationHours = 1
	}
	if s.Status == "" {
		s.Status = StatusActive
	}
	if recurring {
		s.Recurrence = NewWeekly(weekdays(days), in.WeekOccurrences)
	} else {
		s.Recurrence = OneTime{}
	}
	return s
}

// SeriesChanges describes a partial update. Nil fields are left unchanged;
// a non-nil empty Days, WeekOccurrences or DayTimeMap clears the field.
type SeriesChanges struct {
	Name            *string           `json:"name,omitempty"`
	Category        *Category         `json:"category,omitempty"`
	IsRecurring     *bool             `json:"isRecurring,omitempty"`
	Day             *int              `json:"day,omitempty"`
	Days            []int             `json:"days,omitempty"`
	WeekOccurrences []int             `json:"weekOccurrences,omitempty"`
	StartTime       *string           `json:"startTime,omitempty"`
	DayTimeMap      map[string]string `json:"dayTimeMap,omitempty"`
	DurationHours   *float64          `json:"durationHours,omitempty"`
	StartDate       *Date             `json:"startDate,omitempty"`
	EndDate         *Date             `json:"endDate,omitempty"`
	ClearEndDate    bool              `json:"clearEndDate,omitempty"`
	Status          *Status           `json:"status,omitempty"`

	// OccurrenceDate names the occurrence a "this" scoped edit targets.
	OccurrenceDate *Date `json:"occurrenceDate,omitempty"`
}

// Empty reports whether the changes would leave a series untouched.
func (c SeriesChanges) Empty() bool {
	return c.Name == nil && c.Category == nil && c.IsRecurring == nil &&
		c.Day == nil && c.Days == nil && c.WeekOccurrences == nil &&
		c.StartTime == nil && c.DayTimeMap == nil && c.DurationHours == nil &&
		c.StartDate == nil && c.EndDate == nil && !c.ClearEndDate && c.Status == nil
}

// Apply returns a copy of s with the changes applied. ID and timestamps are
// kept; the result is not validated.
func (c SeriesChanges) Apply(s Series) Series {
	out := s.Clone()
	if c.Name != nil {
		out.Name = strings.TrimSpace(*c.Name)
	}
	if c.Category != nil {
		out.Category = *c.Category
	}
	if c.StartTime != nil {
		out.StartTime = *c.StartTime
	}
	if c.DayTimeMap != nil {
		out.DayTimes = DayTimesFromWire(c.DayTimeMap)
	}
	if c.DurationHours != nil {
		out.DurationHours = *c.DurationHours
	}
	if c.StartDate != nil {
		out.StartDate = *c.StartDate
	}
	if c.ClearEndDate {
		out.EndDate = nil
	}
	if c.EndDate != nil {
		e := *c.EndDate
		out.EndDate = &e
	}
	if c.Status != nil {
		out.Status = *c.Status
	}

	cur, wasWeekly := out.Recurrence.(Weekly)
	recurring := wasWeekly
	if c.IsRecurring != nil {
		recurring = *c.IsRecurring
	}
	days := cur.Days
	if c.Days != nil || c.Day != nil {
		days = weekdays(mergeDays(c.Day, c.Days))
		if c.IsRecurring == nil {
			recurring = true
		}
	}
	weeks := cur.Weeks
	if c.WeekOccurrences != nil {
		weeks = c.WeekOccurrences
	}
	if recurring {
		out.Recurrence = NewWeekly(days, weeks)
	} else {
		out.Recurrence = OneTime{}
	}
	return out
}

// Describe renders the recurrence for tables and logs, e.g. "Mon,Wed wk1,3".
func (s Series) Describe() string {
	w, ok := s.Weekly()
	if !ok {
		return "once " + s.StartDate.String()
	}
	names := make([]string, len(w.Days))
	for i, d := range w.Days {
		names[i] = d.String()[:3]
	}
	out := strings.Join(names, ",")
	if len(w.Weeks) > 0 {
		ws := make([]string, len(w.Weeks))
		for i, n := range w.Weeks {
			ws[i] = fmt.Sprint(n)
		}
		out += " wk" + strings.Join(ws, ",")
	}
	return out
}

// SortedDayTimes returns overrides ordered by weekday, for stable output.
func (s Series) SortedDayTimes() []time.Weekday {
	keys := slices.Collect(maps.Keys(s.DayTimes))
	slices.Sort(keys)
	return keys
}

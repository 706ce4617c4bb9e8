package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DefaultStartTime is used when a series carries neither a per-day override
// nor a default start time.
const DefaultStartTime = "09:00"

// Category is the closed set of activity kinds. The declaration order of
// Categories is the display and aggregation order.
type Category string

const (
	CategorySport    Category = "sport"
	CategoryArt      Category = "art"
	CategoryMedia    Category = "media"
	CategoryAcademic Category = "academic"
	CategoryAdhoc    Category = "adhoc"
	CategoryTravel   Category = "travel"
)

// Categories lists every category in declared order.
var Categories = []Category{
	CategorySport,
	CategoryArt,
	CategoryMedia,
	CategoryAcademic,
	CategoryAdhoc,
	CategoryTravel,
}

func (c Category) Valid() bool { return slices.Contains(Categories, c) }

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// Status is the lifecycle state of a series.
type Status string

const (
	StatusActive       Status = "active"
	StatusPaused       Status = "paused"
	StatusDiscontinued Status = "discontinued"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusDiscontinued:
		return true
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// Recurrence is either OneTime or Weekly.
type Recurrence interface {
	isRecurrence()
}

// OneTime fires exactly once, on the series' StartDate.
type OneTime struct{}

// Weekly fires on every listed weekday, optionally only in the listed
// week-of-month ordinals (1..5, where week n covers days 7n-6..7n).
type Weekly struct {
	Days  []time.Weekday
	Weeks []int
}

func (OneTime) isRecurrence() {}
func (Weekly) isRecurrence()  {}

// NewWeekly returns a Weekly with days and weeks sorted and de-duplicated.
func NewWeekly(days []time.Weekday, weeks []int) Weekly {
	d := slices.Clone(days)
	slices.Sort(d)
	w := slices.Clone(weeks)
	slices.Sort(w)
	return Weekly{Days: slices.Compact(d), Weeks: slices.Compact(w)}
}

func (w Weekly) HasDay(d time.Weekday) bool { return slices.Contains(w.Days, d) }

// Series is a schedule definition producing zero or more occurrences.
type Series struct {
	ID            string
	Name          string
	Category      Category
	Recurrence    Recurrence
	StartTime     string
	DayTimes      map[time.Weekday]string
	DurationHours float64
	StartDate     Date
	EndDate       *Date
	Status        Status

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsRecurring reports whether the series uses a weekly rule.
func (s Series) IsRecurring() bool {
	_, ok := s.Recurrence.(Weekly)
	return ok
}

// Weekly returns the weekly rule, if any.
func (s Series) Weekly() (Weekly, bool) {
	w, ok := s.Recurrence.(Weekly)
	return w, ok
}

// Clone returns a deep copy safe to mutate.
func (s Series) Clone() Series {
	out := s
	if s.DayTimes != nil {
		out.DayTimes = maps.Clone(s.DayTimes)
	}
	if s.EndDate != nil {
		e := *s.EndDate
		out.EndDate = &e
	}
	if w, ok := s.Recurrence.(Weekly); ok {
		out.Recurrence = NewWeekly(w.Days, w.Weeks)
	}
	return out
}

var ErrInvalidSeries = errors.New("invalid series")

// Validate checks the series invariants.
func (s Series) Validate() error {
	var problems []string
	if strings.TrimSpace(s.Name) == "" {
		problems = append(problems, "name is empty")
	}
	if !s.Category.Valid() {
		problems = append(problems, fmt.Sprintf("unknown category %q", s.Category))
	}
	if !s.Status.Valid() {
		problems = append(problems, fmt.Sprintf("unknown status %q", s.Status))
	}
	if !(s.DurationHours > 0) {
		problems = append(problems, "duration must be positive")
	}
	if s.StartDate.IsZero() {
		problems = append(problems, "start date is missing")
	}
	if s.EndDate != nil && s.EndDate.Before(s.StartDate) {
		problems = append(problems, "end date is before start date")
	}
	if s.StartTime != "" && !ValidClock(s.StartTime) {
		problems = append(problems, fmt.Sprintf("bad start time %q", s.StartTime))
	}
	for d, t := range s.DayTimes {
		if d < time.Sunday || d > time.Saturday {
			problems = append(problems, fmt.Sprintf("bad weekday %d in day times", d))
		}
		if !ValidClock(t) {
			problems = append(problems, fmt.Sprintf("bad time %q for weekday %d", t, d))
		}
	}
	switch r := s.Recurrence.(type) {
	case OneTime:
	case Weekly:
		if len(r.Days) == 0 && s.Status == StatusActive {
			problems = append(problems, "no weekdays selected")
		}
		for _, d := range r.Days {
			if d < time.Sunday || d > time.Saturday {
				problems = append(problems, fmt.Sprintf("bad weekday %d", d))
			}
		}
		for _, w := range r.Weeks {
			if w < 1 || w > 5 {
				problems = append(problems, fmt.Sprintf("week of month %d outside 1..5", w))
			}
		}
	default:
		problems = append(problems, "recurrence is missing")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSeries, strings.Join(problems, "; "))
	}
	return nil
}

// ValidClock reports whether s is a zero-padded 24h "HH:MM".
func ValidClock(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	h, err1 := strconv.Atoi(s[:2])
	m, err2 := strconv.Atoi(s[3:])
	return err1 == nil && err2 == nil && h >= 0 && h < 24 && m >= 0 && m < 60
}

// ─── Wire format ──────────────────────────────────────────────────────────────

// seriesJSON is the flat stored/wire shape. dayOfWeek is the deprecated
// single-day field still found in older records; it is read, never written.
type seriesJSON struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Category        Category          `json:"category"`
	IsRecurring     *bool             `json:"isRecurring,omitempty"`
	DaysOfWeek      []int             `json:"daysOfWeek,omitempty"`
	DayOfWeek       *int              `json:"dayOfWeek,omitempty"`
	WeekOccurrences []int             `json:"weekOccurrences,omitempty"`
	StartTime       string            `json:"startTime,omitempty"`
	DayTimeMap      map[string]string `json:"dayTimeMap,omitempty"`
	DurationHours   float64           `json:"durationHours"`
	StartDate       Date              `json:"startDate"`
	EndDate         *Date             `json:"endDate,omitempty"`
	Status          Status            `json:"status"`
	CreatedAt       time.Time         `json:"createdAt,omitzero"`
	UpdatedAt       time.Time         `json:"updatedAt,omitzero"`
}

func (s Series) MarshalJSON() ([]byte, error) {
	recurring := s.IsRecurring()
	out := seriesJSON{
		ID:            s.ID,
		Name:          s.Name,
		Category:      s.Category,
		IsRecurring:   &recurring,
		StartTime:     s.StartTime,
		DayTimeMap:    DayTimesToWire(s.DayTimes),
		DurationHours: s.DurationHours,
		StartDate:     s.StartDate,
		EndDate:       s.EndDate,
		Status:        s.Status,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	if w, ok := s.Recurrence.(Weekly); ok {
		out.DaysOfWeek = make([]int, len(w.Days))
		for i, d := range w.Days {
			out.DaysOfWeek[i] = int(d)
		}
		out.WeekOccurrences = slices.Clone(w.Weeks)
	}
	return json.Marshal(out)
}

func (s *Series) UnmarshalJSON(b []byte) error {
	var in seriesJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	days := mergeDays(in.DayOfWeek, in.DaysOfWeek)
	recurring := len(days) > 0
	if in.IsRecurring != nil {
		recurring = *in.IsRecurring
	}
	*s = Series{
		ID:            in.ID,
		Name:          in.Name,
		Category:      in.Category,
		StartTime:     in.StartTime,
		DayTimes:      DayTimesFromWire(in.DayTimeMap),
		DurationHours: in.DurationHours,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		Status:        in.Status,
		CreatedAt:     in.CreatedAt,
		UpdatedAt:     in.UpdatedAt,
	}
	if s.Status == "" {
		s.Status = StatusActive
	}
	if recurring {
		s.Recurrence = NewWeekly(weekdays(days), in.WeekOccurrences)
	} else {
		s.Recurrence = OneTime{}
	}
	return nil
}

// DayTimesToWire converts overrides to the string-keyed wire map.
func DayTimesToWire(m map[time.Weekday]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for d, t := range m {
		out[strconv.Itoa(int(d))] = t
	}
	return out
}

// DayTimesFromWire parses "0".."6" keys; anything else is dropped.
func DayTimesFromWire(m map[string]string) map[time.Weekday]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[time.Weekday]string, len(m))
	for k, v := range m {
		n, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		out[time.Weekday(n)] = v
	}
	return out
}

func mergeDays(single *int, plural []int) []int {
	days := slices.Clone(plural)
	if single != nil && !slices.Contains(days, *single) {
		days = append(days, *single)
	}
	return days
}

func weekdays(days []int) []time.Weekday {
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		out = append(out, time.Weekday(d))
	}
	return out
}

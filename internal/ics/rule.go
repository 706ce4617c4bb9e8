// Package ics maps series to and from iCalendar (RFC 5545).
package ics

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/teambition/rrule-go"

	"sproutcal/internal/model"
	"sproutcal/internal/recur"
)

// rrule weekdays are Monday-first; index with time.Weekday via toRRule.
var rruleDays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

func toRRule(d time.Weekday) rrule.Weekday { return rruleDays[d] }

// fromRRule converts rrule's Monday=0 numbering back to time.Weekday.
func fromRRule(w rrule.Weekday) time.Weekday { return time.Weekday((w.Day() + 1) % 7) }

// RuleFor builds the RFC 5545 rule for a weekly series, anchored at its
// start date and default start time. OneTime series have no rule and
// return (nil, nil).
//
// A week-of-month filter becomes a MONTHLY rule on nth weekdays: the nth
// weekday of a month is exactly the one whose day satisfies ceil(day/7)=n.
func RuleFor(s model.Series, loc *time.Location) (*rrule.RRule, error) {
	w, ok := s.Weekly()
	if !ok {
		return nil, nil
	}
	return ruleForDays(s, w.Days, w.Weeks, s.StartTime, loc)
}

func ruleForDays(s model.Series, days []time.Weekday, weeks []int, clock string, loc *time.Location) (*rrule.RRule, error) {
	if len(days) == 0 {
		return nil, errors.New("weekly rule without weekdays")
	}
	if loc == nil {
		loc = time.Local
	}
	start, err := at(s.StartDate, clock, loc)
	if err != nil {
		return nil, err
	}

	opt := rrule.ROption{Dtstart: start}
	if len(weeks) == 0 {
		opt.Freq = rrule.WEEKLY
		for _, d := range days {
			opt.Byweekday = append(opt.Byweekday, toRRule(d))
		}
	} else {
		opt.Freq = rrule.MONTHLY
		for _, n := range weeks {
			for _, d := range days {
				wd := toRRule(d)
				opt.Byweekday = append(opt.Byweekday, wd.Nth(n))
			}
		}
	}
	if s.EndDate != nil {
		end := s.EndDate.Time(loc)
		opt.Until = time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, loc)
	}
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("building rule for %s: %w", s.ID, err)
	}
	return r, nil
}

// Dates expands s over [from, to] through its RFC 5545 rule. It agrees with
// recur.OccursOn and exists so exported feeds can be checked against the
// resolver.
func Dates(s model.Series, from, to model.Date, loc *time.Location) ([]model.Date, error) {
	if s.Status != model.StatusActive {
		return nil, nil
	}
	if loc == nil {
		loc = time.Local
	}
	r, err := RuleFor(s, loc)
	if err != nil {
		return nil, err
	}
	if r == nil {
		if !s.StartDate.Before(from) && !s.StartDate.After(to) {
			return []model.Date{s.StartDate}, nil
		}
		return nil, nil
	}
	lo := from.Time(loc)
	hi := to.AddDays(1).Time(loc).Add(-time.Second)
	var out []model.Date
	for _, t := range r.Between(lo, hi, true) {
		out = append(out, model.DateOf(t.In(loc)))
	}
	return out, nil
}

// timedRule is one VEVENT's worth of a series: the weekdays that share a
// start time.
type timedRule struct {
	clock string
	days  []time.Weekday
	rule  *rrule.RRule
}

// timedRules splits a weekly series by effective start time, since one
// RRULE cannot carry per-weekday times.
func timedRules(s model.Series, loc *time.Location) ([]timedRule, error) {
	w, ok := s.Weekly()
	if !ok {
		return nil, nil
	}
	byClock := map[string][]time.Weekday{}
	var order []string
	for _, d := range w.Days {
		c := recur.EffectiveTime(s, d)
		if _, seen := byClock[c]; !seen {
			order = append(order, c)
		}
		byClock[c] = append(byClock[c], d)
	}
	slices.Sort(order)

	out := make([]timedRule, 0, len(order))
	for _, c := range order {
		r, err := ruleForDays(s, byClock[c], w.Weeks, c, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, timedRule{clock: c, days: byClock[c], rule: r})
	}
	return out, nil
}

// at combines a date and an "HH:MM" clock in loc.
func at(d model.Date, clock string, loc *time.Location) (time.Time, error) {
	if clock == "" {
		clock = model.DefaultStartTime
	}
	if !model.ValidClock(clock) {
		return time.Time{}, fmt.Errorf("bad clock %q", clock)
	}
	h, _ := strconv.Atoi(clock[:2])
	m, _ := strconv.Atoi(clock[3:])
	return time.Date(d.Year, d.Month, d.Day, h, m, 0, 0, loc), nil
}

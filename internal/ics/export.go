package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"sproutcal/internal/model"
)

const (
	productID   = "-//sproutcal//schedule//EN"
	localLayout = "20060102T150405"
	dateLayout  = "20060102"
)

// Export renders every active series as a VCALENDAR. Weekly series whose
// weekdays start at different times are split into one VEVENT per time.
func Export(series []model.Series, loc *time.Location, now time.Time) ([]byte, error) {
	if loc == nil {
		loc = time.Local
	}
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName("sproutcal")
	cal.SetXWRTimezone(loc.String())

	for _, s := range series {
		if s.Status != model.StatusActive {
			continue
		}
		if err := addSeries(cal, s, loc, now); err != nil {
			return nil, fmt.Errorf("exporting %s: %w", s.ID, err)
		}
	}
	return []byte(cal.Serialize()), nil
}

func addSeries(cal *ical.Calendar, s model.Series, loc *time.Location, now time.Time) error {
	if !s.IsRecurring() {
		start, err := at(s.StartDate, s.StartTime, loc)
		if err != nil {
			return err
		}
		addEvent(cal, s, s.ID+"@sproutcal", start, "", loc, now)
		return nil
	}

	rules, err := timedRules(s, loc)
	if err != nil {
		return err
	}
	for i, tr := range rules {
		// DTSTART counts as an instance in RFC 5545, so anchor it on the
		// first real occurrence.
		first := tr.rule.After(tr.rule.GetDTStart(), true)
		if first.IsZero() {
			continue
		}
		uid := s.ID + "@sproutcal"
		if len(rules) > 1 {
			uid = fmt.Sprintf("%s-%d@sproutcal", s.ID, i+1)
		}
		addEvent(cal, s, uid, first, tr.rule.OrigOptions.RRuleString(), loc, now)
	}
	return nil
}

func addEvent(cal *ical.Calendar, s model.Series, uid string, start time.Time, rule string, loc *time.Location, now time.Time) {
	tzid := &ical.KeyValues{Key: "TZID", Value: []string{loc.String()}}
	end := start.Add(time.Duration(s.DurationHours * float64(time.Hour)))

	ev := cal.AddEvent(uid)
	ev.SetDtStampTime(now.UTC())
	if !s.CreatedAt.IsZero() {
		ev.SetCreatedTime(s.CreatedAt.UTC())
	}
	if !s.UpdatedAt.IsZero() {
		ev.SetModifiedAt(s.UpdatedAt.UTC())
	}
	ev.SetSummary(s.Name)
	ev.SetProperty(ical.ComponentPropertyCategories, strings.ToUpper(string(s.Category)))
	ev.SetProperty(ical.ComponentPropertyDtStart, start.In(loc).Format(localLayout), tzid)
	ev.SetProperty(ical.ComponentPropertyDtEnd, end.In(loc).Format(localLayout), tzid)
	if rule != "" {
		ev.SetProperty(ical.ComponentPropertyRrule, ruleValue(rule))
	}
}

// ruleValue drops the "RRULE:" prefix some renderings include.
func ruleValue(rule string) string {
	return strings.TrimPrefix(rule, "RRULE:")
}

package ics

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"sproutcal/internal/log"
	"sproutcal/internal/model"
)

var ErrUnsupportedRule = errors.New("unsupported recurrence rule")

// Import turns the VEVENTs of an ICS payload into series inputs.
//
//   - Events without RRULE become one-offs.
//   - FREQ=WEEKLY rules (interval 1) become weekly series.
//   - FREQ=MONTHLY rules on nth weekdays (+1MO,+3MO..) become weekly
//     series with a week-of-month filter.
//
// Anything else (EXDATE, RECURRENCE-ID overrides, other frequencies) is
// skipped with a log line; one bad event never fails the import.
func Import(body []byte, loc *time.Location) ([]model.SeriesInput, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing calendar: %w", err)
	}

	var out []model.SeriesInput
	skipped := 0
	for _, ve := range cal.Events() {
		in, err := importEvent(ve, loc)
		if err != nil {
			skipped++
			log.Info("ics event skipped", "uid", propValue(ve, ical.ComponentPropertyUniqueId), "reason", err.Error())
			continue
		}
		out = append(out, in)
	}
	log.Info("ics import parsed", "events", len(out), "skipped", skipped)
	return out, nil
}

func importEvent(ve *ical.VEvent, loc *time.Location) (model.SeriesInput, error) {
	var in model.SeriesInput

	if ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")) != nil {
		return in, errors.New("recurrence override")
	}
	in.Name = strings.TrimSpace(propValue(ve, ical.ComponentPropertySummary))
	if in.Name == "" {
		return in, errors.New("missing SUMMARY")
	}
	in.Category = categoryOf(propValue(ve, ical.ComponentPropertyCategories))

	start, allDay, err := propTime(ve.GetProperty(ical.ComponentPropertyDtStart), loc)
	if err != nil {
		return in, fmt.Errorf("DTSTART: %w", err)
	}
	in.StartDate = model.DateOf(start)
	if !allDay {
		in.StartTime = start.Format("15:04")
	}

	in.DurationHours = 1
	if end, _, err := propTime(ve.GetProperty(ical.ComponentPropertyDtEnd), loc); err == nil && end.After(start) {
		in.DurationHours = math.Round(end.Sub(start).Hours()*100) / 100
	}

	raw := propValue(ve, ical.ComponentPropertyRrule)
	if raw == "" {
		recurring := false
		in.IsRecurring = &recurring
		return in, nil
	}
	if len(ve.GetProperties(ical.ComponentPropertyExdate)) > 0 {
		return in, errors.New("EXDATE is not representable")
	}
	if err := applyRule(&in, raw, start, loc); err != nil {
		return in, err
	}
	return in, nil
}

// applyRule fills the recurrence fields of in from an RRULE value.
func applyRule(in *model.SeriesInput, raw string, start time.Time, loc *time.Location) error {
	opt, err := rrule.StrToROptionInLocation(raw, loc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedRule, err)
	}
	if opt.Interval > 1 || len(opt.Bysetpos) > 0 || len(opt.Bymonthday) > 0 ||
		len(opt.Bymonth) > 0 || len(opt.Byyearday) > 0 || len(opt.Byweekno) > 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedRule, raw)
	}

	var days []int
	var weeks []int
	switch opt.Freq {
	case rrule.WEEKLY:
		for _, wd := range opt.Byweekday {
			if wd.N() != 0 {
				return fmt.Errorf("%w: %s", ErrUnsupportedRule, raw)
			}
			days = append(days, int(fromRRule(wd)))
		}
		if len(days) == 0 {
			days = []int{int(start.Weekday())}
		}
	case rrule.MONTHLY:
		if len(opt.Byweekday) == 0 {
			return fmt.Errorf("%w: %s", ErrUnsupportedRule, raw)
		}
		pairs := map[[2]int]bool{}
		for _, wd := range opt.Byweekday {
			n := wd.N()
			if n < 1 || n > 5 {
				return fmt.Errorf("%w: %s", ErrUnsupportedRule, raw)
			}
			d := int(fromRRule(wd))
			pairs[[2]int{d, n}] = true
			if !slices.Contains(days, d) {
				days = append(days, d)
			}
			if !slices.Contains(weeks, n) {
				weeks = append(weeks, n)
			}
		}
		// Only a full days x weeks grid maps onto one series.
		if len(pairs) != len(days)*len(weeks) {
			return fmt.Errorf("%w: %s", ErrUnsupportedRule, raw)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedRule, raw)
	}

	slices.Sort(days)
	slices.Sort(weeks)
	recurring := true
	in.IsRecurring = &recurring
	in.Days = days
	in.WeekOccurrences = weeks

	switch {
	case !opt.Until.IsZero():
		end := model.DateOf(opt.Until.In(loc))
		in.EndDate = &end
	case opt.Count > 0:
		opt.Dtstart = start
		r, err := rrule.NewRRule(*opt)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnsupportedRule, err)
		}
		all := r.All()
		if len(all) == 0 {
			return errors.New("rule yields no occurrences")
		}
		end := model.DateOf(all[len(all)-1].In(loc))
		in.EndDate = &end
	}
	return nil
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return prop.Value
	}
	return ""
}

// propTime parses a DATE or DATE-TIME property, honouring TZID and a
// trailing Z, and returns it in loc.
func propTime(prop *ical.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	if prop == nil {
		return time.Time{}, false, errors.New("missing")
	}
	v := strings.TrimSpace(prop.Value)
	if v == "" {
		return time.Time{}, false, errors.New("empty value")
	}

	src := loc
	if tz, ok := prop.ICalParameters["TZID"]; ok && len(tz) > 0 {
		if l, err := time.LoadLocation(tz[0]); err == nil {
			src = l
		}
	}

	switch {
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse(localLayout+"Z", v)
		return t.In(loc), false, err
	case strings.Contains(v, "T"):
		t, err := time.ParseInLocation(localLayout, v, src)
		return t.In(loc), false, err
	default:
		t, err := time.ParseInLocation(dateLayout, v, loc)
		return t, true, err
	}
}

func categoryOf(v string) model.Category {
	for _, part := range strings.Split(v, ",") {
		if c, err := model.ParseCategory(part); err == nil {
			return c
		}
	}
	return model.CategoryAdhoc
}

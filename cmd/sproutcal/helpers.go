package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"sproutcal/internal/model"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func wantJSON() bool {
	return strings.EqualFold(globalFlags.Format, formatJSON)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printSimpleTable renders a bordered, left-aligned table.
func printSimpleTable(w io.Writer, headers []string, fill func(add func(...string))) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)

	fill(func(cols ...string) {
		tw.Append(cols)
	})
	tw.Render()
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

// parseDays accepts a comma list of weekday names ("mon,wed", "Tuesday")
// or 0..6 indices with 0 = Sunday.
func parseDays(s string) ([]int, error) {
	var out []int
	for _, part := range splitList(s) {
		if n, err := strconv.Atoi(part); err == nil {
			if n < 0 || n > 6 {
				return nil, fmt.Errorf("weekday %d outside 0..6", n)
			}
			out = append(out, n)
			continue
		}
		key := strings.ToLower(part)
		if len(key) > 3 {
			key = key[:3]
		}
		d, ok := weekdayNames[key]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", part)
		}
		out = append(out, int(d))
	}
	return out, nil
}

// parseWeeks accepts a comma list of week-of-month numbers 1..5.
func parseWeeks(s string) ([]int, error) {
	var out []int
	for _, part := range splitList(s) {
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 || n > 5 {
			return nil, fmt.Errorf("invalid week of month %q: expected 1..5", part)
		}
		out = append(out, n)
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseOptionalDate parses YYYY-MM-DD, returning nil for an empty string.
func parseOptionalDate(label, s string) (*model.Date, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", label, err)
	}
	return &d, nil
}

// parseWhen accepts RFC 3339 or "YYYY-MM-DD HH:MM" in loc.
func parseWhen(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: expected RFC 3339 or \"YYYY-MM-DD HH:MM\"", s)
	}
	return t, nil
}

func endDateString(d *model.Date) string {
	if d == nil {
		return "-"
	}
	return d.String()
}

func formatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64) + "h"
}

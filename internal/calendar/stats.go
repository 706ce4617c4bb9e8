package calendar

import (
	"sproutcal/internal/model"
	"sproutcal/internal/recur"
)

// CategoryStat is the per-category share of a range.
type CategoryStat struct {
	Category model.Category `json:"category"`
	Count    int            `json:"count"`
	Hours    float64        `json:"hours"`
}

// Stats summarises the occurrences of a visible range.
type Stats struct {
	ClassCount int            `json:"classCount"`
	TotalHours float64        `json:"totalHours"`
	ByCategory []CategoryStat `json:"byCategory"`
}

// Summarize aggregates occurrences. ByCategory always lists every category
// in declared order, zero rows included.
func Summarize(occs []model.Occurrence) Stats {
	st := Stats{ByCategory: make([]CategoryStat, len(model.Categories))}
	pos := make(map[model.Category]int, len(model.Categories))
	for i, c := range model.Categories {
		st.ByCategory[i] = CategoryStat{Category: c}
		pos[c] = i
	}
	for _, o := range occs {
		st.ClassCount++
		st.TotalHours += o.DurationHours
		if i, ok := pos[o.Category]; ok {
			st.ByCategory[i].Count++
			st.ByCategory[i].Hours += o.DurationHours
		}
	}
	return st
}

// RangeStats resolves series over [from, to] and summarises the result.
func RangeStats(series []model.Series, from, to model.Date) Stats {
	return Summarize(recur.Between(series, from, to))
}

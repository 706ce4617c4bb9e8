// Package completion matches logged activities back to the scheduled
// occurrences they fulfil.
package completion

import (
	"sproutcal/internal/model"
)

// StatusFor returns the status of the first logged activity named exactly
// name whose timestamp falls on date (in the timestamp's own location).
func StatusFor(name string, date model.Date, activities []model.LoggedActivity) (model.ActivityStatus, bool) {
	key := date.String()
	for _, a := range activities {
		if a.Name != name {
			continue
		}
		if model.DateOf(a.Timestamp).String() == key {
			return a.Status, true
		}
	}
	return "", false
}

// Annotate returns a copy of occs with Completion set wherever a logged
// activity matches. Duplicates upstream are not collapsed: the first
// activity per name and date wins, same as StatusFor.
func Annotate(occs []model.Occurrence, activities []model.LoggedActivity) []model.Occurrence {
	if len(occs) == 0 {
		return occs
	}
	index := make(map[string]model.ActivityStatus, len(activities))
	for _, a := range activities {
		k := indexKey(a.Name, model.DateOf(a.Timestamp))
		if _, seen := index[k]; !seen {
			index[k] = a.Status
		}
	}

	out := make([]model.Occurrence, len(occs))
	copy(out, occs)
	for i := range out {
		if st, ok := index[indexKey(out[i].Name, out[i].Date)]; ok {
			out[i].Completion = st
		}
	}
	return out
}

func indexKey(name string, d model.Date) string {
	return name + "|" + d.String()
}

package calendar

import (
	"sproutcal/internal/completion"
	"sproutcal/internal/model"
	"sproutcal/internal/recur"
)

// Cell is one grid slot. Date is nil for month padding cells.
type Cell struct {
	Date        *model.Date        `json:"date"`
	Today       bool               `json:"today,omitempty"`
	Occurrences []model.Occurrence `json:"occurrences"`
}

// Grid is a fully resolved calendar view.
type Grid struct {
	View    View       `json:"view"`
	Ref     model.Date `json:"ref"`
	From    model.Date `json:"from"`
	To      model.Date `json:"to"`
	Columns []string   `json:"columns"`
	Cells   []Cell     `json:"cells"`
	Stats   Stats      `json:"stats"`
}

// Snapshot is the data a grid is built from. Icons maps activity name to
// a display reference.
type Snapshot struct {
	Series     []model.Series
	Activities []model.LoggedActivity
	Icons      map[string]string
	Today      model.Date
}

// Build lays out the grid for view around ref and resolves every series
// into its cells. Statistics cover the real (non-padding) dates only.
func Build(view View, ref model.Date, snap Snapshot) Grid {
	g := Grid{View: view, Ref: ref, Columns: ColumnLabels}
	g.From, g.To = Range(view, ref)

	var dates []*model.Date
	if view == ViewMonth {
		dates = MonthGrid(ref)
	} else {
		for _, d := range WeekGrid(ref) {
			dates = append(dates, &d)
		}
	}

	var all []model.Occurrence
	g.Cells = make([]Cell, len(dates))
	for i, d := range dates {
		cell := Cell{Date: d, Occurrences: []model.Occurrence{}}
		if d != nil {
			occs := recur.OnDate(snap.Series, *d)
			occs = completion.Annotate(occs, snap.Activities)
			for j := range occs {
				occs[j].Icon = snap.Icons[occs[j].Name]
			}
			if occs != nil {
				cell.Occurrences = occs
			}
			cell.Today = !snap.Today.IsZero() && *d == snap.Today
			all = append(all, occs...)
		}
		g.Cells[i] = cell
	}
	g.Stats = Summarize(all)
	return g
}

// Day returns the cell for date, if the grid contains it.
func (g Grid) Day(date model.Date) (Cell, bool) {
	for _, c := range g.Cells {
		if c.Date != nil && *c.Date == date {
			return c, true
		}
	}
	return Cell{}, false
}

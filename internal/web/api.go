package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sproutcal/internal/calendar"
	"sproutcal/internal/ics"
	"sproutcal/internal/log"
	"sproutcal/internal/model"
	"sproutcal/internal/schedule"
)

// maxStatsDays caps /api/stats so a typo cannot resolve decades.
const maxStatsDays = 366

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/series", s.handleListSeries)
	s.mux.HandleFunc("POST /api/series", s.handleCreateSeries)
	s.mux.HandleFunc("GET /api/series/{id}", s.handleGetSeries)
	s.mux.HandleFunc("PUT /api/series/{id}", s.handleUpdateSeries)
	s.mux.HandleFunc("POST /api/series/{id}/deletion", s.handleRequestDeletion)
	s.mux.HandleFunc("GET /api/deletions/{token}", s.handlePendingDeletion)
	s.mux.HandleFunc("POST /api/deletions/{token}", s.handleConfirmDeletion)
	s.mux.HandleFunc("DELETE /api/deletions/{token}", s.handleCancelDeletion)

	s.mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)

	s.mux.HandleFunc("GET /api/activities", s.handleListActivities)
	s.mux.HandleFunc("POST /api/activities", s.handleLogActivity)

	s.mux.HandleFunc("GET /api/icons/{name}", s.handleIcon)

	s.mux.HandleFunc("GET /calendar.ics", s.handleExport)
	s.mux.HandleFunc("POST /api/import", s.handleImport)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// ─── Series ───────────────────────────────────────────────────────────────────

func (s *Server) handleListSeries(w http.ResponseWriter, r *http.Request) {
	list, err := s.eng.ListSeries(r.Context(), s.family(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		list = []model.Series{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetSeries(w http.ResponseWriter, r *http.Request) {
	ser, err := s.eng.GetSeries(r.Context(), s.family(r), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ser)
}

func (s *Server) handleCreateSeries(w http.ResponseWriter, r *http.Request) {
	var in model.SeriesInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ser, err := s.eng.CreateSeries(r.Context(), s.family(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.PurgeCache()
	writeJSON(w, http.StatusCreated, ser)
}

// PUT /api/series/{id}?scope=this|future|all
func (s *Server) handleUpdateSeries(w http.ResponseWriter, r *http.Request) {
	scope, err := schedule.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var changes model.SeriesChanges
	if err := decodeJSON(w, r, &changes); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ser, err := s.eng.UpdateSeries(r.Context(), s.family(r), r.PathValue("id"), scope, changes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.PurgeCache()
	writeJSON(w, http.StatusOK, ser)
}

// POST /api/series/{id}/deletion?scope=this|future|all
//
// Stages the delete and answers with a token; nothing changes until the
// token is confirmed at /api/deletions/{token}. A series that is already
// gone still gets a token so a retried delete succeeds.
func (s *Server) handleRequestDeletion(w http.ResponseWriter, r *http.Request) {
	scope, err := schedule.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.eng.RequestDeletion(r.Context(), s.family(r), r.PathValue("id"), scope)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, p)
}

func (s *Server) handlePendingDeletion(w http.ResponseWriter, r *http.Request) {
	p, ok := s.eng.Pending(s.family(r), r.PathValue("token"))
	if !ok {
		writeError(w, http.StatusNotFound, schedule.ErrUnknownToken.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleConfirmDeletion(w http.ResponseWriter, r *http.Request) {
	p, err := s.eng.ConfirmDeletion(r.Context(), s.family(r), r.PathValue("token"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.PurgeCache()
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCancelDeletion(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.CancelDeletion(s.family(r), r.PathValue("token")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Views ────────────────────────────────────────────────────────────────────

// GET /api/calendar?view=week|month&date=YYYY-MM-DD
//   - view: defaults to week
//   - date: any date inside the wanted week or month, defaults to today
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view, err := calendar.ParseView(q.Get("view"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ref, err := s.dateParam(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	family := s.family(r)
	key := fmt.Sprintf("calendar|%s|%s|%s", family, view, ref)
	body, err := s.cached(key, func() (any, error) {
		snap, err := s.eng.Snapshot(r.Context(), family)
		if err != nil {
			return nil, err
		}
		return calendar.Build(view, ref, snap), nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

type statsResponse struct {
	From model.Date `json:"from"`
	To   model.Date `json:"to"`
	calendar.Stats
}

// GET /api/stats?from=YYYY-MM-DD&to=YYYY-MM-DD
//
// Without bounds the current Monday-first week is summarised.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := calendar.Range(calendar.ViewWeek, s.eng.Today())
	var err error
	if v := q.Get("from"); v != "" {
		if from, err = model.ParseDate(v); err != nil {
			writeError(w, http.StatusBadRequest, "from: "+err.Error())
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = model.ParseDate(v); err != nil {
			writeError(w, http.StatusBadRequest, "to: "+err.Error())
			return
		}
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to is before from")
		return
	}
	if from.DaysUntil(to) >= maxStatsDays {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("range exceeds %d days", maxStatsDays))
		return
	}

	family := s.family(r)
	key := fmt.Sprintf("stats|%s|%s|%s", family, from, to)
	body, err := s.cached(key, func() (any, error) {
		series, err := s.eng.ListSeries(r.Context(), family)
		if err != nil {
			return nil, err
		}
		return statsResponse{From: from, To: to, Stats: calendar.RangeStats(series, from, to)}, nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// ─── Activities & icons ───────────────────────────────────────────────────────

func (s *Server) handleListActivities(w http.ResponseWriter, r *http.Request) {
	acts, err := s.eng.ListActivities(r.Context(), s.family(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if acts == nil {
		acts = []model.LoggedActivity{}
	}
	writeJSON(w, http.StatusOK, acts)
}

func (s *Server) handleLogActivity(w http.ResponseWriter, r *http.Request) {
	var a model.LoggedActivity
	if err := decodeJSON(w, r, &a); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := s.eng.LogActivity(r.Context(), s.family(r), a)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.PurgeCache()
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleIcon(w http.ResponseWriter, r *http.Request) {
	if s.icons == nil {
		writeError(w, http.StatusNotFound, "icons disabled")
		return
	}
	ic, ok, err := s.icons.GetIcon(r.Context(), s.family(r), r.PathValue("name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "icon not found")
		return
	}
	writeJSON(w, http.StatusOK, ic)
}

// ─── iCalendar ────────────────────────────────────────────────────────────────

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	series, err := s.eng.ListSeries(r.Context(), s.family(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	body, err := ics.Export(series, s.eng.Location(), time.Now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="sproutcal.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type importResponse struct {
	Created []model.Series `json:"created"`
	Failed  []string       `json:"failed,omitempty"`
}

// POST /api/import with a text/calendar body. Events that cannot be
// represented are skipped by the parser; events that fail validation are
// reported by name and do not abort the rest.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	inputs, err := ics.Import(body, s.eng.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	family := s.family(r)
	resp := importResponse{Created: []model.Series{}}
	for _, in := range inputs {
		ser, err := s.eng.CreateSeries(r.Context(), family, in)
		if err != nil {
			if errors.Is(err, schedule.ErrInvalidSeries) {
				resp.Failed = append(resp.Failed, in.Name)
				continue
			}
			s.fail(w, r, err)
			return
		}
		resp.Created = append(resp.Created, ser)
	}
	if len(resp.Created) > 0 {
		s.PurgeCache()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func (s *Server) dateParam(v string) (model.Date, error) {
	if strings.TrimSpace(v) == "" {
		return s.eng.Today(), nil
	}
	d, err := model.ParseDate(v)
	if err != nil {
		return model.Date{}, fmt.Errorf("date: %w", err)
	}
	return d, nil
}

// fail maps engine errors onto HTTP statuses. Anything unrecognised is an
// internal error and gets logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, schedule.ErrNoFamily),
		errors.Is(err, schedule.ErrMissingID),
		errors.Is(err, schedule.ErrInvalidSeries),
		errors.Is(err, schedule.ErrInvalidScope),
		errors.Is(err, schedule.ErrInvalidActivity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, schedule.ErrNotFound),
		errors.Is(err, schedule.ErrUnknownToken):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, schedule.ErrTokenExpired):
		writeError(w, http.StatusGone, err.Error())
	default:
		log.Error("request failed", err, "method", r.Method, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Package schedule applies create, update and delete operations to stored
// series, honouring the this / future / all mutation scopes.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sproutcal/internal/calendar"
	"sproutcal/internal/log"
	"sproutcal/internal/model"
	"sproutcal/internal/recur"
)

var (
	ErrNoFamily        = errors.New("family id is required")
	ErrMissingID       = errors.New("series id is required")
	ErrNotFound        = errors.New("series not found")
	ErrInvalidSeries   = model.ErrInvalidSeries
	ErrInvalidScope    = errors.New("invalid scope")
	ErrInvalidActivity = errors.New("invalid activity")

	// ErrSeriesEnded rejects a future scoped edit of a series that has no
	// occurrences left after today.
	ErrSeriesEnded = fmt.Errorf("%w: series has no occurrences after today", ErrInvalidScope)
	// ErrNoOccurrence rejects a this scoped edit on a date the series does
	// not fire.
	ErrNoOccurrence = fmt.Errorf("%w: series does not occur on that date", ErrInvalidScope)
)

// Scope is the breadth of a recurring series an edit or delete touches.
type Scope string

const (
	ScopeThis   Scope = "this"
	ScopeFuture Scope = "future"
	ScopeAll    Scope = "all"
)

// ParseScope accepts "this", "future" or "all". An empty string means all.
func ParseScope(s string) (Scope, error) {
	switch sc := Scope(strings.ToLower(strings.TrimSpace(s))); sc {
	case ScopeThis, ScopeFuture, ScopeAll:
		return sc, nil
	case "":
		return ScopeAll, nil
	}
	return "", fmt.Errorf("%w %q (want this, future or all)", ErrInvalidScope, s)
}

func (s Scope) check() error {
	switch s {
	case ScopeThis, ScopeFuture, ScopeAll, "":
		return nil
	}
	return fmt.Errorf("%w %q", ErrInvalidScope, string(s))
}

// Repository is the persistence the engine needs.
type Repository interface {
	ListSeries(ctx context.Context, family string) ([]model.Series, error)
	GetSeries(ctx context.Context, family, id string) (model.Series, bool, error)
	SaveSeries(ctx context.Context, family string, s model.Series) error
	DeleteSeries(ctx context.Context, family, id string) error

	ListActivities(ctx context.Context, family string) ([]model.LoggedActivity, error)
	SaveActivity(ctx context.Context, family string, a model.LoggedActivity) error
	IconRefs(ctx context.Context, family string) (map[string]string, error)
}

// IconAssigner makes sure an activity name has an icon. It must not block
// on slow work and never reports failure.
type IconAssigner interface {
	Ensure(ctx context.Context, family, name string, category model.Category)
}

// Options tunes an Engine. Zero values get defaults.
type Options struct {
	DeletionTTL time.Duration
	NewID       func() string
}

const DefaultDeletionTTL = 10 * time.Minute

// Engine is safe for concurrent use.
type Engine struct {
	repo  Repository
	icons IconAssigner
	clock Clock
	loc   *time.Location
	ttl   time.Duration
	newID func() string

	mu        sync.Mutex
	pending   map[string]PendingDeletion
	confirmed map[string]PendingDeletion
}

// New builds an Engine. icons may be nil; clock and loc default to the
// system clock and time.Local.
func New(repo Repository, icons IconAssigner, clock Clock, loc *time.Location, opts Options) *Engine {
	if clock == nil {
		clock = RealClock{}
	}
	if loc == nil {
		loc = time.Local
	}
	if opts.DeletionTTL <= 0 {
		opts.DeletionTTL = DefaultDeletionTTL
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Engine{
		repo:      repo,
		icons:     icons,
		clock:     clock,
		loc:       loc,
		ttl:       opts.DeletionTTL,
		newID:     opts.NewID,
		pending:   make(map[string]PendingDeletion),
		confirmed: make(map[string]PendingDeletion),
	}
}

// Today is the current calendar date in the engine's location.
func (e *Engine) Today() model.Date {
	return model.DateOf(e.clock.Now().In(e.loc))
}

// Location returns the display location.
func (e *Engine) Location() *time.Location { return e.loc }

// ─── Reads ────────────────────────────────────────────────────────────────────

func (e *Engine) ListSeries(ctx context.Context, family string) ([]model.Series, error) {
	if family == "" {
		return nil, ErrNoFamily
	}
	list, err := e.repo.ListSeries(ctx, family)
	if err != nil {
		return nil, fmt.Errorf("listing series: %w", err)
	}
	return list, nil
}

func (e *Engine) GetSeries(ctx context.Context, family, id string) (model.Series, error) {
	if family == "" {
		return model.Series{}, ErrNoFamily
	}
	if id == "" {
		return model.Series{}, ErrMissingID
	}
	s, ok, err := e.repo.GetSeries(ctx, family, id)
	if err != nil {
		return model.Series{}, fmt.Errorf("loading series %s: %w", id, err)
	}
	if !ok {
		return model.Series{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Snapshot gathers everything the grid builder needs for family.
func (e *Engine) Snapshot(ctx context.Context, family string) (calendar.Snapshot, error) {
	series, err := e.ListSeries(ctx, family)
	if err != nil {
		return calendar.Snapshot{}, err
	}
	acts, err := e.repo.ListActivities(ctx, family)
	if err != nil {
		return calendar.Snapshot{}, fmt.Errorf("listing activities: %w", err)
	}
	icons, err := e.repo.IconRefs(ctx, family)
	if err != nil {
		return calendar.Snapshot{}, fmt.Errorf("listing icons: %w", err)
	}
	return calendar.Snapshot{Series: series, Activities: acts, Icons: icons, Today: e.Today()}, nil
}

// ─── Create / Update ──────────────────────────────────────────────────────────

// CreateSeries normalises in, validates it and stores it under a fresh id.
func (e *Engine) CreateSeries(ctx context.Context, family string, in model.SeriesInput) (model.Series, error) {
	if family == "" {
		return model.Series{}, ErrNoFamily
	}
	s := in.Normalize(e.Today())
	if err := s.Validate(); err != nil {
		return model.Series{}, err
	}
	s.ID = e.newID()
	now := e.clock.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now

	if err := e.repo.SaveSeries(ctx, family, s); err != nil {
		return model.Series{}, fmt.Errorf("saving series: %w", err)
	}
	log.Info("series created", "family", family, "id", s.ID, "name", s.Name, "rule", s.Describe())
	e.ensureIcon(ctx, family, s)
	return s, nil
}

// UpdateSeries applies changes to series id under scope. See the package
// tests for the exact shape of each scope.
func (e *Engine) UpdateSeries(ctx context.Context, family, id string, scope Scope, changes model.SeriesChanges) (model.Series, error) {
	if family == "" {
		return model.Series{}, ErrNoFamily
	}
	if id == "" {
		return model.Series{}, ErrMissingID
	}
	if err := scope.check(); err != nil {
		return model.Series{}, err
	}
	cur, err := e.GetSeries(ctx, family, id)
	if err != nil {
		return model.Series{}, err
	}

	today := e.Today()
	now := e.clock.Now().UTC()

	if scope == "" {
		scope = ScopeAll
	}
	if !cur.IsRecurring() || scope == ScopeAll {
		return e.updateInPlace(ctx, family, cur, changes, scope, now)
	}

	switch scope {
	case ScopeFuture:
		if cur.StartDate.After(today) {
			return e.updateInPlace(ctx, family, cur, changes, scope, now)
		}
		return e.splitFuture(ctx, family, cur, changes, today, now)
	default:
		return e.materialiseOne(ctx, family, cur, changes, today, now)
	}
}

func (e *Engine) updateInPlace(ctx context.Context, family string, cur model.Series, changes model.SeriesChanges, scope Scope, now time.Time) (model.Series, error) {
	next := changes.Apply(cur)
	if err := next.Validate(); err != nil {
		return model.Series{}, err
	}
	next.UpdatedAt = now
	if err := e.repo.SaveSeries(ctx, family, next); err != nil {
		return model.Series{}, fmt.Errorf("saving series: %w", err)
	}
	log.Info("series updated", "family", family, "id", next.ID, "scope", string(scope))
	if next.Name != cur.Name {
		e.ensureIcon(ctx, family, next)
	}
	return next, nil
}

// splitFuture closes cur at today and starts a successor tomorrow carrying
// the changes. Occurrences up to and including today keep their old shape.
// The successor is written first so a failed write never leaves cur closed
// without a replacement.
func (e *Engine) splitFuture(ctx context.Context, family string, cur model.Series, changes model.SeriesChanges, today model.Date, now time.Time) (model.Series, error) {
	closed := cur.Clone()
	closed.EndDate = earlier(cur.EndDate, today)
	closed.UpdatedAt = now

	succ := changes.Apply(cur)
	succ.ID = e.newID()
	succ.CreatedAt, succ.UpdatedAt = now, now
	tomorrow := today.AddDays(1)
	if changes.StartDate == nil || !changes.StartDate.After(today) {
		succ.StartDate = tomorrow
	}
	if succ.EndDate != nil && succ.EndDate.Before(succ.StartDate) {
		return model.Series{}, fmt.Errorf("%w: %s ends %s", ErrSeriesEnded, cur.ID, succ.EndDate.String())
	}

	if err := succ.Validate(); err != nil {
		return model.Series{}, err
	}
	if err := closed.Validate(); err != nil {
		return model.Series{}, err
	}

	if err := e.repo.SaveSeries(ctx, family, succ); err != nil {
		return model.Series{}, fmt.Errorf("saving successor series: %w", err)
	}
	if err := e.repo.SaveSeries(ctx, family, closed); err != nil {
		if derr := e.repo.DeleteSeries(ctx, family, succ.ID); derr != nil {
			log.Error("dropping orphaned successor", derr, "family", family, "id", succ.ID)
		}
		return model.Series{}, fmt.Errorf("closing series: %w", err)
	}
	log.Info("series split", "family", family, "id", cur.ID, "successor", succ.ID, "from", succ.StartDate.String())
	e.ensureIcon(ctx, family, succ)
	return succ, nil
}

// materialiseOne stores the edited occurrence as a separate one-off series.
// The recurring series itself is left alone.
func (e *Engine) materialiseOne(ctx context.Context, family string, cur model.Series, changes model.SeriesChanges, today model.Date, now time.Time) (model.Series, error) {
	on := today
	if changes.OccurrenceDate != nil {
		on = *changes.OccurrenceDate
	}
	if !recur.OccursOn(cur, on) {
		return model.Series{}, fmt.Errorf("%w: %s on %s", ErrNoOccurrence, cur.ID, on.String())
	}
	base := cur.Clone()
	base.StartTime = recur.EffectiveTime(cur, on.Weekday())
	base.DayTimes = nil

	one := changes.Apply(base)
	one.ID = e.newID()
	one.Recurrence = model.OneTime{}
	one.DayTimes = nil
	if changes.StartDate == nil {
		one.StartDate = on
	}
	one.EndDate = nil
	one.CreatedAt, one.UpdatedAt = now, now

	if err := one.Validate(); err != nil {
		return model.Series{}, err
	}
	if err := e.repo.SaveSeries(ctx, family, one); err != nil {
		return model.Series{}, fmt.Errorf("saving one-off: %w", err)
	}
	log.Info("occurrence materialised", "family", family, "id", cur.ID, "oneOff", one.ID, "date", one.StartDate.String())
	e.ensureIcon(ctx, family, one)
	return one, nil
}

// ─── Delete ───────────────────────────────────────────────────────────────────

// DeleteSeries removes or closes series id. A missing id is not an error.
//
// For a recurring series, this and future both close the series at today;
// there is no single-occurrence exclusion. A series that has not started
// yet is removed outright since it has nothing left to keep.
func (e *Engine) DeleteSeries(ctx context.Context, family, id string, scope Scope) error {
	if family == "" {
		return ErrNoFamily
	}
	if id == "" {
		return ErrMissingID
	}
	if err := scope.check(); err != nil {
		return err
	}
	cur, ok, err := e.repo.GetSeries(ctx, family, id)
	if err != nil {
		return fmt.Errorf("loading series %s: %w", id, err)
	}
	if !ok {
		log.Debug("delete of unknown series ignored", "family", family, "id", id)
		return nil
	}

	today := e.Today()
	if cur.IsRecurring() && (scope == ScopeThis || scope == ScopeFuture) && !cur.StartDate.After(today) {
		closed := cur.Clone()
		closed.EndDate = earlier(cur.EndDate, today)
		closed.UpdatedAt = e.clock.Now().UTC()
		if err := e.repo.SaveSeries(ctx, family, closed); err != nil {
			return fmt.Errorf("closing series: %w", err)
		}
		log.Info("series closed", "family", family, "id", id, "scope", string(scope), "endDate", closed.EndDate.String())
		return nil
	}

	if err := e.repo.DeleteSeries(ctx, family, id); err != nil {
		return fmt.Errorf("deleting series: %w", err)
	}
	log.Info("series deleted", "family", family, "id", id, "scope", string(scope))
	return nil
}

// ─── Activities ───────────────────────────────────────────────────────────────

// LogActivity records a real-world activity so it can be reconciled against
// scheduled occurrences.
func (e *Engine) LogActivity(ctx context.Context, family string, a model.LoggedActivity) (model.LoggedActivity, error) {
	if family == "" {
		return model.LoggedActivity{}, ErrNoFamily
	}
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return model.LoggedActivity{}, fmt.Errorf("%w: name is empty", ErrInvalidActivity)
	}
	if a.Status == "" {
		a.Status = model.ActivityAttended
	}
	if !a.Status.Valid() {
		return model.LoggedActivity{}, fmt.Errorf("%w: unknown status %q", ErrInvalidActivity, a.Status)
	}
	if a.Category != "" && !a.Category.Valid() {
		return model.LoggedActivity{}, fmt.Errorf("%w: unknown category %q", ErrInvalidActivity, a.Category)
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = e.clock.Now().In(e.loc)
	}
	if a.DurationHours < 0 {
		return model.LoggedActivity{}, fmt.Errorf("%w: negative duration", ErrInvalidActivity)
	}
	if a.ID == "" {
		a.ID = e.newID()
	}
	if err := e.repo.SaveActivity(ctx, family, a); err != nil {
		return model.LoggedActivity{}, fmt.Errorf("saving activity: %w", err)
	}
	log.Info("activity logged", "family", family, "name", a.Name, "status", string(a.Status))
	return a, nil
}

func (e *Engine) ListActivities(ctx context.Context, family string) ([]model.LoggedActivity, error) {
	if family == "" {
		return nil, ErrNoFamily
	}
	acts, err := e.repo.ListActivities(ctx, family)
	if err != nil {
		return nil, fmt.Errorf("listing activities: %w", err)
	}
	return acts, nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func (e *Engine) ensureIcon(ctx context.Context, family string, s model.Series) {
	if e.icons == nil {
		return
	}
	e.icons.Ensure(ctx, family, s.Name, s.Category)
}

// earlier returns the earlier of an optional end date and d.
func earlier(end *model.Date, d model.Date) *model.Date {
	if end != nil && end.Before(d) {
		e := *end
		return &e
	}
	return &d
}

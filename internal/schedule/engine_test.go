package schedule_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"sproutcal/internal/log"
	"sproutcal/internal/model"
	"sproutcal/internal/recur"
	"sproutcal/internal/schedule"
	"sproutcal/internal/store"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

const fam = "fam"

// Wednesday.
var now = time.Date(2024, time.January, 10, 12, 0, 0, 0, time.UTC)

func d(s string) model.Date { return model.MustParseDate(s) }

// movableClock lets token expiry be tested.
type movableClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *movableClock) Advance(dur time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(dur)
	c.mu.Unlock()
}

type iconRecorder struct {
	mu    sync.Mutex
	names []string
}

func (r *iconRecorder) Ensure(_ context.Context, _, name string, _ model.Category) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
}

func testDB(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newEngine(t *testing.T, clock schedule.Clock) (*schedule.Engine, *store.Store, *iconRecorder) {
	t.Helper()
	db := testDB(t)
	icons := &iconRecorder{}
	n := 0
	eng := schedule.New(db, icons, clock, time.UTC, schedule.Options{
		NewID: func() string { n++; return fmt.Sprintf("id-%d", n) },
	})
	return eng, db, icons
}

func weeklyInput(name string, days ...int) model.SeriesInput {
	return model.SeriesInput{
		Name:          name,
		Category:      model.CategorySport,
		Days:          days,
		StartTime:     "16:00",
		DurationHours: 1,
		StartDate:     d("2024-01-01"),
	}
}

func mustCreate(t *testing.T, eng *schedule.Engine, in model.SeriesInput) model.Series {
	t.Helper()
	s, err := eng.CreateSeries(context.Background(), fam, in)
	if err != nil {
		t.Fatalf("CreateSeries: %v", err)
	}
	return s
}

func mustGet(t *testing.T, db *store.Store, id string) model.Series {
	t.Helper()
	s, ok, err := db.GetSeries(context.Background(), fam, id)
	if err != nil || !ok {
		t.Fatalf("GetSeries(%s): ok=%v err=%v", id, ok, err)
	}
	return s
}

// countingRepo counts series writes.
type countingRepo struct {
	schedule.Repository
	writes int
}

func (r *countingRepo) SaveSeries(ctx context.Context, family string, s model.Series) error {
	r.writes++
	return r.Repository.SaveSeries(ctx, family, s)
}

var errDiskFull = errors.New("disk full")

// failingRepo fails the failSaveAt-th series write after arming and, when
// failDelete is set, every series delete.
type failingRepo struct {
	schedule.Repository
	failSaveAt int
	failDelete bool
	saves      int
	deleted    []string
}

func (r *failingRepo) arm(saveAt int) {
	r.saves = 0
	r.failSaveAt = saveAt
}

func (r *failingRepo) SaveSeries(ctx context.Context, family string, s model.Series) error {
	r.saves++
	if r.saves == r.failSaveAt {
		return errDiskFull
	}
	return r.Repository.SaveSeries(ctx, family, s)
}

func (r *failingRepo) DeleteSeries(ctx context.Context, family, id string) error {
	r.deleted = append(r.deleted, id)
	if r.failDelete {
		return errDiskFull
	}
	return r.Repository.DeleteSeries(ctx, family, id)
}

func newFailingEngine(t *testing.T) (*schedule.Engine, *failingRepo, *store.Store) {
	t.Helper()
	db := testDB(t)
	repo := &failingRepo{Repository: db}
	n := 0
	eng := schedule.New(repo, nil, schedule.FixedClock{T: now}, time.UTC, schedule.Options{
		NewID: func() string { n++; return fmt.Sprintf("id-%d", n) },
	})
	return eng, repo, db
}

func countSeries(t *testing.T, db *store.Store) int {
	t.Helper()
	list, err := db.ListSeries(context.Background(), fam)
	if err != nil {
		t.Fatalf("ListSeries: %v", err)
	}
	return len(list)
}

// ─── Create ───────────────────────────────────────────────────────────────────

func TestCreateSeriesDefaults(t *testing.T) {
	eng, db, icons := newEngine(t, schedule.FixedClock{T: now})
	day := 2
	s := mustCreate(t, eng, model.SeriesInput{Name: " Swim ", Day: &day, Days: []int{4}})

	if s.ID != "id-1" {
		t.Errorf("ID: expected id-1, got %q", s.ID)
	}
	if s.Name != "Swim" || s.Category != model.CategoryAdhoc || s.StartTime != "09:00" {
		t.Errorf("defaults not applied: %+v", s)
	}
	if s.StartDate != d("2024-01-10") {
		t.Errorf("StartDate: expected today, got %s", s.StartDate)
	}
	w, ok := s.Weekly()
	if !ok || len(w.Days) != 2 || w.Days[0] != time.Tuesday || w.Days[1] != time.Thursday {
		t.Errorf("day and days should fold to Tue,Thu: %+v", s.Recurrence)
	}
	if !s.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt: expected clock time, got %s", s.CreatedAt)
	}
	if got := mustGet(t, db, s.ID); got.Name != "Swim" {
		t.Errorf("stored name: got %q", got.Name)
	}
	if len(icons.names) != 1 || icons.names[0] != "Swim" {
		t.Errorf("icon should be ensured once, got %v", icons.names)
	}
}

func TestCreateSeriesOneOffDefaultsToToday(t *testing.T) {
	eng, _, _ := newEngine(t, schedule.FixedClock{T: now})
	s := mustCreate(t, eng, model.SeriesInput{Name: "Dentist", Category: model.CategoryAdhoc})
	if s.IsRecurring() {
		t.Fatal("no days given: expected a one-off")
	}
	if !recur.OccursOn(s, d("2024-01-10")) || recur.OccursOn(s, d("2024-01-11")) {
		t.Error("one-off should occur on today only")
	}
}

func TestCreateSeriesValidationNeverTouchesStore(t *testing.T) {
	db := testDB(t)
	repo := &countingRepo{Repository: db}
	eng := schedule.New(repo, nil, schedule.FixedClock{T: now}, time.UTC, schedule.Options{})

	_, err := eng.CreateSeries(context.Background(), fam, model.SeriesInput{Name: "", Days: []int{1}})
	if !errors.Is(err, schedule.ErrInvalidSeries) {
		t.Errorf("expected ErrInvalidSeries, got %v", err)
	}
	_, err = eng.CreateSeries(context.Background(), "", weeklyInput("Swim", 1))
	if !errors.Is(err, schedule.ErrNoFamily) {
		t.Errorf("expected ErrNoFamily, got %v", err)
	}
	if repo.writes != 0 {
		t.Errorf("expected no writes, got %d", repo.writes)
	}
}

// ─── Delete ───────────────────────────────────────────────────────────────────

func TestDeleteAllRemovesSeries(t *testing.T) {
	eng, db, _ := newEngine(t, schedule.FixedClock{T: now})
	s := mustCreate(t, eng, weeklyInput("Soccer", 1, 3))

	if err := eng.DeleteSeries(context.Background(), fam, s.ID, schedule.ScopeAll); err != nil {
		t.Fatalf("DeleteSeries: %v", err)
	}
	if _, ok, _ := db.GetSeries(context.Background(), fam, s.ID); ok {
		t.Error("series should be removed")
	}
	list, _ := eng.ListSeries(context.Background(), fam)
	for day := d("2024-01-01"); day.Before(d("2024-03-01")); day = day.AddDays(1) {
		if len(recur.OnDate(list, day)) != 0 {
			t.Fatalf("no occurrence expected on %s", day)
		}
	}
}

func TestDeleteThisAndFutureCloseAtToday(t *testing.T) {
	for _, scope := range []schedule.Scope{schedule.ScopeThis, schedule.ScopeFuture} {
		t.Run(string(scope), func(t *testing.T) {
			eng, db, _ := newEngine(t, schedule.FixedClock{T: now})
			s := mustCreate(t, eng, weeklyInput("Soccer", 1, 3))

			if err := eng.DeleteSeries(context.Background(), fam, s.ID, scope); err != nil {
				t.Fatalf("DeleteSeries: %v", err)
			}
			got := mustGet(t, db, s.ID)
			if got.EndDate == nil || *got.EndDate != d("2024-01-10") {
				t.Fatalf("EndDate: expected today, got %v", got.EndDate)
			}
			// Mon 8th and Wed 10th (today) survive; Mon 15th does not.
			if !recur.OccursOn(got, d("2024-01-08")) || !recur.OccursOn(got, d("2024-01-10")) {
				t.Error("occurrences up to today should remain")
			}
			if recur.OccursOn(got, d("2024-01-15")) || recur.OccursOn(got, d("2024-01-17")) {
				t.Error("occurrences after today should be gone")
			}
		})
	}
}

func TestDeleteThisKeepsEarlierEndDate(t *testing.T) {
	eng, db, _ := newEngine(t, schedule.FixedClock{T: now})
	in := weeklyInput("Soccer", 1)
	end := d("2024-01-05")
	in.EndDate = &end
	s := mustCreate(t, eng, in)

	_ = eng.DeleteSeries(context.Background(), fam, s.ID, schedule.ScopeThis)
	if got := mustGet(t, db, s.ID); *got.EndDate != end {
		t.Errorf("an earlier end date must not be extended, got %s", got.EndDate)
	}
}

func TestDeleteNotYetStartedRemoves(t *testing.T) {
	eng, db, _ := newEngine(t, schedule.FixedClock{T: now})
	in := weeklyInput("Soccer", 1)
	in.StartDate = d("2024-02-01")
	s := mustCreate(t, eng, in)

	_ = eng.DeleteSeries(context.Background(), fam, s.ID, schedule.ScopeFuture)
	if _, ok, _ := db.GetSeries(context.Background(), fam, s.ID); ok {
		t.Error("a series that has not started should be removed")
	}
}

func TestDeleteOneOffAlwaysRemoves(t *testing.T) {
	eng, db, _ := newEngine(t, schedule.FixedClock{T: now})
	s := mustCreate(t, eng, model.SeriesInput{Name: "Zoo trip", StartDate: d("2024-01-05")})
	_ = eng.DeleteSeries(context.Background(), fam, s.ID, schedule.ScopeThis)
	if _, ok, _ := db.GetSeries(context.Background(), fam, s.ID); ok {
		t.Error("one-off should be removed regardless of scope")
	}
}

func TestDeleteMissingIsNoop(t *testing.T) {
	eng, _, _ := newEngine(t, schedule.FixedClock{T: now})
	if err := eng.DeleteSeries(context.Background(), fam, "ghost", schedule.ScopeAll); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if err := eng.DeleteSeries(context.Background(), fam, "", schedule.ScopeAll); !errors.Is(err, schedule.ErrMissingID) {
		t.Errorf("expected ErrMissingID, got %v", err)
	}
	if err := eng.DeleteSeries(context.Background(), fam, "x", "sometimes"); !errors.Is(err, schedule.ErrInvalidScope) {
		t.Errorf("expected ErrInvalidScope, got %v", err)
	}
}

// ─── Update ───────────────────────────────────────────────────────────────────

func TestUpdateAllInPlace(t *testing.T) {
	eng, db, icons := newEngine(t, schedule.FixedClock{T: now})
	s := mustCreate(t, eng, weeklyInput("Soccer", 1))
	name := "Futsal"
	weeks := []int{1, 3}

	got, err := eng.UpdateSeries(context.Background(), fam, s.ID, schedule.ScopeAll, model.SeriesChanges{Name: &name, WeekOccurrences: weeks})
	if err != nil {
		t.Fatalf("UpdateSeries: %v", err)
	}
	if got.ID != s.ID || got.Name != "Futsal" || got.Describe() != "Mon wk1,3" {
		t.Errorf("unexpected result: %+v (%s)", got, got.Describe())
	}
	if stored := mustGet(t, db, s.ID); stored.Name != "Futsal" {
		t.Errorf("stored name: got %q", stored.Name)
	}
	if len(icons.names) != 2 || icons.names[1] != "Futsal" {
		t.Errorf("renaming should ensure an icon: %v", icons.names)
	}
}

func TestUpdateFutureSplits(t *testing.T) {
	eng, db, _ := newEngine(t, schedule.FixedClock{T: now})
	s := mustCreate(t, eng, weeklyInput("Soccer", 1, 3))
	tm := "18:00"

	succ, err := eng.UpdateSeries(context.Background(), fam, s.ID, schedule.ScopeFuture, model.SeriesChanges{StartTime: &tm})
	if err != nil {
		t.Fatalf("UpdateSeries: %v", err)
	}
	if succ.ID == s.ID {
		t.Fatal("future edit of a running series should create a successor")
	}
	if succ.StartDate != d("2024-01-11") || succ.StartTime != "18:00" {
		t.Errorf("successor: start %s at %s", succ.StartDate, succ.StartTime)
	}

	old := mustGet(t, db, s.ID)
	if old.EndDate == nil || *old.EndDate != d("2024-01-10") || old.StartTime != "16:00" {
		t.Errorf("original should end today unchanged, got end=%v time=%s", old.EndDate, old.StartTime)
	}

	list, _ := eng.ListSeries(context.Background(), fam)
	past := recur.OnDate(list, d("2024-01-08"))
	if len(past) != 1 || past[0].Time != "16:00" || past[0].SeriesID != s.ID {
		t.Errorf("past occurrence should be untouched: %+v", past)
	}
	future := recur.OnDate(list, d("2024-01-15"))
	if len(future) != 1 || future[0].Time != "18:00" || future[0].SeriesID != succ.ID {
		t.Errorf("future occurrence should use the successor: %+v", future)
	}
}

func TestUpdateFutureBeforeStartIsInPlace(t *testing.T) {
	eng, _, _ := newEngine(t, schedule.FixedClock{T: now})
	in := weeklyInput("Soccer", 1)
	in.StartDate = d("2024-02-01")
	s := mustCreate(t, eng, in)
	name := "Futsal"

	got, err := eng.UpdateSeries(context.Background(), fam, s.ID, schedule.ScopeFuture, model.SeriesChanges{Name: &name})
	if err != nil {
		t.Fatalf("UpdateSeries: %v", err)
	}
	if got.ID != s.ID || got.StartDate != d("2024-02-01") {
		t.Errorf("expected in-place edit, got %+v", got)
	}
	if list, _ := eng.ListSeries(context.Background(), fam); len(list) != 1 {
		t.Errorf("expected a single series, got %d", len(list))
	}
}

func TestUpdateThisMaterialisesOneOff(t *testing.T) {
	eng, db, _ := newEngine(t, schedule.FixedClock{T: now})
	in := weeklyInput("Soccer", 1, 3)
	in.DayTimeMap = map[string]string{"1": "15:00"}
	s := mustCreate(t, eng, in)
	name := "Soccer match"
	on := d("2024-01-15")

	one, err := eng.UpdateSeries(context.Background(), fam, s.ID, schedule.ScopeThis, model.SeriesChanges{Name: &name, OccurrenceDate: &on})
	if err != nil {
		t.Fatalf("UpdateSeries: %v", err)
	}
	if one.IsRecurring() || one.StartDate != on || one.Name != "Soccer match" {
		t.Errorf("expected one-off on %s, got %+v", on, one)
	}
	if one.StartTime != "15:00" {
		t.Errorf("one-off should inherit the Monday time, got %s", one.StartTime)
	}

	orig := mustGet(t, db, s.ID)
	if orig.EndDate != nil || orig.Name != "Soccer" || orig.Describe() != "Mon,Wed" {
		t.Errorf("recurring series must be untouched: %+v", orig)
	}
}

func TestUpdateOneOffIgnoresScope(t *testing.T) {
	eng, _, _ := newEngine(t, schedule.FixedClock{T: now})
	s := mustCreate(t, eng, model.SeriesInput{Name: "Zoo trip", StartDate: d("2024-01-05")})
	hours := 3.0
	got, err := eng.UpdateSeries(context.Background(), fam, s.ID, schedule.ScopeFuture, model.SeriesChanges{DurationHours: &hours})
	if err != nil {
		t.Fatalf("UpdateSeries: %v", err)
	}
	if got.ID != s.ID || got.DurationHours != 3 {
		t.Errorf("expected in-place edit, got %+v", got)
	}
}

func TestUpdateErrors(t *testing.T) {
	eng, _, _ := newEngine(t, schedule.FixedClock{T: now})
	s := mustCreate(t, eng, weeklyInput("Soccer", 1))
	ctx := context.Background()

	if _, err := eng.UpdateSeries(ctx, fam, "ghost", schedule.ScopeAll, model.SeriesChanges{}); !errors.Is(err, schedule.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	bad := -1.0
	if _, err := eng.UpdateSeries(ctx, fam, s.ID, schedule.ScopeAll, model.SeriesChanges{DurationHours: &bad}); !errors.Is(err, schedule.ErrInvalidSeries) {
		t.Errorf("expected ErrInvalidSeries, got %v", err)
	}
	if _, err := eng.UpdateSeries(ctx, "", s.ID, schedule.ScopeAll, model.SeriesChanges{}); !errors.Is(err, schedule.ErrNoFamily) {
		t.Errorf("expected ErrNoFamily, got %v", err)
	}
}

func TestUpdateFutureOfEndedSeries(t *testing.T) {
	eng, _, _ := newEngine(t, schedule.FixedClock{T: now})
	ctx := context.Background()
	tm := "18:00"

	for _, end := range []string{"2024-01-09", "2024-01-10"} {
		in := weeklyInput("Soccer", 1, 3)
		e := d(end)
		in.EndDate = &e
		s := mustCreate(t, eng, in)

		_, err := eng.UpdateSeries(ctx, fam, s.ID, schedule.ScopeFuture, model.SeriesChanges{StartTime: &tm})
		if !errors.Is(err, schedule.ErrSeriesEnded) || !errors.Is(err, schedule.ErrInvalidScope) {
			t.Errorf("end %s: expected ErrSeriesEnded, got %v", end, err)
		}
	}
	if list, _ := eng.ListSeries(ctx, fam); len(list) != 2 {
		t.Errorf("no successor should be stored, got %d series", len(list))
	}

	// Extending the end date revives the series from tomorrow.
	in := weeklyInput("Chess", 2)
	e := d("2024-01-09")
	in.EndDate = &e
	s := mustCreate(t, eng, in)
	newEnd := d("2024-02-29")
	succ, err := eng.UpdateSeries(ctx, fam, s.ID, schedule.ScopeFuture, model.SeriesChanges{EndDate: &newEnd})
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if succ.StartDate != d("2024-01-11") || succ.EndDate == nil || *succ.EndDate != newEnd {
		t.Errorf("extend: successor %s..%v", succ.StartDate, succ.EndDate)
	}
}

func TestUpdateThisRejectsNonOccurrence(t *testing.T) {
	eng, db, _ := newEngine(t, schedule.FixedClock{T: now})
	ctx := context.Background()
	s := mustCreate(t, eng, weeklyInput("Soccer", 1, 3))
	name := "Soccer match"

	// Thursday, and a Monday before the series starts.
	for _, day := range []string{"2024-01-11", "2023-12-25"} {
		on := d(day)
		_, err := eng.UpdateSeries(ctx, fam, s.ID, schedule.ScopeThis, model.SeriesChanges{Name: &name, OccurrenceDate: &on})
		if !errors.Is(err, schedule.ErrNoOccurrence) {
			t.Errorf("%s: expected ErrNoOccurrence, got %v", day, err)
		}
	}
	// Today is a Wednesday, so an edit without a date targets today.
	one, err := eng.UpdateSeries(ctx, fam, s.ID, schedule.ScopeThis, model.SeriesChanges{Name: &name})
	if err != nil || one.StartDate != d("2024-01-10") {
		t.Errorf("today's occurrence: got %+v, %v", one, err)
	}
	if n := countSeries(t, db); n != 2 {
		t.Errorf("expected original plus one one-off, got %d", n)
	}
}

func TestUpdateLogsRequestedScope(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := log.Use(zap.New(core))
	defer restore()

	eng, _, _ := newEngine(t, schedule.FixedClock{T: now})
	ctx := context.Background()
	in := weeklyInput("Soccer", 1)
	in.StartDate = d("2024-02-01")
	future := mustCreate(t, eng, in)
	trip := mustCreate(t, eng, model.SeriesInput{Name: "Zoo trip", StartDate: d("2024-01-20")})
	hours := 2.0

	if _, err := eng.UpdateSeries(ctx, fam, future.ID, schedule.ScopeFuture, model.SeriesChanges{DurationHours: &hours}); err != nil {
		t.Fatalf("UpdateSeries: %v", err)
	}
	if _, err := eng.UpdateSeries(ctx, fam, trip.ID, schedule.ScopeThis, model.SeriesChanges{DurationHours: &hours}); err != nil {
		t.Fatalf("UpdateSeries: %v", err)
	}
	if _, err := eng.UpdateSeries(ctx, fam, trip.ID, "", model.SeriesChanges{DurationHours: &hours}); err != nil {
		t.Fatalf("UpdateSeries: %v", err)
	}

	entries := logs.FilterMessage("series updated").All()
	want := []string{"future", "this", "all"}
	if len(entries) != len(want) {
		t.Fatalf("expected %d update entries, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if got := e.ContextMap()["scope"]; got != want[i] {
			t.Errorf("entry %d: expected scope %q, got %v", i, want[i], got)
		}
	}
}

// ─── Persistence failures ─────────────────────────────────────────────────────

func TestSplitFutureFailureKeepsOriginal(t *testing.T) {
	ctx := context.Background()
	name := "Swim2"

	// Successor write fails: nothing is stored.
	eng, repo, db := newFailingEngine(t)
	s := mustCreate(t, eng, weeklyInput("Swim", 1, 3))
	repo.arm(1)
	if _, err := eng.UpdateSeries(ctx, fam, s.ID, schedule.ScopeFuture, model.SeriesChanges{Name: &name}); !errors.Is(err, errDiskFull) {
		t.Fatalf("expected errDiskFull, got %v", err)
	}
	if got := mustGet(t, db, s.ID); got.EndDate != nil || got.Name != "Swim" {
		t.Errorf("original must be untouched, got end=%v name=%s", got.EndDate, got.Name)
	}
	if n := countSeries(t, db); n != 1 {
		t.Errorf("expected 1 series, got %d", n)
	}

	// Closing the original fails after the successor is stored: the
	// successor is removed again.
	eng, repo, db = newFailingEngine(t)
	s = mustCreate(t, eng, weeklyInput("Swim", 1, 3))
	repo.arm(2)
	if _, err := eng.UpdateSeries(ctx, fam, s.ID, schedule.ScopeFuture, model.SeriesChanges{Name: &name}); !errors.Is(err, errDiskFull) {
		t.Fatalf("expected errDiskFull, got %v", err)
	}
	if got := mustGet(t, db, s.ID); got.EndDate != nil || got.Name != "Swim" {
		t.Errorf("original must be untouched, got end=%v name=%s", got.EndDate, got.Name)
	}
	if n := countSeries(t, db); n != 1 {
		t.Errorf("successor should be dropped, got %d series", n)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] == s.ID {
		t.Errorf("expected only the successor to be deleted, got %v", repo.deleted)
	}
}

func TestMutationFailuresLeaveStateUnchanged(t *testing.T) {
	ctx := context.Background()
	name := "Futsal"

	t.Run("create", func(t *testing.T) {
		eng, repo, db := newFailingEngine(t)
		repo.arm(1)
		if _, err := eng.CreateSeries(ctx, fam, weeklyInput("Soccer", 1)); !errors.Is(err, errDiskFull) {
			t.Errorf("expected errDiskFull, got %v", err)
		}
		if n := countSeries(t, db); n != 0 {
			t.Errorf("expected no series, got %d", n)
		}
	})

	t.Run("update all", func(t *testing.T) {
		eng, repo, db := newFailingEngine(t)
		s := mustCreate(t, eng, weeklyInput("Soccer", 1))
		repo.arm(1)
		if _, err := eng.UpdateSeries(ctx, fam, s.ID, schedule.ScopeAll, model.SeriesChanges{Name: &name}); !errors.Is(err, errDiskFull) {
			t.Errorf("expected errDiskFull, got %v", err)
		}
		if got := mustGet(t, db, s.ID); got.Name != "Soccer" {
			t.Errorf("name should be unchanged, got %s", got.Name)
		}
	})

	t.Run("update this", func(t *testing.T) {
		eng, repo, db := newFailingEngine(t)
		s := mustCreate(t, eng, weeklyInput("Soccer", 1, 3))
		repo.arm(1)
		if _, err := eng.UpdateSeries(ctx, fam, s.ID, schedule.ScopeThis, model.SeriesChanges{Name: &name}); !errors.Is(err, errDiskFull) {
			t.Errorf("expected errDiskFull, got %v", err)
		}
		if n := countSeries(t, db); n != 1 {
			t.Errorf("no one-off should be stored, got %d series", n)
		}
	})

	t.Run("delete all", func(t *testing.T) {
		eng, repo, db := newFailingEngine(t)
		s := mustCreate(t, eng, weeklyInput("Soccer", 1))
		repo.failDelete = true
		if err := eng.DeleteSeries(ctx, fam, s.ID, schedule.ScopeAll); !errors.Is(err, errDiskFull) {
			t.Errorf("expected errDiskFull, got %v", err)
		}
		mustGet(t, db, s.ID)
	})

	t.Run("delete future", func(t *testing.T) {
		eng, repo, db := newFailingEngine(t)
		s := mustCreate(t, eng, weeklyInput("Soccer", 1))
		repo.arm(1)
		if err := eng.DeleteSeries(ctx, fam, s.ID, schedule.ScopeFuture); !errors.Is(err, errDiskFull) {
			t.Errorf("expected errDiskFull, got %v", err)
		}
		if got := mustGet(t, db, s.ID); got.EndDate != nil {
			t.Errorf("series should stay open, got end %v", got.EndDate)
		}
	})

	t.Run("confirm keeps token", func(t *testing.T) {
		eng, repo, db := newFailingEngine(t)
		s := mustCreate(t, eng, weeklyInput("Soccer", 1))
		p, _ := eng.RequestDeletion(ctx, fam, s.ID, schedule.ScopeAll)
		repo.failDelete = true
		if _, err := eng.ConfirmDeletion(ctx, fam, p.Token); !errors.Is(err, errDiskFull) {
			t.Errorf("expected errDiskFull, got %v", err)
		}
		repo.failDelete = false
		if _, err := eng.ConfirmDeletion(ctx, fam, p.Token); err != nil {
			t.Errorf("retry after failure: %v", err)
		}
		if n := countSeries(t, db); n != 0 {
			t.Errorf("expected series deleted on retry, got %d", n)
		}
	})
}

func TestParseScope(t *testing.T) {
	cases := map[string]schedule.Scope{"this": schedule.ScopeThis, "FUTURE": schedule.ScopeFuture, "": schedule.ScopeAll}
	for in, want := range cases {
		if got, err := schedule.ParseScope(in); err != nil || got != want {
			t.Errorf("ParseScope(%q): got %q, %v", in, got, err)
		}
	}
	if _, err := schedule.ParseScope("some"); !errors.Is(err, schedule.ErrInvalidScope) {
		t.Errorf("expected ErrInvalidScope, got %v", err)
	}
}

// ─── Two-step deletion ────────────────────────────────────────────────────────

func TestDeletionTokens(t *testing.T) {
	clock := &movableClock{t: now}
	eng, db, _ := newEngine(t, clock)
	ctx := context.Background()
	s := mustCreate(t, eng, weeklyInput("Soccer", 1))

	p, err := eng.RequestDeletion(ctx, fam, s.ID, schedule.ScopeAll)
	if err != nil {
		t.Fatalf("RequestDeletion: %v", err)
	}
	if _, ok, _ := db.GetSeries(ctx, fam, s.ID); !ok {
		t.Fatal("request alone must not delete")
	}
	if _, ok := eng.Pending(fam, p.Token); !ok {
		t.Error("token should be pending")
	}
	if _, err := eng.ConfirmDeletion(ctx, fam, p.Token); err != nil {
		t.Fatalf("ConfirmDeletion: %v", err)
	}
	if _, ok, _ := db.GetSeries(ctx, fam, s.ID); ok {
		t.Error("series should be deleted after confirmation")
	}
	if _, ok := eng.Pending(fam, p.Token); ok {
		t.Error("confirmed token should no longer be pending")
	}
}

func TestDeletionRetriesAreNoOps(t *testing.T) {
	clock := &movableClock{t: now}
	eng, db, _ := newEngine(t, clock)
	ctx := context.Background()
	s := mustCreate(t, eng, weeklyInput("Soccer", 1))

	p, _ := eng.RequestDeletion(ctx, fam, s.ID, schedule.ScopeAll)
	if _, err := eng.ConfirmDeletion(ctx, fam, p.Token); err != nil {
		t.Fatalf("ConfirmDeletion: %v", err)
	}
	// The client lost the response and confirms again.
	again, err := eng.ConfirmDeletion(ctx, fam, p.Token)
	if err != nil || again.SeriesID != s.ID {
		t.Errorf("re-confirm: expected success for %s, got %+v, %v", s.ID, again, err)
	}

	// A fresh request for the gone series still gets a token.
	p, err = eng.RequestDeletion(ctx, fam, s.ID, schedule.ScopeAll)
	if err != nil || p.Token == "" || p.Name != "" {
		t.Fatalf("request for deleted series: %+v, %v", p, err)
	}
	if _, err := eng.ConfirmDeletion(ctx, fam, p.Token); err != nil {
		t.Errorf("confirm for deleted series: %v", err)
	}
	if n := countSeries(t, db); n != 0 {
		t.Errorf("expected no series, got %d", n)
	}

	// Re-confirms are only remembered until the token would have expired.
	clock.Advance(schedule.DefaultDeletionTTL)
	if _, err := eng.RequestDeletion(ctx, fam, "ghost", schedule.ScopeAll); err != nil {
		t.Fatalf("RequestDeletion: %v", err)
	}
	if _, err := eng.ConfirmDeletion(ctx, fam, p.Token); !errors.Is(err, schedule.ErrUnknownToken) {
		t.Errorf("expected ErrUnknownToken after expiry, got %v", err)
	}
}

func TestDeletionTokenBoundToFamily(t *testing.T) {
	eng, db, _ := newEngine(t, schedule.FixedClock{T: now})
	ctx := context.Background()
	s := mustCreate(t, eng, weeklyInput("Soccer", 1))
	p, _ := eng.RequestDeletion(ctx, fam, s.ID, schedule.ScopeAll)

	if _, ok := eng.Pending("other", p.Token); ok {
		t.Error("another family must not see the token")
	}
	if err := eng.CancelDeletion("other", p.Token); !errors.Is(err, schedule.ErrUnknownToken) {
		t.Errorf("cancel from another family: expected ErrUnknownToken, got %v", err)
	}
	if _, err := eng.ConfirmDeletion(ctx, "other", p.Token); !errors.Is(err, schedule.ErrUnknownToken) {
		t.Errorf("confirm from another family: expected ErrUnknownToken, got %v", err)
	}
	if _, err := eng.ConfirmDeletion(ctx, "", p.Token); !errors.Is(err, schedule.ErrNoFamily) {
		t.Errorf("expected ErrNoFamily, got %v", err)
	}
	mustGet(t, db, s.ID)

	if _, err := eng.ConfirmDeletion(ctx, fam, p.Token); err != nil {
		t.Fatalf("owner confirm: %v", err)
	}
	if _, err := eng.ConfirmDeletion(ctx, "other", p.Token); !errors.Is(err, schedule.ErrUnknownToken) {
		t.Errorf("re-confirm from another family: expected ErrUnknownToken, got %v", err)
	}
}

func TestDeletionTokenExpiryAndCancel(t *testing.T) {
	clock := &movableClock{t: now}
	eng, db, _ := newEngine(t, clock)
	ctx := context.Background()
	s := mustCreate(t, eng, weeklyInput("Soccer", 1))

	p, _ := eng.RequestDeletion(ctx, fam, s.ID, schedule.ScopeThis)
	clock.Advance(schedule.DefaultDeletionTTL)
	if _, err := eng.ConfirmDeletion(ctx, fam, p.Token); !errors.Is(err, schedule.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
	if got := mustGet(t, db, s.ID); got.EndDate != nil {
		t.Error("expired token must not change the series")
	}

	p, _ = eng.RequestDeletion(ctx, fam, s.ID, schedule.ScopeAll)
	if err := eng.CancelDeletion(fam, p.Token); err != nil {
		t.Fatalf("CancelDeletion: %v", err)
	}
	if _, err := eng.ConfirmDeletion(ctx, fam, p.Token); !errors.Is(err, schedule.ErrUnknownToken) {
		t.Errorf("cancelled token should be unknown, got %v", err)
	}
	if _, err := eng.RequestDeletion(ctx, fam, s.ID, "some"); !errors.Is(err, schedule.ErrInvalidScope) {
		t.Errorf("expected ErrInvalidScope, got %v", err)
	}
}

// ─── Activities / Snapshot ────────────────────────────────────────────────────

func TestLogActivityAndSnapshot(t *testing.T) {
	eng, db, _ := newEngine(t, schedule.FixedClock{T: now})
	ctx := context.Background()
	mustCreate(t, eng, weeklyInput("Soccer", 3))
	_ = db.SaveIcon(ctx, fam, model.Icon{Name: "Soccer", Ref: "⚽"})

	a, err := eng.LogActivity(ctx, fam, model.LoggedActivity{Name: "Soccer"})
	if err != nil {
		t.Fatalf("LogActivity: %v", err)
	}
	if a.ID == "" || a.Status != model.ActivityAttended || !a.Timestamp.Equal(now) {
		t.Errorf("defaults not applied: %+v", a)
	}
	if _, err := eng.LogActivity(ctx, fam, model.LoggedActivity{Name: "x", Status: "maybe"}); !errors.Is(err, schedule.ErrInvalidActivity) {
		t.Errorf("expected ErrInvalidActivity, got %v", err)
	}

	snap, err := eng.Snapshot(ctx, fam)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Series) != 1 || len(snap.Activities) != 1 || snap.Icons["Soccer"] != "⚽" || snap.Today != d("2024-01-10") {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

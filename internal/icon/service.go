package icon

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"sproutcal/internal/log"
	"sproutcal/internal/model"
)

// Repository persists icons per family.
type Repository interface {
	GetIcon(ctx context.Context, family, name string) (model.Icon, bool, error)
	SaveIcon(ctx context.Context, family string, ic model.Icon) error
}

// Generator produces an image reference (data URL or remote URL) for an
// activity name.
type Generator interface {
	GenerateIcon(ctx context.Context, name string) (string, error)
}

// Service hands out icons. Ensure is cheap for the caller: the expensive
// generation runs in the background.
type Service struct {
	repo Repository
	gen  Generator
	now  func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
	onChange func()
	wg       sync.WaitGroup
}

// NewService returns a Service. gen may be nil, in which case fallbacks are
// confirmed right away.
func NewService(repo Repository, gen Generator) *Service {
	return &Service{
		repo:     repo,
		gen:      gen,
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
}

// Ensure makes sure name has an icon. Errors are logged, never returned:
// a missing icon must not fail the calling mutation.
func (s *Service) Ensure(ctx context.Context, family, name string, category model.Category) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if _, ok, err := s.repo.GetIcon(ctx, family, name); err != nil {
		log.Error("icon lookup failed", err, "family", family, "name", name)
		return
	} else if ok {
		return
	}

	key := family + "/" + name
	s.mu.Lock()
	if _, busy := s.inflight[key]; busy {
		s.mu.Unlock()
		return
	}
	s.inflight[key] = struct{}{}
	s.mu.Unlock()

	fallback := model.Icon{
		Name:      name,
		Category:  category,
		Ref:       Fallback(name, category),
		Source:    model.IconFallback,
		State:     model.IconProvisional,
		UpdatedAt: s.now().UTC(),
	}
	if s.gen == nil {
		fallback.State = model.IconConfirmed
	}
	if err := s.repo.SaveIcon(ctx, family, fallback); err != nil {
		log.Error("icon save failed", err, "family", family, "name", name)
		s.done(key)
		return
	}
	if s.gen == nil {
		s.done(key)
		return
	}

	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.done(key)
		s.upgrade(bg, family, fallback)
	}()
}

// SetOnChange registers fn to run after a background generation replaces a
// provisional icon.
func (s *Service) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Wait blocks until every background generation has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) upgrade(ctx context.Context, family string, fallback model.Icon) {
	final := fallback
	final.State = model.IconConfirmed

	ref, err := s.gen.GenerateIcon(ctx, fallback.Name)
	if err == nil && ref == "" {
		err = fmt.Errorf("empty image reference")
	}
	if err != nil {
		log.Error("icon generation failed; keeping fallback", err, "family", family, "name", fallback.Name)
	} else {
		final.Ref = ref
		final.Source = model.IconGenerated
		log.Info("icon generated", "family", family, "name", fallback.Name)
	}
	final.UpdatedAt = s.now().UTC()

	if err := s.repo.SaveIcon(ctx, family, final); err != nil {
		log.Error("icon save failed", err, "family", family, "name", fallback.Name)
		return
	}
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *Service) done(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sproutcal/internal/log"
)

var (
	ErrUnknownToken = errors.New("unknown deletion token")
	ErrTokenExpired = errors.New("deletion token expired")
)

// PendingDeletion is a delete waiting for confirmation.
type PendingDeletion struct {
	Token     string    `json:"token"`
	Family    string    `json:"family"`
	SeriesID  string    `json:"seriesId"`
	Name      string    `json:"name"`
	Scope     Scope     `json:"scope"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RequestDeletion stages a delete of series id and returns the token that
// ConfirmDeletion needs. Nothing is changed until then. An id that is
// already gone still gets a token; confirming it is a no-op.
func (e *Engine) RequestDeletion(ctx context.Context, family, id string, scope Scope) (PendingDeletion, error) {
	if family == "" {
		return PendingDeletion{}, ErrNoFamily
	}
	if id == "" {
		return PendingDeletion{}, ErrMissingID
	}
	if err := scope.check(); err != nil {
		return PendingDeletion{}, err
	}
	if scope == "" {
		scope = ScopeAll
	}
	s, _, err := e.repo.GetSeries(ctx, family, id)
	if err != nil {
		return PendingDeletion{}, fmt.Errorf("loading series %s: %w", id, err)
	}

	now := e.clock.Now()
	p := PendingDeletion{
		Token:     e.newID(),
		Family:    family,
		SeriesID:  id,
		Name:      s.Name,
		Scope:     scope,
		ExpiresAt: now.Add(e.ttl).UTC(),
	}

	e.mu.Lock()
	e.purgeLocked(now)
	e.pending[p.Token] = p
	e.mu.Unlock()

	log.Debug("deletion requested", "family", family, "id", id, "scope", string(scope))
	return p, nil
}

// ConfirmDeletion executes a staged delete for family. A token runs its
// delete once; confirming it again before it expires succeeds without
// touching storage. An expired token is consumed and rejected. A token
// staged by another family is reported as unknown and left pending.
func (e *Engine) ConfirmDeletion(ctx context.Context, family, token string) (PendingDeletion, error) {
	if family == "" {
		return PendingDeletion{}, ErrNoFamily
	}
	now := e.clock.Now()

	e.mu.Lock()
	if p, ok := e.confirmed[token]; ok && p.Family == family && now.Before(p.ExpiresAt) {
		e.mu.Unlock()
		log.Debug("deletion already confirmed", "family", family, "token", token)
		return p, nil
	}
	p, ok := e.pending[token]
	if !ok || p.Family != family {
		e.mu.Unlock()
		return PendingDeletion{}, ErrUnknownToken
	}
	delete(e.pending, token)
	e.mu.Unlock()

	if !now.Before(p.ExpiresAt) {
		return p, ErrTokenExpired
	}
	if err := e.DeleteSeries(ctx, p.Family, p.SeriesID, p.Scope); err != nil {
		e.mu.Lock()
		e.pending[token] = p
		e.mu.Unlock()
		return p, fmt.Errorf("confirming deletion: %w", err)
	}

	e.mu.Lock()
	e.confirmed[token] = p
	e.mu.Unlock()
	return p, nil
}

// CancelDeletion drops a staged delete of family.
func (e *Engine) CancelDeletion(family, token string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.pending[token]; !ok || p.Family != family {
		return ErrUnknownToken
	}
	delete(e.pending, token)
	return nil
}

// Pending returns the staged delete for token, if it is still live and
// belongs to family.
func (e *Engine) Pending(family, token string) (PendingDeletion, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pending[token]
	if !ok || p.Family != family || !e.clock.Now().Before(p.ExpiresAt) {
		return PendingDeletion{}, false
	}
	return p, true
}

func (e *Engine) purgeLocked(now time.Time) {
	for tok, p := range e.pending {
		if !now.Before(p.ExpiresAt) {
			delete(e.pending, tok)
		}
	}
	for tok, p := range e.confirmed {
		if !now.Before(p.ExpiresAt) {
			delete(e.confirmed, tok)
		}
	}
}

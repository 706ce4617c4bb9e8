// Package store is the bbolt-backed document store behind the scheduler.
//
// Every collection is a bucket; records are JSON values keyed by
// "<scope>/<id>" where scope is the family id. There are no cross-call
// transactions: callers always work on the latest snapshot and the last
// writer wins.
//
// Buckets:
//
//	series    : scheduled series
//	activities: logged activities (read by the reconciler)
//	icons     : per-activity display icons
//	_meta     : internal: schema version, created_at
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	bolt "go.etcd.io/bbolt"

	"sproutcal/internal/model"
)

// Current schema version. Bump when bucket layout or key format changes.
const schemaVersion = 1

// Kind names a collection.
type Kind string

const (
	KindSeries     Kind = "series"
	KindActivities Kind = "activities"
	KindIcons      Kind = "icons"
)

// AllKinds lists every user-facing collection.
var AllKinds = []Kind{KindSeries, KindActivities, KindIcons}

var bucketInternal = []byte("_meta")

var ErrEmptyScope = errors.New("store: empty scope")

// Store wraps a bbolt database.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database at path, creating parent directories
// and running migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.db.Path()
}

// ─── Migrations ───────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, k := range AllKinds {
			if _, err := tx.CreateBucketIfNotExists([]byte(k)); err != nil {
				return fmt.Errorf("creating bucket %s: %w", k, err)
			}
		}
		meta, err := tx.CreateBucketIfNotExists(bucketInternal)
		if err != nil {
			return err
		}
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion))); err != nil {
				return err
			}
			if err := meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		}
		return nil
	})
}

// ─── Collection contract ──────────────────────────────────────────────────────

func recordKey(scope, id string) []byte {
	return []byte(scope + "/" + id)
}

// List returns every raw record of kind within scope, in key order.
func (s *Store) List(_ context.Context, kind Kind, scope string) ([][]byte, error) {
	if scope == "" {
		return nil, ErrEmptyScope
	}
	prefix := []byte(scope + "/")
	var out [][]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(kind))
		if b == nil {
			return fmt.Errorf("unknown collection %q", kind)
		}
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			out = append(out, bytes.Clone(v))
		}
		return nil
	})
	return out, err
}

// Get returns one raw record. Returns (nil, false, nil) when absent.
func (s *Store) Get(_ context.Context, kind Kind, scope, id string) ([]byte, bool, error) {
	if scope == "" {
		return nil, false, ErrEmptyScope
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(kind))
		if b == nil {
			return fmt.Errorf("unknown collection %q", kind)
		}
		if v := b.Get(recordKey(scope, id)); v != nil {
			out = bytes.Clone(v)
		}
		return nil
	})
	return out, out != nil, err
}

// Put writes a raw record, replacing any previous value.
func (s *Store) Put(_ context.Context, kind Kind, scope, id string, value []byte) error {
	if scope == "" {
		return ErrEmptyScope
	}
	if id == "" {
		return errors.New("store: empty record id")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(kind))
		if b == nil {
			return fmt.Errorf("unknown collection %q", kind)
		}
		return b.Put(recordKey(scope, id), value)
	})
}

// Delete removes a record. Deleting an absent record is not an error.
func (s *Store) Delete(_ context.Context, kind Kind, scope, id string) error {
	if scope == "" {
		return ErrEmptyScope
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(kind))
		if b == nil {
			return fmt.Errorf("unknown collection %q", kind)
		}
		return b.Delete(recordKey(scope, id))
	})
}

// ─── Series ───────────────────────────────────────────────────────────────────

func (s *Store) ListSeries(ctx context.Context, family string) ([]model.Series, error) {
	raws, err := s.List(ctx, KindSeries, family)
	if err != nil {
		return nil, err
	}
	out := make([]model.Series, 0, len(raws))
	for _, raw := range raws {
		var ser model.Series
		if err := json.Unmarshal(raw, &ser); err != nil {
			return nil, fmt.Errorf("decoding series: %w", err)
		}
		out = append(out, ser)
	}
	return out, nil
}

func (s *Store) GetSeries(ctx context.Context, family, id string) (model.Series, bool, error) {
	raw, ok, err := s.Get(ctx, KindSeries, family, id)
	if err != nil || !ok {
		return model.Series{}, false, err
	}
	var ser model.Series
	if err := json.Unmarshal(raw, &ser); err != nil {
		return model.Series{}, false, fmt.Errorf("decoding series %s: %w", id, err)
	}
	return ser, true, nil
}

// SaveSeries writes ser, filling in missing timestamps.
func (s *Store) SaveSeries(ctx context.Context, family string, ser model.Series) error {
	now := time.Now().UTC()
	if ser.CreatedAt.IsZero() {
		ser.CreatedAt = now
	}
	if ser.UpdatedAt.IsZero() {
		ser.UpdatedAt = now
	}
	data, err := json.Marshal(ser)
	if err != nil {
		return fmt.Errorf("encoding series: %w", err)
	}
	return s.Put(ctx, KindSeries, family, ser.ID, data)
}

func (s *Store) DeleteSeries(ctx context.Context, family, id string) error {
	return s.Delete(ctx, KindSeries, family, id)
}

// ─── Activities ───────────────────────────────────────────────────────────────

// ListActivities returns logged activities ordered by timestamp.
func (s *Store) ListActivities(ctx context.Context, family string) ([]model.LoggedActivity, error) {
	raws, err := s.List(ctx, KindActivities, family)
	if err != nil {
		return nil, err
	}
	out := make([]model.LoggedActivity, 0, len(raws))
	for _, raw := range raws {
		var a model.LoggedActivity
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("decoding activity: %w", err)
		}
		out = append(out, a)
	}
	slices.SortStableFunc(out, func(a, b model.LoggedActivity) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out, nil
}

func (s *Store) SaveActivity(ctx context.Context, family string, a model.LoggedActivity) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding activity: %w", err)
	}
	return s.Put(ctx, KindActivities, family, a.ID, data)
}

// ─── Icons ────────────────────────────────────────────────────────────────────

func (s *Store) GetIcon(ctx context.Context, family, name string) (model.Icon, bool, error) {
	raw, ok, err := s.Get(ctx, KindIcons, family, name)
	if err != nil || !ok {
		return model.Icon{}, false, err
	}
	var ic model.Icon
	if err := json.Unmarshal(raw, &ic); err != nil {
		return model.Icon{}, false, fmt.Errorf("decoding icon %s: %w", name, err)
	}
	return ic, true, nil
}

func (s *Store) SaveIcon(ctx context.Context, family string, ic model.Icon) error {
	data, err := json.Marshal(ic)
	if err != nil {
		return fmt.Errorf("encoding icon: %w", err)
	}
	return s.Put(ctx, KindIcons, family, ic.Name, data)
}

// IconRefs returns name -> display reference for every icon in family.
func (s *Store) IconRefs(ctx context.Context, family string) (map[string]string, error) {
	raws, err := s.List(ctx, KindIcons, family)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raws))
	for _, raw := range raws {
		var ic model.Icon
		if err := json.Unmarshal(raw, &ic); err != nil {
			return nil, fmt.Errorf("decoding icon: %w", err)
		}
		out[ic.Name] = ic.Ref
	}
	return out, nil
}

// ─── Stats ────────────────────────────────────────────────────────────────────

// BucketStats holds row count and byte size for a single bucket.
type BucketStats struct {
	Name  string
	Count int
	Bytes int64
}

// Stats returns row counts and approximate sizes for all collections.
func (s *Store) Stats() ([]BucketStats, error) {
	var stats []BucketStats
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, k := range AllKinds {
			b := tx.Bucket([]byte(k))
			if b == nil {
				continue
			}
			st := BucketStats{Name: string(k)}
			if err := b.ForEach(func(key, v []byte) error {
				st.Count++
				st.Bytes += int64(len(key) + len(v))
				return nil
			}); err != nil {
				return err
			}
			stats = append(stats, st)
		}
		return nil
	})
	return stats, err
}

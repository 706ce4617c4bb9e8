// Package app wires configuration, storage, the icon service and the
// scheduling engine into a single Deps value that commands receive.
package app

import (
	"errors"
	"fmt"

	"sproutcal/internal/ai"
	"sproutcal/internal/config"
	"sproutcal/internal/icon"
	"sproutcal/internal/ics"
	"sproutcal/internal/log"
	"sproutcal/internal/schedule"
	"sproutcal/internal/store"
)

// Deps holds all runtime dependencies injected into commands.
type Deps struct {
	Config  *config.Config
	Store   *store.Store
	Icons   *icon.Service
	Engine  *schedule.Engine
	Fetcher *ics.Fetcher
}

// New opens the database and builds the engine. The caller must Close the
// returned Deps.
func New(cfg *config.Config) (*Deps, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	var gen icon.Generator
	if cfg.AI.Enabled {
		client, err := ai.NewClient(ai.Options{
			BaseURL: cfg.AI.BaseURL,
			APIKey:  cfg.AI.APIKey,
			Model:   cfg.AI.Model,
			Size:    cfg.AI.Size,
			Rate:    cfg.AI.Rate,
			Timeout: cfg.AI.Timeout,
		})
		switch {
		case errors.Is(err, ai.ErrNoAPIKey):
			log.Info("icon generation enabled but no API key set; using fallback icons")
		case err != nil:
			_ = db.Close()
			return nil, fmt.Errorf("icon generator: %w", err)
		default:
			gen = client
		}
	}
	icons := icon.NewService(db, gen)

	eng := schedule.New(db, icons, schedule.RealClock{}, loc, schedule.Options{
		DeletionTTL: cfg.DeletionTTL,
	})
	return &Deps{
		Config:  cfg,
		Store:   db,
		Icons:   icons,
		Engine:  eng,
		Fetcher: ics.NewFetcher(cfg.ICSCacheDir, 0),
	}, nil
}

// Close waits for background icon work and closes the database.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	d.Icons.Wait()
	return d.Store.Close()
}

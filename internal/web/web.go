package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"sproutcal/internal/config"
	"sproutcal/internal/log"
	"sproutcal/internal/model"
	"sproutcal/internal/schedule"
)

// FamilyHeader selects the family a request acts on.
const FamilyHeader = "X-Family-ID"

const maxBodyBytes = 1 << 20

// IconReader looks up a stored icon.
type IconReader interface {
	GetIcon(ctx context.Context, family, name string) (model.Icon, bool, error)
}

// Server provides the scheduling HTTP API.
type Server struct {
	cfg   *config.Config
	eng   *schedule.Engine
	icons IconReader
	debug bool
	mux   *http.ServeMux

	// Resolved views keyed by family, route and query. Dropped on every
	// mutation and by the refresh cron so "today" rolls over. gen counts
	// purges; a view built across a purge is never stored.
	cacheMu sync.RWMutex
	cache   map[string]cacheEntry
	gen     atomic.Uint64
}

type cacheEntry struct {
	body      any
	gen       uint64
	updatedAt time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, eng *schedule.Engine, icons IconReader, debug bool) *Server {
	s := &Server{
		cfg:   cfg,
		eng:   eng,
		icons: icons,
		debug: debug,
		mux:   http.NewServeMux(),
		cache: make(map[string]cacheEntry),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.debug {
		h = requestLogger(h)
	}
	if s.basicAuthEnabled() {
		log.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// PurgeCache drops every cached view.
func (s *Server) PurgeCache() {
	s.cacheMu.Lock()
	s.gen.Add(1)
	n := len(s.cache)
	clear(s.cache)
	s.cacheMu.Unlock()
	if n > 0 {
		log.Debug("view cache purged", "entries", n)
	}
}

// StartRefresh schedules PurgeCache on cfg.RefreshCron. The caller stops
// the returned cron on shutdown.
func (s *Server) StartRefresh() (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(s.eng.Location()))
	if _, err := c.AddFunc(s.cfg.RefreshCron, s.PurgeCache); err != nil {
		return nil, fmt.Errorf("invalid refresh cron %q: %w", s.cfg.RefreshCron, err)
	}
	c.Start()
	log.Info("view refresh scheduled", "cron", s.cfg.RefreshCron)
	return c, nil
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "debug", s.debug)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured. Blank
// credentials count as disabled.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="sproutcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "elapsed", time.Since(start).String())
	})
}

// family resolves the family id for r.
func (s *Server) family(r *http.Request) string {
	if f := strings.TrimSpace(r.Header.Get(FamilyHeader)); f != "" {
		return f
	}
	if s.cfg != nil {
		return s.cfg.Family
	}
	return ""
}

// cached returns a fresh cached body for key, or builds and stores one.
func (s *Server) cached(key string, build func() (any, error)) (any, error) {
	ttl := config.DefaultCacheTTL
	if s.cfg != nil && s.cfg.CacheTTL > 0 {
		ttl = s.cfg.CacheTTL
	}
	s.cacheMu.RLock()
	gen := s.gen.Load()
	e, ok := s.cache[key]
	s.cacheMu.RUnlock()
	if ok && e.gen == gen && time.Since(e.updatedAt) < ttl {
		return e.body, nil
	}

	body, err := build()
	if err != nil {
		return nil, err
	}
	s.cacheMu.Lock()
	if s.gen.Load() == gen {
		s.cache[key] = cacheEntry{body: body, gen: gen, updatedAt: time.Now()}
	}
	s.cacheMu.Unlock()
	return body, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

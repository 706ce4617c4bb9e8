package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults. Exported so the CLI can show them in flag help.
const (
	DefaultListen      = "127.0.0.1:8080"
	DefaultTimezone    = "Local"
	DefaultRefresh     = "0 0 * * *"
	DefaultDBPath      = "./var/sproutcal.db"
	DefaultFamily      = "default"
	DefaultCacheTTL    = 5 * time.Minute
	DefaultDeletionTTL = 10 * time.Minute
	DefaultAIRate      = 0.1
	DefaultAITimeout   = 60 * time.Second
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// AIConfig configures icon generation. The API key normally comes from
// OPENAI_API_KEY rather than the file.
type AIConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKey  string `yaml:"api_key,omitempty" json:"-"`
	Model   string `yaml:"model,omitempty" json:"model,omitempty"`
	Size    string `yaml:"size,omitempty" json:"size,omitempty"`

	// Rate is requests per second; 0.1 means one image every ten seconds.
	Rate    float64       `yaml:"rate" json:"rate"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone "today" is computed in. "Local" uses the
	// host zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is the cron spec at which cached calendar views are
	// dropped so they roll over to the new day.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	DBPath string `yaml:"db_path" json:"db_path"`

	// Family is used when a request carries no X-Family-ID header.
	Family string `yaml:"family" json:"family"`

	CacheTTL    time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	DeletionTTL time.Duration `yaml:"deletion_ttl" json:"deletion_ttl"`

	// ICSCacheDir holds downloaded feeds for `ics import --url`.
	ICSCacheDir string `yaml:"ics_cache_dir,omitempty" json:"ics_cache_dir,omitempty"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	AI AIConfig `yaml:"ai" json:"ai"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing values so partially-filled configs still work.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = DefaultRefresh
	}
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath
	}
	if c.Family == "" {
		c.Family = DefaultFamily
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.DeletionTTL <= 0 {
		c.DeletionTTL = DefaultDeletionTTL
	}
	if c.ICSCacheDir == "" {
		c.ICSCacheDir = filepath.Join(filepath.Dir(c.DBPath), "ics-cache")
	}
	if c.AI.Rate <= 0 {
		c.AI.Rate = DefaultAIRate
	}
	if c.AI.Timeout <= 0 {
		c.AI.Timeout = DefaultAITimeout
	}
}

// ApplyEnv overlays environment variables. Empty variables are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.DBPath, "SPROUTCAL_DB_PATH")
	set(&c.Family, "SPROUTCAL_FAMILY")
	set(&c.AI.APIKey, "OPENAI_API_KEY")
	set(&c.AI.BaseURL, "OPENAI_BASE_URL")
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is decoded and defaults are filled in.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Return cfg anyway so the caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".sproutcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// Package config loads and live-reloads this bridge's process
// configuration (spec SPEC_FULL A.3): cache TTL defaults and per-table
// overrides, the cache database path, the rendering timezone, fuzzy
// match tolerances, and strict-filter-validation mode. Settings layer
// flags over environment variables over a TOML file over built-in
// defaults, the way the teacher's labelmutex and list/show-display
// packages layer viper over a YAML file plus fsnotify watches.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Defaults mirror the field-type registry's TTL categories at their
// "medium" anchor (spec §4.6): short-lived activity fields refresh
// faster, long-lived static fields refresh slower, relative to this.
const (
	DefaultTTLSeconds          = 300
	DefaultMaxFuzzyEditsShort  = 1
	DefaultMaxFuzzyEditsLong   = 2
	DefaultStrictFilterValidation = false
)

// Config is this bridge's resolved runtime configuration.
type Config struct {
	DefaultTTLSeconds      int            `mapstructure:"default_ttl_seconds"`
	TableTTLOverrides      map[string]int `mapstructure:"table_ttl_overrides"`
	CachePath              string         `mapstructure:"cache_path"`
	Timezone               string         `mapstructure:"timezone"`
	MaxFuzzyEditsShort     int            `mapstructure:"max_fuzzy_edits_short"`
	MaxFuzzyEditsLong      int            `mapstructure:"max_fuzzy_edits_long"`
	StrictFilterValidation bool           `mapstructure:"strict_filter_validation"`
	UpstreamBaseURL        string         `mapstructure:"upstream_base_url"`
	UpstreamAPIToken       string         `mapstructure:"upstream_api_token"`
}

// TTLForTable returns the configured override for tableID, falling back
// to DefaultTTLSeconds when no override is set (spec SPEC_FULL D.3).
func (c Config) TTLForTable(tableID string) time.Duration {
	if secs, ok := c.TableTTLOverrides[tableID]; ok {
		return time.Duration(secs) * time.Second
	}
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

// Location resolves the configured Timezone, falling back to UTC on an
// empty or unparseable value rather than failing a request.
func (c Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func defaults() Config {
	return Config{
		DefaultTTLSeconds:      DefaultTTLSeconds,
		TableTTLOverrides:      map[string]int{},
		CachePath:              defaultCachePath(),
		Timezone:               "UTC",
		MaxFuzzyEditsShort:     DefaultMaxFuzzyEditsShort,
		MaxFuzzyEditsLong:      DefaultMaxFuzzyEditsLong,
		StrictFilterValidation: DefaultStrictFilterValidation,
		UpstreamBaseURL:        "",
		UpstreamAPIToken:       "",
	}
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ssbridge-cache.db"
	}
	return filepath.Join(home, ".ssbridge", "cache.db")
}

// Manager owns a live viper instance, the file it was loaded from, and
// the fsnotify watch that keeps table_ttl_overrides current without a
// restart (spec SPEC_FULL D.3).
type Manager struct {
	mu     sync.RWMutex
	v      *viper.Viper
	cfg    Config
	path   string
	watcher *fsnotify.Watcher
}

// Load reads configuration from path (a TOML file; created with
// defaults if absent), layered under SSBRIDGE_*-prefixed environment
// variables, and starts watching path for external edits. Callers must
// call Close when done to release the watcher.
func Load(path string) (*Manager, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		path = filepath.Join(home, ".ssbridge", "config.toml")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("SSBRIDGE")
	v.AutomaticEnv()

	d := defaults()
	v.SetDefault("default_ttl_seconds", d.DefaultTTLSeconds)
	v.SetDefault("table_ttl_overrides", d.TableTTLOverrides)
	v.SetDefault("cache_path", d.CachePath)
	v.SetDefault("timezone", d.Timezone)
	v.SetDefault("max_fuzzy_edits_short", d.MaxFuzzyEditsShort)
	v.SetDefault("max_fuzzy_edits_long", d.MaxFuzzyEditsLong)
	v.SetDefault("strict_filter_validation", d.StrictFilterValidation)
	v.SetDefault("upstream_base_url", d.UpstreamBaseURL)
	v.SetDefault("upstream_api_token", d.UpstreamAPIToken)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := v.WriteConfigAs(path); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	} else if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	m := &Manager{v: v, path: path}
	if err := m.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch config directory: %w", err)
	}
	m.watcher = watcher
	go m.watchLoop()

	return m, nil
}

func (m *Manager) watchLoop() {
	debounce := (*time.Timer)(nil)
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				_ = m.reload()
			})
		case _, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (m *Manager) reload() error {
	if err := m.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if cfg.TableTTLOverrides == nil {
		cfg.TableTTLOverrides = map[string]int{}
	}

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return nil
}

// Current returns a snapshot of the configuration as of the last
// successful load or reload.
func (m *Manager) Current() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// SetTableTTL persists a per-table TTL override to the backing TOML
// file and updates the in-memory snapshot immediately, without waiting
// for the fsnotify round trip (spec SPEC_FULL D.3, the config_set_ttl
// RPC operation).
func (m *Manager) SetTableTTL(tableID string, seconds int) error {
	m.mu.Lock()
	if m.cfg.TableTTLOverrides == nil {
		m.cfg.TableTTLOverrides = map[string]int{}
	}
	m.cfg.TableTTLOverrides[tableID] = seconds
	overrides := make(map[string]int, len(m.cfg.TableTTLOverrides))
	for k, v := range m.cfg.TableTTLOverrides {
		overrides[k] = v
	}
	m.mu.Unlock()

	m.v.Set("table_ttl_overrides", overrides)
	if err := m.v.WriteConfigAs(m.path); err != nil {
		return fmt.Errorf("persist table ttl override: %w", err)
	}
	return nil
}

// Close stops the fsnotify watch.
func (m *Manager) Close() error {
	if m.watcher == nil {
		return nil
	}
	return m.watcher.Close()
}

// Package config holds the scheduler's runtime configuration: queue and
// worker sizing, cache capacity, shutdown timing, and the connection
// settings for whatever model backend is wired in. A Config is
// mutex-guarded so a hot reload can swap it in while requests are in
// flight; callers should call Snapshot rather than reading fields directly.
package config

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

const secretMask = "***"

// ModelBackend holds connection settings for an out-of-process model
// server (e.g. a llama.cpp-style HTTP backend). APIKey is the one secret
// field this config carries.
type ModelBackend struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
}

// Config is the scheduler's full tunable surface (SPEC_FULL.md §2).
type Config struct {
	mu sync.RWMutex `json:"-"`

	MaxQueueSize    int           `json:"max_queue_size"`
	WorkerThreads   int           `json:"worker_threads"`
	CacheCapacity   int           `json:"cache_capacity_override"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	Backend ModelBackend `json:"backend"`
}

// Default returns the scheduler's baked-in defaults.
func Default() *Config {
	return &Config{
		MaxQueueSize:    64,
		WorkerThreads:   1,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Load reads a JSON config file, falling back to Default() if path is empty
// or missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Snapshot returns a copy safe to read without holding the lock.
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Config{
		MaxQueueSize:    c.MaxQueueSize,
		WorkerThreads:   c.WorkerThreads,
		CacheCapacity:   c.CacheCapacity,
		ShutdownTimeout: c.ShutdownTimeout,
		Backend:         c.Backend,
	}
}

// replace swaps in new's field values under the write lock, used by the
// fsnotify reload watcher.
func (c *Config) replace(newCfg *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.MaxQueueSize = newCfg.MaxQueueSize
	c.WorkerThreads = newCfg.WorkerThreads
	c.CacheCapacity = newCfg.CacheCapacity
	c.ShutdownTimeout = newCfg.ShutdownTimeout
	c.Backend = newCfg.Backend
}

// MaskedCopy returns a copy with the backend API key masked, for surfacing
// config over any future inspection endpoint without leaking secrets.
func (c *Config) MaskedCopy() *Config {
	snap := c.Snapshot()
	if snap.Backend.APIKey != "" {
		snap.Backend.APIKey = secretMask
	}
	return &snap
}

// StripSecrets zeros the backend API key, for writing config back to disk
// without persisting it.
func (c *Config) StripSecrets() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Backend.APIKey = ""
}

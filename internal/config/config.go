package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the TOML config file for user preferences.
const FileName = "config.toml"

// Config represents user-facing configuration in TOML format.
type Config struct {
	// Search tunes the message search engine.
	Search SearchSettings `toml:"search"`

	// Logs defines log output settings.
	Logs LogSettings `toml:"logs"`
}

// SearchSettings tunes indexing and query execution.
type SearchSettings struct {
	// BatchSize is the max records drained from the ingest queue per tick.
	BatchSize int `toml:"batch_size"`

	// TickIntervalMS is the drain cadence in milliseconds.
	TickIntervalMS int `toml:"tick_interval_ms"`

	// PersistEvery saves the index after this many processed records.
	PersistEvery int `toml:"persist_every"`

	// CacheCapacity bounds the memoized query results (FIFO eviction).
	CacheCapacity int `toml:"cache_capacity"`

	// RecentCapacity bounds the recent-query log.
	RecentCapacity int `toml:"recent_capacity"`

	// WorkerThreshold is the index size above which scoring is offloaded
	// to the background worker.
	WorkerThreshold int `toml:"worker_threshold"`

	// SmallIndexThreshold is the index size below which posting-list
	// narrowing is skipped.
	SmallIndexThreshold int `toml:"small_index_threshold"`

	// ScanParallelism caps the local scan worker pool.
	ScanParallelism int `toml:"scan_parallelism"`

	// FuzzyThreshold is the default minimum token similarity for fuzzy
	// matching, in (0,1].
	FuzzyThreshold float64 `toml:"fuzzy_threshold"`
}

// LogSettings defines log output configuration.
type LogSettings struct {
	// Level is "debug", "info" (default), "warn", or "error".
	Level string `toml:"level"`

	// Format is "json" (default) or "text".
	Format string `toml:"format"`

	MaxSizeMB  int  `toml:"max_size_mb"`
	MaxBackups int  `toml:"max_backups"`
	MaxAgeDays int  `toml:"max_age_days"`
	Compress   bool `toml:"compress"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Search: SearchSettings{
			BatchSize:           100,
			TickIntervalMS:      250,
			PersistEvery:        500,
			CacheCapacity:       100,
			RecentCapacity:      50,
			WorkerThreshold:     1000,
			SmallIndexThreshold: 64,
			ScanParallelism:     8,
			FuzzyThreshold:      0.7,
		},
		Logs: LogSettings{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 10,
			Compress:   true,
		},
	}
}

// Load reads the config file at path. A missing file yields defaults with no
// error; a malformed file yields defaults plus the parse error so the caller
// can warn and keep going.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg.normalized(), nil
}

// Save writes cfg to path, creating parent directories as needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return nil
}

// normalized clamps nonsense values back to defaults.
func (c Config) normalized() Config {
	def := Default()
	if c.Search.BatchSize <= 0 {
		c.Search.BatchSize = def.Search.BatchSize
	}
	if c.Search.TickIntervalMS <= 0 {
		c.Search.TickIntervalMS = def.Search.TickIntervalMS
	}
	if c.Search.PersistEvery <= 0 {
		c.Search.PersistEvery = def.Search.PersistEvery
	}
	if c.Search.CacheCapacity <= 0 {
		c.Search.CacheCapacity = def.Search.CacheCapacity
	}
	if c.Search.RecentCapacity <= 0 {
		c.Search.RecentCapacity = def.Search.RecentCapacity
	}
	if c.Search.WorkerThreshold <= 0 {
		c.Search.WorkerThreshold = def.Search.WorkerThreshold
	}
	if c.Search.SmallIndexThreshold <= 0 {
		c.Search.SmallIndexThreshold = def.Search.SmallIndexThreshold
	}
	if c.Search.ScanParallelism <= 0 {
		c.Search.ScanParallelism = def.Search.ScanParallelism
	}
	if c.Search.FuzzyThreshold <= 0 || c.Search.FuzzyThreshold > 1 {
		c.Search.FuzzyThreshold = def.Search.FuzzyThreshold
	}
	if c.Logs.Level == "" {
		c.Logs.Level = def.Logs.Level
	}
	if c.Logs.Format == "" {
		c.Logs.Format = def.Logs.Format
	}
	return c
}

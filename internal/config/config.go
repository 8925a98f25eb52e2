// Package config holds all memvault configuration.
//
// Configuration is loaded once at construction and treated as immutable
// afterwards. A missing config file yields defaults; environment variables
// override a small set of deployment-specific fields.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"memvault/internal/errors"
)

// Config holds all memvault configuration.
type Config struct {
	// DataDir is the root directory for storage tiers, disk cache, the
	// encryption key file, and the audit log. One Engine instance owns it
	// exclusively for the process lifetime.
	DataDir string `yaml:"data_dir"`

	Cache    CacheConfig    `yaml:"cache"`
	Storage  StorageConfig  `yaml:"storage"`
	Chunker  ChunkerConfig  `yaml:"chunker"`
	Security SecurityConfig `yaml:"security"`
	Engine   EngineConfig   `yaml:"engine"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// CacheConfig configures the two-level cache manager.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`

	// MemoryEntries is the in-process LRU capacity.
	MemoryEntries int `yaml:"memory_entries"`

	// DiskEntries is the disk-cache item limit. Exceeding it evicts the
	// oldest 10% by last access in one batch.
	DiskEntries int `yaml:"disk_entries"`

	// TTL is the entry time-to-live, measured from insertion.
	TTL string `yaml:"ttl"`

	// SweepInterval is how often the background task scans the disk cache
	// for expired entries.
	SweepInterval string `yaml:"sweep_interval"`
}

// StorageConfig configures the tiered storage manager. Limits are in bytes;
// zero means unlimited.
type StorageConfig struct {
	Enabled bool `yaml:"enabled"`

	HotLimit  int64 `yaml:"hot_limit"`
	WarmLimit int64 `yaml:"warm_limit"`
	ColdLimit int64 `yaml:"cold_limit"`

	// MigrationInterval is how often the background migration task runs.
	MigrationInterval string `yaml:"migration_interval"`
}

// ChunkerConfig configures document chunking.
type ChunkerConfig struct {
	// TargetSize is the base chunk size in characters. The adaptive
	// chunker adjusts it per content type.
	TargetSize int `yaml:"target_size"`

	// Overlap applies only in simple (non-semantic) mode: windows advance
	// by TargetSize - Overlap characters.
	Overlap int `yaml:"overlap"`

	// MinSize drops chunks smaller than this after splitting (lone
	// headers and similar noise).
	MinSize int `yaml:"min_size"`
}

// SecurityConfig configures encryption, PII detection, access control, and
// audit logging.
type SecurityConfig struct {
	Encryption bool `yaml:"encryption"`

	// KeyFile holds the encryption key material. Auto-generated on first
	// use when absent. Empty means <data_dir>/memvault.key.
	KeyFile string `yaml:"key_file"`

	PIIDetection bool `yaml:"pii_detection"`

	// CustomPatternsFile optionally names a YAML file of additional PII
	// detectors ({kind, pattern} entries) run after the built-ins.
	CustomPatternsFile string `yaml:"custom_patterns_file"`

	AccessControl bool `yaml:"access_control"`

	AuditLog bool `yaml:"audit_log"`

	// AuditFile is the append-only audit log path. Empty means
	// <data_dir>/audit.log.
	AuditFile string `yaml:"audit_file"`
}

// EngineConfig configures facade-level behavior.
type EngineConfig struct {
	// SimilarityThreshold is the default minimum score for vector-index
	// matches in GetContext.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// MinTruncateTokens is the smallest remaining budget worth filling
	// with a truncated topic in BuildFocusedContext.
	MinTruncateTokens int `yaml:"min_truncate_tokens"`

	// ScanWorkers bounds the parallel document re-scan in ScanForPII.
	ScanWorkers int `yaml:"scan_workers"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`   // empty means stderr
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: ".memvault",

		Cache: CacheConfig{
			Enabled:       true,
			MemoryEntries: 1000,
			DiskEntries:   10000,
			TTL:           "24h",
			SweepInterval: "1h",
		},

		Storage: StorageConfig{
			Enabled:           true,
			HotLimit:          1 << 30,  // 1 GB
			WarmLimit:         10 << 30, // 10 GB
			ColdLimit:         0,        // unlimited
			MigrationInterval: "24h",
		},

		Chunker: ChunkerConfig{
			TargetSize: 1000,
			Overlap:    200,
			MinSize:    50,
		},

		Security: SecurityConfig{
			Encryption:    true,
			PIIDetection:  true,
			AccessControl: true,
			AuditLog:      true,
		},

		Engine: EngineConfig{
			SimilarityThreshold: 0.7,
			MinTruncateTokens:   50,
			ScanWorkers:         4,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from path. A missing file returns defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "create config dir %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "write config %s", path)
	}
	return nil
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("MEMVAULT_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("MEMVAULT_KEY_FILE"); v != "" {
		c.Security.KeyFile = v
	}
	if v := os.Getenv("MEMVAULT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.NewValidation("data_dir must not be empty")
	}
	if c.Cache.MemoryEntries <= 0 {
		return errors.NewValidation("cache.memory_entries must be positive, got %d", c.Cache.MemoryEntries)
	}
	if c.Cache.DiskEntries <= 0 {
		return errors.NewValidation("cache.disk_entries must be positive, got %d", c.Cache.DiskEntries)
	}
	if _, err := parseDuration(c.Cache.TTL, 0); err != nil {
		return errors.NewValidation("cache.ttl: %v", err)
	}
	if _, err := parseDuration(c.Cache.SweepInterval, 0); err != nil {
		return errors.NewValidation("cache.sweep_interval: %v", err)
	}
	if _, err := parseDuration(c.Storage.MigrationInterval, 0); err != nil {
		return errors.NewValidation("storage.migration_interval: %v", err)
	}
	if c.Storage.HotLimit < 0 || c.Storage.WarmLimit < 0 || c.Storage.ColdLimit < 0 {
		return errors.NewValidation("storage tier limits must not be negative")
	}
	if c.Chunker.TargetSize <= 0 {
		return errors.NewValidation("chunker.target_size must be positive, got %d", c.Chunker.TargetSize)
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.TargetSize {
		return errors.NewValidation("chunker.overlap must be in [0, target_size), got %d", c.Chunker.Overlap)
	}
	if c.Chunker.MinSize < 0 {
		return errors.NewValidation("chunker.min_size must not be negative, got %d", c.Chunker.MinSize)
	}
	if c.Engine.SimilarityThreshold < 0 || c.Engine.SimilarityThreshold > 1 {
		return errors.NewValidation("engine.similarity_threshold must be in [0, 1], got %v", c.Engine.SimilarityThreshold)
	}
	if c.Engine.ScanWorkers <= 0 {
		return errors.NewValidation("engine.scan_workers must be positive, got %d", c.Engine.ScanWorkers)
	}
	return nil
}

// KeyFilePath resolves the encryption key file path.
func (c *Config) KeyFilePath() string {
	if c.Security.KeyFile != "" {
		return c.Security.KeyFile
	}
	return filepath.Join(c.DataDir, "memvault.key")
}

// AuditFilePath resolves the audit log path.
func (c *Config) AuditFilePath() string {
	if c.Security.AuditFile != "" {
		return c.Security.AuditFile
	}
	return filepath.Join(c.DataDir, "audit.log")
}

// StorageDir resolves the storage root directory.
func (c *Config) StorageDir() string {
	return filepath.Join(c.DataDir, "storage")
}

// CacheDir resolves the disk cache directory.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}

// TTLDuration returns the cache TTL as a duration.
func (c CacheConfig) TTLDuration() time.Duration {
	d, _ := parseDuration(c.TTL, 24*time.Hour)
	return d
}

// SweepIntervalDuration returns the disk-cache sweep interval as a duration.
func (c CacheConfig) SweepIntervalDuration() time.Duration {
	d, _ := parseDuration(c.SweepInterval, time.Hour)
	return d
}

// MigrationIntervalDuration returns the migration interval as a duration.
func (c StorageConfig) MigrationIntervalDuration() time.Duration {
	d, _ := parseDuration(c.MigrationInterval, 24*time.Hour)
	return d
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback, errors.Wrapf(err, "invalid duration %q", s)
	}
	return d, nil
}

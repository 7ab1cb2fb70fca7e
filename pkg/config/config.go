// Package config loads the historydb configuration from a YAML file with
// environment overrides. Precedence follows the server convention: explicit
// command-line flags win over environment variables, which win over the
// config file.
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"historydb/pkg/retention"
)

// Config is the top-level configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Ops       OpsConfig       `yaml:"ops"`
	Retention RetentionConfig `yaml:"retention"`
}

// StorageConfig locates the backend database.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// LoggingConfig selects log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text|json
}

// OpsConfig configures the operational listener (metrics, health). Empty
// address disables it.
type OpsConfig struct {
	Addr string `yaml:"addr"`
}

// RetentionConfig controls the expiry purge runner and the TTL windows the
// store stamps onto new records.
type RetentionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
	DryRun  bool   `yaml:"dry_run"`
	// BatchSize caps deletions per purge batch; MaxBatchBytes caps the
	// serialized bytes examined per batch (humanized, e.g. "64MB").
	BatchSize     int     `yaml:"batch_size"`
	MaxBatchBytes string  `yaml:"max_batch_bytes"`
	RatePerSec    float64 `yaml:"rate_per_sec"`

	// TemporaryTTL and StandardTTL feed the retention policy. Zero standard
	// TTL means ordinary threads never expire.
	TemporaryTTL Duration `yaml:"temporary_ttl"`
	StandardTTL  Duration `yaml:"standard_ttl"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "24h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}
	*d = Duration(v)
	return nil
}

// BatchBytes parses MaxBatchBytes; zero when unset.
func (r RetentionConfig) BatchBytes() (uint64, error) {
	if strings.TrimSpace(r.MaxBatchBytes) == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(r.MaxBatchBytes)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid max_batch_bytes %q", r.MaxBatchBytes)
	}
	return n, nil
}

// Policy derives the store's retention policy from the configured windows.
// Unset windows fall back to the defaults.
func (r RetentionConfig) Policy() retention.Policy {
	p := retention.DefaultPolicy
	if r.TemporaryTTL != 0 {
		p.Temporary = time.Duration(r.TemporaryTTL)
	}
	if r.StandardTTL != 0 {
		p.Standard = time.Duration(r.StandardTTL)
	}
	return p
}

// Load reads and parses the YAML config at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return &cfg, nil
}

// LoadEnvOverrides applies HISTORYDB_* environment variables onto cfg and
// reports whether any were used.
func LoadEnvOverrides(cfg *Config) bool {
	used := false
	if v := os.Getenv("HISTORYDB_DB_PATH"); v != "" {
		used = true
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("HISTORYDB_LOG_LEVEL"); v != "" {
		used = true
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HISTORYDB_LOG_FORMAT"); v != "" {
		used = true
		cfg.Logging.Format = v
	}
	if v := os.Getenv("HISTORYDB_OPS_ADDR"); v != "" {
		used = true
		cfg.Ops.Addr = v
	}
	if v := os.Getenv("HISTORYDB_RETENTION_ENABLED"); v != "" {
		used = true
		cfg.Retention.Enabled = parseBool(v)
	}
	if v := os.Getenv("HISTORYDB_RETENTION_CRON"); v != "" {
		used = true
		cfg.Retention.Cron = v
	}
	if v := os.Getenv("HISTORYDB_RETENTION_DRY_RUN"); v != "" {
		used = true
		cfg.Retention.DryRun = parseBool(v)
	}
	if v := os.Getenv("HISTORYDB_RETENTION_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			used = true
			cfg.Retention.BatchSize = n
		}
	}
	if v := os.Getenv("HISTORYDB_RETENTION_RATE"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			used = true
			cfg.Retention.RatePerSec = f
		}
	}
	if v := os.Getenv("HISTORYDB_TEMPORARY_TTL"); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			used = true
			cfg.Retention.TemporaryTTL = Duration(d)
		}
	}
	if v := os.Getenv("HISTORYDB_STANDARD_TTL"); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			used = true
			cfg.Retention.StandardTTL = Duration(d)
		}
	}
	return used
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Flags holds parsed command-line flag values and which were explicitly set.
type Flags struct {
	DB     string
	Config string
	Ops    string
	Set    map[string]bool
}

// ParseCommandFlags defines and parses the daemon's flags.
func ParseCommandFlags() Flags {
	dbPtr := flag.String("db", "./.historydb", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	opsPtr := flag.String("ops-addr", "", "ops listener address (metrics/health); empty disables")
	flag.Parse()
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{DB: *dbPtr, Config: *cfgPtr, Ops: *opsPtr, Set: set}
}

// LoadEffective resolves the final config from file, environment, and flags.
// A missing config file is not an error: env and flags alone are enough to
// run. Source describes where values came from for startup logging.
func LoadEffective(fl Flags) (*Config, string, error) {
	cfg := &Config{}
	source := "defaults"
	if c, err := Load(fl.Config); err == nil {
		cfg = c
		source = "config"
	} else if !os.IsNotExist(err) || fl.Set["config"] {
		return nil, "", err
	}
	if LoadEnvOverrides(cfg) {
		source += "+env"
	}
	if fl.Set["db"] || cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = fl.DB
	}
	if fl.Set["ops-addr"] {
		cfg.Ops.Addr = fl.Ops
	}
	if fl.Set["db"] || fl.Set["ops-addr"] {
		source += "+flags"
	}
	return cfg, source, nil
}

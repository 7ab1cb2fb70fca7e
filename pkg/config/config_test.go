package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
storage:
  db_path: /var/lib/historydb
logging:
  level: debug
  format: json
ops:
  addr: ":9090"
retention:
  enabled: true
  cron: "0 3 * * *"
  dry_run: true
  batch_size: 500
  max_batch_bytes: 64MB
  rate_per_sec: 100
  temporary_ttl: 48h
  standard_ttl: 2160h
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/historydb", cfg.Storage.DBPath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, ":9090", cfg.Ops.Addr)
	assert.True(t, cfg.Retention.Enabled)
	assert.True(t, cfg.Retention.DryRun)
	assert.Equal(t, 500, cfg.Retention.BatchSize)
	assert.Equal(t, Duration(48*time.Hour), cfg.Retention.TemporaryTTL)

	n, err := cfg.Retention.BatchBytes()
	require.NoError(t, err)
	assert.Equal(t, uint64(64_000_000), n)

	p := cfg.Retention.Policy()
	assert.Equal(t, 48*time.Hour, p.Temporary)
	assert.Equal(t, 2160*time.Hour, p.Standard)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "retention:\n  temporary_ttl: soon\n"))
	assert.Error(t, err)
}

func TestBatchBytesUnsetIsZero(t *testing.T) {
	n, err := RetentionConfig{}.BatchBytes()
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = RetentionConfig{MaxBatchBytes: "lots"}.BatchBytes()
	assert.Error(t, err)
}

func TestPolicyDefaults(t *testing.T) {
	p := RetentionConfig{}.Policy()
	assert.Equal(t, 24*time.Hour, p.Temporary)
	assert.Equal(t, time.Duration(0), p.Standard)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HISTORYDB_DB_PATH", "/env/db")
	t.Setenv("HISTORYDB_LOG_LEVEL", "warn")
	t.Setenv("HISTORYDB_RETENTION_ENABLED", "true")
	t.Setenv("HISTORYDB_RETENTION_BATCH_SIZE", "250")
	t.Setenv("HISTORYDB_TEMPORARY_TTL", "12h")

	cfg := &Config{}
	assert.True(t, LoadEnvOverrides(cfg))
	assert.Equal(t, "/env/db", cfg.Storage.DBPath)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Retention.Enabled)
	assert.Equal(t, 250, cfg.Retention.BatchSize)
	assert.Equal(t, Duration(12*time.Hour), cfg.Retention.TemporaryTTL)
}

func TestLoadEffectivePrecedence(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	t.Setenv("HISTORYDB_LOG_LEVEL", "error")

	t.Run("env_over_file", func(t *testing.T) {
		cfg, source, err := LoadEffective(Flags{Config: path, Set: map[string]bool{}})
		require.NoError(t, err)
		assert.Equal(t, "error", cfg.Logging.Level)
		assert.Equal(t, "config+env", source)
		assert.Equal(t, "/var/lib/historydb", cfg.Storage.DBPath)
	})

	t.Run("flags_over_env_and_file", func(t *testing.T) {
		cfg, source, err := LoadEffective(Flags{
			Config: path,
			DB:     "/flag/db",
			Ops:    ":7070",
			Set:    map[string]bool{"db": true, "ops-addr": true},
		})
		require.NoError(t, err)
		assert.Equal(t, "/flag/db", cfg.Storage.DBPath)
		assert.Equal(t, ":7070", cfg.Ops.Addr)
		assert.Contains(t, source, "flags")
	})

	t.Run("missing_file_is_fine", func(t *testing.T) {
		cfg, _, err := LoadEffective(Flags{
			Config: filepath.Join(t.TempDir(), "absent.yaml"),
			DB:     "./.historydb",
			Set:    map[string]bool{},
		})
		require.NoError(t, err)
		assert.Equal(t, "./.historydb", cfg.Storage.DBPath)
	})

	t.Run("explicit_missing_file_errors", func(t *testing.T) {
		_, _, err := LoadEffective(Flags{
			Config: filepath.Join(t.TempDir(), "absent.yaml"),
			Set:    map[string]bool{"config": true},
		})
		assert.Error(t, err)
	})
}

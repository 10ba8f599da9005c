package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Metadata.Type)
	assert.Equal(t, "memory", cfg.Blob.Type)
	assert.True(t, cfg.GC.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.GC.Interval)
	assert.Equal(t, 1000, cfg.GC.BatchSize)

	require.NoError(t, Validate(cfg))
}

func TestApplyDefaults_NormalizesLogLevel(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "debug"}}
	ApplyDefaults(cfg)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{ShutdownTimeout: 5 * time.Second},
		GC:     GCConfig{Interval: time.Hour, BatchSize: 50},
	}
	ApplyDefaults(cfg)

	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, time.Hour, cfg.GC.Interval)
	assert.Equal(t, 50, cfg.GC.BatchSize)
}

func TestValidate(t *testing.T) {
	t.Run("unknown metadata type", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Metadata.Type = "postgres"
		assert.Error(t, Validate(cfg))
	})

	t.Run("unknown log level", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = "TRACE"
		assert.Error(t, Validate(cfg))
	})

	t.Run("duplicate directory ids", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Directory.Users = []UserConfig{
			{ID: "alice", Email: "alice@example.com"},
			{ID: "alice", Email: "other@example.com"},
		}
		assert.ErrorContains(t, Validate(cfg), "duplicate id")
	})

	t.Run("duplicate directory emails are case-insensitive", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Directory.Users = []UserConfig{
			{ID: "alice", Email: "alice@example.com"},
			{ID: "alice2", Email: "Alice@Example.com"},
		}
		assert.ErrorContains(t, Validate(cfg), "duplicate email")
	})

	t.Run("invalid directory email", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Directory.Users = []UserConfig{{ID: "alice", Email: "not-an-email"}}
		assert.Error(t, Validate(cfg))
	})

	t.Run("directory id must not contain a colon", func(t *testing.T) {
		// Principal ids become segments of composite store index keys,
		// which use ':' as the delimiter.
		cfg := GetDefaultConfig()
		cfg.Directory.Users = []UserConfig{{ID: "tenant:alice", Email: "alice@example.com"}}
		assert.Error(t, Validate(cfg))
	})

	t.Run("badger requires a path", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Metadata.Type = "badger"
		cfg.Metadata.Badger["path"] = ""
		assert.ErrorContains(t, Validate(cfg), "path is required")

		cfg.Metadata.Badger["in_memory"] = true
		assert.NoError(t, Validate(cfg))
	})

	t.Run("s3 requires bucket and region", func(t *testing.T) {
		cfg := GetDefaultConfig()
		cfg.Blob.Type = "s3"
		assert.ErrorContains(t, Validate(cfg), "bucket is required")

		cfg.Blob.S3["bucket"] = "drive-blobs"
		assert.ErrorContains(t, Validate(cfg), "region is required")

		cfg.Blob.S3["region"] = "us-east-1"
		assert.NoError(t, Validate(cfg))
	})
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
logging:
  level: debug
  format: json
metadata:
  type: badger
  badger:
    path: /tmp/spacedrive-test
directory:
  users:
    - id: alice
      email: alice@example.com
gc:
  enabled: true
  interval: 1h
  batch_size: 500
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "badger", cfg.Metadata.Type)
	assert.Equal(t, "/tmp/spacedrive-test", cfg.Metadata.Badger["path"])
	require.Len(t, cfg.Directory.Users, 1)
	assert.Equal(t, "alice", cfg.Directory.Users[0].ID)
	assert.Equal(t, time.Hour, cfg.GC.Interval)
	assert.Equal(t, 500, cfg.GC.BatchSize)
}

func TestLoad_InvalidFileRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
metadata:
  type: cassandra
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ExplicitMissingFileRejected(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err, "an explicitly named config file must exist")
}

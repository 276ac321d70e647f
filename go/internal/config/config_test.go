package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Draft.ScanInterval)
	assert.Equal(t, 100, cfg.Draft.ScanBatchSize)
	assert.Equal(t, 10, cfg.Draft.ScanWorkers)
	assert.Equal(t, 10*time.Second, cfg.Draft.TransitionTimeout)
	assert.Equal(t, int64(4096), cfg.Draft.MaxMessageBytes)
	assert.Equal(t, 24*time.Hour, cfg.StreamMaxAge)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "localhost", cfg.DB.Host)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("DRAFT_SCAN_INTERVAL", "250ms")
	t.Setenv("DRAFT_SCAN_WORKERS", "3")
	t.Setenv("DB_NAME", "drafts_test")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("MIGRATE_ON_START", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Draft.ScanInterval)
	assert.Equal(t, 3, cfg.Draft.ScanWorkers)
	assert.Equal(t, "drafts_test", cfg.DB.Database)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.MigrateOnStart)
}

func TestLoadDraftConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "draft.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scan_interval: 2s\nscan_workers: 4\ninbound_burst: 5\n"), 0o600))
	t.Setenv("DRAFT_CONFIG", path)
	t.Setenv("DRAFT_SCAN_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)

	// The file wins over the environment for the keys it names.
	assert.Equal(t, 2*time.Second, cfg.Draft.ScanInterval)
	assert.Equal(t, 4, cfg.Draft.ScanWorkers)
	assert.Equal(t, 5, cfg.Draft.InboundBurst)
	assert.Equal(t, 100, cfg.Draft.ScanBatchSize)
}

func TestLoadDraftConfigFileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("DRAFT_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "draft.yaml")
		require.NoError(t, os.WriteFile(path, []byte("scan_workers: [\n"), 0o600))
		t.Setenv("DRAFT_CONFIG", path)
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestSetupLogging(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())

	SetupLogging(Logging{Level: "debug"})
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	SetupLogging(Logging{Level: "nonsense"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

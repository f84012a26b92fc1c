package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "~/.local/share/watchvault", cfg.Storage.Path)
	assert.Equal(t, "watchvault.db", cfg.Storage.SQLiteFile)
	assert.Equal(t, "wal", cfg.Storage.SQLiteJournalMode)
	assert.Equal(t, 5000, cfg.Storage.BusyTimeoutMS)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "pretty", cfg.Logging.Format)
	assert.Equal(t, 50, cfg.Query.DefaultLimit)
	assert.Equal(t, 1000, cfg.Query.MaxLimit)
	assert.Equal(t, 500, cfg.Archive.ExportBatchSize)
	assert.Equal(t, 500, cfg.Archive.ImportBatchSize)
	assert.Equal(t, "Watched ", cfg.Ingest.TitlePrefix)
	assert.Equal(t, "From Google Ads", cfg.Ingest.AdMarker)
	assert.Empty(t, cfg.Ingest.ExcludeChannels)
	assert.Zero(t, cfg.Retention.Days)
	assert.NoError(t, cfg.Validate())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))
	return cfgPath
}

func TestLoadValidYAMLOverridesDefaults(t *testing.T) {
	cfgPath := writeConfig(t, `
storage:
  path: "/data/vault"
  sqlite_file: "history.db"
logging:
  level: "debug"
  format: "json"
query:
  default_limit: 25
ingest:
  title_prefix: "Visionné "
  exclude_channels:
    - "Spam Channel"
retention:
  days: 365
`)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	// Overridden values
	assert.Equal(t, "/data/vault", cfg.Storage.Path)
	assert.Equal(t, "history.db", cfg.Storage.SQLiteFile)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 25, cfg.Query.DefaultLimit)
	assert.Equal(t, "Visionné ", cfg.Ingest.TitlePrefix)
	assert.Equal(t, []string{"Spam Channel"}, cfg.Ingest.ExcludeChannels)
	assert.Equal(t, 365, cfg.Retention.Days)

	// Non-overridden values remain defaults
	assert.Equal(t, "wal", cfg.Storage.SQLiteJournalMode)
	assert.Equal(t, 1000, cfg.Query.MaxLimit)
	assert.Equal(t, "From Google Ads", cfg.Ingest.AdMarker)
	assert.Equal(t, 500, cfg.Archive.ImportBatchSize)
}

func TestLoadInvalidYAMLReturnsError(t *testing.T) {
	_, err := Load(writeConfig(t, ":::not valid yaml{{{"))
	assert.Error(t, err)
}

func TestLoadNonExistentFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing", "config.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"journal mode", "storage:\n  sqlite_journal_mode: fancy\n"},
		{"empty file name", "storage:\n  sqlite_file: \"\"\n"},
		{"limit above max", "query:\n  default_limit: 5000\n"},
		{"zero batch", "archive:\n  export_batch_size: 0\n"},
		{"negative retention", "retention:\n  days: -1\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadOrCreateCreatesDefaultsWhenMissing(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "sub", "deep", "config.yaml")

	cfg, err := LoadOrCreateAt(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "watchvault.db", cfg.Storage.SQLiteFile)

	// File should now exist on disk
	_, statErr := os.Stat(cfgPath)
	assert.NoError(t, statErr)

	// File should be valid YAML loadable again
	cfg2, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, cfg, cfg2)
}

func TestLoadOrCreateLoadsExistingFile(t *testing.T) {
	cfgPath := writeConfig(t, "query:\n  max_limit: 200\n")

	cfg, err := LoadOrCreateAt(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Query.MaxLimit)
	assert.Equal(t, 50, cfg.Query.DefaultLimit)
}

func TestDBPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Path = "/var/lib/watchvault"
	cfg.Storage.SQLiteFile = "vault.db"

	path, err := cfg.DBPath()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/watchvault/vault.db", path)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/.config/watchvault")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config/watchvault"), got)

	got, err = ExpandPath("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)
}

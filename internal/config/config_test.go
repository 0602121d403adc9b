package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Ledger.PageSize)
	assert.Equal(t, 10, cfg.Ledger.RecentActivityLimit)
	assert.Equal(t, 100, cfg.Ledger.MaxActivityLimit)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.GetServerAddr())
	assert.Equal(t, "@every 5m", cfg.Snapshot.Schedule)
	assert.Equal(t, "@every 1m", cfg.Monitoring.RefreshSchedule)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"server": {"port": 9090},
		"database": {"driver": "sqlite", "sqlite_path": "/tmp/ledger.db"},
		"ledger": {"page_size": 20, "seed_demo_data": true},
		"security": {"admin_token": "from-file"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("ADMIN_TOKEN", "from-env")
	t.Setenv("LEDGER_STATS_CACHE_TTL", "2m")
	t.Setenv("METRICS_REFRESH_SCHEDULE", "@every 10s")
	t.Setenv("LEDGER_MAX_ACTIVITY_LIMIT", "250")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "/tmp/ledger.db", cfg.Database.SQLitePath)
	assert.Equal(t, 20, cfg.Ledger.PageSize)
	assert.True(t, cfg.Ledger.SeedDemoData)
	assert.Equal(t, "from-env", cfg.Security.AdminToken)
	assert.Equal(t, 2*time.Minute, cfg.Ledger.StatsCacheTTL)
	assert.Equal(t, "@every 10s", cfg.Monitoring.RefreshSchedule)
	assert.Equal(t, 250, cfg.Ledger.MaxActivityLimit)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

		_, err := LoadConfig(path)
		assert.Error(t, err)
	})

	t.Run("bad env integer", func(t *testing.T) {
		t.Setenv("SERVER_PORT", "eighty")
		_, err := LoadConfig("")
		assert.ErrorContains(t, err, "SERVER_PORT")
	})

	t.Run("default activity above cap", func(t *testing.T) {
		t.Setenv("LEDGER_RECENT_ACTIVITY_LIMIT", "50")
		t.Setenv("LEDGER_MAX_ACTIVITY_LIMIT", "20")
		_, err := LoadConfig("")
		assert.ErrorContains(t, err, "exceeds max activity limit")
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("DATABASE_DRIVER", "oracle")
		_, err := LoadConfig("")
		assert.ErrorContains(t, err, "unsupported database driver")
	})
}

func TestGetDatabaseURL(t *testing.T) {
	db := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: 5433, DBName: "d", SSLMode: "require"}
	assert.Equal(t, "postgres://u:p@h:5433/d?sslmode=require", db.GetDatabaseURL())
}

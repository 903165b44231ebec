package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigDefaults(t *testing.T) {
	t.Setenv("STOREPULSE_ENV", Test)
	Reset()
	t.Cleanup(Reset)

	cfg := GetConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "storepulse", cfg.AppName)
	assert.Equal(t, SQLiteDatabase, cfg.DatabaseType)
	assert.Equal(t, 30*time.Minute, cfg.SessionGap())
	assert.Equal(t, 3*time.Second, cfg.GeoTimeout())
	assert.Equal(t, time.UTC, cfg.Location())
	assert.False(t, cfg.LiveRelayEnabled())
	assert.False(t, cfg.AnonymizeIPs)
	assert.Equal(t, 1, cfg.GetMaxOpenConns())
	assert.Contains(t, cfg.GetDatabasePath(), "storepulse-test.db")
}

func TestGetConfigEnvOverrides(t *testing.T) {
	t.Setenv("STOREPULSE_ENV", Test)
	t.Setenv("STOREPULSE_SESSION_TIMEOUT_SECONDS", "600")
	t.Setenv("STOREPULSE_TIMEZONE", "Europe/Madrid")
	t.Setenv("STOREPULSE_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("STOREPULSE_DB_MAX_OPEN_CONNS", "4")
	Reset()
	t.Cleanup(Reset)

	cfg := GetConfig()

	assert.Equal(t, 10*time.Minute, cfg.SessionGap())
	assert.Equal(t, "Europe/Madrid", cfg.Location().String())
	assert.True(t, cfg.LiveRelayEnabled())
	assert.Equal(t, 4, cfg.GetMaxOpenConns())
}

func TestValidate(t *testing.T) {
	base := Config{
		Environment:           Test,
		DatabaseType:          SQLiteDatabase,
		Timezone:              "UTC",
		SessionTimeoutSeconds: 1800,
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad environment", func(c *Config) { c.Environment = "staging" }, "invalid environment"},
		{"bad db type", func(c *Config) { c.DatabaseType = "mysql" }, "invalid database type"},
		{"postgres without dsn", func(c *Config) { c.DatabaseType = PostgresDatabase }, "requires STOREPULSE_DB_DSN"},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "invalid timezone"},
		{"zero session gap", func(c *Config) { c.SessionTimeoutSeconds = 0 }, "session timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := c.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

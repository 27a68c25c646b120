package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60, cfg.Scheduler.RenewalDaysAhead)
	assert.Equal(t, 7, cfg.Engine.ReminderLeadDays)
	assert.Equal(t, "brokerage.payments.completed", cfg.NATS.Subject)
	assert.Empty(t, cfg.NATS.URL)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  read_timeout: 5s
database:
  path: /tmp/brokerage.db
scheduler:
  interval: 10m
  backfill: false
engine:
  reminder_lead_days: 14
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout, "unset keys keep their default")
	assert.Equal(t, "/tmp/brokerage.db", cfg.Database.Path)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.Interval)
	assert.False(t, cfg.Scheduler.Backfill)
	assert.Equal(t, 14, cfg.Engine.ReminderLeadDays)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "database:\n  path: from-file.db\n")
	t.Setenv("DATABASE_PATH", "from-env.db")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("HTTP_PORT", "7070")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env.db", cfg.Database.Path)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "server: [1, 2"))
		assert.ErrorContains(t, err, "unmarshal config")
	})
	t.Run("bad port", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "eighty")
		_, err := Load("")
		assert.ErrorContains(t, err, "HTTP_PORT")
	})
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Error(t, cfg.ValidateServe(), "serving requires a JWT secret")

	cfg.JWT.Secret = "s3cret"
	require.NoError(t, cfg.ValidateServe())

	cfg.Database.Path = ""
	cfg.Log.Level = "loud"
	cfg.Engine.ReminderLeadDays = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.path")
	assert.Contains(t, err.Error(), "log.level")
	assert.Contains(t, err.Error(), "reminder_lead_days")
}

func TestValidateServe_SchedulerAndPort(t *testing.T) {
	cfg := Default()
	cfg.JWT.Secret = "s3cret"
	cfg.Server.Port = 70000
	cfg.Scheduler.Interval = 0

	err := cfg.ValidateServe()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "scheduler.interval")
}

package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/scheduling")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.EnforceAvailability)
	assert.Equal(t, 3*time.Second, cfg.RepositoryTimeout())
	assert.Equal(t, time.Minute, cfg.SweepInterval())
	assert.Equal(t, 120, cfg.RateLimitPerMin)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/scheduling")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("PORT", "9090")
	t.Setenv("ENFORCE_AVAILABILITY", "false")
	t.Setenv("REPOSITORY_TIMEOUT_MS", "500")
	t.Setenv("SWEEP_INTERVAL_SECONDS", "15")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr())
	assert.False(t, cfg.EnforceAvailability)
	assert.Equal(t, 500*time.Millisecond, cfg.RepositoryTimeout())
	assert.Equal(t, 15*time.Second, cfg.SweepInterval())
}

func TestLoadMissingRequired(t *testing.T) {
	// t.Setenv registers the restore; unsetting afterwards leaves the
	// variable absent for the duration of the test.
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	os.Unsetenv("DATABASE_URL")
	os.Unsetenv("REDIS_URL")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Config{RepositoryTimeoutMS: 3000, SweepIntervalSeconds: 60}
	assert.NoError(t, cfg.Validate())

	cfg.RepositoryTimeoutMS = 0
	assert.Error(t, cfg.Validate())

	cfg.RepositoryTimeoutMS = 3000
	cfg.SweepIntervalSeconds = -1
	assert.Error(t, cfg.Validate())
}

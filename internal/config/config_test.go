package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StorageDriver)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.ReferralGrace)
	assert.Equal(t, 30, cfg.SearchRatePerMinute)
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/infobot")
	t.Setenv("BONUS_TIMEZONE", "UTC")
	t.Setenv("ADMIN_TASK_TTL", "90s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.StorageDriver)
	assert.Equal(t, 90*time.Second, cfg.AdminTaskTTL)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestValidate(t *testing.T) {
	base := Config{
		Env:                 "development",
		StorageDriver:       DriverMemory,
		BonusTimezone:       "UTC",
		LookupRatePerSecond: 1,
	}
	require.NoError(t, base.Validate())

	cfg := base
	cfg.StorageDriver = "sqlite"
	assert.Error(t, cfg.Validate())

	cfg = base
	cfg.StorageDriver = DriverMongo
	assert.Error(t, cfg.Validate())

	cfg = base
	cfg.Env = "production"
	assert.Error(t, cfg.Validate())
	cfg.JWTSecret = "secret"
	assert.NoError(t, cfg.Validate())

	cfg = base
	cfg.BonusTimezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())
}

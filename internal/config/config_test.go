package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("GATEWAY_SECRET", "")
	t.Setenv("BOOTSTRAP_ADMIN_PASSWORD", "")

	cfg := Load()
	assert.Empty(t, cfg.AuthSecret)
	assert.Empty(t, cfg.GatewaySecret)
	assert.Empty(t, cfg.BootstrapAdminPassword)
}

func TestLoadParsesTypedValues(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STAFF_MODE_ENABLED", "true")
	t.Setenv("DATABASE_MIGRATE", "1")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("SALE_CACHE_TTL_SECONDS", "45")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "15")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("CURRENCY", "idr")
	t.Setenv("APP_ENV", "Development")

	cfg := Load()
	assert.Equal(t, ":9090", cfg.Address())
	assert.True(t, cfg.StaffModeEnabled)
	assert.True(t, cfg.DatabaseMigrate)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, 45*time.Second, cfg.SaleCacheTTL())
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL())
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, "IDR", cfg.Currency)
	assert.True(t, cfg.Development())
}

func TestLoadFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SALE_CACHE_TTL_SECONDS", "-5")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "soon")
	t.Setenv("STAFF_MODE_ENABLED", "maybe")
	t.Setenv("METRICS_ENABLED", "")

	cfg := Load()
	assert.Equal(t, 300, cfg.SaleCacheTTLSeconds)
	assert.Equal(t, 480, cfg.AccessTokenTTLMinutes)
	assert.False(t, cfg.StaffModeEnabled)
	assert.True(t, cfg.MetricsEnabled)
}

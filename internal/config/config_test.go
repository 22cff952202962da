package config

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_PATH", ":memory:")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "15")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "7")
	t.Setenv("TAX_RATE_PERCENT", "")
	t.Setenv("CURRENCY", "")
	t.Setenv("ADMIN_EMAIL", "")
	t.Setenv("ADMIN_PASSWORD", "")
}

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		setBaseEnv(t)
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "test", cfg.App.Environment)
		assert.Equal(t, "sqlite3", cfg.DB.Driver)
		assert.Equal(t, 18, cfg.Booking.TaxPercent)
		assert.Equal(t, "INR", cfg.Booking.Currency)
		assert.Equal(t, 15, cfg.AccessTTLMin)
	})

	t.Run("MissingRequired", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("JWT_SECRET", "")
		t.Setenv("APP_PORT", "")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT_SECRET")
		assert.Contains(t, err.Error(), "APP_PORT")
	})

	t.Run("MySQLNeedsConnection", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("DB_DRIVER", "mysql")
		t.Setenv("DB_HOST", "")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DB_HOST")
	})

	t.Run("BadCurrency", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("CURRENCY", "RUPEE")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("UnknownDriver", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("DB_DRIVER", "oracle")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("AdminNeedsPassword", func(t *testing.T) {
		setBaseEnv(t)
		t.Setenv("ADMIN_EMAIL", "root@example.com")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestLoadRateLimitConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "10s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	cfg := LoadRateLimitConfig()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 10*time.Second, cfg.RefillInterval)
	assert.Equal(t, 50*time.Second, cfg.TTL)

	t.Setenv("RATE_LIMIT_BURST", "7")
	assert.Equal(t, 7, LoadRateLimitConfig().Capacity)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	t.Setenv("CACHE_TTL", "1m")
	cfg := LoadCacheConfig()
	assert.True(t, cfg.Methods["GET"])
	assert.True(t, cfg.Methods["HEAD"])
	assert.False(t, cfg.Methods["POST"])
	assert.Equal(t, time.Minute, cfg.TTL)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client := NewRedisClient(RedisConfig{Addr: mr.Addr()}, zerolog.Nop())
	require.NotNil(t, client)
	defer client.Close()

	mr.Close()
	assert.Nil(t, NewRedisClient(RedisConfig{Addr: mr.Addr()}, zerolog.Nop()))
}

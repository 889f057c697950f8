package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, StoreMemory, cfg.StoreDriver)
	require.Equal(t, LockLocal, cfg.LockDriver)
	require.Equal(t, "100", cfg.MinPaymentAmount.String())
	require.Equal(t, "USD", cfg.DefaultCurrency)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("LOCK_DRIVER", "redis")
	t.Setenv("MIN_PAYMENT_AMOUNT", "250.50")
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, StorePostgres, cfg.StoreDriver)
	require.Equal(t, LockRedis, cfg.LockDriver)
	require.Equal(t, "250.5", cfg.MinPaymentAmount.String())
	require.True(t, cfg.IsProduction())
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"store driver":   {"STORE_DRIVER": "sqlite"},
		"lock driver":    {"LOCK_DRIVER": "etcd"},
		"min payment":    {"MIN_PAYMENT_AMOUNT": "0"},
		"rate limit":     {"RATE_LIMIT_PER_MINUTE": "0"},
		"postgres no dsn": {"STORE_DRIVER": "postgres", "PG_DSN": ""},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

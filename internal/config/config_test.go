package config

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 3, cfg.RegistrationLimit)
	assert.Equal(t, time.Hour, cfg.RegistrationWindow)
	assert.Equal(t, "memory", cfg.RateLimitBackend)
	assert.False(t, cfg.RequireVerification)
	assert.False(t, cfg.EmailEnabled())
	assert.Empty(t, cfg.TrustedProxies)

	key, err := cfg.EncryptionKeyBytes()
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestNewConfig_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_CONN", "acn.db")
	t.Setenv("REQUIRE_VERIFICATION", "true")
	t.Setenv("REGISTRATION_WINDOW", "30m")
	t.Setenv("WEBHOOK_WORKERS", "8")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("ADMIN_EMAIL", "ops@example.com")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.1")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.True(t, cfg.RequireVerification)
	assert.Equal(t, 30*time.Minute, cfg.RegistrationWindow)
	assert.Equal(t, 8, cfg.WebhookWorkers)
	assert.True(t, cfg.EmailEnabled())

	nets, err := cfg.TrustedProxyNets()
	require.NoError(t, err)
	require.Len(t, nets, 2)
	assert.True(t, nets[0].Contains(net.ParseIP("10.1.2.3")))
	assert.True(t, nets[1].Contains(net.ParseIP("192.0.2.1")))
	assert.False(t, nets[1].Contains(net.ParseIP("192.0.2.2")))
}

func TestNewConfig_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value, wantErr string
	}{
		{"unknown driver", "DB_DRIVER", "mysql", "DB_DRIVER"},
		{"bad bool", "STRICT_REGISTRATION", "maybe", "STRICT_REGISTRATION"},
		{"bad key", "ENCRYPTION_KEY", "abcd", "ENCRYPTION_KEY"},
		{"non hex key", "ENCRYPTION_KEY", "zz", "ENCRYPTION_KEY"},
		{"bad backend", "RATE_LIMIT_BACKEND", "memcached", "RATE_LIMIT_BACKEND"},
		{"zero limit", "REGISTRATION_LIMIT", "0", "REGISTRATION_LIMIT"},
		{"bad duration", "WEBHOOK_TIMEOUT", "soon", "WEBHOOK_TIMEOUT"},
		{"bad proxy", "TRUSTED_PROXIES", "10.0.0.0/8,proxy.local", "TRUSTED_PROXIES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := NewConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

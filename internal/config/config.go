package config

import (
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port      string
	DBDriver  string
	DBConn    string
	LogLevel  string
	PublicURL string

	JWTSecret     string
	AdminKeyHash  string
	EncryptionKey string

	RequireVerification bool
	StrictRegistration  bool
	RegistrationLimit   int
	RegistrationWindow  time.Duration
	RateLimitBackend    string
	TrustedProxies      []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	WebhookWorkers int
	WebhookTimeout time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string
	AdminEmail   string

	DefaultSweepSchedule string
	DefaultGraceDays     int
}

// NewConfig loads configuration from environment variables.
// A .env file in the working directory is read first when present.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		DBDriver:  getEnv("DB_DRIVER", "postgres"),
		DBConn:    getEnv("DB_CONN", "host=localhost port=5432 user=acn password=acn dbname=acn sslmode=disable"),
		LogLevel:  getEnv("LOG_LEVEL", "INFO"),
		PublicURL: getEnv("PUBLIC_URL", "http://localhost:8080"),

		JWTSecret:     getEnv("JWT_SECRET", "secret"),
		AdminKeyHash:  getEnv("ADMIN_KEY_HASH", ""),
		EncryptionKey: getEnv("ENCRYPTION_KEY", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"),

		RateLimitBackend: getEnv("RATE_LIMIT_BACKEND", "memory"),
		TrustedProxies:   getList("TRUSTED_PROXIES"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SenderEmail:  getEnv("SENDER_EMAIL", "noreply@agentcredit.network"),
		AdminEmail:   getEnv("ADMIN_EMAIL", ""),

		DefaultSweepSchedule: getEnv("DEFAULT_SWEEP_SCHEDULE", ""),
	}

	var err error
	if cfg.RequireVerification, err = getBool("REQUIRE_VERIFICATION", false); err != nil {
		return nil, err
	}
	if cfg.StrictRegistration, err = getBool("STRICT_REGISTRATION", false); err != nil {
		return nil, err
	}
	if cfg.RegistrationLimit, err = getInt("REGISTRATION_LIMIT", 3); err != nil {
		return nil, err
	}
	if cfg.RegistrationWindow, err = getDuration("REGISTRATION_WINDOW", time.Hour); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.WebhookWorkers, err = getInt("WEBHOOK_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.WebhookTimeout, err = getDuration("WEBHOOK_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.DefaultGraceDays, err = getInt("DEFAULT_GRACE_DAYS", 7); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	if c.DBConn == "" {
		return fmt.Errorf("DB_CONN is required")
	}
	if c.DBDriver != "postgres" && c.DBDriver != "sqlite3" {
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite3, got %q", c.DBDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if _, err := c.EncryptionKeyBytes(); err != nil {
		return err
	}
	switch c.RateLimitBackend {
	case "memory", "token", "redis":
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be memory, token or redis, got %q", c.RateLimitBackend)
	}
	if _, err := c.TrustedProxyNets(); err != nil {
		return err
	}
	if c.RegistrationLimit < 1 {
		return fmt.Errorf("REGISTRATION_LIMIT must be positive")
	}
	if c.RegistrationWindow <= 0 {
		return fmt.Errorf("REGISTRATION_WINDOW must be positive")
	}
	if c.WebhookWorkers < 1 {
		return fmt.Errorf("WEBHOOK_WORKERS must be positive")
	}
	if c.DefaultGraceDays < 0 {
		return fmt.Errorf("DEFAULT_GRACE_DAYS must not be negative")
	}
	return nil
}

// EncryptionKeyBytes decodes ENCRYPTION_KEY into an AES key.
func (c *Config) EncryptionKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be hex: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	}
	return nil, fmt.Errorf("ENCRYPTION_KEY must decode to 16, 24 or 32 bytes, got %d", len(key))
}

// TrustedProxyNets parses TRUSTED_PROXIES. Bare IPs become single-host networks.
func (c *Config) TrustedProxyNets() ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(c.TrustedProxies))
	for _, entry := range c.TrustedProxies {
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: invalid address %q", entry)
			}
			bits := 8 * net.IPv6len
			if ip4 := ip.To4(); ip4 != nil {
				ip, bits = ip4, 8*net.IPv4len
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

// EmailEnabled reports whether SMTP alerts are configured.
func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != "" && c.AdminEmail != ""
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// getList splits a comma separated variable, dropping empty entries
func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getBool(key string, defaultVal bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return v, nil
}

func getInt(key string, defaultVal int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return v, nil
}

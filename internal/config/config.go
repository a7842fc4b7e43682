package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the facilitator server
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Chain     ChainConfig
	Invoices  InvoicesConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig
	Security  SecurityConfig
	Proxy     ProxyConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
}

// AuthConfig holds the facilitator API key settings
type AuthConfig struct {
	APIKey string
}

// ChainConfig holds network registry and relayer settings
type ChainConfig struct {
	// NetworksFile is an optional TOML file overriding the built-in
	// network registry. Empty means the compiled-in defaults.
	NetworksFile string
	// RelayerKeyFile is the path to a file containing the relayer's
	// hex-encoded private key. Empty means verify-only mode.
	RelayerKeyFile string
	// RelayerKey is the key itself; takes precedence over the file.
	// Intended for containerized deployments with secret injection.
	RelayerKey string
}

// InvoicesConfig holds invoice store settings
type InvoicesConfig struct {
	Type         string // "sqlite" or "postgres"
	SQLitePath   string
	PostgresURL  string
	SweepMinutes int
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool
	Port    int // separate metrics listener; 0 serves on the main port
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	CleanupMinutes int
}

// SecurityConfig holds security filter settings
type SecurityConfig struct {
	FilterEnabled bool
	MaxBodySizeMB int
}

// ProxyConfig holds trusted proxy settings for X-Forwarded-For handling
type ProxyConfig struct {
	TrustProxy     bool
	TrustedProxies []string // CIDR notation
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvInt("PORT", 8402),
			Host:         getEnv("HOST", "0.0.0.0"),
			ReadTimeout:  getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout: getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:  getEnvInt("SERVER_IDLE_TIMEOUT", 120),
		},
		Auth: AuthConfig{
			APIKey: getEnv("FACILITATOR_API_KEY", ""),
		},
		Chain: ChainConfig{
			NetworksFile:   getEnv("NETWORKS_FILE", ""),
			RelayerKeyFile: getEnv("RELAYER_KEY_FILE", ""),
			RelayerKey:     getEnv("RELAYER_KEY", ""),
		},
		Invoices: InvoicesConfig{
			Type:         getEnv("INVOICE_STORE_TYPE", "sqlite"),
			SQLitePath:   getEnv("SQLITE_PATH", "./data/paygate.db"),
			PostgresURL:  getEnv("DATABASE_URL", ""),
			SweepMinutes: getEnvInt("INVOICE_SWEEP_MINUTES", 5),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Port:    getEnvInt("METRICS_PORT", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 300),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST", 50),
			CleanupMinutes: getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", 10),
		},
		Security: SecurityConfig{
			FilterEnabled: getEnvBool("SECURITY_FILTER_ENABLED", true),
			MaxBodySizeMB: getEnvInt("SECURITY_MAX_BODY_SIZE_MB", 5),
		},
		Proxy: ProxyConfig{
			TrustProxy:     getEnvBool("TRUST_PROXY", false),
			TrustedProxies: getEnvStringSlice("TRUSTED_PROXIES", []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Invoices.PostgresURL != "" && cfg.Invoices.Type == "sqlite" {
		cfg.Invoices.Type = "postgres"
	}

	return cfg, nil
}

// RelayerKeyHex resolves the relayer key from the environment or key file.
// Returns empty when neither is configured (verify-only mode).
func (c *Config) RelayerKeyHex() (string, error) {
	if c.Chain.RelayerKey != "" {
		return strings.TrimSpace(c.Chain.RelayerKey), nil
	}
	if c.Chain.RelayerKeyFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Chain.RelayerKeyFile)
	if err != nil {
		return "", fmt.Errorf("reading relayer key file: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("relayer key file %s is empty", c.Chain.RelayerKeyFile)
	}
	return key, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

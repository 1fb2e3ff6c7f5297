package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Gateway        GatewayConfig
	Fulfillment    FulfillmentConfig
	Reconciliation ReconciliationConfig
	Secrets        SecretsConfig
	Logger         LoggerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Host        string
	MetricsPort int
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// GatewayConfig holds Moneroo payment gateway configuration
type GatewayConfig struct {
	BaseURL string // Base URL for the Moneroo API (e.g., https://api.moneroo.io)
	APIKey  string // Bearer token; may instead be resolved through the secret manager
	Timeout int    // Request timeout in seconds (default: 30)
}

// FulfillmentConfig holds configuration for the external order processing function
type FulfillmentConfig struct {
	Endpoint string // URL of the processing function invoked after payment settles
	Secret   string // HMAC signing secret for fulfillment requests
	Timeout  int    // Request timeout in seconds (default: 30)
}

// ReconciliationConfig holds configuration for the scheduled reconciliation job
type ReconciliationConfig struct {
	StalenessMinutes int    // Minimum order age before reconciliation picks it up
	BatchSize        int    // Maximum orders examined per run
	Schedule         string // Cron expression for scheduled runs
	CronSecret       string // Shared secret required on cron endpoints
	AdminSecret      string // Shared secret required on admin endpoints
}

// SecretsConfig selects and configures the secret manager backend
type SecretsConfig struct {
	// Backend: "aws", "vault", or "local"
	Backend string

	// AWS Secrets Manager
	AWSRegion   string
	AWSEndpoint string

	// HashiCorp Vault
	VaultAddress string
	VaultToken   string

	// Local filesystem store (development)
	LocalPath string

	// Secret path holding the gateway API key; when set, it takes
	// precedence over GatewayConfig.APIKey
	GatewayKeyPath string
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort: getEnvAsInt("METRICS_PORT", 9090),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "marketplace_payments"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		},
		Gateway: GatewayConfig{
			BaseURL: getEnv("MONEROO_BASE_URL", "https://api.moneroo.io"),
			APIKey:  getEnv("MONEROO_API_KEY", ""),
			Timeout: getEnvAsInt("MONEROO_TIMEOUT", 30),
		},
		Fulfillment: FulfillmentConfig{
			Endpoint: getEnv("FULFILLMENT_ENDPOINT", ""),
			Secret:   getEnv("FULFILLMENT_SECRET", ""),
			Timeout:  getEnvAsInt("FULFILLMENT_TIMEOUT", 30),
		},
		Reconciliation: ReconciliationConfig{
			StalenessMinutes: getEnvAsInt("RECON_STALENESS_MINUTES", 60),
			BatchSize:        getEnvAsInt("RECON_BATCH_SIZE", 100),
			Schedule:         getEnv("RECON_SCHEDULE", "*/15 * * * *"),
			CronSecret:       getEnv("CRON_SECRET", ""),
			AdminSecret:      getEnv("ADMIN_SECRET", ""),
		},
		Secrets: SecretsConfig{
			Backend:        getEnv("SECRETS_BACKEND", "local"),
			AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
			AWSEndpoint:    getEnv("AWS_SECRETS_ENDPOINT", ""),
			VaultAddress:   getEnv("VAULT_ADDR", ""),
			VaultToken:     getEnv("VAULT_TOKEN", ""),
			LocalPath:      getEnv("SECRETS_LOCAL_PATH", ".secrets"),
			GatewayKeyPath: getEnv("SECRETS_GATEWAY_KEY_PATH", ""),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	// Validate required fields
	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.Gateway.APIKey == "" && cfg.Secrets.GatewayKeyPath == "" {
		return nil, fmt.Errorf("MONEROO_API_KEY or SECRETS_GATEWAY_KEY_PATH is required")
	}
	if cfg.Reconciliation.CronSecret == "" {
		return nil, fmt.Errorf("CRON_SECRET is required")
	}
	if cfg.Reconciliation.AdminSecret == "" {
		return nil, fmt.Errorf("ADMIN_SECRET is required")
	}
	if cfg.Reconciliation.StalenessMinutes <= 0 {
		return nil, fmt.Errorf("RECON_STALENESS_MINUTES must be positive")
	}
	if cfg.Reconciliation.BatchSize <= 0 {
		return nil, fmt.Errorf("RECON_BATCH_SIZE must be positive")
	}

	return cfg, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

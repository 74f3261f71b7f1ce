package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultCORSOrigins is used when CORS_ORIGINS is not set
var DefaultCORSOrigins = []string{"http://localhost:5173", "https://ai.gratech.sa"}

// fallbackCORSOrigins is used when CORS_ORIGINS is set but is not a JSON list
var fallbackCORSOrigins = []string{"http://localhost:5173"}

// Config represents the complete application configuration
type Config struct {
	AppName       string
	Version       string
	Environment   string
	Server        ServerConfig
	Database      *DatabaseConfig // Optional: dispatch log store. Nil when DATABASE_URL is unset.
	Audit         AuditConfig
	Auth          AuthConfig
	Providers     ProvidersConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	ConnectionString string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuditConfig sizes the asynchronous dispatch log
type AuditConfig struct {
	BufferSize  int
	WorkerCount int
}

// AuthConfig holds optional bearer-token settings. Auth is off when Secret is empty.
type AuthConfig struct {
	Secret string
	Issuer string
}

// ProvidersConfig holds LLM backend credentials
type ProvidersConfig struct {
	AzureOpenAI AzureOpenAIConfig
	Claude      AzureDeploymentConfig
	DeepSeek    AzureDeploymentConfig
	Gemini      GeminiConfig
	Timeout     time.Duration
}

// AzureOpenAIConfig holds the primary backend settings
type AzureOpenAIConfig struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
}

// AzureDeploymentConfig holds an Azure-hosted deployment family (Claude, DeepSeek)
type AzureDeploymentConfig struct {
	Endpoint string
	APIKey   string
}

// GeminiConfig holds Google Gemini settings
type GeminiConfig struct {
	APIKey  string
	BaseURL string
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getEnv("APP_NAME", "GraTech AI Nexus"),
		Version:     getEnv("APP_VERSION", "2.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 0), // streams may run up to PROVIDER_TIMEOUT
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSOrigins:     ParseCORSOrigins(os.Getenv("CORS_ORIGINS")),
		},
		Database: loadDatabaseConfig(),
		Audit: AuditConfig{
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
			WorkerCount: getEnvAsInt("AUDIT_WORKERS", 2),
		},
		Auth: AuthConfig{
			Secret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer: getEnv("AUTH_JWT_ISSUER", ""),
		},
		Providers: ProvidersConfig{
			AzureOpenAI: AzureOpenAIConfig{
				Endpoint:   getEnv("AZURE_OPENAI_ENDPOINT", ""),
				APIKey:     getEnv("AZURE_OPENAI_KEY", ""),
				Deployment: getEnv("AZURE_OPENAI_DEPLOYMENT", "gpt-4o"),
				APIVersion: getEnv("AZURE_OPENAI_API_VERSION", "2024-02-15-preview"),
			},
			Claude: AzureDeploymentConfig{
				Endpoint: getEnv("AZURE_CLAUDE_ENDPOINT", ""),
				APIKey:   getEnv("AZURE_CLAUDE_KEY", ""),
			},
			DeepSeek: AzureDeploymentConfig{
				Endpoint: getEnv("AZURE_DEEPSEEK_ENDPOINT", ""),
				APIKey:   getEnv("AZURE_DEEPSEEK_KEY", ""),
			},
			Gemini: GeminiConfig{
				APIKey:  getEnv("GEMINI_API_KEY", ""),
				BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			},
			Timeout: getEnvAsDuration("PROVIDER_TIMEOUT", 120*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks server and observability settings.
// Missing backend credentials are not an error; those backends fail when called.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Providers.Timeout <= 0 {
		return fmt.Errorf("provider timeout must be positive")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	switch c.Observability.LogFormat {
	case "json", "console", "text":
	default:
		return fmt.Errorf("log format must be json or console, got %q", c.Observability.LogFormat)
	}

	if c.Database != nil {
		if c.Audit.BufferSize < 1 {
			return fmt.Errorf("audit buffer size must be at least 1")
		}
		if c.Audit.WorkerCount < 1 {
			return fmt.Errorf("audit worker count must be at least 1")
		}
	}

	if c.IsProduction() && c.Auth.Secret != "" && len(c.Auth.Secret) < 32 {
		return fmt.Errorf("auth JWT secret must be at least 32 bytes in production")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// AuthEnabled reports whether bearer tokens are required on the API
func (c *Config) AuthEnabled() bool {
	return c.Auth.Secret != ""
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return c.ConnectionString
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	u, err := url.Parse(c.ConnectionString)
	if err != nil || u.Host == "" {
		return "host=<from DATABASE_URL>"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ParseCORSOrigins reads a JSON list of origins. An unset value yields
// DefaultCORSOrigins; a value that does not parse yields localhost only.
func ParseCORSOrigins(raw string) []string {
	if raw == "" {
		return append([]string(nil), DefaultCORSOrigins...)
	}
	var origins []string
	if err := json.Unmarshal([]byte(raw), &origins); err != nil {
		return append([]string(nil), fallbackCORSOrigins...)
	}
	return origins
}

func loadDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL == "" {
		return nil
	}
	return &DatabaseConfig{
		ConnectionString: dbURL,
		MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8000
}

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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

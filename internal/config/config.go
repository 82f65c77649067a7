// Package config provides environment configuration for the server and CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSOrigins        []string

	// SQL Server settings
	SQLServer       string
	SQLPort         string
	SQLDatabase     string
	SQLUser         string
	SQLPassword     string
	SQLEncrypt      bool
	SQLSchemaFilter string

	// NATS settings
	NATSEnabled  bool
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret     string
	RequiredScope string

	// LLM settings
	LLMProvider     string
	LLMModel        string
	LLMMaxTokens    int
	AnthropicAPIKey string
	OpenAIAPIKey    string

	// Conversation state
	ContextTTL time.Duration
	TurnTTL    time.Duration

	// Context index
	IndexMode      string
	IndexMaxTables int

	// Answer history; empty keeps history in memory
	HistoryPath string

	// Rate limiting
	RateLimitRequests     int
	RateLimitWindow       time.Duration
	UserRateLimitRequests int

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 5*time.Minute),
		CORSOrigins:        getListEnv("CORS_ORIGINS"),

		// SQL Server
		SQLServer:       getEnv("SQL_SERVER", ""),
		SQLPort:         getEnv("SQL_PORT", "1433"),
		SQLDatabase:     getEnv("SQL_DATABASE", ""),
		SQLUser:         getEnv("SQL_USER", ""),
		SQLPassword:     getEnv("SQL_PASSWORD", ""),
		SQLEncrypt:      getBoolEnv("SQL_ENCRYPT", true),
		SQLSchemaFilter: getEnv("SQL_SCHEMA_FILTER", ""),

		// NATS
		NATSEnabled:  getBoolEnv("NATS_ENABLED", false),
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", "development-secret-change-in-production"),
		RequiredScope: getEnv("JWT_REQUIRED_SCOPE", ""),

		// LLM
		LLMProvider:     getEnv("LLM_PROVIDER", "anthropic"),
		LLMModel:        getEnv("LLM_MODEL", ""),
		LLMMaxTokens:    getIntEnv("LLM_MAX_TOKENS", 4096),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),

		// Conversation state
		ContextTTL: getDurationEnv("CONTEXT_TTL", 0),
		TurnTTL:    getDurationEnv("TURN_TTL", 0),

		// Context index
		IndexMode:      getEnv("INDEX_MODE", "all"),
		IndexMaxTables: getIntEnv("INDEX_MAX_TABLES", 10),

		// History
		HistoryPath: getEnv("HISTORY_PATH", ""),

		// Rate limiting
		RateLimitRequests:     getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:       getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		UserRateLimitRequests: getIntEnv("USER_RATE_LIMIT_REQUESTS", 20),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// LLMAPIKey returns the API key of the configured provider.
func (c *Config) LLMAPIKey() string {
	if c.LLMProvider == "openai" {
		return c.OpenAIAPIKey
	}
	return c.AnthropicAPIKey
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	var errs []error
	if c.SQLServer == "" {
		errs = append(errs, errors.New("SQL_SERVER is required"))
	}
	if c.SQLDatabase == "" {
		errs = append(errs, errors.New("SQL_DATABASE is required"))
	}
	switch c.LLMProvider {
	case "anthropic", "openai":
		if c.LLMAPIKey() == "" {
			errs = append(errs, fmt.Errorf("API key for LLM provider %q is required", c.LLMProvider))
		}
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER must be anthropic or openai, got %q", c.LLMProvider))
	}
	if c.IndexMode != "all" && c.IndexMode != "keyword" {
		errs = append(errs, fmt.Errorf("INDEX_MODE must be all or keyword, got %q", c.IndexMode))
	}
	// Conversations must not outlive the turns they point at.
	if c.TurnTTL > 0 && (c.ContextTTL <= 0 || c.ContextTTL > c.TurnTTL) {
		errs = append(errs, fmt.Errorf("CONTEXT_TTL (%s) must be positive and no longer than TURN_TTL (%s)", c.ContextTTL, c.TurnTTL))
	}
	if c.LLMMaxTokens <= 0 {
		errs = append(errs, errors.New("LLM_MAX_TOKENS must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the client.
type Config struct {
	Env       string
	APIURL    string
	SocketURL string
	ConfigDir string
	Platform  string
	LogLevel  string
	Output    string // "text" or "json"

	// Credential persistence
	CredentialStoreURL string // file://, sqlite://, redis://, postgres://
	CredentialKey      string // seals the token at rest in the file store

	PageSize    int
	HTTPTimeout time.Duration // 0 means no timeout beyond the transport default

	// Real-time channel
	ReconnectDelay    time.Duration
	ReconnectAttempts int // 0 means unlimited

	StateAddr  string // local state API listen address
	StateToken string // bearer token required on state API write routes
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	configDir := os.Getenv("BUDDY_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".buddy")
	}

	cfg := &Config{
		Env:                getEnv("BUDDY_ENV", "development"),
		APIURL:             strings.TrimRight(getEnv("BUDDY_API_URL", "https://buddy-chat-backend-ii8g.onrender.com/api/v1"), "/"),
		SocketURL:          strings.TrimRight(getEnv("BUDDY_SOCKET_URL", "https://buddy-chat-backend-ii8g.onrender.com"), "/"),
		ConfigDir:          configDir,
		Platform:           getEnv("PLATFORM", "web"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Output:             getEnv("BUDDY_OUTPUT", "text"),
		CredentialStoreURL: getEnv("CREDENTIAL_STORE_URL", "file://"+filepath.Join(configDir, "credentials.json")),
		CredentialKey:      os.Getenv("CREDENTIAL_KEY"),
		PageSize:           getEnvInt("PAGE_SIZE", 10),
		HTTPTimeout:        getEnvDuration("HTTP_TIMEOUT", 0),
		ReconnectDelay:     getEnvDuration("RECONNECT_DELAY", time.Second),
		ReconnectAttempts:  getEnvInt("RECONNECT_ATTEMPTS", 5),
		StateAddr:          getEnv("STATE_ADDR", "127.0.0.1:8088"),
		StateToken:         os.Getenv("STATE_TOKEN"),
	}

	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}

	// In production, never keep the bearer token in plain text on disk
	if cfg.Env == "production" && strings.HasPrefix(cfg.CredentialStoreURL, "file://") && cfg.CredentialKey == "" {
		panic("CREDENTIAL_KEY is required in production when using the file credential store")
	}

	return cfg
}

// JSONOutput reports whether CLI output should be JSON.
func (c *Config) JSONOutput() bool {
	return c.Output == "json"
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

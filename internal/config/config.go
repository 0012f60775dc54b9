// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendURL     string
	LogLevel        slog.Level
	Store           StoreConfig
	PlayAI          PlayAIConfig
	PlayHT          PlayHTConfig
	MaxUploadBytes  int64
	DocumentTTL     time.Duration
	ReaperInterval  time.Duration
	RateLimit       RateLimitConfig
	GRPCHealthAddr  string
	ConversationLog ConversationLogConfig
}

// StoreConfig selects and configures the agent registry backend.
type StoreConfig struct {
	Driver   string
	DBPath   string
	MongoURI string
	MongoDB  string
}

// PlayAIConfig holds credentials for the hosted agent API.
type PlayAIConfig struct {
	BaseURL string
	APIKey  string
	UserID  string
	Timeout time.Duration
}

// Enabled reports whether agent features can reach the upstream API.
func (c PlayAIConfig) Enabled() bool {
	return c.APIKey != ""
}

// PlayHTConfig holds credentials for the hosted text-to-speech API.
type PlayHTConfig struct {
	URL     string
	APIKey  string
	UserID  string
	Timeout time.Duration
}

// Enabled reports whether narration can reach the upstream API.
func (c PlayHTConfig) Enabled() bool {
	return c.APIKey != ""
}

// RateLimitConfig bounds per-user requests to the paid upstream APIs.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		LogLevel:    getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		Store: StoreConfig{
			Driver:   strings.ToLower(getEnv("STORE_DRIVER", StoreSQLite)),
			DBPath:   getEnv("DB_PATH", "./data/autopdf.db"),
			MongoURI: getEnv("MONGODB_URI", ""),
			MongoDB:  getEnv("MONGODB_DB", "playAI"),
		},
		PlayAI: PlayAIConfig{
			BaseURL: strings.TrimRight(getEnv("PLAY_AI_BASE_URL", "https://api.play.ai"), "/"),
			APIKey:  getEnv("PLAY_AI_API_KEY", ""),
			UserID:  getEnv("PLAY_AI_USER_ID", ""),
			Timeout: getEnvDuration("UPSTREAM_TIMEOUT", 30*time.Second),
		},
		PlayHT: PlayHTConfig{
			URL:     getEnv("PLAYHT_TTS_URL", "https://api.play.ht/api/v2/tts/stream"),
			APIKey:  getEnv("PLAYHT_API_KEY", ""),
			UserID:  getEnv("PLAYHT_USER_ID", ""),
			Timeout: getEnvDuration("NARRATION_TIMEOUT", 2*time.Minute),
		},
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 50<<20)),
		DocumentTTL:    getEnvDuration("DOCUMENT_TTL", 2*time.Hour),
		ReaperInterval: getEnvDuration("DOCUMENT_REAPER_INTERVAL", 5*time.Minute),
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		GRPCHealthAddr: getEnv("GRPC_HEALTH_ADDR", ""),
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.Store.Driver {
	case StoreSQLite:
		if c.Store.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case StoreMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required when STORE_DRIVER=mongo")
		}
		if c.Store.MongoDB == "" {
			return fmt.Errorf("MONGODB_DB cannot be empty")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.PlayAI.BaseURL == "" {
		return fmt.Errorf("PLAY_AI_BASE_URL cannot be empty")
	}
	if c.PlayHT.URL == "" {
		return fmt.Errorf("PLAYHT_TTS_URL cannot be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be > 0")
	}
	if c.DocumentTTL <= 0 || c.ReaperInterval <= 0 {
		return fmt.Errorf("DOCUMENT_TTL and DOCUMENT_REAPER_INTERVAL must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}

// Package config provides application configuration.
//
// Values are resolved in three layers: built-in defaults, an optional TOML
// file, then environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration.
type Config struct {
	Port        string   `toml:"port"`
	FrontendURL string   `toml:"frontend_url"`
	CORSOrigins []string `toml:"cors_origins"`

	Log     LogConfig     `toml:"log"`
	Stories StoriesConfig `toml:"stories"`
	Session SessionConfig `toml:"session"`
	LLM     LLMConfig     `toml:"llm"`
	Geocode GeocodeConfig `toml:"geocode"`
	Trigger TriggerConfig `toml:"trigger"`

	RateLimit       RateLimitConfig       `toml:"rate_limit"`
	ConversationLog ConversationLogConfig `toml:"conversation_log"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"` // empty = stdout only
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// StoriesConfig locates the story corpus files.
type StoriesConfig struct {
	GeocodedPath string `toml:"geocoded_path"`
	AnalyzedPath string `toml:"analyzed_path"`
	DataDir      string `toml:"data_dir"`
}

// SessionConfig selects and bounds the chat session store.
type SessionConfig struct {
	Backend       string        `toml:"backend"` // memory | sqlite | redis
	MaxSessions   int           `toml:"max_sessions"`
	IdleTTL       time.Duration `toml:"idle_ttl"`
	SweepInterval time.Duration `toml:"sweep_interval"`
	DBPath        string        `toml:"db_path"`
	RedisAddr     string        `toml:"redis_addr"`
	RedisPassword string        `toml:"redis_password"`
	RedisDB       int           `toml:"redis_db"`
	// Prompt truncation. Zero means unlimited.
	MaxPromptTurns  int `toml:"max_prompt_turns"`
	MaxPromptTokens int `toml:"max_prompt_tokens"`
}

// LLMConfig configures the language model backend.
type LLMConfig struct {
	Provider    string        `toml:"provider"` // openai | grpc
	BaseURL     string        `toml:"base_url"`
	APIKey      string        `toml:"api_key"`
	Model       string        `toml:"model"`
	GrpcAddr    string        `toml:"grpc_addr"`
	Temperature float32       `toml:"temperature"`
	MaxTokens   int           `toml:"max_tokens"`
	Timeout     time.Duration `toml:"timeout"`
}

// GeocodeConfig configures coordinate lookups for recognized locations.
type GeocodeConfig struct {
	Provider  string        `toml:"provider"` // proxy | photon
	ProxyURL  string        `toml:"proxy_url"`
	PhotonURL string        `toml:"photon_url"`
	RateLimit float64       `toml:"rate_limit"` // requests per second against Photon
	Timeout   time.Duration `toml:"timeout"`
}

// TriggerConfig bounds background location-trigger work.
type TriggerConfig struct {
	Workers int           `toml:"workers"`
	Timeout time.Duration `toml:"timeout"`
}

// RateLimitConfig throttles chat requests per client.
type RateLimitConfig struct {
	RequestsPerWindow int           `toml:"requests_per_window"`
	WindowDuration    time.Duration `toml:"window"`
}

// ConversationLogConfig controls NDJSON transcript logging.
type ConversationLogConfig struct {
	Enabled   bool   `toml:"enabled"`
	Dir       string `toml:"dir"`
	QueueSize int    `toml:"queue_size"`
}

// Defaults returns a Config populated with built-in default values.
func Defaults() *Config {
	return &Config{
		Port:        "3001",
		FrontendURL: "http://localhost:5173",
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Stories: StoriesConfig{
			GeocodedPath: "./geocoded_stories.json",
			AnalyzedPath: "./analyzed_stories.json",
			DataDir:      "./data",
		},
		Session: SessionConfig{
			Backend:       "memory",
			MaxSessions:   10000,
			IdleTTL:       24 * time.Hour,
			SweepInterval: 5 * time.Minute,
			DBPath:        "./data/sessions.db",
			RedisAddr:     "localhost:6379",
		},
		LLM: LLMConfig{
			Provider:    "openai",
			BaseURL:     "http://localhost:1234/v1",
			Model:       "local-model",
			GrpcAddr:    "localhost:5002",
			Temperature: 0.7,
			MaxTokens:   150,
			Timeout:     60 * time.Second,
		},
		Geocode: GeocodeConfig{
			Provider:  "proxy",
			ProxyURL:  "http://localhost:5001/geocode",
			PhotonURL: "http://127.0.0.1:2322",
			RateLimit: 5,
			Timeout:   10 * time.Second,
		},
		Trigger: TriggerConfig{
			Workers: 8,
			Timeout: 15 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: 30,
			WindowDuration:    time.Minute,
		},
		ConversationLog: ConversationLogConfig{
			Enabled:   false,
			Dir:       "./data/logs/conversations",
			QueueSize: 1000,
		},
	}
}

// Load builds the configuration from defaults, the TOML file at path (if it
// exists) and environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("decode config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.FrontendURL = getEnv("FRONTEND_URL", c.FrontendURL)
	if origins := getEnv("CORS_ORIGINS", ""); origins != "" {
		c.CORSOrigins = splitList(origins)
	}

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)

	c.Stories.GeocodedPath = getEnv("GEOCODED_STORIES_PATH", c.Stories.GeocodedPath)
	c.Stories.AnalyzedPath = getEnv("ANALYZED_STORIES_PATH", c.Stories.AnalyzedPath)
	c.Stories.DataDir = getEnv("STORIES_DATA_DIR", c.Stories.DataDir)

	c.Session.Backend = getEnv("SESSION_STORE", c.Session.Backend)
	c.Session.MaxSessions = getEnvInt("SESSION_MAX", c.Session.MaxSessions)
	c.Session.IdleTTL = getEnvDuration("SESSION_IDLE_TTL", c.Session.IdleTTL)
	c.Session.SweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", c.Session.SweepInterval)
	c.Session.DBPath = getEnv("SESSION_DB_PATH", c.Session.DBPath)
	c.Session.RedisAddr = getEnv("REDIS_ADDR", c.Session.RedisAddr)
	c.Session.RedisPassword = getEnv("REDIS_PASSWORD", c.Session.RedisPassword)
	c.Session.RedisDB = getEnvInt("REDIS_DB", c.Session.RedisDB)
	c.Session.MaxPromptTurns = getEnvInt("MAX_PROMPT_TURNS", c.Session.MaxPromptTurns)
	c.Session.MaxPromptTokens = getEnvInt("MAX_PROMPT_TOKENS", c.Session.MaxPromptTokens)

	c.LLM.Provider = getEnv("LLM_PROVIDER", c.LLM.Provider)
	c.LLM.BaseURL = getEnv("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.APIKey = getEnv("LLM_API_KEY", c.LLM.APIKey)
	c.LLM.Model = getEnv("LLM_MODEL", getEnv("MODEL", c.LLM.Model))
	c.LLM.GrpcAddr = getEnv("LLM_GRPC_ADDR", c.LLM.GrpcAddr)
	c.LLM.MaxTokens = getEnvInt("LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.Timeout = getEnvDuration("LLM_TIMEOUT", c.LLM.Timeout)

	c.Geocode.Provider = getEnv("GEOCODE_PROVIDER", c.Geocode.Provider)
	c.Geocode.ProxyURL = getEnv("GEOCODE_PROXY_URL", c.Geocode.ProxyURL)
	c.Geocode.PhotonURL = getEnv("PHOTON_URL", c.Geocode.PhotonURL)
	c.Geocode.Timeout = getEnvDuration("GEOCODE_TIMEOUT", c.Geocode.Timeout)

	c.Trigger.Workers = getEnvInt("TRIGGER_WORKERS", c.Trigger.Workers)
	c.Trigger.Timeout = getEnvDuration("TRIGGER_TIMEOUT", c.Trigger.Timeout)

	c.RateLimit.RequestsPerWindow = getEnvInt("CHAT_RATE_LIMIT", c.RateLimit.RequestsPerWindow)
	c.RateLimit.WindowDuration = getEnvDuration("CHAT_RATE_WINDOW", c.RateLimit.WindowDuration)

	c.ConversationLog.Enabled = getEnvBool("CONVERSATION_LOG_ENABLED", c.ConversationLog.Enabled)
	c.ConversationLog.Dir = getEnv("CONVERSATION_LOG_DIR", c.ConversationLog.Dir)
	c.ConversationLog.QueueSize = getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", c.ConversationLog.QueueSize)
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.Session.Backend {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("SESSION_STORE must be one of memory, sqlite, redis (got %q)", c.Session.Backend)
	}
	if c.Session.Backend == "sqlite" && c.Session.DBPath == "" {
		return fmt.Errorf("SESSION_DB_PATH cannot be empty")
	}
	if c.Session.IdleTTL <= 0 {
		return fmt.Errorf("SESSION_IDLE_TTL must be > 0")
	}
	if c.Session.MaxPromptTurns < 0 || c.Session.MaxPromptTokens < 0 {
		return fmt.Errorf("prompt truncation limits must be >= 0")
	}
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.BaseURL == "" {
			return fmt.Errorf("LLM_BASE_URL cannot be empty")
		}
	case "grpc":
		if c.LLM.GrpcAddr == "" {
			return fmt.Errorf("LLM_GRPC_ADDR cannot be empty")
		}
	default:
		return fmt.Errorf("LLM_PROVIDER must be openai or grpc (got %q)", c.LLM.Provider)
	}
	switch c.Geocode.Provider {
	case "proxy", "photon":
	default:
		return fmt.Errorf("GEOCODE_PROVIDER must be proxy or photon (got %q)", c.Geocode.Provider)
	}
	if c.Trigger.Workers <= 0 {
		return fmt.Errorf("TRIGGER_WORKERS must be > 0")
	}
	if c.RateLimit.RequestsPerWindow < 0 {
		return fmt.Errorf("CHAT_RATE_LIMIT must be >= 0")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins, falling back to the frontend URL
// and to a wildcard in development.
func (c *Config) AllowedOrigins() []string {
	if len(c.CORSOrigins) > 0 {
		return c.CORSOrigins
	}
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
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

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Package config provides configuration management for logwardend.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the ingestion service.
type Config struct {
	// Storage
	StorageURL string `json:"storage_url"` // connection string for a future real document store
	StorageDB  string `json:"storage_db"`

	// HTTP server
	BindAddr string `json:"bind_addr"`

	// Upload handling
	UploadDir     string `json:"upload_dir"`
	MaxUploadSize int64  `json:"max_upload_size"` // bytes

	// Template miner
	MinerDepth       int     `json:"miner_depth"`
	MinerSimThresh   float64 `json:"miner_sim_threshold"`
	MinerMaxChildren int     `json:"miner_max_children"`
	MinerMaxClusters int     `json:"miner_max_clusters"`
	MinerQueueSize   int     `json:"miner_queue_size"`

	// Anomaly detection
	DetectInterval time.Duration `json:"detect_interval"`
	DetectWindow   time.Duration `json:"detect_window"`

	// Clock/skew
	MaxEventSkew time.Duration `json:"max_event_skew"`

	// Rate limiting
	RateLimit       int  `json:"rate_limit"`
	RateLimitBurst  int  `json:"rate_limit_burst"`
	EnableRateLimit bool `json:"enable_rate_limit"`

	// Observability
	EnableTracing   bool `json:"enable_tracing"`
	EnableAuditLog  bool `json:"enable_audit_log"`
	MetricsEndpoint bool `json:"metrics_endpoint"`

	// Health & Metrics HTTP Server
	HealthPort      int           `json:"health_port"`
	HealthBindAddr  string        `json:"health_bind_addr"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	// Logging
	LogLevel    string `json:"log_level"`
	LogFormat   string `json:"log_format"`
	Environment string `json:"environment"`
}

// Load builds a Config from .env (if present), then environment
// variables, which always take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional; absence is not an error

	cfg := &Config{
		StorageURL: "memory://local",
		StorageDB:  "logwarden",

		BindAddr: ":8088",

		UploadDir:     "./data/uploads",
		MaxUploadSize: 100 * 1024 * 1024,

		MinerDepth:       4,
		MinerSimThresh:   0.4,
		MinerMaxChildren: 100,
		MinerMaxClusters: 1000,
		MinerQueueSize:   4096,

		DetectInterval: 5 * time.Minute,
		DetectWindow:   24 * time.Hour,

		MaxEventSkew: 5 * time.Minute,

		RateLimit:       200,
		RateLimitBurst:  50,
		EnableRateLimit: true,

		EnableTracing:   true,
		EnableAuditLog:  true,
		MetricsEndpoint: true,

		HealthPort:      8080,
		HealthBindAddr:  "127.0.0.1",
		ShutdownTimeout: 30 * time.Second,

		LogLevel:    "info",
		LogFormat:   "json",
		Environment: "development",
	}

	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("invalid file path: path traversal detected")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 -- path is validated above
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return json.Unmarshal(data, cfg)
}

func loadFromEnv(cfg *Config) {
	loadStringEnvs(cfg)
	loadDurationEnvs(cfg)
	loadIntEnvs(cfg)
	loadFloatEnvs(cfg)
	loadBoolEnvs(cfg)
}

func loadStringEnvs(cfg *Config) {
	if v := os.Getenv("LOGWARDEN_STORAGE_URL"); v != "" {
		cfg.StorageURL = v
	}
	if v := os.Getenv("LOGWARDEN_STORAGE_DB"); v != "" {
		cfg.StorageDB = v
	}
	if v := os.Getenv("LOGWARDEN_BIND_ADDR"); v != "" {
		cfg.BindAddr = v
	}
	if v := os.Getenv("LOGWARDEN_UPLOAD_DIR"); v != "" {
		cfg.UploadDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("LOGWARDEN_HEALTH_BIND_ADDR"); v != "" {
		cfg.HealthBindAddr = v
	}
}

func loadDurationEnvs(cfg *Config) {
	setDuration := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	setDuration("LOGWARDEN_DETECT_INTERVAL", &cfg.DetectInterval)
	setDuration("LOGWARDEN_DETECT_WINDOW", &cfg.DetectWindow)
	setDuration("LOGWARDEN_MAX_EVENT_SKEW", &cfg.MaxEventSkew)
	setDuration("LOGWARDEN_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)
}

func loadIntEnvs(cfg *Config) {
	setInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			var n int
			if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
				*dst = n
			}
		}
	}
	setInt("LOGWARDEN_MINER_DEPTH", &cfg.MinerDepth)
	setInt("LOGWARDEN_MINER_MAX_CHILDREN", &cfg.MinerMaxChildren)
	setInt("LOGWARDEN_MINER_MAX_CLUSTERS", &cfg.MinerMaxClusters)
	setInt("LOGWARDEN_MINER_QUEUE_SIZE", &cfg.MinerQueueSize)
	setInt("LOGWARDEN_RATE_LIMIT", &cfg.RateLimit)
	setInt("LOGWARDEN_RATE_LIMIT_BURST", &cfg.RateLimitBurst)
	setInt("LOGWARDEN_HEALTH_PORT", &cfg.HealthPort)

	if v := os.Getenv("LOGWARDEN_MAX_UPLOAD_SIZE"); v != "" {
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			cfg.MaxUploadSize = n
		}
	}
}

func loadFloatEnvs(cfg *Config) {
	if v := os.Getenv("LOGWARDEN_MINER_SIM_THRESHOLD"); v != "" {
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			cfg.MinerSimThresh = f
		}
	}
}

func loadBoolEnvs(cfg *Config) {
	if v := os.Getenv("LOGWARDEN_ENABLE_RATE_LIMIT"); v != "" {
		cfg.EnableRateLimit = v == "true" || v == "1"
	}
	if v := os.Getenv("LOGWARDEN_ENABLE_TRACING"); v != "" {
		cfg.EnableTracing = v == "true" || v == "1"
	}
	if v := os.Getenv("LOGWARDEN_ENABLE_AUDIT_LOG"); v != "" {
		cfg.EnableAuditLog = v == "true" || v == "1"
	}
	if v := os.Getenv("LOGWARDEN_METRICS_ENDPOINT"); v != "" {
		cfg.MetricsEndpoint = v == "true" || v == "1"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.BindAddr == "" {
		return errors.New("bind_addr is required")
	}
	if c.MinerDepth < 2 {
		return errors.New("miner_depth must be at least 2")
	}
	if c.MinerSimThresh <= 0 || c.MinerSimThresh > 1 {
		return errors.New("miner_sim_threshold must be in (0, 1]")
	}
	if c.RateLimit <= 0 && c.EnableRateLimit {
		return errors.New("rate_limit must be positive when rate limiting is enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	return nil
}

// Redact returns a copy of the config with sensitive fields masked. There
// is currently no secret field on Config, but handlers and logs should go
// through Redact rather than assuming that stays true.
func (c *Config) Redact() *Config {
	redacted := *c
	return &redacted
}

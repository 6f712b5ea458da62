package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/pv"
)

// Config represents the history server configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Recorder  RecorderConfig   `yaml:"recorder"`
	Logging   LoggingConfig    `yaml:"logging"`
	Variables []VariableConfig `yaml:"variables"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Addr            string  `yaml:"addr"`
	IngestRateLimit float64 `yaml:"ingest_rate_limit"`
	IngestBurst     int     `yaml:"ingest_burst"`
}

// RecorderConfig represents the history recorder configuration
type RecorderConfig struct {
	HistoryLength    int    `yaml:"history_length"`
	HistoryTag       string `yaml:"history_tag"`
	EnableTimeStamps bool   `yaml:"enable_timestamps"`
	Prefix           string `yaml:"prefix"`
	ModuleName       string `yaml:"module_name"`
}

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// VariableConfig describes one input process variable the standalone
// server creates in its PV graph at startup.
type VariableConfig struct {
	Path     string   `yaml:"path"`
	Type     string   `yaml:"type"`
	Elements int      `yaml:"elements"`
	Tags     []string `yaml:"tags"`
}

// Load loads the configuration from environment variables and defaults
func Load() (*Config, error) {
	return loadWithDefaults("")
}

// LoadFromFile loads configuration from a YAML file, with environment
// variable overrides
func LoadFromFile(configPath string) (*Config, error) {
	return loadWithDefaults(configPath)
}

func loadWithDefaults(configPath string) (*Config, error) {
	cfg := defaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            "0.0.0.0:8080",
			IngestRateLimit: 100,
			IngestBurst:     50,
		},
		Recorder: RecorderConfig{
			HistoryLength:    1200,
			HistoryTag:       "history",
			EnableTimeStamps: false,
			Prefix:           "History",
			ModuleName:       "ServerHistory",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// applyEnvOverrides lets HIST_* environment variables take precedence over
// file values and defaults.
func applyEnvOverrides(cfg *Config) {
	if v := getEnv("HIST_SERVER_ADDR", ""); v != "" {
		cfg.Server.Addr = v
	}
	if v := getEnv("PORT", ""); v != "" {
		cfg.Server.Addr = "0.0.0.0:" + v
	}
	cfg.Server.IngestRateLimit = getEnvFloat("HIST_INGEST_RATE_LIMIT", cfg.Server.IngestRateLimit)
	cfg.Server.IngestBurst = getEnvInt("HIST_INGEST_BURST", cfg.Server.IngestBurst)
	cfg.Recorder.HistoryLength = getEnvInt("HIST_HISTORY_LENGTH", cfg.Recorder.HistoryLength)
	if v := getEnv("HIST_HISTORY_TAG", ""); v != "" {
		cfg.Recorder.HistoryTag = v
	}
	cfg.Recorder.EnableTimeStamps = getEnvBool("HIST_ENABLE_TIMESTAMPS", cfg.Recorder.EnableTimeStamps)
	if v := getEnv("HIST_PREFIX", ""); v != "" {
		cfg.Recorder.Prefix = v
	}
	if v := getEnv("HIST_MODULE_NAME", ""); v != "" {
		cfg.Recorder.ModuleName = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		cfg.Logging.Level = v
	}
	if v := getEnv("LOG_FORMAT", ""); v != "" {
		cfg.Logging.Format = v
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.Server.IngestRateLimit <= 0 {
		return fmt.Errorf("ingest rate limit must be positive")
	}
	if c.Server.IngestBurst < 1 {
		return fmt.Errorf("ingest burst must be at least 1")
	}
	if c.Recorder.HistoryLength < 1 {
		return fmt.Errorf("history length must be at least 1")
	}
	if c.Recorder.HistoryTag == "" {
		return fmt.Errorf("history tag cannot be empty")
	}
	if c.Recorder.Prefix == "" {
		return fmt.Errorf("prefix cannot be empty")
	}
	if c.Recorder.ModuleName == "" {
		return fmt.Errorf("module name cannot be empty")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of 'debug', 'info', 'warn', 'error'")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("log format must be 'json' or 'console'")
	}
	seen := make(map[string]struct{}, len(c.Variables))
	for i, v := range c.Variables {
		if !strings.HasPrefix(v.Path, "/") {
			return fmt.Errorf("variable %d: path %q must be absolute", i, v.Path)
		}
		if _, dup := seen[v.Path]; dup {
			return fmt.Errorf("variable %d: duplicate path %q", i, v.Path)
		}
		seen[v.Path] = struct{}{}
		if _, err := pv.ParseValueType(v.Type); err != nil {
			return fmt.Errorf("variable %q: %w", v.Path, err)
		}
		if v.Elements < 1 {
			return fmt.Errorf("variable %q: elements must be at least 1", v.Path)
		}
	}
	return nil
}

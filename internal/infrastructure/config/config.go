package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"4000" yaml:"port" toml:"port"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0" yaml:"host" toml:"host"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	CORSOrigins     []string      `envconfig:"CORS_ORIGINS" default:"*" yaml:"cors_origins" toml:"cors_origins"`
}

// StorageConfig holds the storage root and transfer settings.
type StorageConfig struct {
	Root       string `envconfig:"STORAGE_ROOT" default:"uploads" yaml:"root" toml:"root"`
	ScratchDir string `envconfig:"STORAGE_SCRATCH_DIR" default:".scratch" yaml:"scratch_dir" toml:"scratch_dir"`
	// MaxUploadBytes caps request bodies for uploads; 0 disables the cap.
	MaxUploadBytes int64 `envconfig:"STORAGE_MAX_UPLOAD_BYTES" default:"1073741824" yaml:"max_upload_bytes" toml:"max_upload_bytes"`
	// MaxExtractBytes caps the bytes one archive may expand to; 0 disables the cap.
	MaxExtractBytes  int64  `envconfig:"STORAGE_MAX_EXTRACT_BYTES" default:"4294967296" yaml:"max_extract_bytes" toml:"max_extract_bytes"`
	ArchiveFormat    string `envconfig:"STORAGE_ARCHIVE_FORMAT" default:"zip" yaml:"archive_format" toml:"archive_format"`
	CompressionLevel int    `envconfig:"STORAGE_COMPRESSION_LEVEL" default:"1" yaml:"compression_level" toml:"compression_level"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development" toml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled" toml:"enabled"`
	// Global shares one bucket across all clients instead of one per IP.
	Global bool `envconfig:"RATE_LIMIT_GLOBAL" default:"false" yaml:"global" toml:"global"`
}

var (
	validFormats = map[string]bool{"zip": true, "tar": true, "tar.gz": true, "tar.zst": true}
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile loads a YAML or TOML file on top of the defaults, then applies
// environment variables, which win over the file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse yaml config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse toml config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file type: %s", path)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envOverlays copies a single field from the env-loaded config into the
// file-loaded one.
var envOverlays = map[string]func(dst, src *Config){
	"PORT":                      func(d, s *Config) { d.Server.Port = s.Server.Port },
	"HOST":                      func(d, s *Config) { d.Server.Host = s.Server.Host },
	"SHUTDOWN_TIMEOUT":          func(d, s *Config) { d.Server.ShutdownTimeout = s.Server.ShutdownTimeout },
	"CORS_ORIGINS":              func(d, s *Config) { d.Server.CORSOrigins = s.Server.CORSOrigins },
	"STORAGE_ROOT":              func(d, s *Config) { d.Storage.Root = s.Storage.Root },
	"STORAGE_SCRATCH_DIR":       func(d, s *Config) { d.Storage.ScratchDir = s.Storage.ScratchDir },
	"STORAGE_MAX_UPLOAD_BYTES":  func(d, s *Config) { d.Storage.MaxUploadBytes = s.Storage.MaxUploadBytes },
	"STORAGE_MAX_EXTRACT_BYTES": func(d, s *Config) { d.Storage.MaxExtractBytes = s.Storage.MaxExtractBytes },
	"STORAGE_ARCHIVE_FORMAT":    func(d, s *Config) { d.Storage.ArchiveFormat = s.Storage.ArchiveFormat },
	"STORAGE_COMPRESSION_LEVEL": func(d, s *Config) { d.Storage.CompressionLevel = s.Storage.CompressionLevel },
	"LOG_LEVEL":                 func(d, s *Config) { d.Logging.Level = s.Logging.Level },
	"LOG_DEV":                   func(d, s *Config) { d.Logging.Development = s.Logging.Development },
	"RATE_LIMIT_RPS":            func(d, s *Config) { d.RateLimit.RequestsPerSecond = s.RateLimit.RequestsPerSecond },
	"RATE_LIMIT_BURST":          func(d, s *Config) { d.RateLimit.Burst = s.RateLimit.Burst },
	"RATE_LIMIT_ENABLED":        func(d, s *Config) { d.RateLimit.Enabled = s.RateLimit.Enabled },
	"RATE_LIMIT_GLOBAL":         func(d, s *Config) { d.RateLimit.Global = s.RateLimit.Global },
}

// applyEnv overlays only the variables that are actually set, so file values
// are not reset to envconfig defaults.
func applyEnv(cfg *Config) error {
	var env Config
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	for key, overlay := range envOverlays {
		if _, ok := os.LookupEnv(key); ok {
			overlay(cfg, &env)
		}
	}
	return nil
}

// Validate checks values that envconfig cannot express.
func (c *Config) Validate() error {
	if c.Storage.Root == "" {
		return fmt.Errorf("storage root must not be empty")
	}
	scratch := c.Storage.ScratchDir
	if scratch == "" || scratch == "." || scratch == ".." || strings.ContainsAny(scratch, `/\`) {
		return fmt.Errorf("scratch dir must be a single path segment, got %q", scratch)
	}
	if !validFormats[c.Storage.ArchiveFormat] {
		return fmt.Errorf("unsupported archive format %q", c.Storage.ArchiveFormat)
	}
	if c.Storage.CompressionLevel < 0 || c.Storage.CompressionLevel > 9 {
		return fmt.Errorf("compression level must be between 0 and 9, got %d", c.Storage.CompressionLevel)
	}
	if len(c.Server.CORSOrigins) == 0 {
		return fmt.Errorf("at least one cors origin is required")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit needs positive rps and burst, got %d/%d", c.RateLimit.RequestsPerSecond, c.RateLimit.Burst)
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("unsupported log level %q", c.Logging.Level)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "4000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Storage: StorageConfig{
			Root:             "uploads",
			ScratchDir:       ".scratch",
			MaxUploadBytes:   1 << 30,
			MaxExtractBytes:  4 << 30,
			ArchiveFormat:    "zip",
			CompressionLevel: 1,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

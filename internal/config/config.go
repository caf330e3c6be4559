// Package config loads runtime configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then a .env
// file, then KUAPA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/kuapa/kuapa/backend/internal/errors"
	"github.com/kuapa/kuapa/backend/internal/logging"
	"github.com/kuapa/kuapa/backend/internal/parser/media"
	"github.com/kuapa/kuapa/backend/internal/scans"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KUAPA_"

// Config is the runtime configuration.
type Config struct {
	DataDir    string          `yaml:"data_dir"`
	LogLevel   string          `yaml:"log_level"`
	ListenAddr string          `yaml:"listen_addr"`
	Telemetry  bool            `yaml:"telemetry"`
	History    HistoryConfig   `yaml:"history"`
	Sync       SyncConfig      `yaml:"sync"`
	Image      ImageConfig     `yaml:"image"`
	Detection  DetectionConfig `yaml:"detection"`
}

// HistoryConfig bounds the scan history.
type HistoryConfig struct {
	MaxRecords int `yaml:"max_records"`
}

// SyncConfig configures pending-scan retries.
type SyncConfig struct {
	SyncingGrace  time.Duration `yaml:"syncing_grace"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// ImageConfig configures the capture pipeline.
type ImageConfig struct {
	media.Constraints `yaml:",inline"`
	ThumbnailSize     int `yaml:"thumbnail_size"`
}

// DetectionConfig selects and configures the detector.
type DetectionConfig struct {
	// Endpoint is the remote detection URL. Empty, or Mock set, selects the
	// simulated detector.
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	Mock     bool          `yaml:"mock"`

	// MockLatency caps the simulated detector's processing time. Zero keeps its
	// built-in range.
	MockLatency time.Duration `yaml:"mock_latency"`
}

// UseMock reports whether the simulated detector should be used.
func (d DetectionConfig) UseMock() bool {
	return d.Mock || d.Endpoint == ""
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:    "./data",
		LogLevel:   "info",
		ListenAddr: "127.0.0.1:8090",
		History:    HistoryConfig{MaxRecords: scans.MaxHistory},
		Sync: SyncConfig{
			SyncingGrace:  2 * time.Minute,
			RetryInterval: time.Minute,
		},
		Image: ImageConfig{
			Constraints:   media.DefaultConstraints(),
			ThumbnailSize: 200,
		},
		Detection: DetectionConfig{
			Timeout: 30 * time.Second,
		},
	}
}

// Load builds the configuration. yamlPath and envPath may be empty; a named file
// that does not exist is skipped.
func Load(yamlPath, envPath string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		if err := cfg.loadYAML(yamlPath); err != nil {
			return nil, err
		}
	}

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, fmt.Sprintf("failed to load %s", envPath), err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logging.Debug("config file not found, using defaults", map[string]interface{}{"path": path})
		return nil
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, fmt.Sprintf("failed to read %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, fmt.Sprintf("failed to parse %s", path), err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

// applyEnv overrides fields from KUAPA_* variables.
func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []string

	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, EnvPrefix+name)
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, EnvPrefix+name)
				return
			}
			*dst = d
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, EnvPrefix+name)
				return
			}
			*dst = b
		}
	}

	str("DATA_DIR", &c.DataDir)
	str("LOG_LEVEL", &c.LogLevel)
	str("LISTEN_ADDR", &c.ListenAddr)
	flag("TELEMETRY", &c.Telemetry)
	num("MAX_HISTORY", &c.History.MaxRecords)
	dur("SYNCING_GRACE", &c.Sync.SyncingGrace)
	dur("RETRY_INTERVAL", &c.Sync.RetryInterval)
	num("IMAGE_MAX_WIDTH", &c.Image.MaxWidth)
	num("IMAGE_MAX_HEIGHT", &c.Image.MaxHeight)
	num("IMAGE_QUALITY", &c.Image.Quality)
	if v, ok := lookup(EnvPrefix + "IMAGE_FORMAT"); ok {
		c.Image.Format = media.Format(strings.ToLower(strings.TrimSpace(v)))
	}
	num("THUMBNAIL_SIZE", &c.Image.ThumbnailSize)
	str("DETECTION_ENDPOINT", &c.Detection.Endpoint)
	dur("DETECTION_TIMEOUT", &c.Detection.Timeout)
	flag("DETECTION_MOCK", &c.Detection.Mock)
	dur("DETECTION_MOCK_LATENCY", &c.Detection.MockLatency)

	if len(errs) > 0 {
		return apperrors.New(apperrors.ErrInvalid, "invalid environment values: "+strings.Join(errs, ", "))
	}
	return nil
}

// Validate rejects values the stores and pipeline cannot work with.
func (c *Config) Validate() error {
	var problems []string
	if c.DataDir == "" {
		problems = append(problems, "data_dir is empty")
	}
	if c.History.MaxRecords <= 0 {
		problems = append(problems, "history.max_records must be positive")
	}
	if c.Sync.SyncingGrace <= 0 {
		problems = append(problems, "sync.syncing_grace must be positive")
	}
	if c.Sync.RetryInterval < 0 {
		problems = append(problems, "sync.retry_interval must not be negative")
	}
	if c.Image.MaxWidth <= 0 || c.Image.MaxHeight <= 0 {
		problems = append(problems, "image bounds must be positive")
	}
	if c.Image.Quality < 1 || c.Image.Quality > 100 {
		problems = append(problems, "image.quality must be within 1..100")
	}
	if c.Image.Format != media.FormatJPEG && c.Image.Format != media.FormatPNG {
		problems = append(problems, fmt.Sprintf("image.format %q is not jpeg or png", c.Image.Format))
	}
	if c.Image.ThumbnailSize <= 0 {
		problems = append(problems, "image.thumbnail_size must be positive")
	}
	if !c.Detection.UseMock() && c.Detection.Timeout <= 0 {
		problems = append(problems, "detection.timeout must be positive")
	}
	if len(problems) > 0 {
		return apperrors.New(apperrors.ErrInvalid, "invalid configuration: "+strings.Join(problems, "; "))
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() logging.LogLevel {
	return logging.ParseLevel(c.LogLevel)
}

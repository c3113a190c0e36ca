// Package config provides configuration management for the Visionaree server.
// Configuration is loaded from VISIONAREE_* environment variables with
// sensible defaults.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "visionaree"

// DBFilename is the SQLite database filename inside DataDir.
const DBFilename = "visionaree.db"

type Config struct {
	Port     int    `envconfig:"PORT" default:"8787"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	DataDir  string `envconfig:"DATA_DIR" default:".visionaree"`

	// Object storage (S3-compatible).
	S3Endpoint  string `envconfig:"S3_ENDPOINT" default:"localhost:9000"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"visionaree"`
	S3UseSSL    bool   `envconfig:"S3_USE_SSL" default:"false"`

	// Vision-language model endpoint (OpenAI-compatible).
	ModelBaseURL string `envconfig:"MODEL_BASE_URL"`
	ModelAPIKey  string `envconfig:"MODEL_API_KEY"`
	ModelID      string `envconfig:"MODEL_ID" default:"gpt-4o-mini"`

	// Ingestion pipeline.
	SegmentSeconds    float64       `envconfig:"SEGMENT_SECONDS" default:"5"`
	MinSegmentSeconds float64       `envconfig:"MIN_SEGMENT_SECONDS" default:"0.5"`
	CaptionWorkers    int           `envconfig:"CAPTION_WORKERS" default:"4"`
	CaptionTimeout    time.Duration `envconfig:"CAPTION_TIMEOUT" default:"60s"`
	CaptionRetries    int           `envconfig:"CAPTION_RETRIES" default:"2"`

	PresignExpiry time.Duration `envconfig:"PRESIGN_EXPIRY" default:"1h"`
}

// New loads configuration from the environment and validates it.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid VISIONAREE_PORT: port must be between 1 and 65535")
	}
	if c.SegmentSeconds <= 0 {
		return fmt.Errorf("invalid VISIONAREE_SEGMENT_SECONDS: must be positive")
	}
	if c.MinSegmentSeconds < 0 || c.MinSegmentSeconds >= c.SegmentSeconds {
		return fmt.Errorf("invalid VISIONAREE_MIN_SEGMENT_SECONDS: must be in [0, segment length)")
	}
	if c.CaptionWorkers < 1 {
		return fmt.Errorf("invalid VISIONAREE_CAPTION_WORKERS: must be at least 1")
	}
	if c.CaptionRetries < 0 {
		return fmt.Errorf("invalid VISIONAREE_CAPTION_RETRIES: must not be negative")
	}
	return nil
}

// DBPath returns the full path to the SQLite database file.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, DBFilename)
}

// WorkDir returns the scratch directory used for downloaded videos and
// segment files during ingestion.
func (c *Config) WorkDir() string {
	return filepath.Join(c.DataDir, "work")
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

package config

import (
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	cfg, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if cfg.Port != 8787 {
		t.Errorf("Port = %d, want 8787", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.SegmentSeconds != 5 {
		t.Errorf("SegmentSeconds = %v, want 5", cfg.SegmentSeconds)
	}
	if cfg.CaptionWorkers != 4 {
		t.Errorf("CaptionWorkers = %d, want 4", cfg.CaptionWorkers)
	}
	if cfg.CaptionTimeout != 60*time.Second {
		t.Errorf("CaptionTimeout = %v, want 60s", cfg.CaptionTimeout)
	}
	if cfg.CaptionRetries != 2 {
		t.Errorf("CaptionRetries = %d, want 2", cfg.CaptionRetries)
	}
	if cfg.PresignExpiry != time.Hour {
		t.Errorf("PresignExpiry = %v, want 1h", cfg.PresignExpiry)
	}
}

func TestNewEnvOverrides(t *testing.T) {
	t.Setenv("VISIONAREE_PORT", "9090")
	t.Setenv("VISIONAREE_LOG_LEVEL", "debug")
	t.Setenv("VISIONAREE_CAPTION_WORKERS", "2")
	t.Setenv("VISIONAREE_CAPTION_TIMEOUT", "30s")
	t.Setenv("VISIONAREE_S3_BUCKET", "uploads")

	cfg, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.CaptionWorkers != 2 {
		t.Errorf("CaptionWorkers = %d, want 2", cfg.CaptionWorkers)
	}
	if cfg.CaptionTimeout != 30*time.Second {
		t.Errorf("CaptionTimeout = %v, want 30s", cfg.CaptionTimeout)
	}
	if cfg.S3Bucket != "uploads" {
		t.Errorf("S3Bucket = %q, want uploads", cfg.S3Bucket)
	}
}

func TestNewRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port too high", "VISIONAREE_PORT", "70000"},
		{"port zero", "VISIONAREE_PORT", "0"},
		{"zero segment length", "VISIONAREE_SEGMENT_SECONDS", "0"},
		{"zero workers", "VISIONAREE_CAPTION_WORKERS", "0"},
		{"negative retries", "VISIONAREE_CAPTION_RETRIES", "-1"},
		{"min segment above window", "VISIONAREE_MIN_SEGMENT_SECONDS", "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := New(); err == nil {
				t.Errorf("New accepted %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestDBPath(t *testing.T) {
	t.Setenv("VISIONAREE_DATA_DIR", "/tmp/visionaree-test")
	cfg, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cfg.DBPath() != "/tmp/visionaree-test/visionaree.db" {
		t.Errorf("DBPath = %q", cfg.DBPath())
	}
}

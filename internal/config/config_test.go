package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/docs")
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("OCR_DISPATCHER", "")
	t.Setenv("TESSERACT_LANGUAGES", "deu+eng, fra")
	t.Setenv("LOCAL_POLL_INTERVAL", "5s")
	t.Setenv("IMAP_HOST", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DatabaseDriver != "postgres" || cfg.StorageBackend != "local" || cfg.OCRDispatcher != "asynq" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if got := strings.Join(cfg.TesseractLanguages, ","); got != "deu,eng,fra" {
		t.Errorf("TesseractLanguages = %s", got)
	}
	if cfg.LocalPollInterval != 5*time.Second {
		t.Errorf("LocalPollInterval = %v", cfg.LocalPollInterval)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DatabaseDriver:    "sqlite",
			DatabaseURL:       "file.db",
			RedisURL:          "redis://localhost:6379",
			OCRDispatcher:     "asynq",
			StorageBackend:    "local",
			MediaRoot:         "/tmp/media",
			WorkerConcurrency: 2,
			MaxFileSize:       1 << 20,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad driver", func(c *Config) { c.DatabaseDriver = "mysql" }, "DATABASE_DRIVER"},
		{"missing url", func(c *Config) { c.DatabaseURL = "" }, "DATABASE_URL"},
		{"gcs without bucket", func(c *Config) { c.StorageBackend = "gcs" }, "GCS_BUCKET"},
		{"artifact without url", func(c *Config) { c.StorageBackend = "artifact" }, "ARTIFACT_API_URL"},
		{"bad dispatcher", func(c *Config) { c.OCRDispatcher = "celery" }, "OCR_DISPATCHER"},
		{"imap without credentials", func(c *Config) { c.IMAP.Host = "imap.example.com:993" }, "IMAP_USERNAME"},
		{"tiny max file size", func(c *Config) { c.MaxFileSize = 10 }, "MAX_FILE_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoadPipeline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	yml := `
stages:
  - id: supersede
    optional: true
  - id: default
    mimetypes: [application/pdf]
mimetypes:
  - application/pdf
  - image/png
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	pc, err := LoadPipeline(path)
	if err != nil {
		t.Fatalf("LoadPipeline: %v", err)
	}
	if len(pc.Stages) != 2 || pc.Stages[0].ID != "supersede" || !pc.Stages[0].Optional {
		t.Fatalf("unexpected stages: %+v", pc.Stages)
	}
	if got := pc.MimeTypesFor(pc.Stages[0]); len(got) != 2 {
		t.Errorf("supersede should inherit global list, got %v", got)
	}
	if got := pc.MimeTypesFor(pc.Stages[1]); len(got) != 1 || got[0] != "application/pdf" {
		t.Errorf("default should use its own list, got %v", got)
	}
}

func TestLoadPipelineDefaultsAndErrors(t *testing.T) {
	pc, err := LoadPipeline("")
	if err != nil {
		t.Fatalf("LoadPipeline(\"\"): %v", err)
	}
	if len(pc.Stages) != 1 || pc.Stages[0].ID != "default" {
		t.Errorf("unexpected default pipeline: %+v", pc)
	}

	path := filepath.Join(t.TempDir(), "dup.yaml")
	os.WriteFile(path, []byte("stages:\n  - id: default\n  - id: default\n"), 0o600)
	if _, err := LoadPipeline(path); err == nil {
		t.Error("expected duplicate stage error")
	}
}

/**
 * Configuration for the document ingestion service and the OCR worker
 *
 * Loads configuration from environment variables matching .env.docingest
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process-wide configuration, read once at startup
type Config struct {
	// Document store
	DatabaseDriver string
	DatabaseURL    string

	// Redis / OCR task queue
	RedisURL      string
	OCRQueue      string
	OCRDispatcher string
	IngestEvents  bool

	// Storage backend
	StorageBackend string
	MediaRoot      string
	GCSBucket      string
	ArtifactAPIURL string

	// Pipeline definition file (YAML)
	PipelineFile string

	// Entry points
	HTTPAddr          string
	MaxFileSize       int64
	TempDir           string
	LocalImportDir    string
	LocalPollInterval time.Duration
	IMAP              IMAPConfig
	// ImportUsername owns documents from the IMAP and local importers;
	// empty falls back to the first superuser
	ImportUsername string

	// OCR
	DefaultLanguage    string
	TesseractLanguages []string

	// Worker configuration
	WorkerConcurrency int
	ProcessingTimeout int // milliseconds
}

// IMAPConfig holds mailbox polling settings. An empty Host disables the importer.
type IMAPConfig struct {
	Host         string
	Username     string
	Password     string
	Mailbox      string
	PollInterval time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseDriver:    getEnvOrDefault("DATABASE_DRIVER", "postgres"),
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", ""),
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		OCRQueue:          getEnvOrDefault("OCR_QUEUE", "ocr"),
		OCRDispatcher:     getEnvOrDefault("OCR_DISPATCHER", "asynq"),
		IngestEvents:      getEnvAsBoolOrDefault("INGEST_EVENTS", true),
		StorageBackend:    getEnvOrDefault("STORAGE_BACKEND", "local"),
		MediaRoot:         getEnvOrDefault("MEDIA_ROOT", "/var/lib/docingest/media"),
		GCSBucket:         getEnvOrDefault("GCS_BUCKET", ""),
		ArtifactAPIURL:    getEnvOrDefault("ARTIFACT_API_URL", ""),
		PipelineFile:      getEnvOrDefault("PIPELINE_CONFIG", ""),
		HTTPAddr:          getEnvOrDefault("HTTP_ADDR", ":8000"),
		MaxFileSize:       getEnvAsInt64OrDefault("MAX_FILE_SIZE", 268435456), // 256MB
		TempDir:           getEnvOrDefault("TEMP_DIR", os.TempDir()),
		LocalImportDir:    getEnvOrDefault("LOCAL_IMPORT_DIR", ""),
		LocalPollInterval: getEnvAsDurationOrDefault("LOCAL_POLL_INTERVAL", 30*time.Second),
		IMAP: IMAPConfig{
			Host:         getEnvOrDefault("IMAP_HOST", ""),
			Username:     getEnvOrDefault("IMAP_USERNAME", ""),
			Password:     getEnvOrDefault("IMAP_PASSWORD", ""),
			Mailbox:      getEnvOrDefault("IMAP_MAILBOX", "INBOX"),
			PollInterval: getEnvAsDurationOrDefault("IMAP_POLL_INTERVAL", time.Minute),
		},
		ImportUsername:     getEnvOrDefault("IMPORT_USERNAME", ""),
		DefaultLanguage:    getEnvOrDefault("DEFAULT_OCR_LANGUAGE", "deu"),
		TesseractLanguages: getEnvAsListOrDefault("TESSERACT_LANGUAGES", []string{"deu", "eng"}),
		WorkerConcurrency:  getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		ProcessingTimeout:  getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 300000), // 5 minutes
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver)
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	switch c.OCRDispatcher {
	case "asynq", "redis-list":
	default:
		return fmt.Errorf("OCR_DISPATCHER must be asynq or redis-list, got %q", c.OCRDispatcher)
	}

	switch c.StorageBackend {
	case "local":
	case "gcs":
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required for STORAGE_BACKEND=gcs")
		}
	case "artifact":
		if c.ArtifactAPIURL == "" {
			return fmt.Errorf("ARTIFACT_API_URL is required for STORAGE_BACKEND=artifact")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be local, gcs or artifact, got %q", c.StorageBackend)
	}

	if c.MediaRoot == "" {
		return fmt.Errorf("MEDIA_ROOT is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxFileSize < 1024 || c.MaxFileSize > 10737418240 { // 1KB to 10GB
		return fmt.Errorf("MAX_FILE_SIZE must be between 1KB and 10GB, got %d", c.MaxFileSize)
	}

	if c.IMAP.Host != "" && (c.IMAP.Username == "" || c.IMAP.Password == "") {
		return fmt.Errorf("IMAP_USERNAME and IMAP_PASSWORD are required when IMAP_HOST is set")
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

// getEnvAsListOrDefault splits a comma or plus separated list
func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.FieldsFunc(valueStr, func(r rune) bool { return r == ',' || r == '+' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

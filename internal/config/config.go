// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config carries everything cmd/api needs to wire the service.
type Config struct {
	Port string

	// ProjectID and Dataset locate the BigQuery tables.
	ProjectID string
	Dataset   string

	// Bucket stores uploaded receipts and import workbooks. Blank disables
	// uploads.
	Bucket string

	// ModelName selects the Gemini model; blank falls back to the package
	// default.
	ModelName string
}

// Load reads configuration from the environment. A .env file is applied
// first when present; its absence is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	cfg := &Config{
		Port:      getenv("PORT", "8080"),
		ProjectID: os.Getenv("GCP_PROJECT"),
		Dataset:   getenv("BQ_DATASET", "finance"),
		Bucket:    os.Getenv("GCS_BUCKET"),
		ModelName: os.Getenv("GEMINI_MODEL"),
	}

	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("config: GCP_PROJECT is required")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	EnvAuditResultsPath = "DOCAUDIT_AUDIT_RESULTS_PATH"
	EnvAuditMaxWorkers  = "DOCAUDIT_AUDIT_MAX_WORKERS"
)

// AuditConfig parameterizes the audit run itself: where recognized page
// content and metadata are persisted, and how wide the parallel stages
// fan out.
type AuditConfig struct {
	ResultsPath string `toml:"results_path"`
	MaxWorkers  int    `toml:"max_workers"`
}

// Merge overwrites non-zero fields from overlay.
func (c *AuditConfig) Merge(overlay *AuditConfig) {
	if overlay.ResultsPath != "" {
		c.ResultsPath = overlay.ResultsPath
	}
	if overlay.MaxWorkers != 0 {
		c.MaxWorkers = overlay.MaxWorkers
	}
}

// Finalize applies defaults, environment overrides, and validation.
// MaxWorkers of 0 means one worker per CPU.
func (c *AuditConfig) Finalize() error {
	if c.ResultsPath == "" {
		c.ResultsPath = "audit-results"
	}

	if v := os.Getenv(EnvAuditResultsPath); v != "" {
		c.ResultsPath = v
	}
	if v := os.Getenv(EnvAuditMaxWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvAuditMaxWorkers, err)
		}
		c.MaxWorkers = n
	}

	if c.MaxWorkers < 0 {
		return fmt.Errorf("max_workers must be non-negative")
	}
	return nil
}

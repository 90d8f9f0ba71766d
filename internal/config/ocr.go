package config

import (
	"fmt"
	"os"
	"time"
)

// OCR work modes.
const (
	OCRModeLocalOnly = "local_only"
	OCRModeAPIOnly   = "api_only"
	OCRModeHybrid    = "hybrid"
)

const (
	EnvOCRWorkMode = "DOCAUDIT_OCR_WORK_MODE"
	EnvOCRLocalURL = "DOCAUDIT_OCR_LOCAL_URL"
	EnvOCRAPIURL   = "DOCAUDIT_OCR_API_URL"
	EnvOCRAPIToken = "DOCAUDIT_OCR_API_TOKEN"
	EnvOCRTimeout  = "DOCAUDIT_OCR_TIMEOUT"
)

// OCRConfig selects and parameterizes the text recognition backends.
type OCRConfig struct {
	WorkMode string `toml:"work_mode"`
	LocalURL string `toml:"local_url"`
	APIURL   string `toml:"api_url"`
	APIToken string `toml:"api_token"`
	Timeout  string `toml:"timeout"`
}

// Merge overwrites non-zero fields from overlay.
func (c *OCRConfig) Merge(overlay *OCRConfig) {
	if overlay.WorkMode != "" {
		c.WorkMode = overlay.WorkMode
	}
	if overlay.LocalURL != "" {
		c.LocalURL = overlay.LocalURL
	}
	if overlay.APIURL != "" {
		c.APIURL = overlay.APIURL
	}
	if overlay.APIToken != "" {
		c.APIToken = overlay.APIToken
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
}

// Finalize applies defaults, environment overrides, and validation. A
// hybrid mode with no API endpoint configured degrades to local_only
// rather than failing at recognition time.
func (c *OCRConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	switch c.WorkMode {
	case OCRModeLocalOnly, OCRModeAPIOnly, OCRModeHybrid:
	default:
		return fmt.Errorf("invalid work_mode: %s", c.WorkMode)
	}

	if c.WorkMode == OCRModeHybrid && c.APIURL == "" {
		c.WorkMode = OCRModeLocalOnly
	}
	if c.WorkMode == OCRModeAPIOnly && c.APIURL == "" {
		return fmt.Errorf("api_url required for work_mode %s", OCRModeAPIOnly)
	}
	if c.WorkMode != OCRModeAPIOnly && c.LocalURL == "" {
		return fmt.Errorf("local_url required for work_mode %s", c.WorkMode)
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *OCRConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

func (c *OCRConfig) loadDefaults() {
	if c.WorkMode == "" {
		c.WorkMode = OCRModeHybrid
	}
	if c.LocalURL == "" {
		c.LocalURL = "http://localhost:8000"
	}
	if c.Timeout == "" {
		c.Timeout = "10m"
	}
}

func (c *OCRConfig) loadEnv() {
	if v := os.Getenv(EnvOCRWorkMode); v != "" {
		c.WorkMode = v
	}
	if v := os.Getenv(EnvOCRLocalURL); v != "" {
		c.LocalURL = v
	}
	if v := os.Getenv(EnvOCRAPIURL); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv(EnvOCRAPIToken); v != "" {
		c.APIToken = v
	}
	if v := os.Getenv(EnvOCRTimeout); v != "" {
		c.Timeout = v
	}
}

// Package config loads the layered docaudit configuration: a base
// config.toml, an environment overlay, environment variables, defaults,
// and validation, in that order.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	gaconfig "github.com/JaimeStill/go-agents/pkg/config"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvDocauditEnv     = "DOCAUDIT_ENV"
	EnvDocauditVersion = "DOCAUDIT_VERSION"
)

// Config is the root configuration for the docaudit pipeline.
type Config struct {
	Agent   gaconfig.AgentConfig `toml:"agent"`
	OCR     OCRConfig            `toml:"ocr"`
	Audit   AuditConfig          `toml:"audit"`
	Version string               `toml:"version"`
}

// Env returns the DOCAUDIT_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvDocauditEnv); env != "" {
		return env
	}
	return "local"
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and
// environment variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.OCR.Merge(&overlay.OCR)
	c.Audit.Merge(&overlay.Audit)
	c.Agent.Merge(&overlay.Agent)
}

func (c *Config) finalize() error {
	if c.Version == "" {
		c.Version = "0.1.0"
	}
	if v := os.Getenv(EnvDocauditVersion); v != "" {
		c.Version = v
	}

	if err := FinalizeAgent(&c.Agent); err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	if err := c.OCR.Finalize(); err != nil {
		return fmt.Errorf("ocr: %w", err)
	}
	if err := c.Audit.Finalize(); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvDocauditEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

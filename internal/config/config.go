// Package config loads and validates service configuration from a YAML file,
// a .env file, and the process environment, in increasing precedence.
package config

import (
	"fmt"

	"github.com/kbukum/aiviz/internal/logger"
	"github.com/kbukum/aiviz/internal/observability"
	"github.com/kbukum/aiviz/internal/quota"
	"github.com/kbukum/aiviz/internal/qwen"
	"github.com/kbukum/aiviz/internal/server"
	"github.com/kbukum/aiviz/internal/validation"
)

// AuthConfig configures request identity resolution.
type AuthConfig struct {
	// JWTSecret verifies bearer tokens for identity extraction. Empty
	// disables token verification; such requests fall back to anonymous.
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
}

// Config is the complete service configuration.
type Config struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Environment string `yaml:"environment" mapstructure:"environment" validate:"omitempty,oneof=development staging production"`
	Version     string `yaml:"version" mapstructure:"version"`
	Debug       bool   `yaml:"debug" mapstructure:"debug"`

	Logging       logger.Config        `yaml:"logging" mapstructure:"logging"`
	Server        server.Config        `yaml:"server" mapstructure:"server"`
	Qwen          qwen.Config          `yaml:"qwen" mapstructure:"qwen"`
	Quota         quota.Config         `yaml:"quota" mapstructure:"quota"`
	Auth          AuthConfig           `yaml:"auth" mapstructure:"auth"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
}

// ApplyDefaults applies default values to all sections.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "aiviz"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
	}
	c.Logging.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Qwen.ApplyDefaults()
	c.Quota.ApplyDefaults()
	c.Observability.ApplyDefaults()
}

// Validate checks the configuration, tag rules first, then section rules.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.logging: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("config.server: %w", err)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateProviders() error {
	if c.Providers.MaxAttempts > 10 {
		return errors.New("providers.max_attempts must be at most 10")
	}
	if c.Providers.TimeoutSeconds > 600 {
		return errors.New("providers.timeout_seconds must be at most 600")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

// HasOpenAI reports whether OpenAI credentials are configured.
func (c *Config) HasOpenAI() bool {
	return c.Providers.OpenAIAPIKey != ""
}

// HasAnthropic reports whether Anthropic credentials are configured.
func (c *Config) HasAnthropic() bool {
	return c.Providers.AnthropicAPIKey != ""
}

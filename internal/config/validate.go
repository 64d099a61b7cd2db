package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateValidation(); err != nil {
		return err
	}
	if err := c.validateLimits(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		return errors.New("paths.api_bind must be set")
	}
	if c.Paths.OutputDir == c.Paths.WorkDir {
		return errors.New("paths.output_dir and paths.work_dir must differ")
	}
	return nil
}

func (c *Config) validateValidation() error {
	found := false
	for _, format := range c.Validation.AllowedFormats {
		if format == c.Validation.DefaultFormat {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("validation.default_format %q is not in validation.allowed_formats", c.Validation.DefaultFormat)
	}
	return nil
}

func (c *Config) validateLimits() error {
	if c.Limits.BurstThreshold > c.Limits.MaxJobs {
		return errors.New("limits.burst_threshold must not exceed limits.max_jobs")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json", "auto":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

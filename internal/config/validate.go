package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSyndication(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
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

func (c *Config) validateSyndication() error {
	if _, err := time.LoadLocation(c.Syndication.TimeZone); err != nil {
		return fmt.Errorf("syndication.time_zone: %w", err)
	}
	switch c.Syndication.DefaultItemsAge {
	case 1, 7, 30, 90, 180:
	default:
		return fmt.Errorf("syndication.default_items_age must be one of 1, 7, 30, 90, 180 (got %d)", c.Syndication.DefaultItemsAge)
	}
	for i, rule := range c.Syndication.DuplicateRules {
		if rule.Buyer == "" {
			return fmt.Errorf("syndication.duplicate_rules[%d].buyer must be set", i)
		}
		if len(rule.Sources) == 0 || len(rule.Against) == 0 {
			return fmt.Errorf("syndication.duplicate_rules[%d] requires sources and against publications", i)
		}
	}
	return nil
}

func (c *Config) validateDelivery() error {
	if c.Delivery.RatePerSecond < 0 {
		return errors.New("delivery.rate_per_second must be >= 0")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.PollInterval <= 0 {
		return errors.New("workflow.poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

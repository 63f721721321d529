package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSyndication()
	c.normalizeDelivery()
	c.normalizeEvents()
	c.normalizeAuth()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.InboxDir, err = expandPath(c.Paths.InboxDir); err != nil {
		return fmt.Errorf("paths.inbox_dir: %w", err)
	}
	if c.Paths.OutboxDir, err = expandPath(c.Paths.OutboxDir); err != nil {
		return fmt.Errorf("paths.outbox_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("SYNDICATE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeSyndication() {
	c.Syndication.CompanyName = strings.TrimSpace(c.Syndication.CompanyName)
	if c.Syndication.CompanyName == "" {
		c.Syndication.CompanyName = defaultCompanyName
	}
	c.Syndication.TimeZone = strings.TrimSpace(c.Syndication.TimeZone)
	if c.Syndication.TimeZone == "" {
		c.Syndication.TimeZone = defaultTimeZone
	}
	if c.Syndication.DefaultItemsAge == 0 {
		c.Syndication.DefaultItemsAge = defaultItemsAge
	}
	words := c.Syndication.MergedWords[:0]
	for _, w := range c.Syndication.MergedWords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			words = append(words, w)
		}
	}
	c.Syndication.MergedWords = words
	for i := range c.Syndication.DuplicateRules {
		rule := &c.Syndication.DuplicateRules[i]
		rule.Buyer = strings.TrimSpace(rule.Buyer)
		if rule.WindowDays <= 0 {
			rule.WindowDays = defaultDuplicateWindow
		}
	}
}

func (c *Config) normalizeDelivery() {
	if c.Delivery.TimeoutSeconds <= 0 {
		c.Delivery.TimeoutSeconds = defaultDeliveryTimeout
	}
	if c.Delivery.Burst <= 0 {
		c.Delivery.Burst = defaultBurst
	}
}

func (c *Config) normalizeEvents() {
	if value, ok := os.LookupEnv("SYNDICATE_REDIS_ADDR"); ok && strings.TrimSpace(value) != "" {
		c.Events.RedisAddr = strings.TrimSpace(value)
	}
	c.Events.RedisAddr = strings.TrimSpace(c.Events.RedisAddr)
	if c.Events.RedisAddr == "" {
		c.Events.RedisAddr = defaultRedisAddr
	}
	c.Events.Namespace = strings.TrimSpace(c.Events.Namespace)
	if c.Events.Namespace == "" {
		c.Events.Namespace = defaultEventsNamespace
	}
}

func (c *Config) normalizeAuth() {
	if c.Auth.JWTSecret == "" {
		if value, ok := os.LookupEnv("SYNDICATE_JWT_SECRET"); ok {
			c.Auth.JWTSecret = strings.TrimSpace(value)
		}
	}
	if c.Auth.TokenTTLHours <= 0 {
		c.Auth.TokenTTLHours = defaultTokenTTLHours
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.RefreshConcurrency <= 0 {
		c.Workflow.RefreshConcurrency = defaultRefreshConcurrency
	}
	if c.Workflow.InboxScanInterval <= 0 {
		c.Workflow.InboxScanInterval = defaultInboxScanInterval
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

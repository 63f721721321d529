package testsupport

import (
	"path/filepath"
	"testing"

	"syndicate/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.InboxDir = filepath.Join(base, "inbox")
	cfgVal.Paths.OutboxDir = filepath.Join(base, "outbox")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Syndication.CompanyName = "Test Syndicate"
	cfgVal.Syndication.TimeZone = "UTC"
	cfgVal.Auth.JWTSecret = "test-secret"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithMergedWords sets the merged-word dictionary.
func WithMergedWords(words ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Syndication.MergedWords = words
	}
}

// WithDuplicateRule appends a publish-time duplicate title rule.
func WithDuplicateRule(rule config.DuplicateRule) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Syndication.DuplicateRules = append(b.cfg.Syndication.DuplicateRules, rule)
	}
}

// WithAPIToken sets the static admin bearer token.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

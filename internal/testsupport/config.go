package testsupport

import (
	"path/filepath"
	"testing"

	"newsdesk/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t   testing.TB
	cfg *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Workflow.PipelinePollInterval = 1
	cfgVal.Workflow.ErrorRetryInterval = 1

	builder := &configBuilder{t: t, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithOpenAIKey sets an OpenAI credential so the candidate chains include the
// real provider client instead of the stub.
func WithOpenAIKey(key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Providers.OpenAIAPIKey = key
	}
}

// WithAnthropicKey sets an Anthropic credential on the test config.
func WithAnthropicKey(key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Providers.AnthropicAPIKey = key
	}
}

// WithPublishAPI points the newsletter publisher at a test server.
func WithPublishAPI(url, key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Publish.APIURL = url
		b.cfg.Publish.APIKey = key
	}
}

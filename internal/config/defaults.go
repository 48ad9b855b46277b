package config

const (
	defaultDataDir                = "~/.local/share/newsdesk"
	defaultLogDir                 = "~/.local/share/newsdesk/logs"
	defaultOpenAIBaseURL          = "https://api.openai.com/v1/chat/completions"
	defaultAnthropicBaseURL       = "https://api.anthropic.com/v1/messages"
	defaultProviderTimeoutSeconds = 60
	defaultProviderMaxAttempts    = 3
	defaultProviderBackoffSeconds = 1
	defaultIngestTimeoutSeconds   = 20
	defaultIngestRequestsPerSec   = 2.0
	defaultIngestUserAgent        = "newsdesk/dev"
	defaultIdempotencyRetention   = 48
	defaultIdempotencySweepHours  = 1
	defaultPipelinePollInterval   = 5
	defaultSourcePollInterval     = 900
	defaultErrorRetryInterval     = 10
	defaultPublishTimeoutSeconds  = 30
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Providers: Providers{
			OpenAIBaseURL:    defaultOpenAIBaseURL,
			AnthropicBaseURL: defaultAnthropicBaseURL,
			TimeoutSeconds:   defaultProviderTimeoutSeconds,
			MaxAttempts:      defaultProviderMaxAttempts,
			BackoffSeconds:   defaultProviderBackoffSeconds,
		},
		Ingest: Ingest{
			HTTPTimeoutSeconds: defaultIngestTimeoutSeconds,
			RequestsPerSecond:  defaultIngestRequestsPerSec,
			UserAgent:          defaultIngestUserAgent,
		},
		Idempotency: Idempotency{
			RetentionHours:     defaultIdempotencyRetention,
			SweepIntervalHours: defaultIdempotencySweepHours,
		},
		Workflow: Workflow{
			PipelinePollInterval: defaultPipelinePollInterval,
			SourcePollInterval:   defaultSourcePollInterval,
			ErrorRetryInterval:   defaultErrorRetryInterval,
		},
		Publish: Publish{
			TimeoutSeconds: defaultPublishTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

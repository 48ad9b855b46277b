package config

import "strings"

// normalize expands paths and trims whitespace-sensitive values so the rest
// of the application never has to re-clean configuration input.
func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(strings.TrimSpace(c.Paths.DataDir)); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return err
	}

	c.Providers.OpenAIAPIKey = strings.TrimSpace(c.Providers.OpenAIAPIKey)
	c.Providers.OpenAIBaseURL = strings.TrimSpace(c.Providers.OpenAIBaseURL)
	c.Providers.AnthropicAPIKey = strings.TrimSpace(c.Providers.AnthropicAPIKey)
	c.Providers.AnthropicBaseURL = strings.TrimSpace(c.Providers.AnthropicBaseURL)
	if c.Providers.OpenAIBaseURL == "" {
		c.Providers.OpenAIBaseURL = defaultOpenAIBaseURL
	}
	if c.Providers.AnthropicBaseURL == "" {
		c.Providers.AnthropicBaseURL = defaultAnthropicBaseURL
	}
	if c.Providers.TimeoutSeconds <= 0 {
		c.Providers.TimeoutSeconds = defaultProviderTimeoutSeconds
	}
	if c.Providers.MaxAttempts <= 0 {
		c.Providers.MaxAttempts = defaultProviderMaxAttempts
	}
	if c.Providers.BackoffSeconds <= 0 {
		c.Providers.BackoffSeconds = defaultProviderBackoffSeconds
	}

	if c.Ingest.HTTPTimeoutSeconds <= 0 {
		c.Ingest.HTTPTimeoutSeconds = defaultIngestTimeoutSeconds
	}
	if c.Ingest.RequestsPerSecond <= 0 {
		c.Ingest.RequestsPerSecond = defaultIngestRequestsPerSec
	}
	if c.Ingest.DefaultCooldownSeconds < 0 {
		c.Ingest.DefaultCooldownSeconds = 0
	}
	c.Ingest.UserAgent = strings.TrimSpace(c.Ingest.UserAgent)
	if c.Ingest.UserAgent == "" {
		c.Ingest.UserAgent = defaultIngestUserAgent
	}

	if c.Idempotency.RetentionHours <= 0 {
		c.Idempotency.RetentionHours = defaultIdempotencyRetention
	}
	if c.Idempotency.SweepIntervalHours <= 0 {
		c.Idempotency.SweepIntervalHours = defaultIdempotencySweepHours
	}

	if c.Workflow.PipelinePollInterval <= 0 {
		c.Workflow.PipelinePollInterval = defaultPipelinePollInterval
	}
	if c.Workflow.SourcePollInterval <= 0 {
		c.Workflow.SourcePollInterval = defaultSourcePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}

	c.Publish.APIURL = strings.TrimSpace(c.Publish.APIURL)
	c.Publish.APIKey = strings.TrimSpace(c.Publish.APIKey)
	if c.Publish.TimeoutSeconds <= 0 {
		c.Publish.TimeoutSeconds = defaultPublishTimeoutSeconds
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	return nil
}

package constants

// Dynamic configuration keys, re-read from the configuration source once per
// scheduler cycle so operators can tune the pipeline without a restart.
const (
	CfgBatchSize            = "extraction.batch_size"
	CfgMaxRetries           = "extraction.max_retries"
	CfgAutoApproveThreshold = "extraction.auto_approve_threshold"
	CfgPollIntervalSeconds  = "extraction.poll_interval_seconds"
	CfgModelTemperature     = "extraction.model_temperature"
	CfgModelMaxTokens       = "extraction.model_max_tokens"
	CfgRetentionYears       = "retention.years"
	CfgEnrichmentEnabled    = "retention.enrichment_enabled"
)

// Defaults used when a dynamic key is absent or unparsable.
const (
	DefaultBatchSize            = 5
	DefaultMaxRetries           = 3
	DefaultAutoApproveThreshold = 0.85
	DefaultPollIntervalSeconds  = 30
	DefaultModelTemperature     = 0.0
	DefaultModelMaxTokens       = 4096
	DefaultRetentionYears       = 7
)

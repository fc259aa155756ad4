package config

import (
	"context"
	"time"

	"github.com/michaelloggins/Accession-sub000/constants"
)

// Snapshot is an immutable view of the tunable pipeline settings, materialized
// once at the start of each cycle and passed explicitly into components.
type Snapshot struct {
	BatchSize            int
	MaxRetries           int
	AutoApproveThreshold float32
	PollInterval         time.Duration
	ModelTemperature     float32
	ModelMaxTokens       int
	RetentionYears       int
	EnrichmentEnabled    bool
}

// LoadSnapshot reads every tunable key from the source, applying defaults and
// clamping nonsensical operator values.
func LoadSnapshot(ctx context.Context, src Source) Snapshot {
	s := Snapshot{
		BatchSize:            src.GetInt(ctx, constants.CfgBatchSize, constants.DefaultBatchSize),
		MaxRetries:           src.GetInt(ctx, constants.CfgMaxRetries, constants.DefaultMaxRetries),
		AutoApproveThreshold: float32(src.GetFloat(ctx, constants.CfgAutoApproveThreshold, constants.DefaultAutoApproveThreshold)),
		PollInterval:         time.Duration(src.GetInt(ctx, constants.CfgPollIntervalSeconds, constants.DefaultPollIntervalSeconds)) * time.Second,
		ModelTemperature:     float32(src.GetFloat(ctx, constants.CfgModelTemperature, constants.DefaultModelTemperature)),
		ModelMaxTokens:       src.GetInt(ctx, constants.CfgModelMaxTokens, constants.DefaultModelMaxTokens),
		RetentionYears:       src.GetInt(ctx, constants.CfgRetentionYears, constants.DefaultRetentionYears),
		EnrichmentEnabled:    src.GetBool(ctx, constants.CfgEnrichmentEnabled, true),
	}
	if s.BatchSize < 1 {
		s.BatchSize = 1
	}
	if s.MaxRetries < 1 {
		s.MaxRetries = 1
	}
	if s.PollInterval < time.Second {
		s.PollInterval = time.Second
	}
	return s
}

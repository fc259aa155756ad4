package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/michaelloggins/Accession-sub000/constants"
)

// staticSource serves fixed typed values, falling back to the default for
// anything absent.
type staticSource struct {
	ints   map[string]int
	floats map[string]float64
	bools  map[string]bool
}

func (s staticSource) GetInt(_ context.Context, key string, def int) int {
	if v, ok := s.ints[key]; ok {
		return v
	}
	return def
}

func (s staticSource) GetFloat(_ context.Context, key string, def float64) float64 {
	if v, ok := s.floats[key]; ok {
		return v
	}
	return def
}

func (s staticSource) GetBool(_ context.Context, key string, def bool) bool {
	if v, ok := s.bools[key]; ok {
		return v
	}
	return def
}

func TestLoadSnapshotDefaults(t *testing.T) {
	snap := LoadSnapshot(context.Background(), staticSource{})

	assert.Equal(t, constants.DefaultBatchSize, snap.BatchSize)
	assert.Equal(t, constants.DefaultMaxRetries, snap.MaxRetries)
	assert.Equal(t, float32(constants.DefaultAutoApproveThreshold), snap.AutoApproveThreshold)
	assert.Equal(t, time.Duration(constants.DefaultPollIntervalSeconds)*time.Second, snap.PollInterval)
	assert.Equal(t, constants.DefaultModelMaxTokens, snap.ModelMaxTokens)
	assert.Equal(t, constants.DefaultRetentionYears, snap.RetentionYears)
	assert.True(t, snap.EnrichmentEnabled)
}

func TestLoadSnapshotReadsSource(t *testing.T) {
	src := staticSource{
		ints: map[string]int{
			constants.CfgBatchSize:           12,
			constants.CfgMaxRetries:          5,
			constants.CfgPollIntervalSeconds: 90,
		},
		floats: map[string]float64{
			constants.CfgAutoApproveThreshold: 0.97,
		},
		bools: map[string]bool{
			constants.CfgEnrichmentEnabled: false,
		},
	}
	snap := LoadSnapshot(context.Background(), src)

	assert.Equal(t, 12, snap.BatchSize)
	assert.Equal(t, 5, snap.MaxRetries)
	assert.Equal(t, 90*time.Second, snap.PollInterval)
	assert.Equal(t, float32(0.97), snap.AutoApproveThreshold)
	assert.False(t, snap.EnrichmentEnabled)
}

func TestLoadSnapshotClampsNonsense(t *testing.T) {
	src := staticSource{
		ints: map[string]int{
			constants.CfgBatchSize:           0,
			constants.CfgMaxRetries:          -1,
			constants.CfgPollIntervalSeconds: 0,
		},
	}
	snap := LoadSnapshot(context.Background(), src)

	assert.Equal(t, 1, snap.BatchSize)
	assert.Equal(t, 1, snap.MaxRetries)
	assert.Equal(t, time.Second, snap.PollInterval)
}

package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBatchEnvelopes(t *testing.T) {
	text := `[
		{"index": 0, "fields": {"patient": {"patient_name": "A"}}, "confidence": 0.9},
		{"index": 1, "fields": {"patient": {"patient_name": "B"}}, "confidence": 0.7}
	]`
	envs, err := parseBatchEnvelopes(text)
	require.NoError(t, err)
	require.Len(t, envs, 2)
	assert.Equal(t, 0, envs[0].Index)
	assert.Equal(t, float32(0.7), envs[1].Confidence)
}

func TestParseBatchEnvelopesSalvagesEmbeddedArray(t *testing.T) {
	text := "Here are the extractions:\n```json\n" +
		`[{"index": 0, "fields": {"x": 1}, "confidence": 0.8}]` +
		"\n```\nLet me know if you need anything else."
	envs, err := parseBatchEnvelopes(text)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, float32(0.8), envs[0].Confidence)
}

func TestParseBatchEnvelopesRejectsGarbage(t *testing.T) {
	_, err := parseBatchEnvelopes("I could not read the documents, sorry.")
	assert.Error(t, err)
}

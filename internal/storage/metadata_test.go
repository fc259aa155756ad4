package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeMetadataKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already clean", "accession_code", "accession_code"},
		{"uppercase lowered", "Patient-Name", "patient_name"},
		{"run of separators collapses", "tests -- requested", "tests_requested"},
		{"leading and trailing junk stripped", "  __physician__  ", "physician"},
		{"non ascii replaced", "médecin", "m_decin"},
		{"all junk becomes empty", "***", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeMetadataKey(tt.in))
		})
	}
}

func TestSanitizeMetadataValue(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Dr. Reyes", "Dr. Reyes"},
		{"newlines flattened", "line one\r\nline two", "line one line two"},
		{"control characters dropped", "a\x00b\x1fc", "abc"},
		{"whitespace collapsed", "  CBC,   CMP  ", "CBC, CMP"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeMetadataValue(tt.in))
		})
	}
}

func TestSanitizeMetadataValueTruncates(t *testing.T) {
	long := strings.Repeat("x", MaxMetadataValueLen+100)
	got := SanitizeMetadataValue(long)
	assert.Len(t, got, MaxMetadataValueLen)
}

func TestSanitizeMetadataDropsEmptyEntries(t *testing.T) {
	in := map[string]string{
		"Accession Code": "ACC-20260310-000042",
		"***":            "junk key",
		"empty":          "",
		"ctrl_only":      "\x01\x02",
	}
	out := SanitizeMetadata(in)
	assert.Equal(t, map[string]string{"accession_code": "ACC-20260310-000042"}, out)
}

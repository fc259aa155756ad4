package storage

import (
	"strings"
	"unicode"
)

// MaxMetadataValueLen bounds a single metadata value after sanitization.
const MaxMetadataValueLen = 256

// SanitizeMetadata returns a copy of meta with every key and value reduced to
// what the object store accepts. Entries whose key sanitizes to empty are
// dropped; empty values are dropped too.
func SanitizeMetadata(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		sk := SanitizeMetadataKey(k)
		sv := SanitizeMetadataValue(v)
		if sk == "" || sv == "" {
			continue
		}
		out[sk] = sv
	}
	return out
}

// SanitizeMetadataKey lowercases the key and replaces every run of
// non-alphanumeric characters with a single underscore.
func SanitizeMetadataKey(k string) string {
	var b strings.Builder
	lastUnderscore := true // also strips leading underscores
	for _, r := range strings.ToLower(strings.TrimSpace(k)) {
		if unicode.IsLetter(r) && r < 128 || unicode.IsDigit(r) && r < 128 {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimRight(b.String(), "_")
}

// SanitizeMetadataValue strips newlines and control characters, collapses the
// result to single-line text, and truncates to MaxMetadataValueLen.
func SanitizeMetadataValue(v string) string {
	v = strings.ReplaceAll(v, "\r", " ")
	v = strings.ReplaceAll(v, "\n", " ")
	var b strings.Builder
	for _, r := range v {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	s := strings.Join(strings.Fields(b.String()), " ")
	if len(s) > MaxMetadataValueLen {
		s = s[:MaxMetadataValueLen]
	}
	return s
}

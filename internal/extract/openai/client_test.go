package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelloggins/Accession-sub000/internal/extract"
)

func chatResponse(content string) []byte {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return b
}

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		APIKey:      "test-key",
		BaseURL:     baseURL,
		Model:       "gpt-4o",
		MaxAttempts: 3,
		Backoff:     []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
	}, nil)
}

func TestExtractOne(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write(chatResponse(`{"patient":{"patient_name":"Pat Doe"},"order":{"tests":["CBC"],"collection_date":"2026-03-10"},"confidence":0.9}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	res, err := c.ExtractOne(context.Background(), extract.DocumentInput{
		ID:       1,
		Content:  []byte("scan"),
		Filename: "scan.pdf",
	}, extract.Options{MaxTokens: 1024})
	require.NoError(t, err)

	assert.Equal(t, float32(0.9), res.Confidence)
	assert.Equal(t, "gpt-4o", res.ModelName)
	patient := res.Fields["patient"].(map[string]any)
	assert.Equal(t, "Pat Doe", patient["patient_name"])
}

func TestExtractOneDefaultsConfidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(chatResponse(`{"patient":{"patient_name":"Pat Doe"},"order":{}}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).ExtractOne(context.Background(), extract.DocumentInput{ID: 1}, extract.Options{})
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), res.Confidence)
}

func TestExtractOneRejectsSchemaViolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// patient_name missing
		w.Write(chatResponse(`{"patient":{},"order":{}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ExtractOne(context.Background(), extract.DocumentInput{ID: 1}, extract.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation failed")
}

func TestPostRetriesProviderErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(chatResponse(`{"patient":{"patient_name":"Pat Doe"},"order":{}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ExtractOne(context.Background(), extract.DocumentInput{ID: 1}, extract.Options{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPostDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ExtractOne(context.Background(), extract.DocumentInput{ID: 1}, extract.Options{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExtractBatchMissingIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(chatResponse(`[{"index":0,"fields":{"patient":{"patient_name":"A"},"order":{}},"confidence":0.9}]`))
	}))
	defer srv.Close()

	docs := []extract.DocumentInput{
		{ID: 10, Content: []byte("a"), Filename: "a.pdf"},
		{ID: 11, Content: []byte("b"), Filename: "b.pdf"},
	}
	items, err := newTestClient(srv.URL).ExtractBatch(context.Background(), docs, extract.Options{})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, int64(10), items[0].ID)
	assert.NoError(t, items[0].Err)
	assert.Equal(t, float32(0.9), items[0].Confidence)

	assert.Equal(t, int64(11), items[1].ID)
	require.Error(t, items[1].Err)
	assert.Contains(t, items[1].Err.Error(), "missing index 1")
}

func TestExtractBatchMalformedResponseFailsAllItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(chatResponse(`I am unable to comply.`))
	}))
	defer srv.Close()

	docs := []extract.DocumentInput{{ID: 10}, {ID: 11}}
	items, err := newTestClient(srv.URL).ExtractBatch(context.Background(), docs, extract.Options{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.ErrorContains(t, item.Err, "malformed batch response")
	}
}

func TestExtractBatchProviderErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(chatResponse(`[
			{"index":0,"fields":{"patient":{"patient_name":"A"},"order":{}},"confidence":0.9},
			{"index":1,"error":"page is blank"}
		]`))
	}))
	defer srv.Close()

	docs := []extract.DocumentInput{{ID: 10}, {ID: 11}}
	items, err := newTestClient(srv.URL).ExtractBatch(context.Background(), docs, extract.Options{})
	require.NoError(t, err)
	assert.NoError(t, items[0].Err)
	require.Error(t, items[1].Err)
	assert.Contains(t, items[1].Err.Error(), "page is blank")
}

func TestExtractBatchRejectsSchemaViolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// index 1 omits the required patient_name
		w.Write(chatResponse(`[
			{"index":0,"fields":{"patient":{"patient_name":"A"},"order":{}},"confidence":0.9},
			{"index":1,"fields":{"patient":{},"order":{}},"confidence":0.8}
		]`))
	}))
	defer srv.Close()

	docs := []extract.DocumentInput{{ID: 10}, {ID: 11}}
	items, err := newTestClient(srv.URL).ExtractBatch(context.Background(), docs, extract.Options{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.NoError(t, items[0].Err)
	require.Error(t, items[1].Err)
	assert.Contains(t, items[1].Err.Error(), "schema validation failed for index 1")
	assert.Nil(t, items[1].Fields)
}

package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/michaelloggins/Accession-sub000/internal/extract"
)

// ExtractOne implements the single-document general extraction call.
func (c *Client) ExtractOne(ctx context.Context, doc extract.DocumentInput, opts extract.Options) (extract.FieldsResult, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("openai.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"document_id", doc.ID,
		"filename", doc.Filename,
		"bytes", len(doc.Content),
	)

	schema := extract.BuildLabOrderJSONSchema()
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     opts.Temperature,
		"max_tokens":      opts.MaxTokens,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": buildSystemPrompt(false)},
			{"role": "user", "content": buildDocumentContent(doc, -1)},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	raw, err := c.post(ctx, rid, body)
	if err != nil {
		return extract.FieldsResult{}, err
	}

	content, err := firstChoiceContent(raw)
	if err != nil {
		c.logger.Error("openai.extract.decode_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return extract.FieldsResult{}, err
	}

	if err := extract.ValidateFieldsAgainstSchema(schema, []byte(content)); err != nil {
		c.logger.Error("openai.extract.schema_validation_failed",
			"req_id", rid, "error", err, "content", content,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return extract.FieldsResult{}, fmt.Errorf("schema validation failed: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return extract.FieldsResult{}, fmt.Errorf("unmarshal fields: %w", err)
	}

	res := extract.FieldsResult{
		Fields:     fields,
		Confidence: confidenceFrom(fields),
		ModelName:  c.cfg.Model,
	}
	c.logger.Info("openai.extract.ok",
		"req_id", rid,
		"document_id", doc.ID,
		"confidence", res.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// post sends one chat/completions request, retrying provider-side errors
// (transport, 429, 5xx) with the configured backoff sequence.
func (c *Client) post(ctx context.Context, rid string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := c.cfg.Backoff[min(attempt-2, len(c.cfg.Backoff)-1)]
			c.logger.Warn("openai.retry", "req_id", rid, "attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		raw, retryable, err := c.doOnce(ctx, endpoint, b)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("openai exhausted %d attempts: %w", c.cfg.MaxAttempts, lastErr)
}

func (c *Client) doOnce(ctx context.Context, url string, body []byte) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("openai http error: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read openai response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("openai status %d: %s", resp.StatusCode, string(raw))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("openai status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, false, nil
}

func firstChoiceContent(raw []byte) (string, error) {
	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in openai response")
	}
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}

// confidenceFrom pulls the model's self-reported confidence out of the fields,
// defaulting to 0.5 when the model omitted it.
func confidenceFrom(fields map[string]any) float32 {
	if v, ok := fields["confidence"].(float64); ok && v >= 0 && v <= 1 {
		return float32(v)
	}
	return 0.5
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

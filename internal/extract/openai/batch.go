package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/michaelloggins/Accession-sub000/internal/extract"
)

// batchEnvelope is one slot of the array the model returns for a batched call.
type batchEnvelope struct {
	Index      int             `json:"index"`
	Fields     map[string]any  `json:"fields"`
	Confidence float32         `json:"confidence"`
	Error      json.RawMessage `json:"error,omitempty"`
}

// ExtractBatch encodes all documents into a single provider request, each
// labeled by index, and re-associates the response array by index. A response
// that is malformed, or omits an index, yields a per-document error for
// exactly the affected documents without discarding the others.
func (c *Client) ExtractBatch(ctx context.Context, docs []extract.DocumentInput, opts extract.Options) ([]extract.BatchItemResult, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if len(docs) == 1 {
		res, err := c.ExtractOne(ctx, docs[0], opts)
		return []extract.BatchItemResult{{
			ID:         docs[0].ID,
			Fields:     res.Fields,
			Confidence: res.Confidence,
			Err:        err,
		}}, nil
	}

	rid := uuid.New().String()
	start := time.Now()
	c.logger.Info("openai.batch.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"documents", len(docs),
	)

	schema := extract.BuildLabOrderJSONSchema()
	var content []map[string]any
	for i, doc := range docs {
		content = append(content, buildDocumentContent(doc, i)...)
	}
	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": opts.Temperature,
		"max_tokens":  opts.MaxTokens,
		"messages": []map[string]any{
			{"role": "system", "content": buildSystemPrompt(true)},
			{"role": "user", "content": content},
			{"role": "system", "content": "Per-document 'fields' JSON Schema:\n" + mustJSON(schema)},
		},
	}

	raw, err := c.post(ctx, rid, body)
	if err != nil {
		// provider-level failure affects the whole batch
		return nil, err
	}

	text, err := firstChoiceContent(raw)
	if err != nil {
		return nil, err
	}

	envelopes, parseErr := parseBatchEnvelopes(text)
	if parseErr != nil {
		c.logger.Error("openai.batch.parse_failed",
			"req_id", rid, "error", parseErr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		// nothing salvageable: every document gets the parse error
		out := make([]extract.BatchItemResult, len(docs))
		for i, doc := range docs {
			out[i] = extract.BatchItemResult{ID: doc.ID, Err: fmt.Errorf("malformed batch response: %w", parseErr)}
		}
		return out, nil
	}

	byIndex := make(map[int]batchEnvelope, len(envelopes))
	for _, env := range envelopes {
		byIndex[env.Index] = env
	}

	out := make([]extract.BatchItemResult, len(docs))
	for i, doc := range docs {
		env, ok := byIndex[i]
		if !ok {
			out[i] = extract.BatchItemResult{
				ID:  doc.ID,
				Err: fmt.Errorf("batch response missing index %d", i),
			}
			continue
		}
		if len(env.Fields) == 0 {
			msg := "batch response returned no fields"
			if len(env.Error) > 0 {
				msg = fmt.Sprintf("provider error for index %d: %s", i, strings.Trim(string(env.Error), `"`))
			}
			out[i] = extract.BatchItemResult{ID: doc.ID, Err: fmt.Errorf("%s", msg)}
			continue
		}
		raw, err := json.Marshal(env.Fields)
		if err != nil {
			out[i] = extract.BatchItemResult{ID: doc.ID, Err: fmt.Errorf("encode fields for index %d: %w", i, err)}
			continue
		}
		if err := extract.ValidateFieldsAgainstSchema(schema, raw); err != nil {
			c.logger.Error("openai.batch.schema_validation_failed",
				"req_id", rid, "index", i, "error", err,
			)
			out[i] = extract.BatchItemResult{ID: doc.ID, Err: fmt.Errorf("schema validation failed for index %d: %w", i, err)}
			continue
		}
		out[i] = extract.BatchItemResult{
			ID:         doc.ID,
			Fields:     env.Fields,
			Confidence: env.Confidence,
		}
	}

	c.logger.Info("openai.batch.ok",
		"req_id", rid,
		"documents", len(docs),
		"envelopes", len(envelopes),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// parseBatchEnvelopes decodes the response array, attempting to locate an
// array embedded in surrounding prose before giving up.
func parseBatchEnvelopes(text string) ([]batchEnvelope, error) {
	text = strings.TrimSpace(text)

	var envelopes []batchEnvelope
	if err := json.Unmarshal([]byte(text), &envelopes); err == nil {
		return envelopes, nil
	}

	// best-effort: models sometimes wrap the array in markdown or commentary
	lo := strings.Index(text, "[")
	hi := strings.LastIndex(text, "]")
	if lo >= 0 && hi > lo {
		if err := json.Unmarshal([]byte(text[lo:hi+1]), &envelopes); err == nil {
			return envelopes, nil
		}
	}
	return nil, fmt.Errorf("response is not a well-formed array")
}

// Package formrec implements the structured extractor adapter, a
// form-recognizer-style service hosting one trained model per document type.
package formrec

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/michaelloggins/Accession-sub000/internal/common"
	"github.com/michaelloggins/Accession-sub000/internal/extract"
)

type Client struct {
	cfg        common.StructuredConfig
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg common.StructuredConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

type analyzeRequest struct {
	Document string `json:"document"` // base64 content
	Filename string `json:"filename"`
}

type analyzeResponse struct {
	Fields     map[string]any `json:"fields"`
	Confidence float32        `json:"confidence"`
	Error      *string        `json:"error,omitempty"`
}

// Extract runs a single document through the named trained model. A hard
// failure here is not retried; the router falls back to the general extractor.
func (c *Client) Extract(ctx context.Context, modelID string, doc extract.DocumentInput) (extract.FieldsResult, error) {
	start := time.Now()
	c.log.Info("formrec.extract.start",
		"model_id", modelID,
		"document_id", doc.ID,
		"filename", doc.Filename,
		"bytes", len(doc.Content),
	)

	body, err := json.Marshal(analyzeRequest{
		Document: base64.StdEncoding.EncodeToString(doc.Content),
		Filename: doc.Filename,
	})
	if err != nil {
		return extract.FieldsResult{}, fmt.Errorf("marshal analyze request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.Endpoint, "/") + "/models/" + modelID + ":analyze"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return extract.FieldsResult{}, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("formrec.extract.http_error",
			"model_id", modelID, "document_id", doc.ID, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return extract.FieldsResult{}, fmt.Errorf("formrec http error: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return extract.FieldsResult{}, fmt.Errorf("read formrec response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Error("formrec.extract.status_error",
			"model_id", modelID, "document_id", doc.ID, "status", resp.StatusCode,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return extract.FieldsResult{}, fmt.Errorf("formrec status %d: %s", resp.StatusCode, string(raw))
	}

	var out analyzeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return extract.FieldsResult{}, fmt.Errorf("decode formrec response: %w", err)
	}
	if out.Error != nil && *out.Error != "" {
		return extract.FieldsResult{}, fmt.Errorf("formrec model error: %s", *out.Error)
	}

	c.log.Info("formrec.extract.ok",
		"model_id", modelID,
		"document_id", doc.ID,
		"confidence", out.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return extract.FieldsResult{
		Fields:     out.Fields,
		Confidence: out.Confidence,
		ModelName:  modelID,
	}, nil
}

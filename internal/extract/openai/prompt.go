package openai

import (
	"encoding/base64"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/michaelloggins/Accession-sub000/internal/extract"
)

func buildSystemPrompt(batched bool) string {
	parts := []string{
		"You are a clinical lab-order parser. You are given scanned lab requisition documents.",
		"Extract the patient, ordering facility, and order details (physician, tests requested, specimen, collection date).",
		"Use ISO-8601 dates (YYYY-MM-DD).",
		"Report a 'confidence' number between 0 and 1 for how certain you are of the extraction overall.",
		"Never output null. If a field is not present, omit it.",
	}
	if batched {
		parts = append(parts,
			"You will receive several documents, each labeled 'Document <index>'.",
			"Return ONLY a JSON array with one object per document, each shaped as {\"index\": <index>, \"fields\": {...}, \"confidence\": <0..1>}.",
			"Every index you were given must appear exactly once in the array.",
		)
	} else {
		parts = append(parts, "Return ONLY JSON that matches the JSON Schema provided.")
	}
	return strings.Join(parts, " ")
}

// buildDocumentContent renders one document as a content-part array. index < 0
// means a single-document request with no index label.
func buildDocumentContent(doc extract.DocumentInput, index int) []map[string]any {
	label := "Document"
	if index >= 0 {
		label = fmt.Sprintf("Document %d", index)
	}
	return []map[string]any{
		{"type": "text", "text": fmt.Sprintf("%s (filename: %s):", label, doc.Filename)},
		{"type": "image_url", "image_url": map[string]any{"url": asDataURL(doc)}},
	}
}

func asDataURL(doc extract.DocumentInput) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(doc.Filename), "."))
	mt := mime.TypeByExtension("." + ext)
	if mt == "" {
		switch ext {
		case "jpg", "jpeg":
			mt = "image/jpeg"
		case "png":
			mt = "image/png"
		case "pdf":
			mt = "application/pdf"
		default:
			mt = "application/octet-stream"
		}
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(doc.Content)
}

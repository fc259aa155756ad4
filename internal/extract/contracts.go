package extract

import "context"

// DocumentInput is one document's content handed to a provider adapter.
type DocumentInput struct {
	ID       int64
	Content  []byte
	Filename string
}

// FieldsResult is a provider's answer for a single document.
type FieldsResult struct {
	Fields     map[string]any
	Confidence float32
	ModelName  string
}

// BatchItemResult is one document's slot in a batched provider response,
// re-associated by ID, never by arrival order.
type BatchItemResult struct {
	ID         int64
	Fields     map[string]any
	Confidence float32
	Err        error
}

// Options carries the per-cycle provider tuning knobs.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// StructuredExtractor is the per-document-type trained model, used first when
// the type's policy enables it.
type StructuredExtractor interface {
	Extract(ctx context.Context, modelID string, doc DocumentInput) (FieldsResult, error)
}

// GeneralExtractor is the vision-language model: always available, used as
// the fallback or the default, and able to encode several documents into one
// provider call.
type GeneralExtractor interface {
	ExtractOne(ctx context.Context, doc DocumentInput, opts Options) (FieldsResult, error)
	// ExtractBatch returns one result per input; the returned slice need not
	// preserve input order, but every input ID must be addressable in it.
	ExtractBatch(ctx context.Context, docs []DocumentInput, opts Options) ([]BatchItemResult, error)
}

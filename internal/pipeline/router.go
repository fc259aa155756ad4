package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/michaelloggins/Accession-sub000/constants"
	"github.com/michaelloggins/Accession-sub000/internal/common"
	"github.com/michaelloggins/Accession-sub000/internal/config"
	"github.com/michaelloggins/Accession-sub000/internal/entity"
	"github.com/michaelloggins/Accession-sub000/internal/extract"
	"github.com/michaelloggins/Accession-sub000/internal/repository"
)

// Outcome is one document's resolved extraction: either fields with a
// confidence and the method that produced them, or an error.
type Outcome struct {
	Doc        entity.Document
	Fields     map[string]any
	Confidence float32
	Method     constants.ExtractionMethod
	Err        error
}

// ExtractionRouter drives the extractor cascade: structured model first when
// the document type's policy enables it, general extractor as fallback or
// default, with the general documents of a cycle folded into one batched call.
type ExtractionRouter struct {
	policies   repository.PolicyRepository
	structured extract.StructuredExtractor
	general    extract.GeneralExtractor
	log        *slog.Logger
}

func NewExtractionRouter(policies repository.PolicyRepository, structured extract.StructuredExtractor, general extract.GeneralExtractor, log *slog.Logger) *ExtractionRouter {
	if log == nil {
		log = slog.Default()
	}
	return &ExtractionRouter{policies: policies, structured: structured, general: general, log: log}
}

type generalItem struct {
	pos      int // index into outcomes
	fallback bool
}

// Route resolves every document and returns outcomes in input order.
// Documents are admitted to provider calls in that order; batched results are
// re-associated by id, never by arrival order.
func (r *ExtractionRouter) Route(ctx context.Context, docs []entity.Document, contents map[int64][]byte, snap config.Snapshot) []Outcome {
	outcomes := make([]Outcome, len(docs))
	var generalQueue []generalItem

	for i, doc := range docs {
		outcomes[i] = Outcome{Doc: doc}
		input := extract.DocumentInput{
			ID:       doc.ID,
			Content:  contents[doc.ID],
			Filename: objectFilename(doc),
		}

		policy := r.policyFor(ctx, doc)
		if !policy.StructuredEligible() {
			generalQueue = append(generalQueue, generalItem{pos: i})
			continue
		}

		res, err := r.structured.Extract(ctx, *policy.StructuredModelID, input)
		switch {
		case err != nil:
			r.log.Warn("structured extraction failed, falling back",
				"document_id", doc.ID, "model_id", *policy.StructuredModelID, "err", err)
			generalQueue = append(generalQueue, generalItem{pos: i, fallback: true})
		case res.Confidence < policy.StructuredConfidenceThreshold:
			r.log.Info("structured confidence below threshold, falling back",
				"document_id", doc.ID,
				"confidence", res.Confidence,
				"threshold", policy.StructuredConfidenceThreshold)
			generalQueue = append(generalQueue, generalItem{pos: i, fallback: true})
		default:
			outcomes[i].Fields = res.Fields
			outcomes[i].Confidence = res.Confidence
			outcomes[i].Method = constants.MethodFormRecognizer
		}
	}

	r.runGeneral(ctx, generalQueue, outcomes, contents, snap)
	return outcomes
}

func (r *ExtractionRouter) runGeneral(ctx context.Context, queue []generalItem, outcomes []Outcome, contents map[int64][]byte, snap config.Snapshot) {
	if len(queue) == 0 {
		return
	}
	opts := extract.Options{Temperature: snap.ModelTemperature, MaxTokens: snap.ModelMaxTokens}

	method := func(it generalItem) constants.ExtractionMethod {
		if it.fallback {
			return constants.MethodOpenAIFallback
		}
		return constants.MethodOpenAI
	}

	if len(queue) == 1 {
		it := queue[0]
		doc := outcomes[it.pos].Doc
		res, err := r.general.ExtractOne(ctx, extract.DocumentInput{
			ID:       doc.ID,
			Content:  contents[doc.ID],
			Filename: objectFilename(doc),
		}, opts)
		outcomes[it.pos].Method = method(it)
		if err != nil {
			outcomes[it.pos].Err = err
			return
		}
		outcomes[it.pos].Fields = res.Fields
		outcomes[it.pos].Confidence = res.Confidence
		return
	}

	inputs := make([]extract.DocumentInput, len(queue))
	for i, it := range queue {
		doc := outcomes[it.pos].Doc
		inputs[i] = extract.DocumentInput{
			ID:       doc.ID,
			Content:  contents[doc.ID],
			Filename: objectFilename(doc),
		}
	}

	items, err := r.general.ExtractBatch(ctx, inputs, opts)
	if err != nil {
		// provider-level failure: every queued document fails with it
		for _, it := range queue {
			outcomes[it.pos].Method = method(it)
			outcomes[it.pos].Err = err
		}
		return
	}

	byID := make(map[int64]extract.BatchItemResult, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	for _, it := range queue {
		doc := outcomes[it.pos].Doc
		outcomes[it.pos].Method = method(it)
		item, ok := byID[doc.ID]
		if !ok {
			outcomes[it.pos].Err = fmt.Errorf("batched response did not address document %d", doc.ID)
			continue
		}
		if item.Err != nil {
			outcomes[it.pos].Err = item.Err
			continue
		}
		outcomes[it.pos].Fields = item.Fields
		outcomes[it.pos].Confidence = item.Confidence
	}
}

func (r *ExtractionRouter) policyFor(ctx context.Context, doc entity.Document) *entity.DocumentTypePolicy {
	if doc.DocumentType == nil || *doc.DocumentType == "" {
		return nil
	}
	policy, err := r.policies.GetByType(ctx, *doc.DocumentType)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			r.log.Warn("policy lookup failed, routing to general extractor",
				"document_id", doc.ID, "doc_type", *doc.DocumentType, "err", err)
		}
		return nil
	}
	return policy
}

func objectFilename(doc entity.Document) string {
	if doc.ObjectKey == nil {
		return ""
	}
	return path.Base(*doc.ObjectKey)
}

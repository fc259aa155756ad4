package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/michaelloggins/Accession-sub000/constants"
	"github.com/michaelloggins/Accession-sub000/internal/config"
	"github.com/michaelloggins/Accession-sub000/internal/crypto"
	"github.com/michaelloggins/Accession-sub000/internal/metrics"
	"github.com/michaelloggins/Accession-sub000/internal/repository"
)

// ResultProcessor merges one resolved outcome into the document record:
// encryption, status transition, auto-approval, error capture, policy
// counters, then lifecycle enrichment.
type ResultProcessor struct {
	docs     repository.DocumentRepository
	policies repository.PolicyRepository
	enricher *LifecycleEnricher
	enc      crypto.FieldEncryptor
	metrics  *metrics.Metrics
	log      *slog.Logger
}

func NewResultProcessor(
	docs repository.DocumentRepository,
	policies repository.PolicyRepository,
	enricher *LifecycleEnricher,
	enc crypto.FieldEncryptor,
	m *metrics.Metrics,
	log *slog.Logger,
) *ResultProcessor {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &ResultProcessor{docs: docs, policies: policies, enricher: enricher, enc: enc, metrics: m, log: log}
}

// Process persists one outcome and reports whether the document succeeded.
// Document-level errors never escape; the returned error is reserved for
// record-store failures, which abort the cycle.
func (p *ResultProcessor) Process(ctx context.Context, out Outcome, snap config.Snapshot) (bool, error) {
	doc := out.Doc

	if out.Err != nil {
		p.log.Warn("document extraction failed",
			"document_id", doc.ID, "attempt", doc.ExtractionAttempts, "err", out.Err)
		if err := p.docs.MarkFailed(ctx, doc.ID, out.Err.Error()); err != nil {
			return false, err
		}
		p.metrics.DocumentsFailed.Inc()
		return false, nil
	}

	encrypted, err := p.enc.EncryptFields(out.Fields)
	if err != nil {
		p.log.Error("field encryption failed", "document_id", doc.ID, "err", err)
		if markErr := p.docs.MarkFailed(ctx, doc.ID, "encrypt fields: "+err.Error()); markErr != nil {
			return false, markErr
		}
		p.metrics.DocumentsFailed.Inc()
		return false, nil
	}
	payload, err := json.Marshal(encrypted)
	if err != nil {
		p.log.Error("field payload encode failed", "document_id", doc.ID, "err", err)
		if markErr := p.docs.MarkFailed(ctx, doc.ID, "encode fields: "+err.Error()); markErr != nil {
			return false, markErr
		}
		p.metrics.DocumentsFailed.Inc()
		return false, nil
	}

	review := constants.ReviewPending
	if out.Confidence >= snap.AutoApproveThreshold {
		review = constants.ReviewAutoApproved
	}

	if err := p.docs.MarkExtracted(ctx, doc.ID, repository.ExtractedResult{
		EncryptedFields: payload,
		Confidence:      out.Confidence,
		Method:          out.Method,
		ReviewStatus:    review,
	}); err != nil {
		return false, err
	}
	doc.ProcessingStatus = constants.ProcessingExtracted
	doc.ReviewStatus = review

	p.log.Info("document extracted",
		"document_id", doc.ID,
		"method", out.Method,
		"confidence", out.Confidence,
		"review_status", review,
	)
	p.metrics.DocumentsExtracted.WithLabelValues(string(out.Method)).Inc()
	if out.Method == constants.MethodOpenAIFallback {
		p.metrics.Fallbacks.Inc()
	}

	// counters are observability only; their failure never fails the document
	if doc.DocumentType != nil && *doc.DocumentType != "" {
		if err := p.policies.IncrementCounters(ctx, *doc.DocumentType, out.Method); err != nil {
			p.log.Warn("policy counter update failed", "doc_type", *doc.DocumentType, "err", err)
		}
	}

	if snap.EnrichmentEnabled {
		// enrichment failures are logged inside; extraction success stands
		p.enricher.Enrich(ctx, &doc, out.Fields, snap)
	}
	return true, nil
}

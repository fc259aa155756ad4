package pipeline

import (
	"context"
	"log/slog"

	"github.com/michaelloggins/Accession-sub000/constants"
	"github.com/michaelloggins/Accession-sub000/internal/config"
	"github.com/michaelloggins/Accession-sub000/internal/entity"
	"github.com/michaelloggins/Accession-sub000/internal/repository"
)

// FailureHandler decides what happens to a batch's failed documents: requeue
// the ones with retry budget left, or split an exhausted multi-document batch
// into independent single-document re-runs.
type FailureHandler struct {
	docs repository.DocumentRepository
	log  *slog.Logger
}

func NewFailureHandler(docs repository.DocumentRepository, log *slog.Logger) *FailureHandler {
	if log == nil {
		log = slog.Default()
	}
	return &FailureHandler{docs: docs, log: log}
}

// Handle is invoked whenever a batch resolves with failures. It returns the
// terminal status the batch should close with.
func (h *FailureHandler) Handle(ctx context.Context, batch *entity.Batch, failed []entity.Document, snap config.Snapshot) (constants.BatchStatus, error) {
	if len(failed) == 0 {
		return constants.BatchCompleted, nil
	}

	var exhausted []entity.Document
	requeued := 0
	for _, doc := range failed {
		if doc.ExtractionAttempts < snap.MaxRetries {
			if err := h.docs.Requeue(ctx, doc.ID); err != nil {
				return constants.BatchFailed, err
			}
			h.log.Info("document requeued for retry",
				"document_id", doc.ID, "attempt", doc.ExtractionAttempts, "max_retries", snap.MaxRetries)
			requeued++
			continue
		}
		exhausted = append(exhausted, doc)
	}

	// splitting bounds the blast radius of a correlated failure (one bad
	// document poisoning a multi-document provider call) to re-runs of size one
	if requeued == 0 && len(exhausted) > 0 && batch.DocumentCount > 1 {
		for _, doc := range exhausted {
			if err := h.docs.ResetForSplit(ctx, doc.ID, batch.ID); err != nil {
				return constants.BatchFailed, err
			}
			h.log.Info("document reset by batch split", "document_id", doc.ID, "origin_batch", batch.ID)
		}
		return constants.BatchSplit, nil
	}

	for _, doc := range exhausted {
		h.log.Warn("document permanently failed, retries exhausted",
			"document_id", doc.ID, "attempts", doc.ExtractionAttempts)
	}
	return constants.BatchFailed, nil
}

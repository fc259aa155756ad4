package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/michaelloggins/Accession-sub000/constants"
	"github.com/michaelloggins/Accession-sub000/internal/entity"
	"github.com/michaelloggins/Accession-sub000/internal/repository"
)

// BatchCoordinator owns the Batch records: it is the only code that creates
// them, and it closes them once every member document is resolved.
type BatchCoordinator struct {
	batches repository.BatchRepository
	log     *slog.Logger
}

func NewBatchCoordinator(batches repository.BatchRepository, log *slog.Logger) *BatchCoordinator {
	if log == nil {
		log = slog.Default()
	}
	return &BatchCoordinator{batches: batches, log: log}
}

// Open creates the batch and claims the selected documents in one transaction.
// The passed slice is updated in place to mirror the claim (status, batch
// link, attempt bump), so later stages see current state without a re-read.
func (c *BatchCoordinator) Open(ctx context.Context, docs []entity.Document) (*entity.Batch, error) {
	now := time.Now().UTC()
	b := &entity.Batch{
		ID:            uuid.New(),
		Status:        constants.BatchProcessing,
		DocumentCount: len(docs),
		AttemptNumber: 1,
		CreatedAt:     now,
		StartedAt:     &now,
	}

	// a singleton re-run of a split document records its lineage
	if len(docs) == 1 && docs[0].SplitFromBatchID != nil {
		b.ParentBatchID = docs[0].SplitFromBatchID
		if parent, err := c.batches.GetByID(ctx, *docs[0].SplitFromBatchID); err == nil {
			b.AttemptNumber = parent.AttemptNumber + 1
		} else {
			c.log.Warn("parent batch lookup failed", "parent_batch_id", *docs[0].SplitFromBatchID, "err", err)
		}
	}

	ids := make([]int64, len(docs))
	for i := range docs {
		ids[i] = docs[i].ID
	}
	if err := c.batches.OpenWithDocuments(ctx, b, ids); err != nil {
		return nil, err
	}

	for i := range docs {
		docs[i].ProcessingStatus = constants.ProcessingActive
		docs[i].BatchID = &b.ID
		docs[i].ExtractionAttempts++
		docs[i].ExtractionStartedAt = &now
	}
	return b, nil
}

// Close finalizes the batch with its counts and terminal status. A batch
// already in a terminal status is left untouched.
func (c *BatchCoordinator) Close(ctx context.Context, b *entity.Batch, successful, failed int, status constants.BatchStatus, errorMessage *string) error {
	if b.Terminal() {
		c.log.Warn("batch already closed", "batch_id", b.ID, "status", b.Status)
		return nil
	}
	b.SuccessfulCount = successful
	b.FailedCount = failed
	b.Status = status
	b.ErrorMessage = errorMessage
	return c.batches.Close(ctx, b.ID, successful, failed, status, errorMessage)
}

package pipeline

import (
	"context"
	"log/slog"

	"github.com/michaelloggins/Accession-sub000/internal/config"
	"github.com/michaelloggins/Accession-sub000/internal/entity"
	"github.com/michaelloggins/Accession-sub000/internal/repository"
)

// QueueSelector picks the documents for the next batch: queued, with retry
// budget remaining, oldest first.
type QueueSelector struct {
	docs repository.DocumentRepository
	log  *slog.Logger
}

func NewQueueSelector(docs repository.DocumentRepository, log *slog.Logger) *QueueSelector {
	if log == nil {
		log = slog.Default()
	}
	return &QueueSelector{docs: docs, log: log}
}

// Select returns up to snap.BatchSize eligible documents. A document that was
// reset by a batch split must re-run alone, so the selection is cut at the
// first split-annotated document: either it is at the head and selected as a
// singleton, or everything before it forms the batch.
func (s *QueueSelector) Select(ctx context.Context, snap config.Snapshot) ([]entity.Document, error) {
	docs, err := s.docs.SelectQueued(ctx, snap.BatchSize, snap.MaxRetries)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if docs[i].SplitFromBatchID == nil {
			continue
		}
		if i == 0 {
			s.log.Debug("selected split document as singleton", "document_id", docs[0].ID)
			return docs[:1], nil
		}
		return docs[:i], nil
	}
	return docs, nil
}

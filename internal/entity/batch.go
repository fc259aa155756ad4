package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/michaelloggins/Accession-sub000/constants"
)

// Batch represents a cohort of documents submitted to the extractor cascade together.
type Batch struct {
	ID              uuid.UUID             `json:"id"`
	Status          constants.BatchStatus `json:"status"`
	DocumentCount   int                   `json:"document_count"`
	SuccessfulCount int                   `json:"successful_count"`
	FailedCount     int                   `json:"failed_count"`
	AttemptNumber   int                   `json:"attempt_number"`
	ParentBatchID   *uuid.UUID            `json:"parent_batch_id,omitempty"` // set when this batch re-runs a split document
	ErrorMessage    *string               `json:"error_message,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	StartedAt       *time.Time            `json:"started_at,omitempty"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
}

// Terminal reports whether the batch has reached a final status.
func (b *Batch) Terminal() bool {
	switch b.Status {
	case constants.BatchCompleted, constants.BatchFailed, constants.BatchSplit:
		return true
	}
	return false
}

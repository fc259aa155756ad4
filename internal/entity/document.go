package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/michaelloggins/Accession-sub000/constants"
)

// Document represents one ingested lab-order file for data transfer between layers.
type Document struct {
	ID                    int64                       `json:"id"`
	AccessionCode         string                      `json:"accession_code"`
	ObjectKey             *string                     `json:"object_key,omitempty"` // nil for manually entered records
	DocumentType          *string                     `json:"document_type,omitempty"`
	ProcessingStatus      constants.ProcessingStatus  `json:"processing_status"`
	ReviewStatus          constants.ReviewStatus      `json:"review_status"`
	ExtractionAttempts    int                         `json:"extraction_attempts"`
	LastExtractionError   *string                     `json:"last_extraction_error,omitempty"`
	BatchID               *uuid.UUID                  `json:"batch_id,omitempty"`
	SplitFromBatchID      *uuid.UUID                  `json:"split_from_batch_id,omitempty"`
	EncryptedFields       json.RawMessage             `json:"encrypted_fields,omitempty"`
	ConfidenceScore       *float32                    `json:"confidence_score,omitempty"`
	ExtractionMethod      *constants.ExtractionMethod `json:"extraction_method,omitempty"`
	CollectionDate        *time.Time                  `json:"collection_date,omitempty"`
	QueuedAt              time.Time                   `json:"queued_at"`
	ExtractionStartedAt   *time.Time                  `json:"extraction_started_at,omitempty"`
	ExtractionCompletedAt *time.Time                  `json:"extraction_completed_at,omitempty"`
}

// DeriveAccessionCode builds the human-readable accession code for a document.
// The date component comes from the collection date when known, otherwise from
// the time the document entered the queue.
func DeriveAccessionCode(id int64, collected *time.Time, queuedAt time.Time) string {
	d := queuedAt
	if collected != nil {
		d = *collected
	}
	return fmt.Sprintf("ACC-%s-%06d", d.UTC().Format("20060102"), id)
}

// Accession returns the stored accession code, deriving one if ingestion
// did not assign it.
func (d *Document) Accession() string {
	if d.AccessionCode != "" {
		return d.AccessionCode
	}
	return DeriveAccessionCode(d.ID, d.CollectionDate, d.QueuedAt)
}

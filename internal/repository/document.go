package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/michaelloggins/Accession-sub000/constants"
	"github.com/michaelloggins/Accession-sub000/internal/common"
	"github.com/michaelloggins/Accession-sub000/internal/entity"
)

// ExtractedResult carries everything the result processor persists for a
// successfully extracted document.
type ExtractedResult struct {
	EncryptedFields json.RawMessage
	Confidence      float32
	Method          constants.ExtractionMethod
	ReviewStatus    constants.ReviewStatus
}

type DocumentRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.Document, error)
	// SelectQueued returns up to limit queued documents with retry budget
	// remaining, oldest first. Manually entered records (no object key)
	// never qualify.
	SelectQueued(ctx context.Context, limit, maxRetries int) ([]entity.Document, error)
	MarkExtracted(ctx context.Context, id int64, res ExtractedResult) error
	MarkFailed(ctx context.Context, id int64, message string) error
	// Requeue returns a failed document to the queue with its batch link
	// cleared; attempts are preserved.
	Requeue(ctx context.Context, id int64) error
	// ResetForSplit zeroes attempts and requeues the document annotated with
	// the batch it was split from, so it is next processed alone.
	ResetForSplit(ctx context.Context, id int64, originBatch uuid.UUID) error
	UpdateObjectKey(ctx context.Context, id int64, key string) error
	// SweepProcessing fails every document still marked processing in the
	// given batch. Used when a cycle aborts mid-flight.
	SweepProcessing(ctx context.Context, batchID uuid.UUID, message string) (int64, error)
	// RequeueForReextract re-queues a document on explicit operator request.
	// Documents currently processing are rejected.
	RequeueForReextract(ctx context.Context, id int64) error
	ListExtractedBetween(ctx context.Context, from, to *time.Time) ([]entity.Document, error)
}

type documentRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewDocumentRepository(pool *pgxpool.Pool, log *slog.Logger) DocumentRepository {
	if log == nil {
		log = slog.Default()
	}
	return &documentRepo{pool: pool, log: log}
}

const documentColumns = `id, accession_code, object_key, document_type, processing_status,
	review_status, extraction_attempts, last_extraction_error, batch_id, split_from_batch_id,
	encrypted_fields, confidence_score, extraction_method, collection_date,
	queued_at, extraction_started_at, extraction_completed_at`

func scanDocument(row pgx.Row) (*entity.Document, error) {
	var d entity.Document
	err := row.Scan(
		&d.ID, &d.AccessionCode, &d.ObjectKey, &d.DocumentType, &d.ProcessingStatus,
		&d.ReviewStatus, &d.ExtractionAttempts, &d.LastExtractionError, &d.BatchID, &d.SplitFromBatchID,
		&d.EncryptedFields, &d.ConfidenceScore, &d.ExtractionMethod, &d.CollectionDate,
		&d.QueuedAt, &d.ExtractionStartedAt, &d.ExtractionCompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *documentRepo) GetByID(ctx context.Context, id int64) (*entity.Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	d, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "get document")
	}
	return d, nil
}

func (r *documentRepo) SelectQueued(ctx context.Context, limit, maxRetries int) ([]entity.Document, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE processing_status = $1
		  AND extraction_attempts < $2
		  AND object_key IS NOT NULL
		ORDER BY queued_at ASC
		LIMIT $3`,
		constants.ProcessingQueued, maxRetries, limit)
	if err != nil {
		return nil, common.WrapError(err, "select queued documents")
	}
	defer rows.Close()

	var docs []entity.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, common.WrapError(err, "scan queued document")
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func (r *documentRepo) MarkExtracted(ctx context.Context, id int64, res ExtractedResult) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET processing_status = $2,
		    review_status = $3,
		    encrypted_fields = $4,
		    confidence_score = $5,
		    extraction_method = $6,
		    last_extraction_error = NULL,
		    extraction_completed_at = now()
		WHERE id = $1`,
		id, constants.ProcessingExtracted, res.ReviewStatus, res.EncryptedFields, res.Confidence, res.Method)
	if err != nil {
		r.log.Error("document mark extracted failed", "document_id", id, "err", err)
		return common.WrapError(err, "mark extracted")
	}
	return nil
}

func (r *documentRepo) MarkFailed(ctx context.Context, id int64, message string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET processing_status = $2, last_extraction_error = $3
		WHERE id = $1`,
		id, constants.ProcessingFailed, message)
	if err != nil {
		r.log.Error("document mark failed failed", "document_id", id, "err", err)
		return common.WrapError(err, "mark failed")
	}
	return nil
}

func (r *documentRepo) Requeue(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET processing_status = $2, batch_id = NULL
		WHERE id = $1`,
		id, constants.ProcessingQueued)
	if err != nil {
		return common.WrapError(err, "requeue document")
	}
	return nil
}

func (r *documentRepo) ResetForSplit(ctx context.Context, id int64, originBatch uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET processing_status = $2,
		    batch_id = NULL,
		    split_from_batch_id = $3,
		    extraction_attempts = 0
		WHERE id = $1`,
		id, constants.ProcessingQueued, originBatch)
	if err != nil {
		return common.WrapError(err, "reset document for split")
	}
	return nil
}

func (r *documentRepo) UpdateObjectKey(ctx context.Context, id int64, key string) error {
	_, err := r.pool.Exec(ctx, `UPDATE documents SET object_key = $2 WHERE id = $1`, id, key)
	if err != nil {
		return common.WrapError(err, "update object key")
	}
	return nil
}

func (r *documentRepo) SweepProcessing(ctx context.Context, batchID uuid.UUID, message string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET processing_status = $3, last_extraction_error = $4
		WHERE batch_id = $1 AND processing_status = $2`,
		batchID, constants.ProcessingActive, constants.ProcessingFailed, message)
	if err != nil {
		return 0, common.WrapError(err, "sweep processing documents")
	}
	return tag.RowsAffected(), nil
}

func (r *documentRepo) RequeueForReextract(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET processing_status = $2, batch_id = NULL, extraction_attempts = 0,
		    last_extraction_error = NULL
		WHERE id = $1
		  AND processing_status NOT IN ($3, $4)
		  AND object_key IS NOT NULL`,
		id, constants.ProcessingQueued, constants.ProcessingActive, constants.ProcessingManual)
	if err != nil {
		return common.WrapError(err, "requeue for re-extract")
	}
	if tag.RowsAffected() == 0 {
		return common.ErrConflict
	}
	r.log.Info("document requeued for re-extract", "document_id", id)
	return nil
}

func (r *documentRepo) ListExtractedBetween(ctx context.Context, from, to *time.Time) ([]entity.Document, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE processing_status = $1
		  AND ($2::timestamptz IS NULL OR extraction_completed_at >= $2)
		  AND ($3::timestamptz IS NULL OR extraction_completed_at <= $3)
		ORDER BY extraction_completed_at ASC`,
		constants.ProcessingExtracted, from, to)
	if err != nil {
		return nil, common.WrapError(err, "list extracted documents")
	}
	defer rows.Close()

	var docs []entity.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, common.WrapError(err, "scan extracted document")
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/michaelloggins/Accession-sub000/constants"
	"github.com/michaelloggins/Accession-sub000/internal/common"
	"github.com/michaelloggins/Accession-sub000/internal/entity"
)

type BatchRepository interface {
	// OpenWithDocuments inserts the batch and claims every listed document
	// (processing status, batch link, attempt bump, started-at stamp) in one
	// transaction, so a crash mid-cycle leaves documents visibly in flight.
	OpenWithDocuments(ctx context.Context, b *entity.Batch, documentIDs []int64) error
	Close(ctx context.Context, id uuid.UUID, successful, failed int, status constants.BatchStatus, errorMessage *string) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Batch, error)
	List(ctx context.Context, limit int) ([]entity.Batch, error)
}

type batchRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewBatchRepository(pool *pgxpool.Pool, log *slog.Logger) BatchRepository {
	if log == nil {
		log = slog.Default()
	}
	return &batchRepo{pool: pool, log: log}
}

func (r *batchRepo) OpenWithDocuments(ctx context.Context, b *entity.Batch, documentIDs []int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return common.WrapError(err, "begin batch open")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO batches (id, status, document_count, successful_count, failed_count,
			attempt_number, parent_batch_id, created_at, started_at)
		VALUES ($1, $2, $3, 0, 0, $4, $5, $6, $6)`,
		b.ID, b.Status, b.DocumentCount, b.AttemptNumber, b.ParentBatchID, b.CreatedAt)
	if err != nil {
		return common.WrapError(err, "insert batch")
	}

	tag, err := tx.Exec(ctx, `
		UPDATE documents
		SET processing_status = $2,
		    batch_id = $3,
		    extraction_attempts = extraction_attempts + 1,
		    extraction_started_at = now()
		WHERE id = ANY($1) AND processing_status = $4`,
		documentIDs, constants.ProcessingActive, b.ID, constants.ProcessingQueued)
	if err != nil {
		return common.WrapError(err, "claim batch documents")
	}
	if int(tag.RowsAffected()) != len(documentIDs) {
		// another actor touched a selected document between select and claim
		return common.NewAppError("BATCH_CLAIM", "claimed fewer documents than selected", common.ErrConflict)
	}

	if err := tx.Commit(ctx); err != nil {
		return common.WrapError(err, "commit batch open")
	}
	r.log.Info("batch opened", "batch_id", b.ID, "documents", len(documentIDs), "attempt", b.AttemptNumber)
	return nil
}

func (r *batchRepo) Close(ctx context.Context, id uuid.UUID, successful, failed int, status constants.BatchStatus, errorMessage *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE batches
		SET status = $2, successful_count = $3, failed_count = $4,
		    error_message = $5, completed_at = now()
		WHERE id = $1`,
		id, status, successful, failed, errorMessage)
	if err != nil {
		r.log.Error("batch close failed", "batch_id", id, "err", err)
		return common.WrapError(err, "close batch")
	}
	r.log.Info("batch closed", "batch_id", id, "status", status, "successful", successful, "failed", failed)
	return nil
}

const batchColumns = `id, status, document_count, successful_count, failed_count,
	attempt_number, parent_batch_id, error_message, created_at, started_at, completed_at`

func scanBatch(row pgx.Row) (*entity.Batch, error) {
	var b entity.Batch
	err := row.Scan(
		&b.ID, &b.Status, &b.DocumentCount, &b.SuccessfulCount, &b.FailedCount,
		&b.AttemptNumber, &b.ParentBatchID, &b.ErrorMessage, &b.CreatedAt, &b.StartedAt, &b.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *batchRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Batch, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = $1`, id)
	b, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "get batch")
	}
	return b, nil
}

func (r *batchRepo) List(ctx context.Context, limit int) ([]entity.Batch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+` FROM batches ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, common.WrapError(err, "list batches")
	}
	defer rows.Close()

	var batches []entity.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, common.WrapError(err, "scan batch")
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

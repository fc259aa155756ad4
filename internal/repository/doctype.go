package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/michaelloggins/Accession-sub000/constants"
	"github.com/michaelloggins/Accession-sub000/internal/common"
	"github.com/michaelloggins/Accession-sub000/internal/entity"
)

type PolicyRepository interface {
	GetByType(ctx context.Context, docType string) (*entity.DocumentTypePolicy, error)
	// IncrementCounters bumps the per-type extraction counters for the
	// method that produced a result; fallback additionally bumps the
	// fallback counter.
	IncrementCounters(ctx context.Context, docType string, method constants.ExtractionMethod) error
}

type policyRepo struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPolicyRepository(pool *pgxpool.Pool, log *slog.Logger) PolicyRepository {
	if log == nil {
		log = slog.Default()
	}
	return &policyRepo{pool: pool, log: log}
}

func (r *policyRepo) GetByType(ctx context.Context, docType string) (*entity.DocumentTypePolicy, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT name, training_enabled, use_form_recognizer, structured_model_id,
		       structured_confidence_threshold, fr_extraction_count,
		       general_extraction_count, general_fallback_count
		FROM document_type_policies
		WHERE name = $1`, docType)

	var p entity.DocumentTypePolicy
	err := row.Scan(
		&p.Name, &p.TrainingEnabled, &p.UseFormRecognizer, &p.StructuredModelID,
		&p.StructuredConfidenceThreshold, &p.FRExtractionCount,
		&p.GeneralExtractionCount, &p.GeneralFallbackCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "get document type policy")
	}
	return &p, nil
}

func (r *policyRepo) IncrementCounters(ctx context.Context, docType string, method constants.ExtractionMethod) error {
	var column string
	switch method {
	case constants.MethodFormRecognizer:
		column = "fr_extraction_count"
	case constants.MethodOpenAI:
		column = "general_extraction_count"
	case constants.MethodOpenAIFallback:
		column = "general_fallback_count"
	default:
		return common.NewAppError("POLICY_COUNTER", "unknown extraction method "+string(method), common.ErrInvalidInput)
	}

	sql := `UPDATE document_type_policies SET ` + column + ` = ` + column + ` + 1`
	if method == constants.MethodOpenAIFallback {
		// a fallback is still a general extraction
		sql += `, general_extraction_count = general_extraction_count + 1`
	}
	sql += ` WHERE name = $1`

	if _, err := r.pool.Exec(ctx, sql, docType); err != nil {
		r.log.Error("policy counter update failed", "doc_type", docType, "method", method, "err", err)
		return common.WrapError(err, "increment policy counters")
	}
	return nil
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/michaelloggins/Accession-sub000/internal/config"
	"github.com/michaelloggins/Accession-sub000/internal/entity"
	"github.com/michaelloggins/Accession-sub000/internal/repository"
	"github.com/michaelloggins/Accession-sub000/internal/storage"
)

// EnrichmentOutcome reports each enrichment step's result. Steps are
// independently best-effort: a later failure never undoes an earlier step.
type EnrichmentOutcome struct {
	FinalKey     string
	RenameErr    error
	KeyCommitErr error
	MetadataErr  error
	RetentionErr error
}

// LifecycleEnricher performs the post-extraction object-store work: canonical
// rename, full metadata, and the retention (immutability) policy.
type LifecycleEnricher struct {
	store storage.Gateway
	docs  repository.DocumentRepository
	log   *slog.Logger
}

func NewLifecycleEnricher(store storage.Gateway, docs repository.DocumentRepository, log *slog.Logger) *LifecycleEnricher {
	if log == nil {
		log = slog.Default()
	}
	return &LifecycleEnricher{store: store, docs: docs, log: log}
}

// Enrich runs all three steps against the document's stored object. Every
// failure is logged and reported in the outcome; none is raised.
func (e *LifecycleEnricher) Enrich(ctx context.Context, doc *entity.Document, fields map[string]any, snap config.Snapshot) EnrichmentOutcome {
	var out EnrichmentOutcome
	if doc.ObjectKey == nil {
		return out
	}
	currentKey := *doc.ObjectKey
	out.FinalKey = currentKey

	collected := e.collectionDate(doc, fields)
	canonical := CanonicalObjectKey(collected, doc.Accession(), path.Ext(currentKey))

	// 1) canonical rename: copy, commit the new key, then drop the original.
	if canonical != currentKey {
		if err := e.store.Copy(ctx, currentKey, canonical); err != nil {
			out.RenameErr = err
			e.log.Warn("enrichment step failed", "step", "rename", "document_id", doc.ID,
				"from", currentKey, "to", canonical, "err", err)
		} else {
			out.FinalKey = canonical
			if err := e.docs.UpdateObjectKey(ctx, doc.ID, canonical); err != nil {
				// bytes already live at the canonical key, so the remaining
				// steps target it; the commit is retried below
				out.KeyCommitErr = err
				e.log.Warn("enrichment step failed", "step", "key_commit", "document_id", doc.ID,
					"key", canonical, "err", err)
			} else {
				doc.ObjectKey = &canonical
			}
			if err := e.store.Delete(ctx, currentKey); err != nil {
				e.log.Warn("enrichment step failed", "step", "delete_original", "document_id", doc.ID,
					"key", currentKey, "err", err)
			}
		}
	}

	// 2) full metadata on whichever key holds the bytes now.
	if err := e.store.SetMetadata(ctx, out.FinalKey, BuildObjectMetadata(doc, fields, collected)); err != nil {
		out.MetadataErr = err
		e.log.Warn("enrichment step failed", "step", "metadata", "document_id", doc.ID,
			"key", out.FinalKey, "err", err)
	}

	// 3) unlocked retention for the configured window.
	until := time.Now().UTC().AddDate(snap.RetentionYears, 0, 1)
	if err := e.store.SetRetention(ctx, out.FinalKey, until); err != nil {
		out.RetentionErr = err
		e.log.Warn("enrichment step failed", "step", "retention", "document_id", doc.ID,
			"key", out.FinalKey, "until", until, "err", err)
	}

	if out.KeyCommitErr != nil {
		if err := e.docs.UpdateObjectKey(ctx, doc.ID, out.FinalKey); err == nil {
			out.KeyCommitErr = nil
			doc.ObjectKey = &out.FinalKey
		}
	}
	return out
}

func (e *LifecycleEnricher) collectionDate(doc *entity.Document, fields map[string]any) time.Time {
	if order, ok := fields["order"].(map[string]any); ok {
		if raw, ok := order["collection_date"].(string); ok {
			if d, err := time.Parse("2006-01-02", raw); err == nil {
				return d
			}
		}
	}
	if doc.CollectionDate != nil {
		return *doc.CollectionDate
	}
	return doc.QueuedAt
}

// CanonicalObjectKey is the store location a document settles at once
// extracted: orders/<year>/<month>/<accession><ext>.
func CanonicalObjectKey(collected time.Time, accession, ext string) string {
	return fmt.Sprintf("orders/%04d/%02d/%s%s", collected.Year(), int(collected.Month()), accession, ext)
}

// BuildObjectMetadata assembles the object's full metadata map from the
// extracted fields and document lifecycle. Values are sanitized by the store
// gateway before the write.
func BuildObjectMetadata(doc *entity.Document, fields map[string]any, collected time.Time) map[string]string {
	meta := map[string]string{
		"accession_code":  doc.Accession(),
		"document_id":     fmt.Sprintf("%d", doc.ID),
		"collection_date": collected.Format("2006-01-02"),
		"queued_at":       doc.QueuedAt.UTC().Format(time.RFC3339),
	}
	if doc.DocumentType != nil {
		meta["document_type"] = *doc.DocumentType
	}
	if doc.ExtractionCompletedAt != nil {
		meta["extracted_at"] = doc.ExtractionCompletedAt.UTC().Format(time.RFC3339)
	}

	if facility, ok := fields["facility"].(map[string]any); ok {
		putString(meta, "facility", facility, "facility_name")
	}
	if patient, ok := fields["patient"].(map[string]any); ok {
		putString(meta, "patient_name", patient, "patient_name")
		putString(meta, "patient_mrn", patient, "mrn")
		putString(meta, "patient_dob", patient, "date_of_birth")
	}
	if order, ok := fields["order"].(map[string]any); ok {
		putString(meta, "ordering_physician", order, "physician_name")
		putString(meta, "specimen_type", order, "specimen_type")
		if tests, ok := order["tests"].([]any); ok {
			var names []string
			for _, t := range tests {
				if s, ok := t.(string); ok {
					names = append(names, s)
				}
			}
			if len(names) > 0 {
				meta["tests_requested"] = joinBounded(names)
			}
		}
	}
	return meta
}

func putString(meta map[string]string, metaKey string, src map[string]any, srcKey string) {
	if s, ok := src[srcKey].(string); ok && s != "" {
		meta[metaKey] = s
	}
}

func joinBounded(names []string) string {
	out := ""
	for i, n := range names {
		next := out
		if i > 0 {
			next += ", "
		}
		next += n
		if len(next) > storage.MaxMetadataValueLen {
			return out
		}
		out = next
	}
	return out
}

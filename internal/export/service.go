package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/michaelloggins/Accession-sub000/internal/crypto"
	"github.com/michaelloggins/Accession-sub000/internal/repository"
)

// Service is a tiny façade over repositories that produces XLSX bytes
// for human review of extracted documents.
type Service struct {
	docs      repository.DocumentRepository
	encryptor crypto.FieldEncryptor
	logger    *slog.Logger
}

func NewService(docs repository.DocumentRepository, encryptor crypto.FieldEncryptor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{docs: docs, encryptor: encryptor, logger: logger}
}

// ExportReviewXLSX returns an XLSX workbook (as bytes) of documents
// extracted within the given date window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> all extracted documents.
func (s *Service) ExportReviewXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	// Normalize dates (date-only, UTC)
	var fromDate, toDate *time.Time
	if from != nil {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		fromDate = &f
	}
	if to != nil {
		t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		today := time.Now().UTC()
		t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
		toDate = &t
	}

	docs, err := s.docs.ListExtractedBetween(ctx, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Extractions"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		_, err := f.NewSheet(sheet)
		if err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Accession Code",
		"Document Type",
		"Patient",
		"Collection Date",
		"Tests Requested",
		"Ordering Physician",
		"Confidence",
		"Method",
		"Review Status",
		"Object Key",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, d := range docs {
		fields := s.decryptFields(ctx, d.ID, d.EncryptedFields)

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, d.Accession())

		docType := ""
		if d.DocumentType != nil {
			docType = *d.DocumentType
		}
		write(2, docType)

		write(3, nestedString(fields, "patient", "patient_name"))

		if d.CollectionDate != nil {
			write(4, d.CollectionDate.Format("2006-01-02"))
		} else {
			write(4, nestedString(fields, "order", "collection_date"))
		}

		write(5, truncate(testsRequested(fields), 140))
		write(6, nestedString(fields, "order", "physician_name"))

		if d.ConfidenceScore != nil {
			write(7, fmt.Sprintf("%.2f", *d.ConfidenceScore))
		}
		if d.ExtractionMethod != nil {
			write(8, string(*d.ExtractionMethod))
		}
		write(9, string(d.ReviewStatus))

		key := ""
		if d.ObjectKey != nil {
			key = *d.ObjectKey
		}
		write(10, key)

		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 20) // accession
	_ = f.SetColWidth(sheet, "B", "B", 18) // type
	_ = f.SetColWidth(sheet, "C", "C", 26) // patient
	_ = f.SetColWidth(sheet, "D", "D", 14) // date
	_ = f.SetColWidth(sheet, "E", "E", 48) // tests
	_ = f.SetColWidth(sheet, "F", "F", 26) // physician
	_ = f.SetColWidth(sheet, "G", "I", 14) // confidence, method, review
	_ = f.SetColWidth(sheet, "J", "J", 60) // key

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(docs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// decryptFields returns the document's extracted fields with sensitive
// values in the clear. Failures degrade to the encrypted form rather
// than dropping the row.
func (s *Service) decryptFields(ctx context.Context, docID int64, raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		s.logger.Warn("export.fields.unmarshal_failed", "document_id", docID, "error", err)
		return nil
	}
	decrypted, err := s.encryptor.DecryptFields(fields)
	if err != nil {
		s.logger.Warn("export.fields.decrypt_failed", "document_id", docID, "error", err)
		return fields
	}
	return decrypted
}

func nestedString(fields map[string]any, object, key string) string {
	if fields == nil {
		return ""
	}
	obj, ok := fields[object].(map[string]any)
	if !ok {
		return ""
	}
	v, ok := obj[key].(string)
	if !ok {
		return ""
	}
	return v
}

func testsRequested(fields map[string]any) string {
	if fields == nil {
		return ""
	}
	order, ok := fields["order"].(map[string]any)
	if !ok {
		return ""
	}
	raw, ok := order["tests"].([]any)
	if !ok {
		return ""
	}
	var tests []string
	for _, t := range raw {
		if s, ok := t.(string); ok && s != "" {
			tests = append(tests, s)
		}
	}
	return strings.Join(tests, ", ")
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return string(r[:1])
	}
	return string(r[:n-1]) + "…"
}

package export

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/michaelloggins/Accession-sub000/constants"
	"github.com/michaelloggins/Accession-sub000/internal/crypto"
	"github.com/michaelloggins/Accession-sub000/internal/entity"
	"github.com/michaelloggins/Accession-sub000/internal/repository"
)

type stubDocs struct {
	docs []entity.Document
}

func (s *stubDocs) ListExtractedBetween(context.Context, *time.Time, *time.Time) ([]entity.Document, error) {
	return s.docs, nil
}

func (s *stubDocs) GetByID(context.Context, int64) (*entity.Document, error) { return nil, nil }
func (s *stubDocs) SelectQueued(context.Context, int, int) ([]entity.Document, error) {
	return nil, nil
}
func (s *stubDocs) MarkExtracted(context.Context, int64, repository.ExtractedResult) error {
	return nil
}
func (s *stubDocs) MarkFailed(context.Context, int64, string) error       { return nil }
func (s *stubDocs) Requeue(context.Context, int64) error                  { return nil }
func (s *stubDocs) ResetForSplit(context.Context, int64, uuid.UUID) error { return nil }
func (s *stubDocs) UpdateObjectKey(context.Context, int64, string) error  { return nil }
func (s *stubDocs) SweepProcessing(context.Context, uuid.UUID, string) (int64, error) {
	return 0, nil
}
func (s *stubDocs) RequeueForReextract(context.Context, int64) error { return nil }

const testKeyHex = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestExportReviewXLSXCellValues(t *testing.T) {
	enc, err := crypto.NewAESEncryptor(testKeyHex)
	require.NoError(t, err)

	fields := map[string]any{
		"patient": map[string]any{
			"patient_name": "Pat Doe",
			"mrn":          "MRN-1001",
		},
		"order": map[string]any{
			"collection_date": "2026-03-10",
			"physician_name":  "Dr. Reyes",
			"specimen_type":   "serum",
			"tests":           []any{"CBC", "CMP"},
		},
	}
	sealed, err := enc.EncryptFields(fields)
	require.NoError(t, err)
	payload, err := json.Marshal(sealed)
	require.NoError(t, err)

	queued := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	completed := queued.Add(2 * time.Hour)
	conf := float32(0.91)
	method := constants.MethodOpenAI
	key := "orders/2026/03/ACC-20260312-000042.pdf"
	docType := "quest_requisition"

	svc := NewService(&stubDocs{docs: []entity.Document{{
		ID:                    42,
		DocumentType:          &docType,
		ProcessingStatus:      constants.ProcessingExtracted,
		ReviewStatus:          constants.ReviewAutoApproved,
		EncryptedFields:       payload,
		ConfidenceScore:       &conf,
		ExtractionMethod:      &method,
		ObjectKey:             &key,
		QueuedAt:              queued,
		ExtractionCompletedAt: &completed,
	}}}, enc, nil)

	data, err := svc.ExportReviewXLSX(context.Background(), nil, nil)
	require.NoError(t, err)

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer wb.Close()

	const sheet = "Extractions"
	cell := func(ref string) string {
		v, err := wb.GetCellValue(sheet, ref)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, "Accession Code", cell("A1"))
	assert.Equal(t, "ACC-20260312-000042", cell("A2"))
	assert.Equal(t, "quest_requisition", cell("B2"))
	assert.Equal(t, "Pat Doe", cell("C2"), "sensitive fields are decrypted for reviewers")
	assert.Equal(t, "2026-03-10", cell("D2"))
	assert.Equal(t, "CBC, CMP", cell("E2"))
	assert.Equal(t, "Dr. Reyes", cell("F2"))
	assert.Equal(t, "0.91", cell("G2"))
	assert.Equal(t, "openai", cell("H2"))
	assert.Equal(t, "auto_approved", cell("I2"))
	assert.Equal(t, key, cell("J2"))
}

func TestExportReviewXLSXDegradesOnUndecryptableFields(t *testing.T) {
	enc, err := crypto.NewAESEncryptor(testKeyHex)
	require.NoError(t, err)

	queued := time.Now().UTC()
	svc := NewService(&stubDocs{docs: []entity.Document{{
		ID:                    7,
		ProcessingStatus:      constants.ProcessingExtracted,
		ReviewStatus:          constants.ReviewPending,
		EncryptedFields:       json.RawMessage(`{"patient":{"patient_name":"enc:v1:not-base64"}}`),
		QueuedAt:              queued,
		ExtractionCompletedAt: &queued,
	}}}, enc, nil)

	data, err := svc.ExportReviewXLSX(context.Background(), nil, nil)
	require.NoError(t, err, "a corrupt row must not sink the export")

	wb, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer wb.Close()

	got, err := wb.GetCellValue("Extractions", "C2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "enc:v1:"), "falls back to the stored form")
}

func TestTruncateRuneSafe(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab…", truncate("abcdef", 3))

	// multi-byte runes must never be split mid-sequence
	in := strings.Repeat("é", 200)
	got := truncate(in, 140)
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.Equal(t, 140, utf8.RuneCountInString(got))
	for _, r := range got {
		assert.NotEqual(t, '�', r)
	}
}

package entity

// DocumentTypePolicy is the per-document-type routing policy consumed by the
// extraction router, plus running counters kept for observability.
type DocumentTypePolicy struct {
	Name                          string  `json:"name"`
	TrainingEnabled               bool    `json:"training_enabled"`
	UseFormRecognizer             bool    `json:"use_form_recognizer"`
	StructuredModelID             *string `json:"structured_model_id,omitempty"`
	StructuredConfidenceThreshold float32 `json:"structured_confidence_threshold"`
	FRExtractionCount             int64   `json:"fr_extraction_count"`
	GeneralExtractionCount        int64   `json:"general_extraction_count"`
	GeneralFallbackCount          int64   `json:"general_fallback_count"`
}

// StructuredEligible reports whether the policy routes documents through the
// structured extractor first.
func (p *DocumentTypePolicy) StructuredEligible() bool {
	return p != nil && p.UseFormRecognizer && p.StructuredModelID != nil && *p.StructuredModelID != ""
}

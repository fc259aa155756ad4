package constants

// ProcessingStatus is the canonical extraction state for rows in documents.
type ProcessingStatus string

// Stable values (store these exact strings in DB).
const (
	ProcessingPending   ProcessingStatus = "pending"    // created, not yet eligible
	ProcessingQueued    ProcessingStatus = "queued"     // waiting for a cycle
	ProcessingActive    ProcessingStatus = "processing" // claimed by an open batch
	ProcessingExtracted ProcessingStatus = "extracted"  // terminal success
	ProcessingFailed    ProcessingStatus = "failed"     // retryable or terminal failure
	ProcessingManual    ProcessingStatus = "manual"     // terminal, record entered by hand
)

// ReviewStatus tracks the human-review axis, separate from extraction.
type ReviewStatus string

const (
	ReviewPending      ReviewStatus = "pending"
	ReviewAutoApproved ReviewStatus = "auto_approved"
	ReviewReviewed     ReviewStatus = "reviewed"
	ReviewApproved     ReviewStatus = "approved"
	ReviewRejected     ReviewStatus = "rejected"
)

// BatchStatus is the lifecycle state for rows in batches.
type BatchStatus string

const (
	BatchQueued     BatchStatus = "queued"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
	BatchSplit      BatchStatus = "split" // exhausted multi-document batch broken into singles
)

// ExtractionMethod records which provider produced a document's fields.
type ExtractionMethod string

const (
	MethodFormRecognizer ExtractionMethod = "form_recognizer"
	MethodOpenAI         ExtractionMethod = "openai"
	MethodOpenAIFallback ExtractionMethod = "openai_fallback"
)

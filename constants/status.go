package constants

// ExtractionStatus is the quality verdict attached to every StructuredRecord.
type ExtractionStatus string

const (
	StatusOK      ExtractionStatus = "ok"
	StatusPartial ExtractionStatus = "partial"
	StatusFailed  ExtractionStatus = "failed"
)

// State is a pipeline lifecycle state for a single request.
type State string

const (
	StateReceived       State = "RECEIVED"
	StateFormatDetected State = "FORMAT_DETECTED"
	StateTextExtracted  State = "TEXT_EXTRACTED"
	StateNormalized     State = "NORMALIZED"
	StateAnalyzed       State = "ANALYZED"
	StateCompleted      State = "COMPLETED"
	StateFailed         State = "FAILED"
)

// Terminal reports whether no further transition is allowed from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Fragment extraction methods.
const (
	MethodNative = "native"
	MethodOCR    = "ocr"
)

package extractor

// ExtractionError marks content that can never be extracted no matter how
// often it is retried: truncated files, wrong magic bytes, empty documents.
// Workflow retry policies treat it as non-retryable.
type ExtractionError struct {
	Message string
}

func (e *ExtractionError) Error() string {
	return e.Message
}

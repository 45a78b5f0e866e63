package models

import "errors"

// Failure kinds surfaced at component boundaries. Sub-step failures inside
// extraction and generation are caught locally and wrapped into one of these
// before they cross a package boundary.
var (
	ErrUnsupportedType  = errors.New("unsupported file type")
	ErrExtractionFailed = errors.New("failed to extract text from document")
	ErrEmptyDocument    = errors.New("document contains no extractable text")
	ErrEmbeddingFailed  = errors.New("failed to create embeddings")
	ErrIndexWrite       = errors.New("failed to write to vector index")
	ErrDocumentNotFound = errors.New("document not found")
	ErrGenerationFailed = errors.New("text generation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

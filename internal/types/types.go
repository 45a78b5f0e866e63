package types

import (
	"context"

	"github.com/thinkbrief/thinkbrief/internal/models"
)

// Core interfaces

// Embedder maps texts to fixed-dimension vectors. Identical input yields an
// identical vector for a given model; callers treat the vector as opaque.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Extractor converts a raw file into cleaned plain text.
type Extractor interface {
	Extract(ctx context.Context, path string, kind FileType) (string, error)
}

// Chunker splits cleaned text into overlapping word windows.
type Chunker interface {
	Chunk(text string) []string
}

// VectorStore owns indexed entries and their lifetime. Insert computes one
// embedding per chunk; Get returns entries in chunk order; Delete is
// idempotent.
type VectorStore interface {
	Insert(ctx context.Context, docID, source string, chunks []string) error
	Query(ctx context.Context, docIDs []string, embedding []float32, topK int) ([]models.Entry, error)
	Get(ctx context.Context, docID string) ([]models.Entry, error)
	Delete(ctx context.Context, docID string) error
	Close()
}

// HistoryStore records per-user document history. The service core calls it
// only through these operations and does not depend on the storage engine.
type HistoryStore interface {
	Create(ctx context.Context, rec models.Record) error
	Update(ctx context.Context, docID, userID string, analysis models.Analysis) error
	AppendQuery(ctx context.Context, docID, userID string, q models.Query) error
	List(ctx context.Context, userID string, limit int) ([]models.Record, error)
	Get(ctx context.Context, docID, userID string) (*models.Record, error)
	Delete(ctx context.Context, docID, userID string) error
	Close() error
}

// FileType is the closed set of supported input formats.
type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypePDF
	FileTypeDOCX
	FileTypeTXT
)

func (t FileType) String() string {
	switch t {
	case FileTypePDF:
		return "pdf"
	case FileTypeDOCX:
		return "docx"
	case FileTypeTXT:
		return "txt"
	default:
		return "unknown"
	}
}

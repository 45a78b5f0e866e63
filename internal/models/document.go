package models

import "time"

// Entry is one indexed chunk of a document. The entry ID is
// "{doc_id}_{chunk_id}" and is stable for the life of the document.
type Entry struct {
	ID       string
	DocID    string
	ChunkID  int
	Source   string
	Text     string
	Distance float32
}

// Record is a per-user history row owned by the history store.
type Record struct {
	DocID       string
	UserID      string
	Title       string
	Preview     string
	Summary     string
	Advantages  []string
	Limitations []string
	Queries     []Query
	CreatedAt   time.Time
}

// Query is one question/answer exchange appended to a record.
type Query struct {
	Question string
	Answer   string
	AskedAt  time.Time
}

// Analysis bundles the structured summary output for a document.
type Analysis struct {
	Summary     string
	Advantages  []string
	Limitations []string
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/thinkbrief/thinkbrief/internal/models"
	"github.com/thinkbrief/thinkbrief/internal/types"
	"github.com/thinkbrief/thinkbrief/pkg/extractor"
)

const previewChars = 200

type PipelineConfig struct {
	Extractor types.Extractor
	Chunker   types.Chunker
	Store     types.VectorStore
	History   types.HistoryStore
	RateLimit float64 // model invocations per second
}

// Pipeline composes extraction, chunking, embedding and indexing into a
// single operation that either yields a document identifier or a typed
// failure. It is safe for concurrent use; writes to the same doc_id are
// serialized.
type Pipeline struct {
	config  PipelineConfig
	limiter *rate.Limiter

	mu    sync.Mutex
	locks map[string]*docLock
}

// docLock is a refcounted mutex; the map entry goes away with its last holder.
type docLock struct {
	mu   sync.Mutex
	refs int
}

type Result struct {
	DocID   string
	Title   string
	Preview string
	Chunks  int
}

type BatchResult struct {
	Filename string
	Result   *Result
	Err      error
}

func NewWithConfig(config PipelineConfig) *Pipeline {
	if config.RateLimit == 0 {
		config.RateLimit = 4.0
	}

	return &Pipeline{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		locks:   make(map[string]*docLock),
	}
}

// Ingest runs one file through extract, chunk, embed and index. On an index
// failure any partially inserted entries are rolled back so the store never
// holds a half-indexed document.
func (p *Pipeline) Ingest(ctx context.Context, path, filename, userID string) (*Result, error) {
	kind, err := extractor.ParseFileType(filename)
	if err != nil {
		return nil, err
	}

	text, err := p.config.Extractor.Extract(ctx, path, kind)
	if err != nil {
		return nil, err
	}

	chunks := p.config.Chunker.Chunk(text)
	if len(chunks) == 0 {
		return nil, models.ErrEmptyDocument
	}

	docID := uuid.New().String()

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingFailed, err)
	}

	unlock := p.lockDoc(docID)
	err = p.config.Store.Insert(ctx, docID, filename, chunks)
	if err != nil {
		// Remove anything a partial insert may have left behind.
		if delErr := p.config.Store.Delete(ctx, docID); delErr != nil {
			log.Printf("pipeline: rollback of %s failed: %v", docID, delErr)
		}
		unlock()
		if errors.Is(err, models.ErrEmbeddingFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrIndexWrite, err)
	}
	unlock()

	result := &Result{
		DocID:   docID,
		Title:   filename,
		Preview: preview(text),
		Chunks:  len(chunks),
	}

	if p.config.History != nil {
		rec := models.Record{
			DocID:     docID,
			UserID:    userID,
			Title:     filename,
			Preview:   result.Preview,
			CreatedAt: time.Now().UTC(),
		}
		if err := p.config.History.Create(ctx, rec); err != nil {
			log.Printf("pipeline: history record for %s failed: %v", docID, err)
		}
	}

	return result, nil
}

// IngestBatch processes files sequentially; one file's failure never aborts
// its siblings.
func (p *Pipeline) IngestBatch(ctx context.Context, paths, filenames []string, userID string) []BatchResult {
	results := make([]BatchResult, 0, len(paths))

	for i, path := range paths {
		result, err := p.Ingest(ctx, path, filenames[i], userID)
		results = append(results, BatchResult{
			Filename: filenames[i],
			Result:   result,
			Err:      err,
		})
	}

	return results
}

// Delete removes a document's index entries and its history record. The
// ownership check goes through the history store.
func (p *Pipeline) Delete(ctx context.Context, docID, userID string) error {
	if p.config.History != nil {
		if _, err := p.config.History.Get(ctx, docID, userID); err != nil {
			return err
		}
	}

	unlock := p.lockDoc(docID)
	defer unlock()

	if err := p.config.Store.Delete(ctx, docID); err != nil {
		return err
	}

	if p.config.History != nil {
		return p.config.History.Delete(ctx, docID, userID)
	}

	return nil
}

// DocumentText reassembles a document's full text by joining its entries in
// chunk order.
func (p *Pipeline) DocumentText(ctx context.Context, docID string) (string, error) {
	entries, err := p.config.Store.Get(ctx, docID)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", models.ErrDocumentNotFound
	}

	texts := make([]string, len(entries))
	for i, entry := range entries {
		texts[i] = entry.Text
	}

	return strings.Join(texts, " "), nil
}

func (p *Pipeline) lockDoc(docID string) func() {
	p.mu.Lock()
	lock, ok := p.locks[docID]
	if !ok {
		lock = &docLock{}
		p.locks[docID] = lock
	}
	lock.refs++
	p.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		p.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(p.locks, docID)
		}
		p.mu.Unlock()
	}
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewChars {
		return text
	}
	return string(runes[:previewChars]) + "..."
}

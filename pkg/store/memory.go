package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/thinkbrief/thinkbrief/internal/models"
	"github.com/thinkbrief/thinkbrief/internal/types"
)

// MemoryStore is a brute-force cosine-distance index for single-process
// deployments and tests. It honors the same filter and ordering semantics as
// the pgvector backend.
type MemoryStore struct {
	mu       sync.RWMutex
	embedder types.Embedder
	entries  []memEntry
}

type memEntry struct {
	models.Entry
	vector []float32
}

func NewMemoryStore(embedder types.Embedder) *MemoryStore {
	return &MemoryStore{embedder: embedder}
}

func (ms *MemoryStore) Insert(ctx context.Context, docID, source string, chunks []string) error {
	if len(chunks) == 0 {
		return nil
	}

	// Embed outside the lock; the model call dominates latency.
	embeddings, err := ms.embedder.CreateEmbedding(ctx, chunks)
	if err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	for i, chunk := range chunks {
		ms.entries = append(ms.entries, memEntry{
			Entry: models.Entry{
				ID:      fmt.Sprintf("%s_%d", docID, i),
				DocID:   docID,
				ChunkID: i,
				Source:  source,
				Text:    chunk,
			},
			vector: embeddings[i],
		})
	}

	return nil
}

func (ms *MemoryStore) Query(ctx context.Context, docIDs []string, embedding []float32, topK int) ([]models.Entry, error) {
	if len(docIDs) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}

	allowed := make(map[string]bool, len(docIDs))
	for _, id := range docIDs {
		allowed[id] = true
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var matched []models.Entry
	for _, entry := range ms.entries {
		if !allowed[entry.DocID] {
			continue
		}
		e := entry.Entry
		e.Distance = cosineDistance(entry.vector, embedding)
		matched = append(matched, e)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Distance < matched[j].Distance
	})

	if len(matched) > topK {
		matched = matched[:topK]
	}

	return matched, nil
}

func (ms *MemoryStore) Get(ctx context.Context, docID string) ([]models.Entry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var entries []models.Entry
	for _, entry := range ms.entries {
		if entry.DocID == docID {
			entries = append(entries, entry.Entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ChunkID < entries[j].ChunkID
	})

	return entries, nil
}

func (ms *MemoryStore) Delete(ctx context.Context, docID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	kept := ms.entries[:0]
	for _, entry := range ms.entries {
		if entry.DocID != docID {
			kept = append(kept, entry)
		}
	}
	ms.entries = kept

	return nil
}

func (ms *MemoryStore) Close() {}

func cosineDistance(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 1
	}

	return float32(1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)))
}

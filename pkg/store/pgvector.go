package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/thinkbrief/thinkbrief/internal/models"
	"github.com/thinkbrief/thinkbrief/internal/types"
)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
}

// VectorStore is the pgvector-backed index. It exclusively owns entry
// storage and lifetime; entries are never aliased across documents.
type VectorStore struct {
	config   VectorStoreConfig
	pool     *pgxpool.Pool
	embedder types.Embedder
}

func NewWithConfig(config VectorStoreConfig, embedder types.Embedder) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	vs := &VectorStore{
		config:   config,
		pool:     pool,
		embedder: embedder,
	}

	if err := vs.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize() error {
	ctx := context.Background()

	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			doc_id TEXT NOT NULL,
			chunk_id INTEGER NOT NULL,
			source TEXT,
			content TEXT,
			embedding vector(%d)
		)`, vs.config.TableName, vs.config.VectorDim)

	_, err = vs.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)

	_, err = vs.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	createDocIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_doc_id_idx ON %s (doc_id)`,
		vs.config.TableName, vs.config.TableName)

	_, err = vs.pool.Exec(ctx, createDocIndex)
	if err != nil {
		return fmt.Errorf("failed to create doc_id index: %v", err)
	}

	return nil
}

// Insert embeds every chunk and writes one entry per chunk inside a single
// transaction, so a mid-write failure never leaves a partially indexed
// document behind.
func (vs *VectorStore) Insert(ctx context.Context, docID, source string, chunks []string) error {
	if len(chunks) == 0 {
		return nil
	}

	cleaned := make([]string, len(chunks))
	for i, chunk := range chunks {
		cleaned[i] = sanitizeUTF8(chunk)
	}

	embeddings, err := vs.embedder.CreateEmbedding(ctx, cleaned)
	if err != nil {
		return err
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrIndexWrite, err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, doc_id, chunk_id, source, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		vs.config.TableName)

	for i, chunk := range cleaned {
		id := fmt.Sprintf("%s_%d", docID, i)

		_, err = tx.Exec(ctx, stmt,
			id,
			docID,
			i,
			source,
			chunk,
			pgvector.NewVector(embeddings[i]),
		)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrIndexWrite, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrIndexWrite, err)
	}

	return nil
}

// Query returns up to topK entries whose doc_id is in the allowed set,
// most similar first. An empty result is not an error.
func (vs *VectorStore) Query(ctx context.Context, docIDs []string, embedding []float32, topK int) ([]models.Entry, error) {
	if len(docIDs) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 5
	}

	query := fmt.Sprintf(`
		SELECT id, doc_id, chunk_id, source, content, embedding <=> $2 AS distance
		FROM %s
		WHERE doc_id = ANY($1)
		ORDER BY distance
		LIMIT $3`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query, docIDs, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %v", err)
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		var entry models.Entry
		err := rows.Scan(
			&entry.ID,
			&entry.DocID,
			&entry.ChunkID,
			&entry.Source,
			&entry.Text,
			&entry.Distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Get returns every entry of a document ordered by chunk_id, so callers can
// reconstruct readable text by straight concatenation.
func (vs *VectorStore) Get(ctx context.Context, docID string) ([]models.Entry, error) {
	query := fmt.Sprintf(`
		SELECT id, doc_id, chunk_id, source, content
		FROM %s
		WHERE doc_id = $1
		ORDER BY chunk_id`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to get entries: %v", err)
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		var entry models.Entry
		err := rows.Scan(
			&entry.ID,
			&entry.DocID,
			&entry.ChunkID,
			&entry.Source,
			&entry.Text,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Delete removes every entry with the given doc_id. Deleting an unknown id
// is a no-op.
func (vs *VectorStore) Delete(ctx context.Context, docID string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE doc_id = $1", vs.config.TableName)

	if _, err := vs.pool.Exec(ctx, stmt, docID); err != nil {
		return fmt.Errorf("%w: %v", models.ErrIndexWrite, err)
	}

	return nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}

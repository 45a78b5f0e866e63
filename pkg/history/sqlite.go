package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/thinkbrief/thinkbrief/internal/models"
)

// Store keeps per-user document history in sqlite. The service core only
// talks to it through the HistoryStore operations; any document store would
// do.
type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %v", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS records (
			doc_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			preview TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			advantages TEXT NOT NULL DEFAULT '[]',
			limitations TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (doc_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS queries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			asked_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS deleted_records (
			doc_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			advantages TEXT NOT NULL DEFAULT '[]',
			limitations TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL,
			deleted_at TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create history schema: %v", err)
		}
	}

	return nil
}

func (s *Store) Create(ctx context.Context, rec models.Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (doc_id, user_id, title, preview, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.DocID, rec.UserID, rec.Title, rec.Preview, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create history record: %v", err)
	}

	return nil
}

func (s *Store) Update(ctx context.Context, docID, userID string, analysis models.Analysis) error {
	advantages, err := json.Marshal(analysis.Advantages)
	if err != nil {
		return fmt.Errorf("failed to encode advantages: %v", err)
	}
	limitations, err := json.Marshal(analysis.Limitations)
	if err != nil {
		return fmt.Errorf("failed to encode limitations: %v", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE records SET summary = ?, advantages = ?, limitations = ?
		WHERE doc_id = ? AND user_id = ?`,
		analysis.Summary, string(advantages), string(limitations), docID, userID)
	if err != nil {
		return fmt.Errorf("failed to update history record: %v", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return models.ErrDocumentNotFound
	}

	return nil
}

func (s *Store) AppendQuery(ctx context.Context, docID, userID string, q models.Query) error {
	if q.AskedAt.IsZero() {
		q.AskedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queries (doc_id, user_id, question, answer, asked_at)
		VALUES (?, ?, ?, ?, ?)`,
		docID, userID, q.Question, q.Answer, q.AskedAt)
	if err != nil {
		return fmt.Errorf("failed to append query: %v", err)
	}

	return nil
}

func (s *Store) List(ctx context.Context, userID string, limit int) ([]models.Record, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, user_id, title, preview, summary, advantages, limitations, created_at
		FROM records
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %v", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	return records, rows.Err()
}

func (s *Store) Get(ctx context.Context, docID, userID string) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT doc_id, user_id, title, preview, summary, advantages, limitations, created_at
		FROM records
		WHERE doc_id = ? AND user_id = ?`, docID, userID)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}

	queries, err := s.db.QueryContext(ctx, `
		SELECT question, answer, asked_at
		FROM queries
		WHERE doc_id = ? AND user_id = ?
		ORDER BY asked_at`, docID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load queries: %v", err)
	}
	defer queries.Close()

	for queries.Next() {
		var q models.Query
		if err := queries.Scan(&q.Question, &q.Answer, &q.AskedAt); err != nil {
			return nil, fmt.Errorf("failed to scan query: %v", err)
		}
		rec.Queries = append(rec.Queries, q)
	}

	return rec, queries.Err()
}

// Delete archives the record into deleted_records, then removes the record
// and its query log.
func (s *Store) Delete(ctx context.Context, docID, userID string) error {
	rec, err := s.Get(ctx, docID, userID)
	if err != nil {
		return err
	}

	advantages, _ := json.Marshal(rec.Advantages)
	limitations, _ := json.Marshal(rec.Limitations)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %v", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO deleted_records (doc_id, user_id, title, summary, advantages, limitations, created_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.DocID, rec.UserID, rec.Title, rec.Summary,
		string(advantages), string(limitations), rec.CreatedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to archive record: %v", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE doc_id = ? AND user_id = ?`, docID, userID); err != nil {
		return fmt.Errorf("failed to delete record: %v", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM queries WHERE doc_id = ? AND user_id = ?`, docID, userID); err != nil {
		return fmt.Errorf("failed to delete queries: %v", err)
	}

	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var rec models.Record
	var advantages, limitations string

	err := row.Scan(&rec.DocID, &rec.UserID, &rec.Title, &rec.Preview,
		&rec.Summary, &advantages, &limitations, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(advantages), &rec.Advantages); err != nil {
		return nil, fmt.Errorf("failed to decode advantages: %v", err)
	}
	if err := json.Unmarshal([]byte(limitations), &rec.Limitations); err != nil {
		return nil, fmt.Errorf("failed to decode limitations: %v", err)
	}

	return &rec, nil
}

package server

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/thinkbrief/thinkbrief/internal/models"
	"github.com/thinkbrief/thinkbrief/pkg/pipeline"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "active",
		"endpoints": map[string]string{
			"/upload":           "POST - upload a document (PDF, DOCX, TXT)",
			"/batch_upload":     "POST - upload several documents in one call",
			"/summarize":        "POST - upload a document and get an immediate summary",
			"/summarize_text":   "POST - summarize free-form text",
			"/generate_summary": "POST - structured summary with advantages and limitations",
			"/ask":              "POST - ask a question about a document",
			"/search":           "POST - search across your documents",
			"/compare":          "POST - compare two documents",
			"/history":          "GET - document history",
			"/document/{id}":    "GET - details of a document",
			"/delete/{id}":      "DELETE - delete a document",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	result, err := s.ingestUpload(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"message":       "File uploaded and processed successfully",
		"documentId":    result.DocID,
		"documentTitle": result.Title,
		"text_preview":  result.Preview,
	})
}

// handleSummarize uploads a document and attaches a best-effort immediate
// summary. A generation failure never downgrades the successful upload.
func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	result, err := s.ingestUpload(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	body := map[string]any{
		"message":       "File uploaded and processed successfully",
		"documentId":    result.DocID,
		"documentTitle": result.Title,
		"text_preview":  result.Preview,
	}

	if text, err := s.pipeline.DocumentText(r.Context(), result.DocID); err == nil {
		summary, err := s.generator.SummarizeQuick(r.Context(), text)
		if err != nil {
			log.Printf("server: immediate summary for %s failed: %v", result.DocID, err)
		} else {
			body["summary"] = summary
			body["context_used"] = len(text)
		}
	}

	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) ingestUpload(w http.ResponseWriter, r *http.Request) (*pipeline.Result, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadSize)
	if err := r.ParseMultipartForm(s.config.MaxUploadSize); err != nil {
		return nil, fmt.Errorf("%w: no file provided", models.ErrInvalidInput)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: no file provided", models.ErrInvalidInput)
	}
	defer file.Close()

	path, filename, err := s.saveUpload(file, header)
	if err != nil {
		return nil, err
	}

	return s.pipeline.Ingest(r.Context(), path, filename, s.userID(r))
}

func (s *Server) handleBatchUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10*s.config.MaxUploadSize)
	if err := r.ParseMultipartForm(s.config.MaxUploadSize); err != nil {
		s.writeError(w, fmt.Errorf("%w: no files provided", models.ErrInvalidInput))
		return
	}

	headers := r.MultipartForm.File["files[]"]
	if len(headers) == 0 {
		s.writeError(w, fmt.Errorf("%w: no files provided", models.ErrInvalidInput))
		return
	}

	// Each file runs its own pipeline; one failure never aborts siblings.
	results := make([]map[string]any, 0, len(headers))
	for _, header := range headers {
		entry := map[string]any{"filename": header.Filename}

		file, err := header.Open()
		if err != nil {
			entry["status"] = "error"
			entry["details"] = map[string]string{"error": "unreadable upload"}
			results = append(results, entry)
			continue
		}

		path, filename, err := s.saveUpload(file, header)
		file.Close()
		if err == nil {
			var result *pipeline.Result
			result, err = s.pipeline.Ingest(r.Context(), path, filename, s.userID(r))
			if result != nil {
				entry["status"] = "success"
				entry["details"] = map[string]any{
					"documentId":    result.DocID,
					"documentTitle": result.Title,
					"text_preview":  result.Preview,
				}
			}
		}
		if err != nil {
			entry["status"] = "error"
			entry["details"] = map[string]string{"error": err.Error()}
		}

		results = append(results, entry)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"batch_results": results})
}

func (s *Server) handleSummarizeText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text       string `json:"text"`
		DocumentID string `json:"documentId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, fmt.Errorf("%w: missing 'text' field", models.ErrInvalidInput))
		return
	}

	summary, err := s.generator.SummarizeText(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}

	body := map[string]any{"summary": summary}
	if req.DocumentID != "" {
		body["documentId"] = req.DocumentID
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleGenerateSummary(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID string `json:"documentId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.DocumentID == "" {
		s.writeError(w, fmt.Errorf("%w: missing document ID", models.ErrInvalidInput))
		return
	}

	entries, err := s.store.Get(r.Context(), req.DocumentID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(entries) == 0 {
		s.writeError(w, models.ErrDocumentNotFound)
		return
	}

	texts := make([]string, len(entries))
	for i, entry := range entries {
		texts[i] = entry.Text
	}
	text := strings.Join(texts, " ")
	title := entries[0].Source

	summary, err := s.generator.SummarizeStructured(r.Context(), text)
	if err != nil {
		s.writeError(w, err)
		return
	}

	advantages, err := s.generator.ExtractList(r.Context(), text, "advantages or strengths")
	if err != nil {
		s.writeError(w, err)
		return
	}

	limitations, err := s.generator.ExtractList(r.Context(), text, "limitations or weaknesses")
	if err != nil {
		s.writeError(w, err)
		return
	}

	// History enrichment is best-effort.
	if err := s.history.Update(r.Context(), req.DocumentID, s.userID(r), models.Analysis{
		Summary:     summary,
		Advantages:  advantages,
		Limitations: limitations,
	}); err != nil {
		log.Printf("server: history update for %s failed: %v", req.DocumentID, err)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"summary":       summary,
		"advantages":    advantages,
		"limitations":   limitations,
		"documentId":    req.DocumentID,
		"documentTitle": title,
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question   string `json:"question"`
		DocumentID string `json:"documentId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		s.writeError(w, fmt.Errorf("%w: missing question", models.ErrInvalidInput))
		return
	}
	if req.DocumentID == "" {
		s.writeError(w, fmt.Errorf("%w: document ID required", models.ErrInvalidInput))
		return
	}

	embeddings, err := s.embedder.CreateEmbedding(r.Context(), []string{question})
	if err != nil {
		s.writeError(w, err)
		return
	}

	entries, err := s.store.Query(r.Context(), []string{req.DocumentID}, embeddings[0], 3)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(entries) == 0 {
		s.writeError(w, fmt.Errorf("%w: no relevant content", models.ErrDocumentNotFound))
		return
	}

	chunks := make([]string, len(entries))
	contextLen := 0
	for i, entry := range entries {
		chunks[i] = entry.Text
		contextLen += len(entry.Text)
	}

	answer, err := s.generator.Answer(r.Context(), question, chunks)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.history.AppendQuery(r.Context(), req.DocumentID, s.userID(r), models.Query{
		Question: question,
		Answer:   answer,
	}); err != nil {
		log.Printf("server: query history for %s failed: %v", req.DocumentID, err)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"answer":        answer,
		"context_used":  contextLen,
		"documentId":    req.DocumentID,
		"documentTitle": entries[0].Source,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		s.writeError(w, fmt.Errorf("%w: search query is required", models.ErrInvalidInput))
		return
	}

	// The allowed set is the requesting user's documents; the index only
	// ever sees an opaque in-set filter.
	records, err := s.history.List(r.Context(), s.userID(r), 1000)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(records) == 0 {
		s.writeJSON(w, http.StatusOK, map[string]any{"results": []any{}})
		return
	}

	docIDs := make([]string, len(records))
	titles := make(map[string]string, len(records))
	for i, rec := range records {
		docIDs[i] = rec.DocID
		titles[rec.DocID] = rec.Title
	}

	embeddings, err := s.embedder.CreateEmbedding(r.Context(), []string{query})
	if err != nil {
		s.writeError(w, err)
		return
	}

	entries, err := s.store.Query(r.Context(), docIDs, embeddings[0], 5)
	if err != nil {
		s.writeError(w, err)
		return
	}

	results := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		title := titles[entry.DocID]
		if title == "" {
			title = "Unknown"
		}
		results = append(results, map[string]any{
			"documentId":      entry.DocID,
			"documentTitle":   title,
			"relevance_score": entry.Distance,
			"text_snippet":    snippet(entry.Text, 200),
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID1 string `json:"documentId1"`
		DocumentID2 string `json:"documentId2"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.DocumentID1 == "" || req.DocumentID2 == "" {
		s.writeError(w, fmt.Errorf("%w: two document IDs are required", models.ErrInvalidInput))
		return
	}

	user := s.userID(r)
	rec1, err := s.history.Get(r.Context(), req.DocumentID1, user)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rec2, err := s.history.Get(r.Context(), req.DocumentID2, user)
	if err != nil {
		s.writeError(w, err)
		return
	}

	text1, err := s.pipeline.DocumentText(r.Context(), req.DocumentID1)
	if err != nil {
		s.writeError(w, err)
		return
	}
	text2, err := s.pipeline.DocumentText(r.Context(), req.DocumentID2)
	if err != nil {
		s.writeError(w, err)
		return
	}

	comparison, err := s.generator.Compare(r.Context(), rec1.Title, text1, rec2.Title, text2)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"comparison":     comparison,
		"documentTitle1": rec1.Title,
		"documentTitle2": rec2.Title,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.history.List(r.Context(), s.userID(r), 10)
	if err != nil {
		s.writeError(w, err)
		return
	}

	formatted := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		item := map[string]any{
			"documentId":    rec.DocID,
			"documentTitle": rec.Title,
			"upload_date":   rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if rec.Summary != "" {
			item["summary"] = rec.Summary
		}
		if rec.Preview != "" {
			item["text_preview"] = rec.Preview
		}
		if len(rec.Advantages) > 0 {
			item["advantages"] = rec.Advantages
		}
		if len(rec.Limitations) > 0 {
			item["limitations"] = rec.Limitations
		}
		formatted = append(formatted, item)
	}

	s.writeJSON(w, http.StatusOK, formatted)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")

	rec, err := s.history.Get(r.Context(), docID, s.userID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	fullText, err := s.pipeline.DocumentText(r.Context(), docID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	queries := make([]map[string]any, 0, len(rec.Queries))
	for _, q := range rec.Queries {
		queries = append(queries, map[string]any{
			"question":  q.Question,
			"answer":    q.Answer,
			"timestamp": q.AskedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"documentId":    rec.DocID,
		"documentTitle": rec.Title,
		"upload_date":   rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		"text_preview":  rec.Preview,
		"summary":       rec.Summary,
		"advantages":    rec.Advantages,
		"limitations":   rec.Limitations,
		"queries":       queries,
		"full_text":     fullText,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	user := s.userID(r)

	rec, err := s.history.Get(r.Context(), docID, user)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.pipeline.Delete(r.Context(), docID, user); err != nil {
		s.writeError(w, err)
		return
	}

	// Physical file cleanup is best-effort.
	path := filepath.Join(s.config.UploadDir, filepath.Base(rec.Title))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("server: failed to remove uploaded file %s: %v", path, err)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Document deleted successfully",
		"documentId": docID,
	})
}

func snippet(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/thinkbrief/thinkbrief/internal/models"
	"github.com/thinkbrief/thinkbrief/internal/types"
	"github.com/thinkbrief/thinkbrief/pkg/llm"
	"github.com/thinkbrief/thinkbrief/pkg/pipeline"
)

type Config struct {
	Port          string
	UploadDir     string
	MaxUploadSize int64
	DefaultUserID string
}

// Server wires the core components behind the HTTP API. It is the single
// context object constructed at startup; no component state is global.
type Server struct {
	config    Config
	embedder  types.Embedder
	generator *llm.Generator
	store     types.VectorStore
	history   types.HistoryStore
	pipeline  *pipeline.Pipeline
}

func New(config Config, embedder types.Embedder, generator *llm.Generator,
	store types.VectorStore, history types.HistoryStore, pl *pipeline.Pipeline) *Server {
	if config.Port == "" {
		config.Port = "5005"
	}
	if config.UploadDir == "" {
		config.UploadDir = "uploads"
	}
	if config.MaxUploadSize == 0 {
		config.MaxUploadSize = 25 * 1024 * 1024
	}
	if config.DefaultUserID == "" {
		config.DefaultUserID = "default-user"
	}

	return &Server{
		config:    config,
		embedder:  embedder,
		generator: generator,
		store:     store,
		history:   history,
		pipeline:  pl,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /batch_upload", s.handleBatchUpload)
	mux.HandleFunc("POST /summarize", s.handleSummarize)
	mux.HandleFunc("POST /summarize_text", s.handleSummarizeText)
	mux.HandleFunc("POST /generate_summary", s.handleGenerateSummary)
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("POST /compare", s.handleCompare)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("GET /document/{id}", s.handleDocument)
	mux.HandleFunc("DELETE /delete/{id}", s.handleDelete)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return mux
}

func (s *Server) Run() error {
	if err := os.MkdirAll(s.config.UploadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload dir: %v", err)
	}

	log.Printf("server: listening on port %s", s.config.Port)
	return http.ListenAndServe(":"+s.config.Port, s.Handler())
}

// userID resolves the opaque tenant key from the request. Identity
// resolution proper lives outside this service; the header value is never
// interpreted.
func (s *Server) userID(r *http.Request) string {
	if id := r.Header.Get("User-ID"); id != "" {
		return id
	}
	return s.config.DefaultUserID
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("server: failed to encode response: %v", err)
	}
}

// writeError maps a typed failure onto a structured JSON error; raw internal
// errors never reach the client.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusForError(err), map[string]string{"error": err.Error()})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrUnsupportedType):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrDocumentNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body", models.ErrInvalidInput)
	}
	return nil
}

// saveUpload persists one multipart file into the upload directory and
// returns its path and declared filename.
func (s *Server) saveUpload(file multipart.File, header *multipart.FileHeader) (string, string, error) {
	filename := filepath.Base(header.Filename)
	if filename == "" || filename == "." {
		return "", "", fmt.Errorf("%w: empty filename", models.ErrInvalidInput)
	}
	if header.Size > s.config.MaxUploadSize {
		return "", "", fmt.Errorf("%w: file too large (max %d bytes)", models.ErrInvalidInput, s.config.MaxUploadSize)
	}

	path := filepath.Join(s.config.UploadDir, filename)
	out, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to save upload: %v", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(path)
		return "", "", fmt.Errorf("failed to save upload: %v", err)
	}

	return path, filename, nil
}

package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/thinkbrief/thinkbrief/pkg/extractor"
	"github.com/thinkbrief/thinkbrief/pkg/history"
	"github.com/thinkbrief/thinkbrief/pkg/llm"
	"github.com/thinkbrief/thinkbrief/pkg/pipeline"
	"github.com/thinkbrief/thinkbrief/pkg/processor"
	"github.com/thinkbrief/thinkbrief/pkg/store"
	"github.com/thinkbrief/thinkbrief/server"
)

type stubEmbedder struct{}

func (stubEmbedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 3)
		lower := strings.ToLower(text)
		vec[0] = float32(strings.Count(lower, "alpha"))
		vec[1] = float32(strings.Count(lower, "beta"))
		vec[2] = 1
		embeddings[i] = vec
	}
	return embeddings, nil
}

type stubModel struct {
	response string
}

func (m *stubModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: m.response}},
	}, nil
}

func (m *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return m.response, nil
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	embedder := stubEmbedder{}
	vectorStore := store.NewMemoryStore(embedder)
	generator := llm.NewGeneratorWithModel(
		&stubModel{response: "1. Generated point one\n2. Generated point two\n3. Generated point three"},
		llm.GeneratorConfig{Temperature: 0.7})

	hist, err := history.New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { hist.Close() })

	chunker := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 10, ChunkOverlap: 3})
	pl := pipeline.NewWithConfig(pipeline.PipelineConfig{
		Extractor: extractor.New(),
		Chunker:   chunker,
		Store:     vectorStore,
		History:   hist,
		RateLimit: 1000,
	})

	srv := server.New(server.Config{
		UploadDir: t.TempDir(),
	}, embedder, generator, vectorStore, hist, pl)

	return srv.Handler()
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return &buf, writer.FormDataContentType()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("User-ID", "alice")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Body.String(), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}

	return rec, decoded
}

func uploadDocument(t *testing.T, handler http.Handler, filename, content string) string {
	t.Helper()

	body, contentType := multipartBody(t, "file", filename, content)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-ID", "alice")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	docID, _ := resp["documentId"].(string)
	require.NotEmpty(t, docID)

	return docID
}

const sampleDoc = "alpha alpha alpha document content about the first topic. " +
	"beta beta beta document content about the second topic. " +
	"general closing remarks about both topics together here."

func TestServer_Upload(t *testing.T) {
	handler := newTestHandler(t)

	body, contentType := multipartBody(t, "file", "notes.txt", sampleDoc)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "notes.txt", resp["documentTitle"])
	assert.NotEmpty(t, resp["documentId"])
	assert.NotEmpty(t, resp["text_preview"])
}

func TestServer_UploadUnsupportedType(t *testing.T) {
	handler := newTestHandler(t)

	body, contentType := multipartBody(t, "file", "page.html", "<html></html>")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_UploadMissingFile(t *testing.T) {
	handler := newTestHandler(t)

	rec, _ := doJSON(t, handler, http.MethodPost, "/upload", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SummarizeText(t *testing.T) {
	handler := newTestHandler(t)

	rec, resp := doJSON(t, handler, http.MethodPost, "/summarize_text",
		map[string]string{"text": "Some long text worth summarizing properly."})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, resp["summary"])
}

func TestServer_SummarizeTextMissingField(t *testing.T) {
	handler := newTestHandler(t)

	rec, _ := doJSON(t, handler, http.MethodPost, "/summarize_text", map[string]string{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_GenerateSummary(t *testing.T) {
	handler := newTestHandler(t)
	docID := uploadDocument(t, handler, "paper.txt", sampleDoc)

	rec, resp := doJSON(t, handler, http.MethodPost, "/generate_summary",
		map[string]string{"documentId": docID})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, resp["summary"])
	assert.Equal(t, "paper.txt", resp["documentTitle"])

	advantages, ok := resp["advantages"].([]any)
	require.True(t, ok)
	assert.Len(t, advantages, 3)
	assert.Equal(t, "Generated point one", advantages[0])

	// The analysis lands in history.
	rec, resp = doJSON(t, handler, http.MethodGet, "/document/"+docID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, resp["summary"])
}

func TestServer_GenerateSummaryUnknownDocument(t *testing.T) {
	handler := newTestHandler(t)

	rec, _ := doJSON(t, handler, http.MethodPost, "/generate_summary",
		map[string]string{"documentId": "no-such-doc"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Ask(t *testing.T) {
	handler := newTestHandler(t)
	docID := uploadDocument(t, handler, "paper.txt", sampleDoc)

	rec, resp := doJSON(t, handler, http.MethodPost, "/ask",
		map[string]string{"question": "What is alpha about?", "documentId": docID})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, resp["answer"])
	assert.Equal(t, "paper.txt", resp["documentTitle"])
	assert.Greater(t, resp["context_used"].(float64), float64(0))

	// The exchange lands in the query log.
	rec, resp = doJSON(t, handler, http.MethodGet, "/document/"+docID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	queries, ok := resp["queries"].([]any)
	require.True(t, ok)
	require.Len(t, queries, 1)
}

func TestServer_AskValidation(t *testing.T) {
	handler := newTestHandler(t)

	rec, _ := doJSON(t, handler, http.MethodPost, "/ask", map[string]string{"documentId": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, handler, http.MethodPost, "/ask", map[string]string{"question": "q?"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, handler, http.MethodPost, "/ask",
		map[string]string{"question": "q?", "documentId": "no-such-doc"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_History(t *testing.T) {
	handler := newTestHandler(t)
	uploadDocument(t, handler, "first.txt", sampleDoc)
	uploadDocument(t, handler, "second.txt", sampleDoc)

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	req.Header.Set("User-ID", "alice")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var items []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)
	assert.NotEmpty(t, items[0]["documentId"])
	assert.NotEmpty(t, items[0]["upload_date"])
}

func TestServer_HistoryIsPerUser(t *testing.T) {
	handler := newTestHandler(t)
	uploadDocument(t, handler, "mine.txt", sampleDoc)

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	req.Header.Set("User-ID", "bob")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var items []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Empty(t, items)
}

func TestServer_Document(t *testing.T) {
	handler := newTestHandler(t)
	docID := uploadDocument(t, handler, "paper.txt", sampleDoc)

	rec, resp := doJSON(t, handler, http.MethodGet, "/document/"+docID, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paper.txt", resp["documentTitle"])
	assert.Contains(t, resp["full_text"], "alpha alpha alpha")
}

func TestServer_DocumentWrongUser(t *testing.T) {
	handler := newTestHandler(t)
	docID := uploadDocument(t, handler, "paper.txt", sampleDoc)

	req := httptest.NewRequest(http.MethodGet, "/document/"+docID, nil)
	req.Header.Set("User-ID", "bob")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Delete(t *testing.T) {
	handler := newTestHandler(t)
	docID := uploadDocument(t, handler, "paper.txt", sampleDoc)

	rec, resp := doJSON(t, handler, http.MethodDelete, "/delete/"+docID, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, docID, resp["documentId"])

	rec, _ = doJSON(t, handler, http.MethodGet, "/document/"+docID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_DeleteUnknownDocument(t *testing.T) {
	handler := newTestHandler(t)

	rec, _ := doJSON(t, handler, http.MethodDelete, "/delete/no-such-doc", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Search(t *testing.T) {
	handler := newTestHandler(t)
	uploadDocument(t, handler, "alpha.txt", strings.Repeat("alpha topic content ", 5))
	uploadDocument(t, handler, "beta.txt", strings.Repeat("beta topic content ", 5))

	rec, resp := doJSON(t, handler, http.MethodPost, "/search",
		map[string]string{"query": "alpha"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	results, ok := resp["results"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, results)

	first := results[0].(map[string]any)
	assert.Equal(t, "alpha.txt", first["documentTitle"])
	assert.NotEmpty(t, first["text_snippet"])
	assert.Contains(t, first, "relevance_score")
}

func TestServer_SearchNoDocuments(t *testing.T) {
	handler := newTestHandler(t)

	rec, resp := doJSON(t, handler, http.MethodPost, "/search",
		map[string]string{"query": "anything"})

	require.Equal(t, http.StatusOK, rec.Code)
	results, ok := resp["results"].([]any)
	require.True(t, ok)
	assert.Empty(t, results)
}

func TestServer_Compare(t *testing.T) {
	handler := newTestHandler(t)
	doc1 := uploadDocument(t, handler, "first.txt", sampleDoc)
	doc2 := uploadDocument(t, handler, "second.txt", sampleDoc)

	rec, resp := doJSON(t, handler, http.MethodPost, "/compare",
		map[string]string{"documentId1": doc1, "documentId2": doc2})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, resp["comparison"])
	assert.Equal(t, "first.txt", resp["documentTitle1"])
	assert.Equal(t, "second.txt", resp["documentTitle2"])
}

func TestServer_CompareMissingDocument(t *testing.T) {
	handler := newTestHandler(t)
	doc1 := uploadDocument(t, handler, "first.txt", sampleDoc)

	rec, _ := doJSON(t, handler, http.MethodPost, "/compare",
		map[string]string{"documentId1": doc1, "documentId2": "no-such-doc"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Index(t *testing.T) {
	handler := newTestHandler(t)

	rec, resp := doJSON(t, handler, http.MethodGet, "/", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", resp["status"])
}

func TestServer_Health(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestServer_BatchUpload(t *testing.T) {
	handler := newTestHandler(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for i, name := range []string{"one.txt", "two.txt", "bad.html"} {
		part, err := writer.CreateFormFile("files[]", name)
		require.NoError(t, err)
		fmt.Fprintf(part, "document number %d with some content to index", i)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/batch_upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("User-ID", "alice")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	results, ok := resp["batch_results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 3)

	statuses := make([]string, 3)
	for i, r := range results {
		statuses[i] = r.(map[string]any)["status"].(string)
	}
	assert.Equal(t, []string{"success", "success", "error"}, statuses)
}

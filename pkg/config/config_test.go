package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
llm:
  base_url: "http://localhost:11434"
  model: "flan-t5-large"
  max_tokens: 1000
  temperature: 0.5

embedder:
  model: "nomic-embed-text:latest"

database:
  url: "postgres://localhost:5432/test"
  backend: "pgvector"
  table_name: "test_chunks"
  vector_dim: 768

history:
  path: "test.db"

extractor:
  max_text_chars: 50000
  ocr_dpi: 150

processor:
  chunk_size: 256
  chunk_overlap: 25

server:
  port: "8080"
  upload_dir: "tmp_uploads"
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:11434", config.LLM.BaseURL)
	assert.Equal(t, "flan-t5-large", config.LLM.Model)
	assert.Equal(t, 1000, config.LLM.MaxTokens)
	assert.Equal(t, 0.5, config.LLM.Temperature)
	assert.Equal(t, "postgres://localhost:5432/test", config.Database.URL)
	assert.Equal(t, "test_chunks", config.Database.TableName)
	assert.Equal(t, "test.db", config.History.Path)
	assert.Equal(t, 50000, config.Extractor.MaxTextChars)
	assert.Equal(t, 150, config.Extractor.OCRDPI)
	assert.Equal(t, 256, config.Processor.ChunkSize)
	assert.Equal(t, 25, config.Processor.ChunkOverlap)
	assert.Equal(t, "8080", config.Server.Port)
	assert.Equal(t, "tmp_uploads", config.Server.UploadDir)
}

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "minimal.yaml"))
	assert.Error(t, err) // file does not exist

	err = os.WriteFile(filepath.Join(t.TempDir(), "minimal.yaml"), []byte("llm:\n  model: custom\n"), 0644)
	require.NoError(t, err)

	config, err = getDefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, "flan-t5", config.LLM.Model)
	assert.Equal(t, 2000, config.LLM.MaxTokens)
	assert.Equal(t, "nomic-embed-text:latest", config.Embedder.Model)
	assert.Equal(t, "pgvector", config.Database.Backend)
	assert.Equal(t, "chunks", config.Database.TableName)
	assert.Equal(t, 768, config.Database.VectorDim)
	assert.Equal(t, 100000, config.Extractor.MaxTextChars)
	assert.Equal(t, int64(500000), config.Extractor.MaxTxtBytes)
	assert.Equal(t, 512, config.Processor.ChunkSize)
	assert.Equal(t, 50, config.Processor.ChunkOverlap)
	assert.Equal(t, "5005", config.Server.Port)
	assert.Equal(t, int64(25*1024*1024), config.Server.MaxUploadSize)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://models.internal:11434")
	t.Setenv("DATABASE_URL", "postgres://env-host:5432/env")
	t.Setenv("HISTORY_DB_PATH", "/var/lib/app/history.db")
	t.Setenv("PORT", "9000")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("llm:\n  base_url: http://file-value\n"), 0644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "http://models.internal:11434", config.LLM.BaseURL)
	assert.Equal(t, "http://models.internal:11434", config.Embedder.BaseURL)
	assert.Equal(t, "postgres://env-host:5432/env", config.Database.URL)
	assert.Equal(t, "/var/lib/app/history.db", config.History.Path)
	assert.Equal(t, "9000", config.Server.Port)
}

func TestValidate(t *testing.T) {
	config, err := getDefaultConfig()
	require.NoError(t, err)
	config.Database.Backend = "memory"

	assert.Empty(t, config.Validate())
}

func TestValidate_Errors(t *testing.T) {
	config, err := getDefaultConfig()
	require.NoError(t, err)

	config.LLM.MaxTokens = 100000
	config.LLM.Temperature = 5
	config.Database.Backend = "cassandra"
	config.Processor.ChunkOverlap = config.Processor.ChunkSize

	errors := config.Validate()
	require.NotEmpty(t, errors)

	fields := make(map[string]bool)
	for _, e := range errors {
		fields[e.Field] = true
	}
	assert.True(t, fields["llm.max_tokens"])
	assert.True(t, fields["llm.temperature"])
	assert.True(t, fields["database.backend"])
	assert.True(t, fields["processor.chunk_overlap"])
}

func TestValidate_PgvectorRequiresURL(t *testing.T) {
	config, err := getDefaultConfig()
	require.NoError(t, err)
	config.Database.Backend = "pgvector"
	config.Database.URL = ""

	errors := config.Validate()
	require.NotEmpty(t, errors)
	assert.Equal(t, "database.url", errors[0].Field)
}

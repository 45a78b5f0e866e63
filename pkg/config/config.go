package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
		TimeoutSecs int     `yaml:"timeout_secs"`
	} `yaml:"llm"`

	Embedder struct {
		BaseURL     string `yaml:"base_url"`
		Model       string `yaml:"model"`
		TimeoutSecs int    `yaml:"timeout_secs"`
	} `yaml:"embedder"`

	Database struct {
		URL       string `yaml:"url"`
		Backend   string `yaml:"backend"` // "pgvector" or "memory"
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
	} `yaml:"database"`

	History struct {
		Path string `yaml:"path"`
	} `yaml:"history"`

	Extractor struct {
		MaxTextChars int     `yaml:"max_text_chars"`
		MaxTxtBytes  int64   `yaml:"max_txt_bytes"`
		OCRDPI       int     `yaml:"ocr_dpi"`
		RateLimit    float64 `yaml:"rate_limit"` // model invocations per second
	} `yaml:"extractor"`

	Processor struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
	} `yaml:"processor"`

	Server struct {
		Port          string `yaml:"port"`
		UploadDir     string `yaml:"upload_dir"`
		MaxUploadSize int64  `yaml:"max_upload_size"`
	} `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/thinkbrief/config.yaml"),
			"/etc/thinkbrief/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = "flan-t5"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.TimeoutSecs == 0 {
		config.LLM.TimeoutSecs = 120
	}

	if config.Embedder.Model == "" {
		config.Embedder.Model = "nomic-embed-text:latest"
	}
	if config.Embedder.BaseURL == "" {
		config.Embedder.BaseURL = config.LLM.BaseURL
	}
	if config.Embedder.TimeoutSecs == 0 {
		config.Embedder.TimeoutSecs = 60
	}

	if config.Database.Backend == "" {
		config.Database.Backend = "pgvector"
	}
	if config.Database.TableName == "" {
		config.Database.TableName = "chunks"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}

	if config.History.Path == "" {
		config.History.Path = "thinkbrief.db"
	}

	if config.Extractor.MaxTextChars == 0 {
		config.Extractor.MaxTextChars = 100000
	}
	if config.Extractor.MaxTxtBytes == 0 {
		config.Extractor.MaxTxtBytes = 500000
	}
	if config.Extractor.OCRDPI == 0 {
		config.Extractor.OCRDPI = 300
	}
	if config.Extractor.RateLimit == 0 {
		config.Extractor.RateLimit = 4.0
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 512
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 50
	}

	if config.Server.Port == "" {
		config.Server.Port = "5005"
	}
	if config.Server.UploadDir == "" {
		config.Server.UploadDir = "uploads"
	}
	if config.Server.MaxUploadSize == 0 {
		config.Server.MaxUploadSize = 25 * 1024 * 1024
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
		config.Embedder.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if histPath := os.Getenv("HISTORY_DB_PATH"); histPath != "" {
		config.History.Path = histPath
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}
}

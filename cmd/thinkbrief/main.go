package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/thinkbrief/thinkbrief/internal/types"
	"github.com/thinkbrief/thinkbrief/pkg/config"
	"github.com/thinkbrief/thinkbrief/pkg/extractor"
	"github.com/thinkbrief/thinkbrief/pkg/history"
	"github.com/thinkbrief/thinkbrief/pkg/llm"
	"github.com/thinkbrief/thinkbrief/pkg/pipeline"
	"github.com/thinkbrief/thinkbrief/pkg/processor"
	"github.com/thinkbrief/thinkbrief/pkg/store"
	"github.com/thinkbrief/thinkbrief/server"
)

type flags struct {
	configPath string
	ingest     string
	ask        bool
	serve      bool
}

func main() {
	// Missing .env is fine; environment variables still apply.
	_ = godotenv.Load()

	f := parseFlags()

	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		log.Fatal(err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		os.Exit(1)
	}

	if err := run(f, cfg); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() flags {
	var f flags

	flag.StringVar(&f.configPath, "config", "", "Path to config file")
	flag.StringVar(&f.ingest, "ingest", "", "Comma-separated list of files to ingest")
	flag.BoolVar(&f.ask, "ask", false, "Interactive question loop after ingesting")
	flag.BoolVar(&f.serve, "serve", false, "Run the HTTP API")
	flag.Parse()

	if f.ingest == "" && !f.ask {
		f.serve = true
	}

	return f
}

func run(f flags, cfg *config.Config) error {
	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   cfg.Embedder.Model,
		BaseURL: cfg.Embedder.BaseURL,
		Timeout: time.Duration(cfg.Embedder.TimeoutSecs) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %v", err)
	}

	generator, err := llm.NewGeneratorWithConfig(llm.GeneratorConfig{
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize generator: %v", err)
	}

	vectorStore, err := newVectorStore(cfg, embedder)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %v", err)
	}
	defer vectorStore.Close()

	historyStore, err := history.New(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize history store: %v", err)
	}
	defer historyStore.Close()

	pl := pipeline.NewWithConfig(pipeline.PipelineConfig{
		Extractor: extractor.NewWithConfig(extractor.ExtractorConfig{
			MaxTextChars: cfg.Extractor.MaxTextChars,
			MaxTxtBytes:  cfg.Extractor.MaxTxtBytes,
			OCRDPI:       cfg.Extractor.OCRDPI,
		}),
		Chunker: processor.NewWithConfig(processor.ProcessorConfig{
			ChunkSize:    cfg.Processor.ChunkSize,
			ChunkOverlap: cfg.Processor.ChunkOverlap,
		}),
		Store:     vectorStore,
		History:   historyStore,
		RateLimit: cfg.Extractor.RateLimit,
	})

	var lastDocID string

	if f.ingest != "" {
		docID, err := ingestFiles(pl, strings.Split(f.ingest, ","))
		if err != nil {
			return err
		}
		lastDocID = docID
	}

	if f.ask {
		return askLoop(embedder, generator, vectorStore, lastDocID)
	}

	if f.serve {
		srv := server.New(server.Config{
			Port:          cfg.Server.Port,
			UploadDir:     cfg.Server.UploadDir,
			MaxUploadSize: cfg.Server.MaxUploadSize,
		}, embedder, generator, vectorStore, historyStore, pl)

		return srv.Run()
	}

	return nil
}

func newVectorStore(cfg *config.Config, embedder types.Embedder) (types.VectorStore, error) {
	if cfg.Database.Backend == "memory" {
		return store.NewMemoryStore(embedder), nil
	}

	return store.NewWithConfig(store.VectorStoreConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		VectorDim:  cfg.Database.VectorDim,
	}, embedder)
}

func ingestFiles(pl *pipeline.Pipeline, paths []string) (string, error) {
	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription(color.BlueString("Ingesting documents...")),
		progressbar.OptionShowCount(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)

	filenames := make([]string, len(paths))
	for i, path := range paths {
		filenames[i] = filepath.Base(strings.TrimSpace(path))
		paths[i] = strings.TrimSpace(path)
	}

	var lastDocID string
	failed := 0
	for _, result := range pl.IngestBatch(context.Background(), paths, filenames, "cli") {
		bar.Add(1)
		if result.Err != nil {
			failed++
			color.Red("\n✗ %s: %v", result.Filename, result.Err)
			continue
		}
		lastDocID = result.Result.DocID
		color.Green("\n✓ %s → %s (%d chunks)", result.Filename, result.Result.DocID, result.Result.Chunks)
	}
	bar.Finish()

	if failed == len(paths) {
		return "", fmt.Errorf("all %d files failed to ingest", failed)
	}

	return lastDocID, nil
}

func askLoop(embedder types.Embedder, generator *llm.Generator, vectorStore types.VectorStore, docID string) error {
	if docID == "" {
		return fmt.Errorf("nothing to ask about: ingest at least one document first")
	}

	color.Cyan("\nAsk questions about your document (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		question := strings.TrimSpace(scanner.Text())
		if strings.ToLower(question) == "exit" {
			break
		}
		if question == "" {
			continue
		}

		ctx := context.Background()
		embeddings, err := embedder.CreateEmbedding(ctx, []string{question})
		if err != nil {
			color.Red("Error embedding question: %v\n", err)
			continue
		}

		entries, err := vectorStore.Query(ctx, []string{docID}, embeddings[0], 3)
		if err != nil {
			color.Red("Error querying index: %v\n", err)
			continue
		}
		if len(entries) == 0 {
			color.Yellow("No relevant content found.\n")
			continue
		}

		chunks := make([]string, len(entries))
		for i, entry := range entries {
			chunks[i] = entry.Text
		}

		fmt.Print("\n")
		assistantPrompt("Assistant: ")
		err = generator.AnswerStream(ctx, question, chunks, func(chunk string) {
			fmt.Print(chunk)
		})
		if err != nil {
			color.Red("\nError: %v\n", err)
			continue
		}
		fmt.Print("\n")
	}

	return scanner.Err()
}

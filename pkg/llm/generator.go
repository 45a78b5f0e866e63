package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/thinkbrief/thinkbrief/internal/models"
)

// GeneratorConfig represents the configuration for the generation model.
type GeneratorConfig struct {
	Model       string
	BaseURL     string // Ollama server URL
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Generator assembles task-specific prompts, invokes the generation model
// with task-specific decoding parameters and post-processes the raw output.
// With sampling enabled, repeated calls on the same input may differ.
type Generator struct {
	config GeneratorConfig
	llm    llms.Model
}

// Input caps applied before invocation to respect the model's input ceiling.
const (
	quickSummaryCap      = 5000
	structuredSummaryCap = 8000
	listExtractCap       = 3000
	compareCap           = 10000
)

const structuredSummaryPrompt = "Provide a detailed academic analysis of the following document in 300-400 words. " +
	"Structure the summary as follows:\n" +
	"1. Main objective and context\n" +
	"2. Key methodologies or approaches\n" +
	"3. Critical findings and evidence\n" +
	"4. Significant implications and conclusions\n\n" +
	"Make the summary comprehensive yet clear and well-structured:\n\n"

func NewGeneratorWithConfig(config GeneratorConfig) (*Generator, error) {
	if config.Model == "" {
		config.Model = "flan-t5"
	}
	if config.Temperature <= 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}

	llm, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &Generator{
		config: config,
		llm:    llm,
	}, nil
}

// NewGeneratorWithModel wires an existing model. Used by tests.
func NewGeneratorWithModel(model llms.Model, config GeneratorConfig) *Generator {
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	return &Generator{config: config, llm: model}
}

// SummarizeQuick produces the best-effort summary attached right after an
// upload. The context is the document's leading chunks.
func (g *Generator) SummarizeQuick(ctx context.Context, context_ string) (string, error) {
	prompt := fmt.Sprintf("Summarize this:\n%s", truncateChars(context_, quickSummaryCap))

	return g.generate(ctx, prompt,
		llms.WithMaxLength(800),
		llms.WithMinLength(600),
		llms.WithTemperature(g.config.Temperature),
		llms.WithTopP(0.9),
		llms.WithRepetitionPenalty(1.2),
	)
}

// SummarizeText summarizes arbitrary user-supplied text with an aggressive
// repetition penalty, then deduplicates sentences in the output.
func (g *Generator) SummarizeText(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf("Provide a concise, non-repetitive summary of the following text:\n\n%s", text)

	summary, err := g.generate(ctx, prompt,
		llms.WithMaxLength(400),
		llms.WithMinLength(200),
		llms.WithTemperature(g.config.Temperature),
		llms.WithTopP(0.92),
		llms.WithTopK(50),
		llms.WithRepetitionPenalty(2.5),
	)
	if err != nil {
		return "", err
	}

	return DedupSentences(summary), nil
}

// SummarizeStructured produces the long-form structured summary of a full
// document.
func (g *Generator) SummarizeStructured(ctx context.Context, text string) (string, error) {
	prompt := structuredSummaryPrompt + truncateChars(text, structuredSummaryCap)

	return g.generate(ctx, prompt,
		llms.WithMaxLength(800),
		llms.WithMinLength(600),
		llms.WithTemperature(g.config.Temperature),
		llms.WithTopP(0.9),
		llms.WithRepetitionPenalty(1.2),
	)
}

// ExtractList pulls up to three aspect items (advantages, limitations) out of
// a document as an ordered list. When the model's output has no recognizable
// list structure the raw output becomes the sole element; this is graceful
// degradation, not a failure.
func (g *Generator) ExtractList(ctx context.Context, text, aspect string) ([]string, error) {
	prompt := fmt.Sprintf(
		"Extract exactly 3 key %s from this document. "+
			"Format as a numbered list with each item on a new line like this:\n"+
			"1. First %s\n2. Second %s\n3. Third %s\n\n%s",
		aspect, aspect, aspect, aspect, truncateChars(text, listExtractCap))

	raw, err := g.generate(ctx, prompt,
		llms.WithMaxLength(200),
		llms.WithRepetitionPenalty(1.3),
	)
	if err != nil {
		return nil, err
	}

	items := ParseListItems(raw)
	if len(items) > 3 {
		items = items[:3]
	}

	return items, nil
}

// Answer generates an answer to a question conditioned on retrieved chunk
// texts joined with spaces.
func (g *Generator) Answer(ctx context.Context, question string, chunks []string) (string, error) {
	prompt := fmt.Sprintf(
		"Answer this question based on the context:\nQuestion: %s\nContext: %s",
		question, strings.Join(chunks, " "))

	return g.generate(ctx, prompt,
		llms.WithMaxLength(300),
		llms.WithMinLength(50),
		llms.WithTemperature(g.config.Temperature),
		llms.WithRepetitionPenalty(1.2),
	)
}

// AnswerStream is Answer with incremental delivery of the generated text.
func (g *Generator) AnswerStream(ctx context.Context, question string, chunks []string, fn func(chunk string)) error {
	prompt := fmt.Sprintf(
		"Answer this question based on the context:\nQuestion: %s\nContext: %s",
		question, strings.Join(chunks, " "))

	_, err := g.generate(ctx, prompt,
		llms.WithMaxLength(300),
		llms.WithMinLength(50),
		llms.WithTemperature(g.config.Temperature),
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			fn(string(chunk))
			return nil
		}),
	)
	return err
}

// Compare contrasts two documents.
func (g *Generator) Compare(ctx context.Context, title1, text1, title2, text2 string) (string, error) {
	prompt := fmt.Sprintf(
		"Compare and contrast these two documents.\n\n"+
			"Document 1 (%s):\n%s\n\n"+
			"Document 2 (%s):\n%s\n\n"+
			"Provide a comprehensive analysis of:\n"+
			"1. Key similarities\n2. Major differences\n3. Complementary insights\n",
		title1, truncateChars(text1, compareCap),
		title2, truncateChars(text2, compareCap))

	return g.generate(ctx, prompt,
		llms.WithMaxLength(800),
		llms.WithMinLength(300),
		llms.WithTemperature(g.config.Temperature),
		llms.WithRepetitionPenalty(1.2),
	)
}

func (g *Generator) generate(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	response, err := g.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)
	}
	if response == nil || len(response.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", models.ErrGenerationFailed)
	}

	return strings.TrimSpace(response.Choices[0].Content), nil
}

func truncateChars(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

package processor

import "strings"

type ProcessorConfig struct {
	ChunkSize    int // window size in words
	ChunkOverlap int // words shared between adjacent windows
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize == 0 {
		config.ChunkSize = 512
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 50
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 2
	}

	return Processor{
		config: config,
	}
}

// Chunk splits text into overlapping fixed-size word windows. The window
// advances by ChunkSize-ChunkOverlap words each step and the last window may
// be shorter. Identical input always yields an identical ordered sequence;
// chunk identifiers downstream depend on that.
func (p Processor) Chunk(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := p.config.ChunkSize - p.config.ChunkOverlap
	var chunks []string

	for i := 0; i < len(words); i += step {
		end := i + p.config.ChunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}

	return chunks
}

package extractor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/thinkbrief/thinkbrief/internal/models"
	"github.com/thinkbrief/thinkbrief/internal/types"
)

type ExtractorConfig struct {
	MaxTextChars int   // cap applied to cleaned text
	MaxTxtBytes  int64 // read cap for plain text files
	OCRDPI       int
	Runner       CommandRunner // injectable for tests
}

type Extractor struct {
	config ExtractorConfig
	runner CommandRunner
}

func NewWithConfig(config ExtractorConfig) *Extractor {
	if config.MaxTextChars == 0 {
		config.MaxTextChars = 100000
	}
	if config.MaxTxtBytes == 0 {
		config.MaxTxtBytes = 500000
	}
	if config.OCRDPI == 0 {
		config.OCRDPI = 300
	}
	if config.Runner == nil {
		config.Runner = execRunner{}
	}

	return &Extractor{
		config: config,
		runner: config.Runner,
	}
}

func New() *Extractor {
	return NewWithConfig(ExtractorConfig{})
}

// ParseFileType maps a filename extension onto the closed set of supported
// formats. Anything else is a caller configuration error.
func ParseFileType(filename string) (types.FileType, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return types.FileTypePDF, nil
	case ".docx":
		return types.FileTypeDOCX, nil
	case ".txt":
		return types.FileTypeTXT, nil
	default:
		return types.FileTypeUnknown, fmt.Errorf("%w: %s", models.ErrUnsupportedType, filepath.Ext(filename))
	}
}

// Extract converts a file into cleaned plain text. Sub-step failures are
// handled locally; the only errors crossing this boundary are the models
// sentinels.
func (e *Extractor) Extract(ctx context.Context, path string, kind types.FileType) (string, error) {
	var (
		text string
		err  error
	)

	switch kind {
	case types.FileTypePDF:
		text, err = e.extractPDF(ctx, path)
	case types.FileTypeDOCX:
		text, err = e.extractDOCX(path)
	case types.FileTypeTXT:
		text, err = e.extractTXT(path)
	default:
		return "", models.ErrUnsupportedType
	}

	if err != nil {
		return "", err
	}

	text = e.cleanText(text)
	if text == "" {
		return "", models.ErrExtractionFailed
	}

	return text, nil
}

var urlPattern = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)

// cleanText strips URLs, collapses whitespace runs and caps the length to
// bound downstream embedding and generation cost.
func (e *Extractor) cleanText(text string) string {
	text = urlPattern.ReplaceAllString(text, "")
	text = strings.Join(strings.Fields(text), " ")

	if utf8.RuneCountInString(text) > e.config.MaxTextChars {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:e.config.MaxTextChars]))
	}

	return text
}

func (e *Extractor) extractTXT(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrExtractionFailed, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, e.config.MaxTxtBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrExtractionFailed, err)
	}

	if int64(len(data)) == e.config.MaxTxtBytes {
		// The byte cap may have cut through a multibyte rune.
		data = trimPartialRune(data)
	}

	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: file is not valid UTF-8 text", models.ErrExtractionFailed)
	}

	return string(data), nil
}

// trimPartialRune drops the incomplete trailing rune left behind by a byte
// truncation. Valid input and input whose corruption is not at the tail pass
// through unchanged.
func trimPartialRune(data []byte) []byte {
	for i := 0; i < utf8.UTFMax-1 && len(data) > 0; i++ {
		r, size := utf8.DecodeLastRune(data)
		if r != utf8.RuneError || size != 1 {
			break
		}
		data = data[:len(data)-1]
	}
	return data
}

package extractor

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/thinkbrief/thinkbrief/internal/models"
)

// documentXML mirrors the structure of word/document.xml.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

// extractDOCX concatenates the non-empty paragraph texts of a DOCX archive.
// Any parse failure is reported as an extraction failure, never propagated.
func (e *Extractor) extractDOCX(path string) (string, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: not a valid docx archive: %v", models.ErrExtractionFailed, err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("%w: %v", models.ErrExtractionFailed, err)
		}

		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("%w: %v", models.ErrExtractionFailed, err)
		}

		var doc documentXML
		if err := xml.Unmarshal(content, &doc); err != nil {
			return "", fmt.Errorf("%w: %v", models.ErrExtractionFailed, err)
		}

		var builder strings.Builder
		for _, para := range doc.Body.Paragraphs {
			var text strings.Builder
			for _, r := range para.Runs {
				for _, t := range r.Text {
					text.WriteString(t.Content)
				}
			}
			if strings.TrimSpace(text.String()) == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text.String())
		}

		return builder.String(), nil
	}

	return "", fmt.Errorf("%w: archive has no word/document.xml", models.ErrExtractionFailed)
}

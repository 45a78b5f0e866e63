package extractor

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/thinkbrief/thinkbrief/internal/models"
)

// extractPDF attempts structural extraction page by page, falling back to
// OCR when the whole document yields no usable text. A single page's failure
// is logged and skipped, not fatal to the document.
func (e *Extractor) extractPDF(ctx context.Context, path string) (string, error) {
	pages, err := e.pageCount(ctx, path)
	if err != nil {
		log.Printf("extractor: pdfinfo failed for %s: %v", path, err)
	}

	var text string
	if pages > 0 {
		text = e.pdfToText(ctx, path, pages)
	} else {
		// Page count unknown; try a single whole-document run.
		out, err := e.runner.Run(ctx, "pdftotext", "-q", path, "-")
		if err != nil {
			log.Printf("extractor: pdftotext failed for %s: %v", path, err)
		} else {
			text = string(out)
		}
	}

	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	return e.ocrPDF(ctx, path, pages)
}

// pageCount parses the Pages field from pdfinfo output.
func (e *Extractor) pageCount(ctx context.Context, path string) (int, error) {
	out, err := e.runner.Run(ctx, "pdfinfo", path)
	if err != nil {
		return 0, err
	}

	for _, line := range strings.Split(string(out), "\n") {
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
		if err != nil {
			return 0, fmt.Errorf("unparseable page count: %v", err)
		}
		return n, nil
	}

	return 0, fmt.Errorf("no Pages field in pdfinfo output")
}

func (e *Extractor) pdfToText(ctx context.Context, path string, pages int) string {
	var builder strings.Builder

	for p := 1; p <= pages; p++ {
		page := strconv.Itoa(p)
		out, err := e.runner.Run(ctx, "pdftotext", "-q", "-f", page, "-l", page, path, "-")
		if err != nil {
			log.Printf("extractor: skipping page %d of %s: %v", p, path, err)
			continue
		}
		if len(out) > 0 {
			builder.Write(out)
			builder.WriteString("\n")
		}
	}

	return builder.String()
}

// ocrPDF rasterizes each page and runs text recognition with tolerant
// settings. Pages whose recognition fails are skipped.
func (e *Extractor) ocrPDF(ctx context.Context, path string, pages int) (string, error) {
	if pages < 1 {
		return "", fmt.Errorf("%w: no pages to recognize", models.ErrExtractionFailed)
	}

	log.Printf("extractor: attempting OCR for %s (%d pages)", path, pages)

	tmpDir, err := os.MkdirTemp("", "thinkbrief-ocr-")
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrExtractionFailed, err)
	}
	defer os.RemoveAll(tmpDir)

	dpi := strconv.Itoa(e.config.OCRDPI)
	var recognized []string

	for p := 1; p <= pages; p++ {
		page := strconv.Itoa(p)
		prefix := filepath.Join(tmpDir, "page")

		_, err := e.runner.Run(ctx, "pdftoppm",
			"-singlefile", "-f", page, "-l", page,
			"-r", dpi, "-gray", "-png", path, prefix)
		if err != nil {
			log.Printf("extractor: rasterize error on page %d: %v", p, err)
			continue
		}

		out, err := e.runner.Run(ctx, "tesseract", prefix+".png", "-", "--oem", "3", "--psm", "1")
		if err != nil {
			log.Printf("extractor: OCR error on page %d: %v", p, err)
			continue
		}

		if strings.TrimSpace(string(out)) != "" {
			recognized = append(recognized, string(out))
		}
	}

	if len(recognized) == 0 {
		return "", models.ErrExtractionFailed
	}

	return strings.Join(recognized, "\n"), nil
}

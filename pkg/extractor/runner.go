package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// CommandRunner executes an external tool and returns its stdout. Injected so
// tests can run without poppler or tesseract installed.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %v: %s", name, err, stderr.String())
	}

	return stdout.Bytes(), nil
}

var ErrPDFToolNotFound = errors.New("pdftotext not found in PATH")

// CheckAvailable reports whether the poppler tools are installed.
func CheckAvailable() error {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return ErrPDFToolNotFound
	}
	return nil
}

// InstallInstructions explains how to install the PDF tooling.
func InstallInstructions() string {
	return "pdftotext is required for PDF extraction.\n" +
		"  macOS:  brew install poppler tesseract\n" +
		"  Debian: apt install poppler-utils tesseract-ocr"
}

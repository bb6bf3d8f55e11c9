package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"

	"github.com/ledongthuc/pdf"
)

var multiSpace = regexp.MustCompile(`[ \t]+`)

// SeedPDF extracts text from a glossary PDF and seeds its term-definition
// lines. The file name becomes the concepts' source label.
func SeedPDF(ctx context.Context, base Promoter, path string, log *slog.Logger) (int, error) {
	text, err := extractPDFText(path)
	if err != nil {
		return 0, err
	}
	return SeedGlossaryText(ctx, base, text, filepath.Base(path), log)
}

func extractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return multiSpace.ReplaceAllString(string(b), " "), nil
}

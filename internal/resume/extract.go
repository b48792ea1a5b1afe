// Package resume turns resume documents into candidate profiles.
package resume

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for extensions with no text extractor.
	ErrUnsupportedFormat = errors.New("unsupported resume format")
	// ErrNoText is returned when a document parses but yields no text.
	ErrNoText = errors.New("no text content found")
)

// ExtractText reads the plain text of a resume. PDF, DOCX, TXT and MD files are supported.
func ExtractText(path string) (string, error) {
	var (
		text string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		text, err = extractPDF(path)
	case ".docx":
		text, err = extractDOCX(path)
	case ".txt", ".md":
		var b []byte
		b, err = os.ReadFile(path)
		text = string(b)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", filepath.Base(path), err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("extract %s: %w", filepath.Base(path), ErrNoText)
	}
	return text, nil
}

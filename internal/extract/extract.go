// Package extract turns uploaded study material into plain text.
//
// PDFs are read page by page; text and markdown are decoded as UTF-8 with a
// Latin-1 fallback; source files get a language header so the generator
// can tell code from prose. Any other extension is treated as text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrUnsupported means the bytes could not be decoded as the claimed type.
	ErrUnsupported = errors.New("unsupported or undecodable file")
	// ErrEmpty means decoding succeeded but produced no text.
	ErrEmpty = errors.New("no text could be extracted")
)

var codeLanguages = map[string]string{
	".py":   "Python",
	".cpp":  "C++",
	".java": "Java",
}

// Extract returns the text content of data, dispatching on filename's
// extension.
func Extract(data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%s: %w", filename, ErrEmpty)
	}

	ext := strings.ToLower(filepath.Ext(filename))

	var (
		text string
		err  error
	)
	switch {
	case ext == ".pdf":
		text, err = extractPDF(data)
	case codeLanguages[ext] != "":
		text, err = decodeText(data)
		if err == nil && strings.TrimSpace(text) != "" {
			text = "[LANGUAGE: " + codeLanguages[ext] + "]\n\n" + text
		}
	default:
		text, err = decodeText(data)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", filename, err)
	}

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: %w", filename, ErrEmpty)
	}
	return text, nil
}

// IsPDF reports whether data starts with the PDF magic header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// decodeText decodes UTF-8, falling back to Latin-1. Data containing NUL
// bytes is treated as binary.
func decodeText(data []byte) (string, error) {
	if bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("binary content: %w", ErrUnsupported)
	}
	if utf8.Valid(data) {
		return string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("latin-1 decode: %w: %w", err, ErrUnsupported)
	}
	return string(decoded), nil
}

// extractPDF joins the non-empty page texts with a blank line so the
// segmenter sees page breaks as paragraph breaks.
func extractPDF(data []byte) (text string, err error) {
	if !IsPDF(data) {
		return "", fmt.Errorf("missing %%PDF header: %w", ErrUnsupported)
	}

	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf parse panic: %v: %w", r, ErrUnsupported)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %v: %w", err, ErrUnsupported)
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		t, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("pdf page %d: %v: %w", i, err, ErrUnsupported)
		}
		if t = strings.TrimSpace(t); t != "" {
			pages = append(pages, t)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

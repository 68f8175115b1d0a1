// Package extract pulls plain text out of uploaded files ahead of chunking.
// PDF extraction uses github.com/ledongthuc/pdf; everything else is read as
// UTF-8 text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrUnsupportedType is returned for file types extraction cannot handle.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrNoText is returned when a file yields no usable text.
	ErrNoText = errors.New("no extractable text")
)

// Result is the text content of one extracted file.
type Result struct {
	// Text is the full plain-text content, null bytes removed.
	Text string

	// PageCount is the number of pages for paginated formats, 0 otherwise.
	PageCount int
}

// supported maps lowercase file extensions to their extractor.
var supported = map[string]func([]byte) (*Result, error){
	".pdf":  FromPDF,
	".txt":  FromText,
	".md":   FromText,
	".html": FromText,
	".csv":  FromText,
	".json": FromText,
}

// Supported reports whether filename has an extension extraction can handle.
func Supported(filename string) bool {
	_, ok := supported[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// FromFile extracts text from the file at path, dispatching on extension.
func FromFile(path string) (*Result, error) {
	fn, ok := supported[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return fn(data)
}

// FromPDF extracts the plain text of every page in a PDF document.
func FromPDF(data []byte) (*Result, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}

	reader, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extracting pdf text: %w", err)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading pdf text: %w", err)
	}

	text := sanitize(string(raw))
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoText
	}

	return &Result{Text: text, PageCount: r.NumPage()}, nil
}

// FromText treats data as UTF-8 text, dropping invalid bytes.
func FromText(data []byte) (*Result, error) {
	text := sanitize(string(data))
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoText
	}
	return &Result{Text: text}, nil
}

// sanitize strips null bytes and invalid UTF-8 sequences. Postgres rejects
// \x00 in text columns, so it must never survive extraction. Decoding is
// byte-wise so a genuine U+FFFD already present in valid input survives;
// only invalid sequences (which decode to RuneError with width 1) are
// dropped.
func sanitize(s string) string {
	if utf8.ValidString(s) && !strings.ContainsRune(s, 0) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == 0 || (r == utf8.RuneError && size == 1) {
			i += size
			continue
		}
		b.WriteString(s[i : i+size])
		i += size
	}
	return b.String()
}

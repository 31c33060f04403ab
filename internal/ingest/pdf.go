package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var ErrUnsupportedFile = errors.New("unsupported file type")

// Supported reports whether ExtractPages can read fileName.
func Supported(fileName string) bool {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf", ".txt", ".md", ".markdown", ".text":
		return true
	}
	return false
}

// ExtractPages returns the text of a file page by page. PDFs yield one entry
// per page (blank pages included, so positions match page numbers); plain
// text and markdown files are a single page.
func ExtractPages(fileName string, data []byte) ([]string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return ExtractPDFPages(data)
	case ".txt", ".md", ".markdown", ".text":
		return []string{sanitizeUTF8(string(data))}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(fileName))
}

func ExtractPDFPages(data []byte) ([]string, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	numPages := pdfReader.NumPage()
	pages := make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		pages[i-1] = sanitizeUTF8(text)
	}
	return pages, nil
}

// sanitizeUTF8 drops invalid UTF-8 bytes so the text can be stored in
// PostgreSQL. NUL bytes go too.
func sanitizeUTF8(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	if utf8.ValidString(s) {
		return s
	}

	var result strings.Builder
	result.Grow(len(s))

	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			s = s[1:]
			continue
		}
		result.WriteRune(r)
		s = s[size:]
	}

	return result.String()
}

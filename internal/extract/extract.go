// Package extract pulls plain text out of uploaded documents.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// Document is an uploaded file. Data is rewound before every read, so the
// same Document can be extracted more than once.
type Document struct {
	Name string
	Data io.ReadSeeker
}

// ExtractionError reports a document whose text could not be read.
type ExtractionError struct {
	Name string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Name, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Func extracts text from the raw bytes of one document.
type Func func(data []byte) (string, error)

// Extractor dispatches on the document's file extension.
type Extractor struct {
	funcs map[string]Func // extension (without dot) → extractor
}

// New returns an Extractor that handles PDF and plain-text documents.
func New() *Extractor {
	e := &Extractor{funcs: make(map[string]Func)}
	e.Register(PDFText, "pdf")
	e.Register(PlainText, "txt", "md", "markdown")
	return e
}

// Register installs fn for the given extensions.
func (e *Extractor) Register(fn Func, exts ...string) {
	for _, ext := range exts {
		e.funcs[strings.ToLower(strings.TrimPrefix(ext, "."))] = fn
	}
}

// Extensions returns the set of supported extensions (without dot).
func (e *Extractor) Extensions() map[string]bool {
	exts := make(map[string]bool, len(e.funcs))
	for ext := range e.funcs {
		exts[ext] = true
	}
	return exts
}

// Extract returns the text of doc. Every failure, including a panic inside
// a parser, is returned as an *ExtractionError.
func (e *Extractor) Extract(doc Document) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", &ExtractionError{Name: doc.Name, Err: fmt.Errorf("parser panic: %v", r)}
		}
	}()

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(doc.Name), "."))
	fn, ok := e.funcs[ext]
	if !ok {
		return "", &ExtractionError{Name: doc.Name, Err: fmt.Errorf("unsupported file type %q", ext)}
	}
	if doc.Data == nil {
		return "", &ExtractionError{Name: doc.Name, Err: fmt.Errorf("no data")}
	}
	if _, err := doc.Data.Seek(0, io.SeekStart); err != nil {
		return "", &ExtractionError{Name: doc.Name, Err: fmt.Errorf("rewind: %w", err)}
	}
	data, err := io.ReadAll(doc.Data)
	if err != nil {
		return "", &ExtractionError{Name: doc.Name, Err: fmt.Errorf("read: %w", err)}
	}

	text, err = fn(data)
	if err != nil {
		return "", &ExtractionError{Name: doc.Name, Err: err}
	}
	return text, nil
}

// PDFText extracts the text of every page of a PDF.
func PDFText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var b bytes.Buffer
	if _, err := b.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return b.String(), nil
}

// PlainText returns data as UTF-8 text.
func PlainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("not valid UTF-8 text")
	}
	return string(data), nil
}

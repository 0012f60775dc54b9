// Package document extracts and caches the text of uploaded PDFs and keeps the
// per-tab viewing state (page, zoom, search position) over it.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	// ErrNotPDF is returned for uploads that are not PDF files.
	ErrNotPDF = errors.New("file is not a PDF")
	// ErrCorrupt is returned for PDFs whose pages cannot be read.
	ErrCorrupt = errors.New("PDF could not be read")
)

var disableConfigDir sync.Once

// IsPDF checks the PDF magic bytes.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// Extract parses data and returns a Document with one text entry per page.
func Extract(name string, data []byte) (*Document, error) {
	if !IsPDF(data) {
		return nil, ErrNotPDF
	}

	pages, err := extractPages(data)
	if err != nil {
		return nil, err
	}

	meta := Inspect(data)
	meta.PageCount = len(pages)

	return &Document{
		ID:       uuid.NewString(),
		Name:     name,
		Size:     int64(len(data)),
		Pages:    pages,
		Metadata: meta,
		LoadedAt: time.Now(),
	}, nil
}

func extractPages(data []byte) (pages []string, err error) {
	// The reader panics on some malformed object graphs.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", ErrCorrupt, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	total := reader.NumPage()
	if total == 0 {
		return nil, fmt.Errorf("%w: document has no pages", ErrCorrupt)
	}

	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Image-only or oddly encoded pages keep an empty entry so numbering holds.
			slog.Debug("Page text extraction failed", "page", i, "error", err)
			pages = append(pages, "")
			continue
		}
		pages = append(pages, joinFields(text))
	}
	return pages, nil
}

// joinFields collapses the extracted text items into single-space separated text.
func joinFields(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Inspect reads document metadata with pdfcpu. It never fails: metadata is
// informational and a PDF that pdfcpu rejects may still have readable text.
func Inspect(data []byte) (meta Metadata) {
	disableConfigDir.Do(api.DisableConfigDir)

	defer func() {
		if r := recover(); r != nil {
			slog.Debug("PDF metadata inspection panicked", "panic", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		slog.Debug("PDF metadata read failed", "error", err)
		return meta
	}
	meta.Encrypted = ctx.Encrypt != nil
	if err := api.ValidateContext(ctx); err != nil {
		slog.Debug("PDF metadata validation failed", "error", err)
	}

	meta.Title = ctx.Title
	meta.Author = ctx.Author
	meta.Subject = ctx.Subject
	meta.Creator = ctx.Creator
	meta.Producer = ctx.Producer
	meta.PageCount = ctx.PageCount
	return meta
}

// Package extract turns uploaded files into pages of plain text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/finknow/internal/domain"
	"github.com/ledongthuc/pdf"
)

var pdfMagic = []byte("%PDF-")

var (
	ErrNotPDF      = errors.New("file is not a PDF")
	ErrInvalidUTF8 = errors.New("text file is not valid UTF-8")
)

// IsPDF reports whether data starts with the PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

// PDF extracts the text layer of each page.
type PDF struct{}

func (PDF) Extract(ctx context.Context, data []byte) (pages []domain.Page, err error) {
	if !IsPDF(data) {
		return nil, ErrNotPDF
	}

	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	total := reader.NumPage()
	pages = make([]domain.Page, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", i, err)
		}
		pages = append(pages, domain.Page{Number: i, Text: text})
	}

	return pages, nil
}

// PlainText treats the whole file as a single page of UTF-8 text.
type PlainText struct{}

func (PlainText) Extract(ctx context.Context, data []byte) ([]domain.Page, error) {
	if !utf8.Valid(data) {
		return nil, ErrInvalidUTF8
	}
	return []domain.Page{{Number: 1, Text: string(data)}}, nil
}

// Auto picks PDF or plain text extraction from the file header.
type Auto struct{}

func (Auto) Extract(ctx context.Context, data []byte) ([]domain.Page, error) {
	if IsPDF(data) {
		return PDF{}.Extract(ctx, data)
	}
	return PlainText{}.Extract(ctx, data)
}

// JoinPages concatenates pages, each introduced by a "Page N" header line. Pages without text are left out,
// so a document with no text joins to "".
func JoinPages(pages []domain.Page) string {
	var b strings.Builder
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		b.WriteString("\n\nPage ")
		b.WriteString(strconv.Itoa(p.Number))
		b.WriteString("\n")
		b.WriteString(p.Text)
	}
	return b.String()
}

package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/ppiankov/reportspectre/internal/models"
)

// DefaultMaxPages limits how many pages are read from one PDF.
const DefaultMaxPages = 50

// PDF extracts plain text from PDF files. No table is produced.
type PDF struct {
	MaxPages int
}

// Load reads the text of every page up to MaxPages.
func (p *PDF) Load(ctx context.Context, path string) (doc *models.Document, err error) {
	defer func() {
		// The pdf reader panics on some malformed files.
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("failed to read pdf %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", path, err)
	}
	defer f.Close()

	maxPages := p.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	pages := min(r.NumPage(), maxPages)

	var b strings.Builder
	failed := 0
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			failed++
			continue
		}
		text, err := pageText(page)
		if err != nil {
			failed++
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
		if b.Len() >= MaxTextChars {
			break
		}
	}
	if failed > 0 {
		slog.Debug("pdf pages could not be read", slog.String("file", path), slog.Int("failed", failed))
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	return &models.Document{Path: path, Text: capText(text)}, nil
}

func pageText(p pdf.Page) (string, error) {
	rows, err := p.GetTextByRow()
	if err != nil {
		return p.GetPlainText(nil)
	}
	var b strings.Builder
	for _, row := range rows {
		if row == nil || len(row.Content) == 0 {
			continue
		}
		words := make([]string, 0, len(row.Content))
		for _, t := range row.Content {
			words = append(words, t.S)
		}
		line := strings.TrimSpace(strings.Join(words, ""))
		if line != "" {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

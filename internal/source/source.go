// Package source turns report files into tables and plain text.
package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ppiankov/reportspectre/internal/models"
)

// MaxTextChars bounds the text extracted from one file.
const MaxTextChars = 50000

var (
	// ErrUnsupportedFormat is returned for file extensions without a loader.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmpty is returned when a file holds no usable data.
	ErrEmpty = errors.New("file contains no data")
)

// Loader reads one file format.
type Loader interface {
	Load(ctx context.Context, path string) (*models.Document, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, path string) (*models.Document, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, path string) (*models.Document, error) {
	return f(ctx, path)
}

// Mux dispatches to a loader by file extension.
type Mux struct {
	loaders map[string]Loader
}

// NewMux returns a mux without loaders.
func NewMux() *Mux {
	return &Mux{loaders: make(map[string]Loader)}
}

// Default returns a mux serving csv, tsv, txt and pdf files.
func Default() *Mux {
	m := NewMux()
	csvLoader := &CSV{}
	m.Register(csvLoader, "csv", "tsv", "txt")
	m.Register(&PDF{}, "pdf")
	return m
}

// Register binds a loader to extensions, given without the dot.
func (m *Mux) Register(l Loader, extensions ...string) {
	for _, ext := range extensions {
		m.loaders[normalizeExt(ext)] = l
	}
}

// Supports reports whether a file has a registered extension.
func (m *Mux) Supports(path string) bool {
	_, ok := m.loaders[normalizeExt(filepath.Ext(path))]
	return ok
}

// Extensions returns the registered extensions, sorted.
func (m *Mux) Extensions() []string {
	out := make([]string, 0, len(m.loaders))
	for ext := range m.loaders {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Load reads path with the loader registered for its extension.
func (m *Mux) Load(ctx context.Context, path string) (*models.Document, error) {
	ext := normalizeExt(filepath.Ext(path))
	l, ok := m.loaders[ext]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %q", path, ErrUnsupportedFormat, ext)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := l.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	doc.Path = path
	return doc, nil
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func capText(s string) string {
	if len(s) <= MaxTextChars {
		return s
	}
	r := []rune(s)
	if len(r) <= MaxTextChars {
		return s
	}
	return string(r[:MaxTextChars])
}

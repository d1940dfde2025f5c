package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ppiankov/reportspectre/internal/models"
)

// JSONDir writes one indented JSON document per result into a directory.
type JSONDir struct {
	dir     string
	mu      sync.Mutex
	written []string
}

// NewJSONDir creates the directory if needed.
func NewJSONDir(dir string) (*JSONDir, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &JSONDir{dir: dir}, nil
}

// Write stores the result as <file>.json.
func (j *JSONDir) Write(_ context.Context, result *models.AnalysisResult) error {
	if result == nil {
		return fmt.Errorf("result is nil")
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result to JSON: %w", err)
	}

	outputPath := filepath.Join(j.dir, ResultFileName(result.File))
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(outputPath), err)
	}

	j.mu.Lock()
	j.written = append(j.written, outputPath)
	j.mu.Unlock()

	slog.Debug("result written", slog.String("path", outputPath))
	return nil
}

// Written returns the paths written so far.
func (j *JSONDir) Written() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.written...)
}

// Close is a no-op.
func (j *JSONDir) Close() error {
	return nil
}

// ResultFileName names the JSON document for an input file.
func ResultFileName(file string) string {
	base := filepath.Base(file)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "result"
	}
	return base + ".json"
}

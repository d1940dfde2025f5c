package reporter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ppiankov/reportspectre/pkg/config"
)

// SummaryFile is the batch summary written next to the per-file results.
const SummaryFile = "summary.json"

type jsonSummary struct {
	Summary    any `json:"summary"`
	Suppressed int `json:"baseline_suppressed"`
}

// WriteJSON writes the batch summary to summary.json
func WriteJSON(report *Report, cfg *config.Config) error {
	if report == nil {
		return fmt.Errorf("report is nil")
	}

	// Ensure output directory exists
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(jsonSummary{Summary: report.Summary, Suppressed: report.Suppressed}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary to JSON: %w", err)
	}

	outputPath := filepath.Join(cfg.OutputDir, SummaryFile)
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", SummaryFile, err)
	}

	slog.Debug("summary written", slog.String("path", outputPath))
	return nil
}

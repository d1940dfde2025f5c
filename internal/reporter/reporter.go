// Package reporter renders the outcome of a run for people and tools.
package reporter

import (
	"fmt"

	"github.com/ppiankov/reportspectre/internal/models"
	"github.com/ppiankov/reportspectre/pkg/config"
)

// Report is everything one run produced.
type Report struct {
	Summary models.BatchSummary
	Results []*models.AnalysisResult
	// Suppressed counts failed checks and findings hidden by the baseline.
	Suppressed int
}

// Reporter interface for generating reports
type Reporter interface {
	Generate(report *Report) error
}

// reporter implements the Reporter interface
type reporter struct {
	config *config.Config
}

// New creates a new reporter instance
func New(cfg *config.Config) Reporter {
	return &reporter{
		config: cfg,
	}
}

// Generate writes every output the configured format asks for.
func (r *reporter) Generate(report *Report) error {
	switch r.config.Format {
	case config.FormatText, config.FormatJSON, config.FormatSARIF, config.FormatAll:
	default:
		return fmt.Errorf("unsupported format: %s", r.config.Format)
	}

	if r.config.WritesJSON() {
		if err := WriteJSON(report, r.config); err != nil {
			return err
		}
	}
	if r.config.WritesSARIF() {
		if err := WriteSARIF(report, r.config); err != nil {
			return err
		}
	}
	if r.config.WritesText() {
		if err := WriteText(report, r.config); err != nil {
			return err
		}
	}
	return nil
}

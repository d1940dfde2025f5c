// Package sink persists analysis results as they are produced.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ppiankov/reportspectre/internal/models"
)

// DefaultTable is the table the database sinks write to.
const DefaultTable = "report_results"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Sink receives analysis results.
type Sink interface {
	Write(ctx context.Context, result *models.AnalysisResult) error
	Close() error
}

// Multi fans out results to several sinks. A failing sink does not keep the
// remaining ones from receiving the result.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a Multi over the given sinks.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Len returns the number of wrapped sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Write delivers the result to every sink and joins their errors.
func (m *Multi) Write(ctx context.Context, result *models.AnalysisResult) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// record is the flattened row stored by the database sinks.
type record struct {
	ID           string
	RunID        string
	File         string
	ReportType   string
	DisplayName  string
	Status       string
	RiskLevel    string
	Score        any
	Findings     int
	FailedChecks int
	AnalyzedAt   time.Time
	Payload      string
}

func newRecord(result *models.AnalysisResult) (record, error) {
	if result == nil {
		return record{}, fmt.Errorf("result is nil")
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return record{}, fmt.Errorf("failed to marshal result: %w", err)
	}

	rec := record{
		ID:           result.ID,
		RunID:        result.RunID,
		File:         result.File,
		ReportType:   result.ReportType,
		DisplayName:  result.DisplayName,
		Status:       string(result.Status()),
		Findings:     len(result.Findings),
		FailedChecks: len(result.FailedChecks()),
		AnalyzedAt:   result.AnalyzedAt.UTC(),
		Payload:      string(payload),
	}
	if result.Score != nil {
		rec.Score = result.Score.Score
		rec.RiskLevel = string(result.Score.RiskLevel)
	}
	return rec, nil
}

func (r record) args() []any {
	return []any{
		r.ID, r.RunID, r.File, r.ReportType, r.DisplayName, r.Status,
		r.RiskLevel, r.Score, r.Findings, r.FailedChecks, r.AnalyzedAt, r.Payload,
	}
}

func validateTable(name string) (string, error) {
	if name == "" {
		return DefaultTable, nil
	}
	if !tableNamePattern.MatchString(name) {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	return name, nil
}

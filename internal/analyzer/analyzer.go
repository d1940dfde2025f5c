// Package analyzer runs the check suite of a detected report type and scores the result.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/reportspectre/internal/models"
	"github.com/ppiankov/reportspectre/internal/reporttype"
	"github.com/ppiankov/reportspectre/internal/schema"
	"github.com/ppiankov/reportspectre/internal/scorer"
	"github.com/ppiankov/reportspectre/internal/timeline"
)

// ErrNoTable is reported for documents that carry text but no table.
var ErrNoTable = errors.New("document has no tabular data")

// Provider loads a document when the caller did not pass one.
type Provider interface {
	Load(ctx context.Context, path string) (*models.Document, error)
}

// Analyzer turns one detected report into an AnalysisResult.
type Analyzer struct {
	suites      *Registry
	provider    Provider
	reportMonth timeline.Month
	now         func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithProvider sets the loader used when Analyze receives no document.
func WithProvider(p Provider) Option {
	return func(a *Analyzer) { a.provider = p }
}

// WithSuites replaces the built-in suite registry.
func WithSuites(r *Registry) Option {
	return func(a *Analyzer) { a.suites = r }
}

// WithReportMonth pins the report month instead of inferring it.
func WithReportMonth(m timeline.Month) Option {
	return func(a *Analyzer) { a.reportMonth = m }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// New creates an analyzer with the built-in suites.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		suites: NewRegistry(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs detection output through mapping, checks, extraction and scoring.
// It never returns nil: failures produce a not_analyzed result with findings.
func (a *Analyzer) Analyze(ctx context.Context, file string, detection *models.DetectionResult, doc *models.Document) *models.AnalysisResult {
	start := a.now()
	result := &models.AnalysisResult{
		ID:         uuid.NewString(),
		File:       file,
		Detection:  detection,
		Checks:     []models.CheckResult{},
		Fields:     map[string]any{},
		Findings:   []models.Finding{},
		AnalyzedAt: start.UTC(),
	}
	defer func() {
		result.Processing.Duration = a.now().Sub(start).String()
	}()

	// 1. Require a configured report type
	if detection == nil || detection.Config == nil {
		result.ReportType = models.UnknownReportType
		result.AddFinding(models.FindingUnclassified, "report type could not be determined", nil)
		return result
	}
	rt := detection.Config
	result.ReportType = rt.ID()
	result.DisplayName = detection.DisplayName

	// 2. Load the document if the caller has none
	if doc == nil {
		if a.provider == nil {
			result.AddFinding(models.FindingParseError, "no document and no provider configured", nil)
			return result
		}
		loaded, err := a.provider.Load(ctx, file)
		if err != nil {
			result.AddFinding(models.FindingParseError, fmt.Sprintf("failed to load %s: %v", file, err), nil)
			return result
		}
		doc = loaded
	}
	if doc.Table == nil {
		result.AddFinding(models.FindingParseError, ErrNoTable.Error(), nil)
		return result
	}
	result.Processing.Rows = doc.Table.Len()
	result.Processing.Columns = len(doc.Table.Columns)

	// 3. Map columns onto the canonical vocabulary
	mapped, mapping := schema.NewMapper(rt.Identification.FuzzyMatching).Map(doc.Table)
	for _, c := range mapping.Collisions {
		result.AddFinding(models.FindingMappingConflict,
			fmt.Sprintf("columns %q and %q both map to %q, keeping %q", c.Loser, c.Winner, c.Canonical, c.Winner),
			map[string]any{"canonical": c.Canonical, "winner": c.Winner, "loser": c.Loser})
	}

	// 4. Run the check suite
	if err := ctx.Err(); err != nil {
		result.AddFinding(models.FindingAnalysisError, err.Error(), nil)
		return result
	}
	suite, fn := a.suites.Resolve(rt)
	result.Processing.Analyzer = suite
	opts := Options{ReportMonth: a.reportMonth, Now: a.now()}

	outcome, err := runSuite(fn, mapped, rt, opts)
	if err != nil {
		slog.Warn("check suite failed", slog.String("file", file), slog.String("suite", suite), slog.String("error", err.Error()))
		result.AddFinding(models.FindingAnalysisError, err.Error(), map[string]any{"analyzer": suite})
		return result
	}
	result.Findings = append(result.Findings, outcome.Findings...)
	result.Checks = append(result.Checks, outcome.Checks...)
	for k, v := range outcome.Fields {
		result.Fields[k] = v
	}

	// 5. Extract configured fields over the enriched table
	table := outcome.Table
	if table == nil {
		table = mapped
	}
	extracted, fieldErrs := Extract(table, rt.Analysis.ExtractionFields, result.Fields)
	for k, v := range extracted {
		result.Fields[k] = v
	}
	for _, fe := range fieldErrs {
		result.AddFinding(models.FindingAnalysisError,
			fmt.Sprintf("field %s could not be extracted: %v", fe.Field, fe.Err),
			map[string]any{"field": fe.Field})
	}

	// 6. Score
	sc, err := scorer.New(rt.Analysis.Scoring)
	if err != nil {
		result.AddFinding(models.FindingScoringRule, err.Error(), nil)
		return result
	}
	score := sc.Calculate(result.Checks, result.Fields)
	for _, re := range score.RuleErrors {
		result.AddFinding(models.FindingScoringRule,
			fmt.Sprintf("rule %q could not be evaluated: %s", re.Condition, re.Reason),
			map[string]any{"condition": re.Condition})
	}
	result.Score = &score

	slog.Debug("report analyzed",
		slog.String("file", file),
		slog.String("report_type", rt.ID()),
		slog.Float64("score", score.Score),
		slog.String("risk", string(score.RiskLevel)),
	)
	return result
}

// runSuite calls fn and turns a panic into an error.
func runSuite(fn CheckFunc, table *models.Table, rt *reporttype.ReportType, opts Options) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("check suite panic", slog.String("stack", string(debug.Stack())))
			out, err = Outcome{}, fmt.Errorf("analysis of %s panicked: %v", rt.ID(), r)
		}
	}()
	out, err = fn(table, rt, opts)
	if err != nil {
		return Outcome{}, fmt.Errorf("analysis of %s failed: %w", rt.ID(), err)
	}
	return out, nil
}

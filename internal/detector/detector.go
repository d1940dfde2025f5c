// Package detector decides which configured report type a file is.
//
// Detection runs four stages in order and stops at the first hit: filename
// patterns, content identifiers, an optional text classifier and an optional
// operator selection. Report types are visited in id order.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/reportspectre/internal/classifier"
	"github.com/ppiankov/reportspectre/internal/models"
	"github.com/ppiankov/reportspectre/internal/reporttype"
)

// Stage names as recorded in a Trace.
const (
	StageFilename   = models.MethodFilename
	StageContent    = models.MethodContent
	StageClassifier = models.MethodClassifier
	StageManual     = models.MethodManual
)

const (
	filenameConfidence   = 0.95
	contentConfidenceCap = 0.9
	contentTextLimit     = 10000
	classifierTextLimit  = 5000
)

var classifierOptions = []string{"JA", "NEIN", "YES", "NO"}

// Provider loads the table and text of a file.
type Provider interface {
	Load(ctx context.Context, path string) (*models.Document, error)
}

// Classifier answers a prompt about a piece of report text.
type Classifier interface {
	Classify(ctx context.Context, text, prompt string, options []string) (classifier.Answer, error)
}

// Pinger is implemented by classifiers that can report availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Catalog serves the report types in effect.
type Catalog interface {
	Current() *reporttype.Registry
}

// StageError is a non-fatal failure inside one stage.
type StageError struct {
	Stage      string `json:"stage"`
	ReportType string `json:"report_type,omitempty"`
	Err        error  `json:"-"`
	Message    string `json:"message"`
}

func (e StageError) Error() string {
	if e.ReportType != "" {
		return fmt.Sprintf("%s stage (%s): %v", e.Stage, e.ReportType, e.Err)
	}
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

// Trace records what happened while detecting one file.
type Trace struct {
	Stages   []string
	Errors   []StageError
	Document *models.Document
}

func (t *Trace) fail(stage, reportType string, err error) {
	t.Errors = append(t.Errors, StageError{Stage: stage, ReportType: reportType, Err: err, Message: err.Error()})
	slog.Debug("detection stage failed",
		slog.String("stage", stage),
		slog.String("report_type", reportType),
		slog.String("error", err.Error()),
	)
}

// Detector runs the detection stages against a catalog of report types.
type Detector struct {
	catalog           Catalog
	provider          Provider
	classifier        Classifier
	selector          Selector
	classifierTimeout time.Duration
}

// Option configures a Detector.
type Option func(*Detector)

// WithClassifier enables the classifier stage.
func WithClassifier(c Classifier) Option {
	return func(d *Detector) { d.classifier = c }
}

// WithSelector enables the manual stage.
func WithSelector(s Selector) Option {
	return func(d *Detector) { d.selector = s }
}

// WithClassifierTimeout bounds each classifier call.
func WithClassifierTimeout(timeout time.Duration) Option {
	return func(d *Detector) { d.classifierTimeout = timeout }
}

// New returns a detector. provider may be nil, which disables the content,
// classifier and manual stages.
func New(catalog Catalog, provider Provider, opts ...Option) *Detector {
	d := &Detector{catalog: catalog, provider: provider}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect classifies a file. A nil result means no stage matched.
func (d *Detector) Detect(ctx context.Context, path string) (*models.DetectionResult, *Trace) {
	trace := &Trace{}
	candidates := d.catalog.Current().Enabled()
	if len(candidates) == 0 {
		return nil, trace
	}

	trace.Stages = append(trace.Stages, StageFilename)
	if result := matchFilename(filepath.Base(path), candidates); result != nil {
		return d.log(path, result), trace
	}

	if d.provider == nil {
		return nil, trace
	}
	trace.Stages = append(trace.Stages, StageContent)
	doc, err := d.provider.Load(ctx, path)
	if err != nil {
		trace.fail(StageContent, "", err)
	} else {
		trace.Document = doc
		if result := matchContent(doc, candidates); result != nil {
			return d.log(path, result), trace
		}
	}

	if d.classifier != nil && doc != nil && strings.TrimSpace(doc.Text) != "" {
		trace.Stages = append(trace.Stages, StageClassifier)
		if result := d.classify(ctx, doc.Text, candidates, trace); result != nil {
			return d.log(path, result), trace
		}
	}

	if d.selector != nil {
		trace.Stages = append(trace.Stages, StageManual)
		result, err := d.selectManually(ctx, path, doc, candidates)
		if err != nil {
			trace.fail(StageManual, "", err)
		} else if result != nil {
			return d.log(path, result), trace
		}
	}

	slog.Warn("could not detect report type", slog.String("file", path))
	return nil, trace
}

func (d *Detector) log(path string, result *models.DetectionResult) *models.DetectionResult {
	slog.Info("report type detected",
		slog.String("file", path),
		slog.String("report_type", result.ReportTypeID),
		slog.String("method", result.Method),
		slog.Float64("confidence", result.Confidence),
	)
	return result
}

func matchFilename(name string, candidates []*reporttype.ReportType) *models.DetectionResult {
	for _, rt := range candidates {
		for i, re := range rt.FilenamePatterns() {
			if re.MatchString(name) {
				return &models.DetectionResult{
					ReportTypeID: rt.ID(),
					DisplayName:  rt.Name(),
					Confidence:   filenameConfidence,
					Method:       models.MethodFilename,
					Evidence:     []string{rt.Identification.FilenamePatterns[i]},
					Config:       rt,
				}
			}
		}
	}
	return nil
}

func matchContent(doc *models.Document, candidates []*reporttype.ReportType) *models.DetectionResult {
	var columns []string
	if doc.Table != nil {
		columns = doc.Table.Columns
	}
	text := truncate(doc.Text, contentTextLimit)
	if len(columns) == 0 && text == "" {
		return nil
	}

	var (
		best      *reporttype.ReportType
		bestScore float64
		bestMatch []string
	)
	for _, rt := range candidates {
		ids := rt.Identification.ContentIdentifiers
		if ids.Empty() {
			continue
		}
		score, matched := ContentScore(columns, text, ids)
		if score > bestScore {
			best, bestScore, bestMatch = rt, score, matched
		}
	}
	if best == nil {
		return nil
	}

	minMatches := best.Identification.ContentIdentifiers.Threshold()
	if bestScore < minMatches {
		return nil
	}
	confidence := bestScore / (minMatches + 2)
	if confidence > contentConfidenceCap {
		confidence = contentConfidenceCap
	}
	return &models.DetectionResult{
		ReportTypeID: best.ID(),
		DisplayName:  best.Name(),
		Confidence:   confidence,
		Method:       models.MethodContent,
		Evidence:     bestMatch,
		Config:       best,
	}
}

// ContentScore weighs columns and text against content identifiers.
// Column identifiers match when they are a case-insensitive substring of any column.
func ContentScore(columns []string, text string, ids reporttype.ContentIdentifiers) (float64, []string) {
	lowered := make([]string, len(columns))
	for i, c := range columns {
		lowered[i] = strings.ToLower(c)
	}
	hasColumn := func(want string) bool {
		want = strings.ToLower(want)
		for _, c := range lowered {
			if strings.Contains(c, want) {
				return true
			}
		}
		return false
	}
	lowerText := strings.ToLower(text)

	var score float64
	var matched []string
	for _, col := range ids.RequiredColumns {
		if hasColumn(col) {
			score += 2
			matched = append(matched, "column:"+col)
		}
	}
	for _, col := range ids.OptionalColumns {
		if hasColumn(col) {
			score++
			matched = append(matched, "optional_column:"+col)
		}
	}
	for _, kw := range ids.RequiredKeywords {
		if strings.Contains(lowerText, strings.ToLower(kw)) {
			score += 1.5
			matched = append(matched, "keyword:"+kw)
		}
	}
	for _, kw := range ids.OptionalKeywords {
		if strings.Contains(lowerText, strings.ToLower(kw)) {
			score += 0.5
			matched = append(matched, "optional_keyword:"+kw)
		}
	}
	return score, matched
}

func (d *Detector) classify(ctx context.Context, text string, candidates []*reporttype.ReportType, trace *Trace) *models.DetectionResult {
	if p, ok := d.classifier.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			trace.fail(StageClassifier, "", fmt.Errorf("classifier unavailable: %w", err))
			return nil
		}
	}

	text = truncate(text, classifierTextLimit)
	for _, rt := range candidates {
		cfg := rt.Identification.Classification
		if !cfg.Enabled || strings.TrimSpace(cfg.Prompt) == "" {
			continue
		}

		answer, err := d.ask(ctx, text, cfg.Prompt)
		if err != nil {
			trace.fail(StageClassifier, rt.ID(), err)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		if !classifier.IsAffirmative(answer.Content) || answer.Confidence < cfg.Threshold() {
			continue
		}
		return &models.DetectionResult{
			ReportTypeID: rt.ID(),
			DisplayName:  rt.Name(),
			Confidence:   answer.Confidence,
			Method:       models.MethodClassifier,
			Evidence:     []string{"classifier: " + answer.Content},
			Config:       rt,
		}
	}
	return nil
}

func (d *Detector) ask(ctx context.Context, text, prompt string) (classifier.Answer, error) {
	if d.classifierTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.classifierTimeout)
		defer cancel()
	}
	return d.classifier.Classify(ctx, text, prompt, classifierOptions)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

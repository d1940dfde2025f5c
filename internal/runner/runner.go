// Package runner drives detection and analysis over a batch of files.
//
// Files are processed by a fixed pool of workers, each file under its own
// timeout. A failure inside one file becomes a finding on that file's result
// and never stops the batch.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/reportspectre/internal/detector"
	"github.com/ppiankov/reportspectre/internal/models"
)

// DefaultWorkers is the pool size when none is configured.
const DefaultWorkers = 4

// Detector classifies one file.
type Detector interface {
	Detect(ctx context.Context, path string) (*models.DetectionResult, *detector.Trace)
}

// Analyzer turns a classified file into a result.
type Analyzer interface {
	Analyze(ctx context.Context, file string, detection *models.DetectionResult, doc *models.Document) *models.AnalysisResult
}

// Sink receives every finished result.
type Sink interface {
	Write(ctx context.Context, result *models.AnalysisResult) error
}

// Runner processes files through a detector and an analyzer.
type Runner struct {
	detector    Detector
	analyzer    Analyzer
	sink        Sink
	workers     int
	fileTimeout time.Duration
	runID       string
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithFileTimeout bounds the processing of each file. Zero disables it.
func WithFileTimeout(d time.Duration) Option {
	return func(r *Runner) { r.fileTimeout = d }
}

// WithSink writes every result to s as it completes.
func WithSink(s Sink) Option {
	return func(r *Runner) { r.sink = s }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(r *Runner) {
		if id != "" {
			r.runID = id
		}
	}
}

// New creates a runner.
func New(det Detector, an Analyzer, opts ...Option) *Runner {
	r := &Runner{
		detector: det,
		analyzer: an,
		workers:  DefaultWorkers,
		runID:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunID identifies the batch every result of this runner belongs to.
func (r *Runner) RunID() string {
	return r.runID
}

// Process detects and analyses a single file.
func (r *Runner) Process(ctx context.Context, file string) *models.AnalysisResult {
	if r.fileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.fileTimeout)
		defer cancel()
	}

	// 1. Classify the file
	detection, trace := r.detector.Detect(ctx, file)
	var doc *models.Document
	if trace != nil {
		doc = trace.Document
	}

	// 2. Analyse with the document detection already loaded
	result := r.analyzer.Analyze(ctx, file, detection, doc)
	if result == nil {
		result = failedResult(file, "analyzer returned no result")
	}

	// 3. Carry detection stage failures onto the result
	if trace != nil {
		for _, stageErr := range trace.Errors {
			kind := models.FindingDetectionError
			if stageErr.Stage == detector.StageClassifier {
				kind = models.FindingClassifierError
			}
			details := map[string]any{"stage": stageErr.Stage}
			if stageErr.ReportType != "" {
				details["report_type"] = stageErr.ReportType
			}
			result.AddFinding(kind, stageErr.Message, details)
		}
	}

	// 4. Record a timeout unless the analyzer already did
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !hasFinding(result, models.FindingAnalysisError) {
		result.AddFinding(models.FindingAnalysisError,
			fmt.Sprintf("processing exceeded the file timeout of %s", r.fileTimeout), nil)
	}

	result.RunID = r.runID
	return result
}

// Run processes files concurrently and returns one result per file, sorted by
// file name. The returned error joins sink failures and cancellation; results
// are complete either way.
func (r *Runner) Run(ctx context.Context, files []string) ([]*models.AnalysisResult, error) {
	pool := NewPool(r.workers, r.Process)
	pool.Start(ctx)

	go func() {
		for _, file := range files {
			if !pool.Submit(file) {
				break
			}
		}
		pool.Stop()
	}()

	var errs []error
	seen := make(map[string]bool, len(files))
	results := make([]*models.AnalysisResult, 0, len(files))
	for result := range pool.Results() {
		if result.RunID == "" {
			result.RunID = r.runID
		}
		seen[result.File] = true
		results = append(results, result)

		slog.Info("file processed",
			slog.String("file", result.File),
			slog.String("report_type", result.ReportType),
			slog.String("status", string(result.Status())),
			slog.Int("findings", len(result.Findings)),
		)

		if r.sink != nil {
			if err := r.sink.Write(ctx, result); err != nil {
				slog.Error("failed to write result",
					slog.String("file", result.File),
					slog.String("error", err.Error()),
				)
				errs = append(errs, fmt.Errorf("write result for %s: %w", result.File, err))
			}
		}
	}

	// Files never picked up because the run was canceled
	if err := ctx.Err(); err != nil {
		for _, file := range files {
			if seen[file] {
				continue
			}
			result := failedResult(file, "run canceled before the file was processed")
			result.RunID = r.runID
			results = append(results, result)
		}
		errs = append(errs, err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].File < results[j].File
	})
	return results, errors.Join(errs...)
}

func failedResult(path, message string) *models.AnalysisResult {
	result := &models.AnalysisResult{
		ID:         uuid.NewString(),
		File:       path,
		ReportType: models.UnknownReportType,
		Fields:     map[string]any{},
		AnalyzedAt: time.Now().UTC(),
	}
	result.AddFinding(models.FindingAnalysisError, message, nil)
	return result
}

func hasFinding(result *models.AnalysisResult, kind string) bool {
	for _, f := range result.Findings {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

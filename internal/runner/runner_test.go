package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/reportspectre/internal/detector"
	"github.com/ppiankov/reportspectre/internal/models"
)

type stubDetector struct {
	errors map[string][]detector.StageError
}

func (d *stubDetector) Detect(_ context.Context, path string) (*models.DetectionResult, *detector.Trace) {
	trace := &detector.Trace{Errors: d.errors[path]}
	if strings.HasPrefix(filepath.Base(path), "unknown") {
		return nil, trace
	}
	return &models.DetectionResult{ReportTypeID: "veeam_backup", Method: models.MethodFilename}, trace
}

type stubAnalyzer struct {
	delay time.Duration
}

func (a *stubAnalyzer) Analyze(ctx context.Context, file string, det *models.DetectionResult, _ *models.Document) *models.AnalysisResult {
	if strings.Contains(file, "panic") {
		panic("corrupt table")
	}
	if a.delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(a.delay):
		}
	}
	result := &models.AnalysisResult{File: file, Fields: map[string]any{}}
	if det == nil {
		result.ReportType = models.UnknownReportType
		result.AddFinding(models.FindingUnclassified, "no report type matched", nil)
		return result
	}
	result.ReportType = det.ReportTypeID
	result.Score = &models.ScoreResult{Score: 100, Status: models.StatusOK}
	return result
}

type recordingSink struct {
	mu      sync.Mutex
	written []string
	fail    string
}

func (s *recordingSink) Write(_ context.Context, result *models.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if result.File == s.fail {
		return errors.New("disk full")
	}
	s.written = append(s.written, result.File)
	return nil
}

func findingKinds(result *models.AnalysisResult) map[string]bool {
	kinds := map[string]bool{}
	for _, f := range result.Findings {
		kinds[f.Kind] = true
	}
	return kinds
}

func TestRunProcessesEveryFile(t *testing.T) {
	files := []string{"veeam_c.csv", "unknown.csv", "veeam_panic.csv", "veeam_a.csv"}
	sink := &recordingSink{}
	r := New(&stubDetector{}, &stubAnalyzer{}, WithWorkers(2), WithSink(sink), WithRunID("run-1"))

	results, err := r.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != len(files) {
		t.Fatalf("expected %d results, got %d", len(files), len(results))
	}

	want := []string{"unknown.csv", "veeam_a.csv", "veeam_c.csv", "veeam_panic.csv"}
	for i, result := range results {
		if result.File != want[i] {
			t.Fatalf("expected sorted results, got %s at %d", result.File, i)
		}
		if result.RunID != "run-1" {
			t.Fatalf("expected run id on %s, got %q", result.File, result.RunID)
		}
	}

	if results[0].Status() != models.StatusNotAnalyzed || !findingKinds(results[0])[models.FindingUnclassified] {
		t.Fatalf("expected unclassified result, got %+v", results[0])
	}
	if results[1].Status() != models.StatusOK {
		t.Fatalf("expected ok result, got %s", results[1].Status())
	}
	panicked := results[3]
	if panicked.Status() != models.StatusNotAnalyzed || !findingKinds(panicked)[models.FindingAnalysisError] {
		t.Fatalf("expected panic to become an analysis error, got %+v", panicked)
	}
	if panicked.ID == "" {
		t.Fatalf("expected an id on the recovered result")
	}
	if len(sink.written) != len(files) {
		t.Fatalf("expected every result written, got %v", sink.written)
	}
}

func TestRunJoinsSinkErrors(t *testing.T) {
	sink := &recordingSink{fail: "veeam_b.csv"}
	r := New(&stubDetector{}, &stubAnalyzer{}, WithSink(sink))

	results, err := r.Run(context.Background(), []string{"veeam_a.csv", "veeam_b.csv"})
	if err == nil || !strings.Contains(err.Error(), "veeam_b.csv") {
		t.Fatalf("expected sink error for veeam_b.csv, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("sink errors must not drop results, got %d", len(results))
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := New(&stubDetector{}, &stubAnalyzer{}).Run(ctx, []string{"veeam_a.csv", "veeam_b.csv"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected a result per file, got %d", len(results))
	}
	for _, result := range results {
		if result.Status() == models.StatusOK {
			continue
		}
		if !findingKinds(result)[models.FindingAnalysisError] {
			t.Fatalf("expected canceled files to carry an analysis error, got %+v", result)
		}
	}
}

func TestProcessRecordsStageErrors(t *testing.T) {
	det := &stubDetector{errors: map[string][]detector.StageError{
		"unknown.pdf": {
			{Stage: detector.StageContent, Message: "failed to open pdf"},
			{Stage: detector.StageClassifier, ReportType: "veeam_backup", Message: "connection refused"},
		},
	}}
	result := New(det, &stubAnalyzer{}).Process(context.Background(), "unknown.pdf")

	kinds := findingKinds(result)
	if !kinds[models.FindingDetectionError] || !kinds[models.FindingClassifierError] {
		t.Fatalf("expected detection and classifier findings, got %+v", result.Findings)
	}
	for _, f := range result.Findings {
		if f.Kind == models.FindingClassifierError && f.Details["report_type"] != "veeam_backup" {
			t.Fatalf("expected report type in details, got %v", f.Details)
		}
	}
}

func TestProcessFileTimeout(t *testing.T) {
	r := New(&stubDetector{}, &stubAnalyzer{delay: time.Second}, WithFileTimeout(10*time.Millisecond))

	result := r.Process(context.Background(), "veeam_slow.csv")
	if !findingKinds(result)[models.FindingAnalysisError] {
		t.Fatalf("expected timeout finding, got %+v", result.Findings)
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.csv", "a.pdf", ".hidden.csv", "notes.docx"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.csv"), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}

	supports := func(path string) bool {
		ext := filepath.Ext(path)
		return ext == ".csv" || ext == ".pdf"
	}
	files, err := Discover(dir, supports)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "a.pdf" || filepath.Base(files[1]) != "b.csv" {
		t.Fatalf("unexpected files %v", files)
	}

	if _, err := Discover(filepath.Join(dir, "missing"), supports); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestPoolStopWithoutStart(t *testing.T) {
	p := NewPool(0, func(context.Context, string) *models.AnalysisResult { return nil })
	p.Stop()
	if p.workers != 1 {
		t.Fatalf("expected at least one worker, got %d", p.workers)
	}
}

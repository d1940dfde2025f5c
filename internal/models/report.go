package models

import (
	"sort"
	"time"
)

// Finding kinds attached to an analysis result.
const (
	FindingUnclassified    = "unclassified"
	FindingParseError      = "parse_error"
	FindingMappingConflict = "mapping_collision"
	FindingDateInference   = "date_inference_low_confidence"
	FindingClassifierError = "classifier_error"
	FindingDetectionError  = "detection_error"
	FindingScoringRule     = "scoring_rule_error"
	FindingAmbiguousPeriod = "ambiguous_period"
	FindingAnalysisError   = "analysis_error"
)

// Finding is a non-fatal problem attributed to one report.
type Finding struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ProcessingInfo describes how a report was processed.
type ProcessingInfo struct {
	Duration string `json:"duration"`
	Rows     int    `json:"rows"`
	Columns  int    `json:"columns"`
	Analyzer string `json:"analyzer,omitempty"`
}

// AnalysisResult is the complete output for one input file.
type AnalysisResult struct {
	ID          string           `json:"id"`
	RunID       string           `json:"run_id,omitempty"`
	File        string           `json:"file"`
	ReportType  string           `json:"report_type"`
	DisplayName string           `json:"display_name,omitempty"`
	Detection   *DetectionResult `json:"detection,omitempty"`
	Checks      []CheckResult    `json:"checks"`
	Score       *ScoreResult     `json:"score,omitempty"`
	Fields      map[string]any   `json:"extracted_fields"`
	Findings    []Finding        `json:"findings"`
	Processing  ProcessingInfo   `json:"processing"`
	AnalyzedAt  time.Time        `json:"analyzed_at"`
}

// Status returns the report status, not_analyzed when no score exists.
func (r *AnalysisResult) Status() Status {
	if r == nil || r.Score == nil {
		return StatusNotAnalyzed
	}
	return r.Score.Status
}

// AddFinding appends a finding to the result.
func (r *AnalysisResult) AddFinding(kind, message string, details map[string]any) {
	r.Findings = append(r.Findings, Finding{Kind: kind, Message: message, Details: details})
}

// FailedChecks returns the checks that did not pass.
func (r *AnalysisResult) FailedChecks() []CheckResult {
	var failed []CheckResult
	for _, check := range r.Checks {
		if !check.Passed {
			failed = append(failed, check)
		}
	}
	return failed
}

// BatchSummary aggregates the results of one run.
type BatchSummary struct {
	Tool         string         `json:"tool"`
	Version      string         `json:"version"`
	RunID        string         `json:"run_id"`
	GeneratedAt  time.Time      `json:"generated_at"`
	Duration     string         `json:"duration"`
	TotalFiles   int            `json:"total_files"`
	ByStatus     map[Status]int `json:"by_status"`
	ByReportType map[string]int `json:"by_report_type"`
	AverageScore float64        `json:"average_score"`
	Files        []FileSummary  `json:"files"`
}

// FileSummary is one line of the batch summary.
type FileSummary struct {
	File       string    `json:"file"`
	ReportType string    `json:"report_type"`
	Score      float64   `json:"score"`
	RiskLevel  RiskLevel `json:"risk_level,omitempty"`
	Status     Status    `json:"status"`
	Findings   int       `json:"findings"`
}

// Summarize builds a batch summary sorted by file name.
func Summarize(results []*AnalysisResult) BatchSummary {
	summary := BatchSummary{
		ByStatus:     map[Status]int{},
		ByReportType: map[string]int{},
		Files:        make([]FileSummary, 0, len(results)),
	}

	scored := 0
	total := 0.0
	for _, result := range results {
		if result == nil {
			continue
		}
		summary.TotalFiles++
		status := result.Status()
		summary.ByStatus[status]++
		reportType := result.ReportType
		if reportType == "" {
			reportType = UnknownReportType
		}
		summary.ByReportType[reportType]++

		line := FileSummary{
			File:       result.File,
			ReportType: reportType,
			Status:     status,
			Findings:   len(result.Findings),
		}
		if result.Score != nil {
			line.Score = result.Score.Score
			line.RiskLevel = result.Score.RiskLevel
			total += result.Score.Score
			scored++
		}
		summary.Files = append(summary.Files, line)
	}

	if scored > 0 {
		summary.AverageScore = total / float64(scored)
	}
	sort.Slice(summary.Files, func(i, j int) bool {
		return summary.Files[i].File < summary.Files[j].File
	})
	return summary
}

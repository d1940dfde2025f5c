package scorer

import (
	"math"
	"strings"
	"testing"

	"github.com/ppiankov/reportspectre/internal/models"
	"github.com/ppiankov/reportspectre/internal/reporttype"
)

func ptr(v float64) *float64 { return &v }

func failedChecks(n int, severity models.Severity) []models.CheckResult {
	checks := make([]models.CheckResult, 0, n)
	for i := 0; i < n; i++ {
		checks = append(checks, models.CheckResult{ID: "c", Name: "c", Severity: severity})
	}
	return checks
}

func mustScorer(t *testing.T, cfg reporttype.Scoring) *Scorer {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create scorer: %v", err)
	}
	return s
}

func TestPerOccurrenceDeductionIsCapped(t *testing.T) {
	s := mustScorer(t, reporttype.Scoring{
		BaseScore: ptr(100),
		Deductions: []reporttype.Deduction{
			{Condition: CondFailedChecks, Points: 5, PerOccurrence: true, MaxDeduction: ptr(20), Description: "failed checks"},
		},
	})

	result := s.Calculate(failedChecks(10, models.SeverityLow), nil)
	if result.TotalDeductions != 20 {
		t.Fatalf("expected deduction 20, got %v", result.TotalDeductions)
	}
	if result.Score != 80 {
		t.Fatalf("expected score 80, got %v", result.Score)
	}
	if len(result.TriggeredRules) != 1 || result.TriggeredRules[0] != CondFailedChecks {
		t.Fatalf("expected failed_checks triggered, got %v", result.TriggeredRules)
	}
	if result.RiskLevel != models.RiskMedium || result.Status != models.StatusLimited {
		t.Fatalf("expected medium/limited, got %s/%s", result.RiskLevel, result.Status)
	}
}

func TestHugeFieldValueHitsMaxDeduction(t *testing.T) {
	s := mustScorer(t, reporttype.Scoring{
		BaseScore: ptr(100),
		Deductions: []reporttype.Deduction{
			{Condition: "x > 0", Points: 5, PerOccurrence: true, MaxDeduction: ptr(20)},
		},
	})

	result := s.Calculate(nil, map[string]any{"x": 1e19})
	if result.TotalDeductions != 20 || result.Score != 80 {
		t.Fatalf("expected deduction 20 and score 80, got %v and %v", result.TotalDeductions, result.Score)
	}
}

func TestNamedConditions(t *testing.T) {
	checks := []models.CheckResult{
		{ID: "completeness", Severity: models.SeverityHigh},
		{ID: "data_quality", Severity: models.SeverityLow},
		{ID: "Quality_Nulls", Severity: models.SeverityMedium},
		{ID: "backup_failures", Severity: models.SeverityHigh},
		{ID: "passing", Severity: models.SeverityHigh, Passed: true},
	}

	cases := []struct {
		condition string
		want      int
	}{
		{CondMissingRequiredColumns, 1},
		{CondDataQualityIssues, 2},
		{CondCriticalErrors, 2},
		{CondFailedChecks, 4},
		{"failed:backup_failures", 1},
		{"failed:passing", 0},
	}
	for _, tc := range cases {
		t.Run(tc.condition, func(t *testing.T) {
			got, err := evaluate(tc.condition, checks, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestFieldComparisons(t *testing.T) {
	fields := map[string]any{
		"failed_backups": 3.0,
		"failure_rate":   0.4,
		"success_rate":   97.5,
		"report_month":   "2024-05",
		"total":          "12",
		"enabled":        true,
		"huge":           1e19,
		"negative_huge":  -1e19,
	}

	cases := []struct {
		name      string
		condition string
		want      int
		wantErr   bool
	}{
		{name: "greater_counts_field_value", condition: "failed_backups > 0", want: 3},
		{name: "greater_false", condition: "failed_backups > 5", want: 0},
		{name: "fraction_counts_once", condition: "failure_rate > 0.1", want: 1},
		{name: "less_true", condition: "success_rate < 99", want: 97},
		{name: "greater_equal", condition: "failed_backups >= 3", want: 3},
		{name: "less_equal_false", condition: "failed_backups <= 2", want: 0},
		{name: "string_equal", condition: "report_month == '2024-05'", want: 1},
		{name: "string_not_equal", condition: "report_month != \"2024-05\"", want: 0},
		{name: "numeric_equal", condition: "failed_backups == 3.0", want: 1},
		{name: "numeric_string_field", condition: "total > 10", want: 12},
		{name: "bool_equal", condition: "enabled == true", want: 1},
		{name: "missing_field", condition: "missing > 0", want: 0},
		{name: "huge_value_saturates", condition: "huge > 0", want: maxOccurrences},
		{name: "huge_negative_saturates", condition: "negative_huge < 0", want: maxOccurrences},
		{name: "non_numeric_operand", condition: "failed_backups > lots", wantErr: true},
		{name: "non_numeric_field", condition: "report_month > 1", wantErr: true},
		{name: "garbage", condition: "when it rains", wantErr: true},
		{name: "empty_failed_prefix", condition: "failed:", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := evaluate(tc.condition, nil, fields)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.condition)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestMisconfiguredRuleContributesZero(t *testing.T) {
	s := mustScorer(t, reporttype.Scoring{
		Deductions: []reporttype.Deduction{
			{Condition: "nonsense !!", Points: 50},
			{Condition: "failed_backups > 0", Points: 10},
		},
	})

	result := s.Calculate(nil, map[string]any{"failed_backups": 2.0})
	if result.Score != 90 {
		t.Fatalf("expected only the valid rule to deduct, got score %v", result.Score)
	}
	if len(result.RuleErrors) != 1 || result.RuleErrors[0].Condition != "nonsense !!" {
		t.Fatalf("expected rule error recorded, got %+v", result.RuleErrors)
	}
}

func TestCheckDeductionsAreAdditive(t *testing.T) {
	s := mustScorer(t, reporttype.Scoring{
		Deductions: []reporttype.Deduction{
			{Condition: CondDataQualityIssues, Points: 10, Description: "quality"},
		},
	})
	checks := []models.CheckResult{
		{ID: "data_quality", Name: "Data quality", Severity: models.SeverityLow, PointsDeducted: 4},
		{ID: "threshold", Name: "Threshold", Severity: models.SeverityLow, Passed: true, PointsDeducted: 99},
	}

	result := s.Calculate(checks, nil)
	if result.TotalDeductions != 14 || result.Score != 86 {
		t.Fatalf("expected 14 deducted and score 86, got %v and %v", result.TotalDeductions, result.Score)
	}
	if len(result.Deductions) != 2 {
		t.Fatalf("expected separate rule and check details, got %d", len(result.Deductions))
	}
	if result.Deductions[0].Condition != CondDataQualityIssues || result.Deductions[1].Check != "Data quality" {
		t.Fatalf("unexpected detail order %+v", result.Deductions)
	}
	if result.RiskLevel != models.RiskLow || result.Status != models.StatusOK {
		t.Fatalf("expected low/ok, got %s/%s", result.RiskLevel, result.Status)
	}
}

func TestScoreIsClamped(t *testing.T) {
	s := mustScorer(t, reporttype.Scoring{
		BaseScore: ptr(50),
		Deductions: []reporttype.Deduction{
			{Condition: CondFailedChecks, Points: 40, PerOccurrence: true},
		},
	})
	checks := failedChecks(3, models.SeverityLow)
	checks[0].PointsDeducted = 1000

	result := s.Calculate(checks, nil)
	if result.Score != 0 {
		t.Fatalf("expected score clamped at 0, got %v", result.Score)
	}
	if result.TotalDeductions != 1120 {
		t.Fatalf("expected raw deductions 1120, got %v", result.TotalDeductions)
	}
	if result.Score < 0 || result.Score > 100 || math.IsNaN(result.Score) {
		t.Fatalf("score out of bounds: %v", result.Score)
	}
}

func TestRiskLevelsAndStatus(t *testing.T) {
	cases := []struct {
		name       string
		levels     reporttype.RiskLevels
		deduct     float64
		checks     []models.CheckResult
		fields     map[string]any
		wantLevel  models.RiskLevel
		wantStatus models.Status
	}{
		{
			name:       "default_low",
			wantLevel:  models.RiskLow,
			wantStatus: models.StatusOK,
		},
		{
			name:       "default_medium_boundary",
			deduct:     15,
			wantLevel:  models.RiskMedium,
			wantStatus: models.StatusLimited,
		},
		{
			name:       "default_high_limited",
			deduct:     40,
			wantLevel:  models.RiskHigh,
			wantStatus: models.StatusLimited,
		},
		{
			name:       "default_high_error_below_40",
			deduct:     61,
			wantLevel:  models.RiskHigh,
			wantStatus: models.StatusError,
		},
		{
			name: "critical_trigger",
			levels: reporttype.RiskLevels{
				Critical: &reporttype.RiskBand{Triggers: []string{"missing_days > 3"}},
			},
			fields:     map[string]any{"missing_days": 5.0},
			wantLevel:  models.RiskCritical,
			wantStatus: models.StatusError,
		},
		{
			name: "high_trigger",
			levels: reporttype.RiskLevels{
				Critical: &reporttype.RiskBand{Triggers: []string{"missing_days > 10"}},
				High:     &reporttype.RiskBand{Triggers: []string{"missing_days > 3"}},
			},
			fields:     map[string]any{"missing_days": 5.0},
			wantLevel:  models.RiskHigh,
			wantStatus: models.StatusLimited,
		},
		{
			name: "configured_bands",
			levels: reporttype.RiskLevels{
				High:   &reporttype.RiskBand{ScoreRange: []float64{0, 70}},
				Medium: &reporttype.RiskBand{ScoreRange: []float64{71, 95}},
				Low:    &reporttype.RiskBand{ScoreRange: []float64{96, 100}},
			},
			deduct:     10,
			wantLevel:  models.RiskMedium,
			wantStatus: models.StatusLimited,
		},
		{
			name: "gap_between_bands_uses_defaults",
			levels: reporttype.RiskLevels{
				High: &reporttype.RiskBand{ScoreRange: []float64{0, 50}},
				Low:  &reporttype.RiskBand{ScoreRange: []float64{95, 100}},
			},
			deduct:     20,
			wantLevel:  models.RiskMedium,
			wantStatus: models.StatusLimited,
		},
		{
			name:       "failed_high_severity_forces_error",
			checks:     []models.CheckResult{{ID: "completeness", Severity: models.SeverityHigh}},
			wantLevel:  models.RiskLow,
			wantStatus: models.StatusError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := reporttype.Scoring{RiskLevels: tc.levels}
			if tc.deduct > 0 {
				cfg.Deductions = []reporttype.Deduction{{Condition: "penalty > 0", Points: tc.deduct}}
			}
			fields := map[string]any{"penalty": 1.0}
			for k, v := range tc.fields {
				fields[k] = v
			}

			result := mustScorer(t, cfg).Calculate(tc.checks, fields)
			if result.RiskLevel != tc.wantLevel {
				t.Fatalf("expected level %s, got %s (score %v)", tc.wantLevel, result.RiskLevel, result.Score)
			}
			if result.Status != tc.wantStatus {
				t.Fatalf("expected status %s, got %s", tc.wantStatus, result.Status)
			}
		})
	}
}

func TestNewRejectsInvalidBase(t *testing.T) {
	if _, err := New(reporttype.Scoring{BaseScore: ptr(101)}); err == nil {
		t.Fatalf("expected error for base score above 100")
	}
	if _, err := New(reporttype.Scoring{BaseScore: ptr(-1)}); err == nil {
		t.Fatalf("expected error for negative base score")
	}
}

func TestSummary(t *testing.T) {
	s := mustScorer(t, reporttype.Scoring{
		Deductions: []reporttype.Deduction{
			{Condition: CondFailedChecks, Points: 5, Description: "Failed checks"},
		},
	})
	result := s.Calculate(failedChecks(1, models.SeverityLow), nil)

	text := Summary(result)
	for _, want := range []string{"Score: 95.0/100", "Risk Level: low", "Failed checks: -5.0 points", "Triggered Rules: failed_checks"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected summary to contain %q, got:\n%s", want, text)
		}
	}
}

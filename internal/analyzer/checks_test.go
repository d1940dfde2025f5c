package analyzer

import (
	"strings"
	"testing"

	"github.com/ppiankov/reportspectre/internal/models"
	"github.com/ppiankov/reportspectre/internal/reporttype"
)

func checkTable() *models.Table {
	return models.NewTable(
		[]string{"Job Name", "Status", "Duration", "Date"},
		[][]any{
			{"daily", "ok", 10.0, "2024-05-01"},
			{"weekly", "failed", 50.0, "2024-05-02"},
			{"monthly", "failed", 70.0, "2024-05-20"},
			{"extra", "ok", 5.0, "not a date"},
		},
	)
}

func TestColumnValidation(t *testing.T) {
	cfg := reporttype.CheckConfig{
		ID:   "columns",
		Type: CheckColumnValidation,
		Parameters: map[string]any{
			"required_columns": []any{"job", "Status", "Owner", "Size"},
		},
	}
	check, _ := RunCheck(checkTable(), cfg)

	if check.Passed {
		t.Fatalf("expected failure for missing columns")
	}
	if check.PointsDeducted != 10 {
		t.Fatalf("expected 5 points per missing column, got %v", check.PointsDeducted)
	}
	if check.Severity != models.SeverityMedium {
		t.Fatalf("expected default medium severity, got %s", check.Severity)
	}
	if check.Message != "Missing columns: Owner, Size" {
		t.Fatalf("unexpected message %q", check.Message)
	}
}

func TestThreshold(t *testing.T) {
	cases := []struct {
		name       string
		params     map[string]any
		wantPassed bool
		wantCount  int
	}{
		{
			name:       "numeric_over_max_count",
			params:     map[string]any{"column": "duration", "value": 20, "max_count": 1},
			wantPassed: false,
			wantCount:  2,
		},
		{
			name:       "numeric_within_max_count",
			params:     map[string]any{"column": "Duration", "value": 20, "max_count": 2},
			wantPassed: true,
			wantCount:  2,
		},
		{
			name:       "string_over_percentage",
			params:     map[string]any{"column": "Status", "value": "failed", "max_percentage": 25},
			wantPassed: false,
			wantCount:  2,
		},
		{
			name:       "no_limits_passes",
			params:     map[string]any{"column": "Status", "value": "failed"},
			wantPassed: true,
			wantCount:  2,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			check, _ := RunCheck(checkTable(), reporttype.CheckConfig{ID: "t", Type: CheckThreshold, Parameters: tc.params})
			if check.Passed != tc.wantPassed {
				t.Fatalf("expected passed=%v, got %+v", tc.wantPassed, check)
			}
			if check.Details["count"] != tc.wantCount {
				t.Fatalf("expected count %d, got %v", tc.wantCount, check.Details["count"])
			}
			if !tc.wantPassed && check.PointsDeducted != float64(tc.wantCount) {
				t.Fatalf("expected deduction of count, got %v", check.PointsDeducted)
			}
		})
	}
}

func TestThresholdMissingColumn(t *testing.T) {
	check, _ := RunCheck(checkTable(), reporttype.CheckConfig{
		ID:         "t",
		Type:       CheckThreshold,
		Parameters: map[string]any{"column": "latency", "value": 1},
	})
	if check.Passed || check.Severity != models.SeverityHigh {
		t.Fatalf("expected failed high check, got %+v", check)
	}
}

func TestDateValidation(t *testing.T) {
	cfg := reporttype.CheckConfig{
		ID:         "dates",
		Type:       CheckDateValidation,
		Parameters: map[string]any{"column": "Date", "check_continuity": true},
	}
	check, _ := RunCheck(checkTable(), cfg)

	if check.Passed {
		t.Fatalf("expected failure for invalid date")
	}
	if check.Details["invalid_dates"] != 1 || check.PointsDeducted != 1 {
		t.Fatalf("expected one invalid date, got %+v", check)
	}
	if check.Details["gaps"] != 1 {
		t.Fatalf("expected one gap longer than 7 days, got %v", check.Details["gaps"])
	}
	if check.Severity != models.SeverityLow {
		t.Fatalf("expected default low severity, got %s", check.Severity)
	}
}

func TestDateValidationContinuityOnly(t *testing.T) {
	table := models.NewTable([]string{"day"}, [][]any{
		{"2024-05-01"}, {"2024-05-03"}, {"2024-05-15"},
	})
	check, _ := RunCheck(table, reporttype.CheckConfig{
		ID:         "dates",
		Type:       CheckDateValidation,
		Parameters: map[string]any{"column": "day", "check_continuity": true},
	})
	if check.Passed || check.PointsDeducted != 0 {
		t.Fatalf("expected gap failure without deduction, got %+v", check)
	}
	if !strings.Contains(check.Message, "gaps") {
		t.Fatalf("unexpected message %q", check.Message)
	}
}

func TestDataQuality(t *testing.T) {
	table := models.NewTable([]string{"a", "b"}, [][]any{
		{"x", nil},
		{"x", nil},
		{"y", nil},
		{"z", "1"},
	})
	check, _ := RunCheck(table, reporttype.CheckConfig{ID: "quality", Type: CheckDataQuality})

	if check.Passed {
		t.Fatalf("expected data quality issues")
	}
	issues := check.Details["issues"].([]string)
	if len(issues) != 2 {
		t.Fatalf("expected null and duplicate issues, got %v", issues)
	}
	if check.PointsDeducted != 4 {
		t.Fatalf("expected 2 points per issue, got %v", check.PointsDeducted)
	}
	if !strings.Contains(check.Message, "; ") {
		t.Fatalf("expected issues joined, got %q", check.Message)
	}
}

func TestUnknownCheckType(t *testing.T) {
	check, _ := RunCheck(checkTable(), reporttype.CheckConfig{ID: "x", Type: "regex"})
	if check.Passed || check.Severity != models.SeverityLow || check.Message != "Unknown check type: regex" {
		t.Fatalf("unexpected result %+v", check)
	}
}

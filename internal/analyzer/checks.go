package analyzer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/reportspectre/internal/dates"
	"github.com/ppiankov/reportspectre/internal/models"
	"github.com/ppiankov/reportspectre/internal/reporttype"
)

// Generic check types.
const (
	CheckColumnValidation = "column_validation"
	CheckThreshold        = "threshold"
	CheckDateValidation   = "date_validation"
	CheckDataQuality      = "data_quality"
)

const (
	missingColumnPoints = 5
	qualityIssuePoints  = 2
	continuityGapDays   = 7
)

// Generic runs the checks configured under analysis.checks.
func Generic(table *models.Table, rt *reporttype.ReportType, _ Options) (Outcome, error) {
	out := Outcome{Fields: map[string]any{}, Table: table}
	for _, cfg := range rt.Analysis.Checks {
		check, findings := RunCheck(table, cfg)
		out.Checks = append(out.Checks, check)
		out.Findings = append(out.Findings, findings...)
	}
	return out, nil
}

// RunCheck evaluates one generic check. Errors become a failed high-severity check.
func RunCheck(table *models.Table, cfg reporttype.CheckConfig) (check models.CheckResult, findings []models.Finding) {
	defer func() {
		if r := recover(); r != nil {
			check = failed(cfg, models.SeverityHigh, fmt.Sprintf("Check execution failed: %v", r))
		}
	}()

	switch cfg.Type {
	case CheckColumnValidation:
		return columnValidation(table, cfg), nil
	case CheckThreshold:
		return threshold(table, cfg), nil
	case CheckDateValidation:
		return dateValidation(table, cfg)
	case CheckDataQuality:
		return dataQuality(table, cfg), nil
	default:
		return failed(cfg, models.SeverityLow, "Unknown check type: "+cfg.Type), nil
	}
}

func failed(cfg reporttype.CheckConfig, severity models.Severity, message string) models.CheckResult {
	return models.CheckResult{
		ID:       cfg.ID,
		Name:     cfg.DisplayName(),
		Passed:   false,
		Severity: severity,
		Message:  message,
	}
}

func severity(cfg reporttype.CheckConfig, def models.Severity) models.Severity {
	s := cfg.Severity
	if s == "" {
		s = reporttype.ParamString(cfg.Parameters, "severity", "")
	}
	switch models.Severity(strings.ToLower(s)) {
	case models.SeverityLow:
		return models.SeverityLow
	case models.SeverityMedium:
		return models.SeverityMedium
	case models.SeverityHigh:
		return models.SeverityHigh
	}
	return def
}

// findColumn matches exactly first, then by case-insensitive substring.
func findColumn(table *models.Table, name string) (string, bool) {
	if table.HasColumn(name) {
		return name, true
	}
	lower := strings.ToLower(name)
	for _, column := range table.Columns {
		if strings.EqualFold(column, name) || strings.Contains(strings.ToLower(column), lower) {
			return column, true
		}
	}
	return "", false
}

func columnValidation(table *models.Table, cfg reporttype.CheckConfig) models.CheckResult {
	required := reporttype.ParamStrings(cfg.Parameters, "required_columns")
	var missing []string
	for _, name := range required {
		if _, ok := findColumn(table, name); !ok {
			missing = append(missing, name)
		}
	}

	check := models.CheckResult{
		ID:       cfg.ID,
		Name:     cfg.DisplayName(),
		Passed:   len(missing) == 0,
		Severity: severity(cfg, models.SeverityMedium),
		Details: map[string]any{
			"required_columns": required,
			"missing_columns":  nonNil(missing),
		},
	}
	if check.Passed {
		check.Message = "All required columns present"
		return check
	}
	check.Message = "Missing columns: " + strings.Join(missing, ", ")
	check.PointsDeducted = float64(len(missing) * missingColumnPoints)
	return check
}

func threshold(table *models.Table, cfg reporttype.CheckConfig) models.CheckResult {
	name := reporttype.ParamString(cfg.Parameters, "column", "")
	column, ok := findColumn(table, name)
	if !ok || name == "" {
		return failed(cfg, models.SeverityHigh, fmt.Sprintf("Column %q not found", name))
	}

	values := table.Column(column)
	raw := cfg.Parameters["value"]
	count := 0
	if limit, numeric := numericParam(raw); numeric && isNumericColumn(values) {
		for _, v := range values {
			if f, ok := models.CellFloat(v); ok && f > limit {
				count++
			}
		}
	} else {
		want := models.CellString(raw)
		for _, v := range values {
			if v != nil && models.CellString(v) == want {
				count++
			}
		}
	}

	total := len(values)
	pct := 0.0
	if total > 0 {
		pct = float64(count) / float64(total) * 100
	}
	maxCount := reporttype.ParamFloat(cfg.Parameters, "max_count", 0)
	maxPct := reporttype.ParamFloat(cfg.Parameters, "max_percentage", 0)

	passed := true
	if maxCount > 0 && float64(count) > maxCount {
		passed = false
	}
	if maxPct > 0 && pct > maxPct {
		passed = false
	}

	check := models.CheckResult{
		ID:       cfg.ID,
		Name:     cfg.DisplayName(),
		Passed:   passed,
		Severity: severity(cfg, models.SeverityMedium),
		Message:  fmt.Sprintf("%d of %d values match (%.1f%%)", count, total, pct),
		Details: map[string]any{
			"column":     column,
			"count":      count,
			"total":      total,
			"percentage": round2(pct),
		},
	}
	if !passed {
		check.PointsDeducted = float64(count)
	}
	return check
}

func numericParam(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	}
	return 0, false
}

func isNumericColumn(values []any) bool {
	seen := false
	for _, v := range values {
		switch v.(type) {
		case nil:
			continue
		case float64, int, int64:
			seen = true
		default:
			return false
		}
	}
	return seen
}

func dateValidation(table *models.Table, cfg reporttype.CheckConfig) (models.CheckResult, []models.Finding) {
	name := reporttype.ParamString(cfg.Parameters, "column", "")
	column, ok := findColumn(table, name)
	if !ok || name == "" {
		return failed(cfg, models.SeverityHigh, fmt.Sprintf("Column %q not found", name)), nil
	}

	times, oks, inf := dates.CellDates(table, column)
	var findings []models.Finding
	if inf.LowConfidence {
		findings = append(findings, dateFinding(column, inf))
	}

	invalid := 0
	var valid []int
	for i, v := range table.Column(column) {
		if v == nil {
			continue
		}
		if !oks[i] {
			invalid++
			continue
		}
		valid = append(valid, i)
	}

	check := models.CheckResult{
		ID:       cfg.ID,
		Name:     cfg.DisplayName(),
		Passed:   invalid == 0,
		Severity: severity(cfg, models.SeverityLow),
		Details: map[string]any{
			"column":         column,
			"format":         string(inf.Format),
			"invalid_dates":  invalid,
			"low_confidence": inf.LowConfidence,
		},
	}

	var gaps []map[string]any
	if reporttype.ParamBool(cfg.Parameters, "check_continuity", false) && len(valid) > 1 {
		days := make([]time.Time, 0, len(valid))
		for _, i := range valid {
			days = append(days, dates.Day(times[i]))
		}
		sort.Slice(days, func(a, b int) bool { return days[a].Before(days[b]) })
		for i := 1; i < len(days); i++ {
			if diff := int(days[i].Sub(days[i-1]).Hours() / 24); diff > continuityGapDays {
				gaps = append(gaps, map[string]any{
					"after": models.CellString(days[i-1]),
					"days":  diff,
				})
			}
		}
		check.Details["gaps"] = len(gaps)
		if len(gaps) > 0 {
			check.Details["gap_details"] = gaps
			check.Passed = false
		}
	}

	switch {
	case invalid > 0:
		check.Message = fmt.Sprintf("%d invalid dates in %s", invalid, column)
		check.PointsDeducted = float64(invalid)
	case len(gaps) > 0:
		check.Message = fmt.Sprintf("%d gaps longer than %d days in %s", len(gaps), continuityGapDays, column)
	default:
		check.Message = "All dates valid"
	}
	return check, findings
}

func dataQuality(table *models.Table, cfg reporttype.CheckConfig) models.CheckResult {
	var issues []string
	rows := table.Len()

	if rows > 0 {
		for _, column := range table.Columns {
			nulls := 0
			for _, v := range table.Column(column) {
				if v == nil {
					nulls++
				}
			}
			if pct := float64(nulls) / float64(rows); pct > 0.5 {
				issues = append(issues, fmt.Sprintf("Column '%s' has %.1f%% null values", column, pct*100))
			}
		}

		seen := map[string]struct{}{}
		duplicates := 0
		for _, row := range table.Rows {
			key := rowKey(row)
			if _, ok := seen[key]; ok {
				duplicates++
				continue
			}
			seen[key] = struct{}{}
		}
		if pct := float64(duplicates) / float64(rows); pct > 0.1 {
			issues = append(issues, fmt.Sprintf("%d duplicate rows (%.1f%%)", duplicates, pct*100))
		}

		cells, empty := 0, 0
		for _, row := range table.Rows {
			for _, v := range row {
				cells++
				if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
					empty++
				}
			}
		}
		if cells > 0 {
			if pct := float64(empty) / float64(cells); pct > 0.2 {
				issues = append(issues, fmt.Sprintf("%.1f%% of cells are empty strings", pct*100))
			}
		}
	}

	check := models.CheckResult{
		ID:       cfg.ID,
		Name:     cfg.DisplayName(),
		Passed:   len(issues) == 0,
		Severity: severity(cfg, models.SeverityMedium),
		Details:  map[string]any{"issues": nonNil(issues)},
	}
	if check.Passed {
		check.Message = "No data quality issues"
		return check
	}
	check.Message = strings.Join(issues, "; ")
	check.PointsDeducted = float64(len(issues) * qualityIssuePoints)
	return check
}

func rowKey(row []any) string {
	parts := make([]string, len(row))
	for i, v := range row {
		if v == nil {
			parts[i] = "\x00"
			continue
		}
		parts[i] = models.CellString(v)
	}
	return strings.Join(parts, "\x1f")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func dateFinding(column string, inf dates.Inference) models.Finding {
	return models.Finding{
		Kind:    models.FindingDateInference,
		Message: fmt.Sprintf("date format of %s could not be determined, assuming %s", column, inf.Format),
		Details: map[string]any{"column": column, "format": string(inf.Format), "samples": inf.Samples},
	}
}

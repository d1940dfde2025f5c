package scorer

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/reportspectre/internal/models"
)

// Named aggregate conditions over check results.
const (
	CondMissingRequiredColumns = "missing_required_columns"
	CondDataQualityIssues      = "data_quality_issues"
	CondCriticalErrors         = "critical_errors"
	CondFailedChecks           = "failed_checks"
)

// failedPrefix selects a single check by id, e.g. "failed:backup_failures".
const failedPrefix = "failed:"

// maxOccurrences caps the count a single comparison can report.
const maxOccurrences = math.MaxInt32

var comparison = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.]*)\s*(>=|<=|==|!=|>|<)\s*(.+)$`)

// evaluate returns the number of occurrences of condition; zero means false.
func evaluate(condition string, checks []models.CheckResult, fields map[string]any) (int, error) {
	cond := strings.TrimSpace(condition)

	switch cond {
	case CondMissingRequiredColumns:
		return countFailed(checks, func(c models.CheckResult) bool { return c.ID == "completeness" }), nil
	case CondDataQualityIssues:
		return countFailed(checks, func(c models.CheckResult) bool {
			return strings.Contains(strings.ToLower(c.ID), "quality")
		}), nil
	case CondCriticalErrors:
		return countFailed(checks, func(c models.CheckResult) bool { return c.Severity == models.SeverityHigh }), nil
	case CondFailedChecks:
		return countFailed(checks, func(models.CheckResult) bool { return true }), nil
	}

	if id, ok := strings.CutPrefix(cond, failedPrefix); ok {
		id = strings.TrimSpace(id)
		if id == "" {
			return 0, fmt.Errorf("missing check id in %q", cond)
		}
		return countFailed(checks, func(c models.CheckResult) bool { return c.ID == id }), nil
	}

	m := comparison.FindStringSubmatch(cond)
	if m == nil {
		return 0, fmt.Errorf("unrecognized condition %q", cond)
	}
	field, op, operand := m[1], m[2], strings.TrimSpace(m[3])

	value, present := fields[field]
	if !present || value == nil {
		return 0, nil
	}

	switch op {
	case "==", "!=":
		equal := equals(value, operand)
		if equal == (op == "==") {
			return 1, nil
		}
		return 0, nil
	}

	limit, err := strconv.ParseFloat(operand, 64)
	if err != nil {
		return 0, fmt.Errorf("operand %q of %q is not numeric", operand, cond)
	}
	actual, ok := numeric(value)
	if !ok {
		return 0, fmt.Errorf("field %q is not numeric", field)
	}

	var hit bool
	switch op {
	case ">":
		hit = actual > limit
	case "<":
		hit = actual < limit
	case ">=":
		hit = actual >= limit
	case "<=":
		hit = actual <= limit
	}
	if !hit {
		return 0, nil
	}
	// The field value is the occurrence count, at least one when the comparison
	// holds and saturated at maxOccurrences.
	magnitude := math.Abs(actual)
	if magnitude >= maxOccurrences {
		return maxOccurrences, nil
	}
	occurrences := int(magnitude)
	if occurrences < 1 {
		occurrences = 1
	}
	return occurrences, nil
}

func countFailed(checks []models.CheckResult, match func(models.CheckResult) bool) int {
	n := 0
	for _, c := range checks {
		if !c.Passed && match(c) {
			n++
		}
	}
	return n
}

func equals(value any, operand string) bool {
	want := strings.Trim(operand, `"'`)
	if a, ok := numeric(value); ok {
		if b, err := strconv.ParseFloat(want, 64); err == nil {
			return a == b
		}
	}
	return models.CellString(value) == want
}

func numeric(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

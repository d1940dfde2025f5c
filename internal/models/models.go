package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/reportspectre/internal/reporttype"
)

// Table is a parsed report: named columns and ordered rows.
// Cells hold nil, string, float64, bool or time.Time.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// NewTable builds a table, padding short rows with nil cells.
func NewTable(columns []string, rows [][]any) *Table {
	t := &Table{
		Columns: append([]string(nil), columns...),
		Rows:    make([][]any, 0, len(rows)),
	}
	for _, row := range rows {
		cells := make([]any, len(columns))
		copy(cells, row)
		t.Rows = append(t.Rows, cells)
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of the named column or -1.
func (t *Table) Index(name string) int {
	if t == nil {
		return -1
	}
	for i, column := range t.Columns {
		if column == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the table carries the named column.
func (t *Table) HasColumn(name string) bool {
	return t.Index(name) >= 0
}

// Value returns a single cell, nil when the column or row is absent.
func (t *Table) Value(row int, column string) any {
	idx := t.Index(column)
	if idx < 0 || row < 0 || row >= len(t.Rows) || idx >= len(t.Rows[row]) {
		return nil
	}
	return t.Rows[row][idx]
}

// Column returns all values of the named column, nil if it does not exist.
func (t *Table) Column(name string) []any {
	idx := t.Index(name)
	if idx < 0 {
		return nil
	}
	values := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) {
			values[i] = row[idx]
		}
	}
	return values
}

// Clone returns a deep copy of the table structure.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	return NewTable(t.Columns, t.Rows)
}

// WithColumn returns a copy of the table with the named column set to values,
// appending it when it does not exist yet.
func (t *Table) WithColumn(name string, values []any) *Table {
	out := t.Clone()
	idx := out.Index(name)
	if idx < 0 {
		out.Columns = append(out.Columns, name)
		for i := range out.Rows {
			out.Rows[i] = append(out.Rows[i], nil)
		}
		idx = len(out.Columns) - 1
	}
	for i := range out.Rows {
		if i < len(values) {
			out.Rows[i][idx] = values[i]
		} else {
			out.Rows[i][idx] = nil
		}
	}
	return out
}

// Filter returns a copy holding only the rows accepted by keep.
func (t *Table) Filter(keep func(row int) bool) *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	for i, row := range t.Rows {
		if keep(i) {
			out.Rows = append(out.Rows, append([]any(nil), row...))
		}
	}
	return out
}

// Document is what a table provider hands to the engine for one file.
type Document struct {
	Path  string
	Table *Table
	Text  string
}

// CellString renders a cell for comparisons and display.
func CellString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case bool:
		return strconv.FormatBool(value)
	case time.Time:
		if value.Hour() == 0 && value.Minute() == 0 && value.Second() == 0 {
			return value.Format("2006-01-02")
		}
		return value.Format("2006-01-02 15:04:05")
	default:
		return ""
	}
}

// CellFloat converts a cell to a number. Strings are parsed after trimming,
// commas are accepted as decimal separator.
func CellFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case bool:
		if value {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(value)
		if s == "" {
			return 0, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
		if f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64); err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// IsNull reports whether a cell holds no value.
func IsNull(v any) bool {
	return v == nil
}

// Detection methods.
const (
	MethodFilename   = "filename"
	MethodContent    = "content"
	MethodClassifier = "classifier"
	MethodManual     = "manual"
)

// UnknownReportType is the id an operator assigns when marking a file unknown.
const UnknownReportType = "unknown"

// DetectionResult describes which report type a file was classified as.
type DetectionResult struct {
	ReportTypeID string                 `json:"report_type_id"`
	DisplayName  string                 `json:"display_name"`
	Confidence   float64                `json:"confidence"`
	Method       string                 `json:"method"`
	Evidence     []string               `json:"matched_evidence"`
	Config       *reporttype.ReportType `json:"-"`
}

// Severity of a check.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// CheckResult is the outcome of one check against a report.
type CheckResult struct {
	ID             string         `json:"check_id"`
	Name           string         `json:"name"`
	Passed         bool           `json:"passed"`
	Severity       Severity       `json:"severity"`
	Message        string         `json:"message,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	PointsDeducted float64        `json:"points_deducted"`
}

// RiskLevel of a scored report.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Status of an analysed report.
type Status string

const (
	StatusOK          Status = "ok"
	StatusLimited     Status = "limited"
	StatusError       Status = "error"
	StatusNotAnalyzed Status = "not_analyzed"
)

// DeductionDetail records one subtraction from the base score.
// Rule deductions carry Condition, check deductions carry Check.
type DeductionDetail struct {
	Condition   string   `json:"condition,omitempty"`
	Description string   `json:"description,omitempty"`
	Check       string   `json:"check,omitempty"`
	Severity    Severity `json:"severity,omitempty"`
	Points      float64  `json:"points"`
}

// Label returns the human readable name of the deduction.
func (d DeductionDetail) Label() string {
	if d.Description != "" {
		return d.Description
	}
	if d.Check != "" {
		return d.Check
	}
	return d.Condition
}

// RuleError records a deduction rule or trigger that could not be evaluated.
type RuleError struct {
	Condition string `json:"condition"`
	Reason    string `json:"reason"`
}

// ScoreResult is the terminal artifact of scoring one report.
type ScoreResult struct {
	Score           float64           `json:"score"`
	BaseScore       float64           `json:"base_score"`
	TotalDeductions float64           `json:"total_deductions"`
	RiskLevel       RiskLevel         `json:"risk_level"`
	Status          Status            `json:"status"`
	Deductions      []DeductionDetail `json:"deduction_details"`
	TriggeredRules  []string          `json:"triggered_rules"`
	RuleErrors      []RuleError       `json:"rule_errors,omitempty"`
}

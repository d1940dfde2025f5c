package analyzer

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/ppiankov/reportspectre/internal/models"
	"github.com/ppiankov/reportspectre/internal/reporttype"
)

// Extraction field types.
const (
	ExtractCount      = "count"
	ExtractSum        = "sum"
	ExtractCalculated = "calculated"
)

const allRows = "all_rows"

// FieldError records a configured field that could not be extracted.
type FieldError struct {
	Field string
	Err   error
}

func (e FieldError) Error() string {
	return fmt.Sprintf("field %s: %v", e.Field, e.Err)
}

// Extract computes configured fields in order. Calculated fields may refer to
// fields already present in known or extracted earlier in the list. A failed
// field takes its default when required, nil otherwise, and is reported in errs.
func Extract(table *models.Table, specs []reporttype.ExtractionField, known map[string]any) (map[string]any, []FieldError) {
	out := make(map[string]any, len(specs))
	scope := make(map[string]any, len(known)+len(specs))
	for k, v := range known {
		scope[k] = v
	}

	var errs []FieldError
	for _, spec := range specs {
		value, err := extractOne(table, spec, scope)
		if err != nil {
			slog.Debug("field extraction failed", slog.String("field", spec.Field), slog.String("error", err.Error()))
			errs = append(errs, FieldError{Field: spec.Field, Err: err})
			if spec.Required {
				value = spec.Default
			} else {
				value = nil
			}
		} else {
			value = format(value, spec.Format)
		}
		out[spec.Field] = value
		scope[spec.Field] = value
	}
	return out, errs
}

func extractOne(table *models.Table, spec reporttype.ExtractionField, scope map[string]any) (any, error) {
	switch spec.Type {
	case ExtractCount:
		return countRows(table, spec.Condition)
	case ExtractSum:
		if !table.HasColumn(spec.Source) {
			if spec.Default != nil {
				return spec.Default, nil
			}
			return 0.0, nil
		}
		total := 0.0
		for _, v := range table.Column(spec.Source) {
			if f, ok := models.CellFloat(v); ok {
				total += f
			}
		}
		return total, nil
	case ExtractCalculated:
		if strings.TrimSpace(spec.Formula) == "" {
			return nil, fmt.Errorf("field %s has no formula", spec.Field)
		}
		return evalFormula(spec.Formula, scope)
	default:
		return nil, fmt.Errorf("unknown extraction type %q", spec.Type)
	}
}

// countRows counts rows matching "all_rows" (or empty), "col == v", "col > n" or "col < n".
func countRows(table *models.Table, condition string) (int, error) {
	cond := strings.TrimSpace(condition)
	if cond == "" || cond == allRows {
		return table.Len(), nil
	}

	for _, op := range []string{"==", ">", "<"} {
		col, operand, ok := strings.Cut(cond, op)
		if !ok {
			continue
		}
		col = strings.TrimSpace(col)
		operand = strings.Trim(strings.TrimSpace(operand), `"'`)
		if !table.HasColumn(col) {
			return 0, fmt.Errorf("column %q not found", col)
		}
		values := table.Column(col)

		if op == "==" {
			n := 0
			for _, v := range values {
				if models.CellString(v) == operand {
					n++
				}
			}
			return n, nil
		}

		limit, err := strconv.ParseFloat(operand, 64)
		if err != nil {
			return 0, fmt.Errorf("condition %q: %q is not a number", cond, operand)
		}
		n := 0
		for _, v := range values {
			f, ok := models.CellFloat(v)
			if !ok {
				continue
			}
			if (op == ">" && f > limit) || (op == "<" && f < limit) {
				n++
			}
		}
		return n, nil
	}
	return 0, fmt.Errorf("unsupported condition %q", cond)
}

func format(v any, style string) any {
	f, ok := toFloat(v)
	if !ok {
		return v
	}
	switch style {
	case "percentage", "currency", "float":
		return round2(f)
	case "integer":
		return int(f)
	}
	return v
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

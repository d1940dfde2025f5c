package analyzer

import (
	"testing"

	"github.com/ppiankov/reportspectre/internal/models"
	"github.com/ppiankov/reportspectre/internal/reporttype"
)

func extractTable() *models.Table {
	return models.NewTable(
		[]string{"status", "size", "retries"},
		[][]any{
			{"success", 10.0, 0.0},
			{"failed", 2.5, 3.0},
			{"success", 7.5, 1.0},
			{"warning", nil, 5.0},
		},
	)
}

func TestExtract(t *testing.T) {
	specs := []reporttype.ExtractionField{
		{Field: "rows", Type: ExtractCount, Condition: "all_rows"},
		{Field: "successes", Type: ExtractCount, Condition: "status == 'success'"},
		{Field: "many_retries", Type: ExtractCount, Condition: "retries > 2"},
		{Field: "few_retries", Type: ExtractCount, Condition: "retries < 2"},
		{Field: "size_total", Type: ExtractSum, Source: "size"},
		{Field: "missing_sum", Type: ExtractSum, Source: "nope", Default: 42.0},
		{Field: "success_pct", Type: ExtractCalculated, Formula: "successes / rows * 100", Format: "percentage"},
		{Field: "rows_int", Type: ExtractCalculated, Formula: "rows + 0.9", Format: "integer"},
		{Field: "from_known", Type: ExtractCalculated, Formula: "base * 2"},
	}

	got, errs := Extract(extractTable(), specs, map[string]any{"base": 21.0})
	if len(errs) != 0 {
		t.Fatalf("expected no extraction errors, got %v", errs)
	}

	want := map[string]any{
		"rows":         4,
		"successes":    2,
		"many_retries": 2,
		"few_retries":  2,
		"size_total":   20.0,
		"missing_sum":  42.0,
		"success_pct":  50.0,
		"rows_int":     4,
		"from_known":   42.0,
	}
	for field, value := range want {
		if got[field] != value {
			t.Errorf("%s: expected %#v, got %#v", field, value, got[field])
		}
	}
	if _, ok := got["base"]; ok {
		t.Fatalf("known fields must not be copied into the result")
	}
}

func TestExtractFailures(t *testing.T) {
	specs := []reporttype.ExtractionField{
		{Field: "optional", Type: ExtractCount, Condition: "nope == 1"},
		{Field: "required", Type: ExtractCount, Condition: "nope == 1", Required: true, Default: 7},
		{Field: "bad_type", Type: "median"},
		{Field: "no_formula", Type: ExtractCalculated},
		{Field: "bad_number", Type: ExtractCount, Condition: "retries > many"},
	}

	got, errs := Extract(extractTable(), specs, nil)

	if v, ok := got["optional"]; !ok || v != nil {
		t.Fatalf("expected optional failure to yield nil, got %#v", v)
	}
	if got["required"] != 7 {
		t.Fatalf("expected required failure to yield default, got %#v", got["required"])
	}
	for _, field := range []string{"bad_type", "no_formula", "bad_number"} {
		if got[field] != nil {
			t.Fatalf("%s: expected nil, got %#v", field, got[field])
		}
	}

	failed := make(map[string]bool, len(errs))
	for _, fe := range errs {
		if fe.Err == nil {
			t.Fatalf("%s: expected an error", fe.Field)
		}
		failed[fe.Field] = true
	}
	for _, spec := range specs {
		if !failed[spec.Field] {
			t.Errorf("%s: expected extraction error to be reported", spec.Field)
		}
	}
}

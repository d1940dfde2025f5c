package scorer

import (
	"fmt"
	"strings"

	"github.com/ppiankov/reportspectre/internal/models"
)

// Summary renders a score result as plain text.
func Summary(result models.ScoreResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Score: %.1f/%.0f\n", result.Score, result.BaseScore)
	fmt.Fprintf(&b, "Risk Level: %s\n", result.RiskLevel)
	fmt.Fprintf(&b, "Status: %s\n", result.Status)
	fmt.Fprintf(&b, "Total Deductions: %.1f\n", result.TotalDeductions)

	if len(result.Deductions) > 0 {
		b.WriteString("\nDeductions:\n")
		for _, d := range result.Deductions {
			fmt.Fprintf(&b, "  - %s: -%.1f points\n", d.Label(), d.Points)
		}
	}
	if len(result.TriggeredRules) > 0 {
		fmt.Fprintf(&b, "\nTriggered Rules: %s\n", strings.Join(result.TriggeredRules, ", "))
	}
	if len(result.RuleErrors) > 0 {
		b.WriteString("\nRule Errors:\n")
		for _, e := range result.RuleErrors {
			fmt.Fprintf(&b, "  - %s: %s\n", e.Condition, e.Reason)
		}
	}
	return strings.TrimSpace(b.String())
}

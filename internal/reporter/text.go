package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/ppiankov/reportspectre/internal/models"
	"github.com/ppiankov/reportspectre/pkg/config"
)

// TextFile is the human readable report written to the output directory.
const TextFile = "report.txt"

type palette struct {
	header *color.Color
	status map[models.Status]*color.Color
}

func newPalette(useANSI bool) palette {
	p := palette{
		header: color.New(color.Bold),
		status: map[models.Status]*color.Color{
			models.StatusOK:          color.New(color.FgGreen),
			models.StatusLimited:     color.New(color.FgYellow),
			models.StatusError:       color.New(color.FgRed),
			models.StatusNotAnalyzed: color.New(color.FgMagenta),
		},
	}
	all := []*color.Color{p.header}
	for _, c := range p.status {
		all = append(all, c)
	}
	for _, c := range all {
		if useANSI {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) paintStatus(status models.Status, text string) string {
	if c, ok := p.status[status]; ok {
		return c.Sprint(text)
	}
	return text
}

// WriteText writes a human-readable text report to report.txt and stdout.
func WriteText(report *Report, cfg *config.Config) error {
	return writeText(report, cfg, os.Stdout)
}

func writeText(report *Report, cfg *config.Config, out io.Writer) error {
	if report == nil {
		return fmt.Errorf("report is nil")
	}
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if out == nil {
		return fmt.Errorf("writer is nil")
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// The file copy never carries escape sequences.
	plain := renderTextReport(report, false)
	outputPath := filepath.Join(cfg.OutputDir, TextFile)
	if err := os.WriteFile(outputPath, []byte(plain), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", TextFile, err)
	}

	rendered := plain
	if supportsANSI(out) {
		rendered = renderTextReport(report, true)
	}
	if _, err := io.WriteString(out, rendered); err != nil {
		return fmt.Errorf("failed to write text report to output: %w", err)
	}

	return nil
}

func renderTextReport(report *Report, useANSI bool) string {
	var b strings.Builder
	p := newPalette(useANSI)
	summary := report.Summary

	generatedAt := "unknown"
	if !summary.GeneratedAt.IsZero() {
		generatedAt = summary.GeneratedAt.UTC().Format(time.RFC3339)
	}

	writeTextSectionHeader(&b, "ReportSpectre Analysis Report", p)
	fmt.Fprintf(&b, "Generated: %s\n", generatedAt)
	if summary.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", summary.RunID)
	}
	if summary.Duration != "" {
		fmt.Fprintf(&b, "Duration: %s\n", summary.Duration)
	}
	b.WriteString("\n")

	notAnalyzed := summary.ByStatus[models.StatusNotAnalyzed]
	analyzed := summary.TotalFiles - notAnalyzed
	writeTextSectionHeader(&b, "Summary", p)
	fmt.Fprintf(&b, "Total files: %d\n", summary.TotalFiles)
	fmt.Fprintf(&b, "Analyzed: %d\n", analyzed)
	fmt.Fprintf(&b, "Not analyzed: %d\n", notAnalyzed)
	fmt.Fprintf(&b, "Success rate: %.1f%%\n", successRate(analyzed, summary.TotalFiles))
	fmt.Fprintf(&b, "Average score: %.1f\n", summary.AverageScore)
	if report.Suppressed > 0 {
		fmt.Fprintf(&b, "Suppressed by baseline: %d\n", report.Suppressed)
	}
	b.WriteString("Status:\n")
	for _, status := range []models.Status{models.StatusOK, models.StatusLimited, models.StatusError, models.StatusNotAnalyzed} {
		fmt.Fprintf(&b, "  %s: %d\n", p.paintStatus(status, string(status)), summary.ByStatus[status])
	}
	b.WriteString("Risk distribution:\n")
	risks := riskDistribution(summary.Files)
	for _, level := range []models.RiskLevel{models.RiskLow, models.RiskMedium, models.RiskHigh, models.RiskCritical} {
		fmt.Fprintf(&b, "  %s: %d\n", level, risks[level])
	}
	if len(summary.ByReportType) > 0 {
		b.WriteString("Report types:\n")
		for _, name := range sortedKeys(summary.ByReportType) {
			fmt.Fprintf(&b, "  %s: %d\n", name, summary.ByReportType[name])
		}
	}
	b.WriteString("\n")

	writeTextSectionHeader(&b, "Files", p)
	if len(summary.Files) == 0 {
		b.WriteString("No files processed.\n")
	} else {
		b.WriteString("FILE                                  REPORT TYPE          SCORE  RISK      STATUS        FINDINGS\n")
		b.WriteString("----------------------------------------------------------------------------------------------------\n")
		for _, line := range summary.Files {
			score := "n/a"
			risk := "-"
			if line.Status != models.StatusNotAnalyzed {
				score = fmt.Sprintf("%.1f", line.Score)
				risk = string(line.RiskLevel)
			}
			status := fmt.Sprintf("%-13s", line.Status)
			fmt.Fprintf(
				&b,
				"%-37s %-20s %-6s %-9s %s %d\n",
				truncateTextValue(filepath.Base(line.File), 37),
				truncateTextValue(line.ReportType, 20),
				score,
				risk,
				p.paintStatus(line.Status, status),
				line.Findings,
			)
		}
	}

	details := resultsWithDetails(report.Results)
	if len(details) > 0 {
		b.WriteString("\n")
		writeTextSectionHeader(&b, "Details", p)
		for _, result := range details {
			writeResultDetails(&b, result)
		}
	}

	return b.String()
}

func writeResultDetails(b *strings.Builder, result *models.AnalysisResult) {
	header := fmt.Sprintf("%s | type=%s", filepath.Base(result.File), textValue(result.ReportType))
	if result.Score != nil {
		header += fmt.Sprintf(" | score=%.1f | risk=%s", result.Score.Score, result.Score.RiskLevel)
	}
	fmt.Fprintf(b, "%s\n", header)

	if failed := result.FailedChecks(); len(failed) > 0 {
		b.WriteString("  failed checks:\n")
		for _, check := range failed {
			fmt.Fprintf(b, "    - [%s] %s: %s\n", check.Severity, check.ID, textValue(check.Message))
		}
	}
	if result.Score != nil && len(result.Score.TriggeredRules) > 0 {
		b.WriteString("  triggered rules:\n")
		for _, rule := range result.Score.TriggeredRules {
			fmt.Fprintf(b, "    - %s\n", rule)
		}
	}
	if len(result.Findings) > 0 {
		b.WriteString("  findings:\n")
		for _, finding := range result.Findings {
			fmt.Fprintf(b, "    - [%s] %s\n", finding.Kind, finding.Message)
		}
	}
	b.WriteString("\n")
}

func writeTextSectionHeader(b *strings.Builder, title string, p palette) {
	fmt.Fprintf(b, "%s\n", p.header.Sprint(title))
	fmt.Fprintf(b, "%s\n", strings.Repeat("-", len(title)))
}

func supportsANSI(out io.Writer) bool {
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

func resultsWithDetails(results []*models.AnalysisResult) []*models.AnalysisResult {
	selected := make([]*models.AnalysisResult, 0, len(results))
	for _, result := range results {
		if result == nil {
			continue
		}
		if len(result.Findings) > 0 || len(result.FailedChecks()) > 0 {
			selected = append(selected, result)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].File < selected[j].File
	})
	return selected
}

func riskDistribution(files []models.FileSummary) map[models.RiskLevel]int {
	counts := make(map[models.RiskLevel]int, 4)
	for _, line := range files {
		if line.Status == models.StatusNotAnalyzed || line.RiskLevel == "" {
			continue
		}
		counts[line.RiskLevel]++
	}
	return counts
}

func successRate(analyzed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(analyzed) / float64(total) * 100
}

func sortedKeys(values map[string]int) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func textValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "-"
	}
	return trimmed
}

func truncateTextValue(value string, width int) string {
	if width <= 0 || len(value) <= width {
		return value
	}
	if width <= 3 {
		return value[:width]
	}
	return value[:width-3] + "..."
}

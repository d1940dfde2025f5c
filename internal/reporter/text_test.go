package reporter

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/reportspectre/pkg/config"
)

func TestWriteTextProducesReadableOutput(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutputDir = t.TempDir()

	var out bytes.Buffer
	if err := writeText(fixtureReport(), cfg, &out); err != nil {
		t.Fatalf("writeText failed: %v", err)
	}

	textOutput := out.String()
	assertContains(t, textOutput, "Summary")
	assertContains(t, textOutput, "Total files: 3")
	assertContains(t, textOutput, "Analyzed: 2")
	assertContains(t, textOutput, "Not analyzed: 1")
	assertContains(t, textOutput, "Success rate: 66.7%")
	assertContains(t, textOutput, "Average score: 83.8")
	assertContains(t, textOutput, "Suppressed by baseline: 2")
	assertContains(t, textOutput, "veeam_march.csv")
	assertContains(t, textOutput, "[high] failed_jobs: 3 jobs failed")
	assertContains(t, textOutput, "[unclassified] no report type matched")
	assertContains(t, textOutput, "failed_jobs > 0")

	if strings.Contains(textOutput, "\x1b[") {
		t.Fatalf("expected no ANSI escape sequences for non-TTY output, got %q", textOutput)
	}

	fileOutput, err := os.ReadFile(filepath.Join(cfg.OutputDir, TextFile))
	if err != nil {
		t.Fatalf("failed to read %s: %v", TextFile, err)
	}
	if string(fileOutput) != textOutput {
		t.Fatalf("stdout and %s differ\nstdout:\n%s\nfile:\n%s", TextFile, textOutput, string(fileOutput))
	}
}

func TestRenderTextReportColors(t *testing.T) {
	colored := renderTextReport(fixtureReport(), true)
	if !strings.Contains(colored, "\x1b[") {
		t.Fatalf("expected ANSI escape sequences when color is enabled")
	}
	plain := renderTextReport(fixtureReport(), false)
	if strings.Contains(plain, "\x1b[") {
		t.Fatalf("expected plain output when color is disabled")
	}
}

func TestWriteTextEmptyReport(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutputDir = t.TempDir()

	var out bytes.Buffer
	if err := writeText(&Report{}, cfg, &out); err != nil {
		t.Fatalf("writeText failed: %v", err)
	}
	assertContains(t, out.String(), "No files processed.")
	assertContains(t, out.String(), "Success rate: 0.0%")
}

func TestWriteTextInputValidation(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutputDir = t.TempDir()
	report := &Report{}
	var out bytes.Buffer

	err := writeText(nil, cfg, &out)
	if err == nil || !strings.Contains(err.Error(), "report is nil") {
		t.Fatalf("expected nil report error, got %v", err)
	}

	err = writeText(report, nil, &out)
	if err == nil || !strings.Contains(err.Error(), "config is nil") {
		t.Fatalf("expected nil config error, got %v", err)
	}

	err = writeText(report, cfg, nil)
	if err == nil || !strings.Contains(err.Error(), "writer is nil") {
		t.Fatalf("expected nil writer error, got %v", err)
	}
}

func TestTruncateTextValue(t *testing.T) {
	tests := []struct {
		value string
		width int
		want  string
	}{
		{value: "short", width: 10, want: "short"},
		{value: "a_very_long_file_name.csv", width: 10, want: "a_very_..."},
		{value: "abcdef", width: 2, want: "ab"},
	}
	for _, tt := range tests {
		if got := truncateTextValue(tt.value, tt.width); got != tt.want {
			t.Fatalf("truncateTextValue(%q, %d): got %q want %q", tt.value, tt.width, got, tt.want)
		}
	}
}

func assertContains(t *testing.T, output string, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, output)
	}
}

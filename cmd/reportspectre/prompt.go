package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/ppiankov/reportspectre/internal/detector"
)

// promptSelector asks the operator on a terminal. Workers share one terminal,
// so prompts are serialized.
type promptSelector struct {
	mu     sync.Mutex
	in     *bufio.Reader
	out    io.Writer
	accent *color.Color
}

func newPromptSelector(in io.Reader, out io.Writer) *promptSelector {
	return &promptSelector{
		in:     bufio.NewReader(in),
		out:    out,
		accent: color.New(color.FgCyan, color.Bold),
	}
}

// Select implements detector.Selector.
func (p *promptSelector) Select(ctx context.Context, preview detector.Preview, candidates []detector.Candidate) (detector.Choice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.printPreview(preview)
	for i, c := range candidates {
		fmt.Fprintf(p.out, "  %d) %s (%s)\n", i+1, c.Name, c.ID)
	}
	fmt.Fprintln(p.out, "  s) skip file")
	fmt.Fprintln(p.out, "  u) mark as unknown")

	for {
		if err := ctx.Err(); err != nil {
			return detector.Choice{}, err
		}
		fmt.Fprint(p.out, "Report type: ")
		line, err := p.in.ReadString('\n')
		if err != nil && line == "" {
			return detector.Choice{}, fmt.Errorf("failed to read selection: %w", err)
		}
		choice, ok := parseSelection(line, candidates)
		if ok {
			return choice, nil
		}
		fmt.Fprintf(p.out, "Invalid selection %q\n", strings.TrimSpace(line))
	}
}

func (p *promptSelector) printPreview(preview detector.Preview) {
	fmt.Fprintln(p.out)
	fmt.Fprintf(p.out, "%s %s\n", p.accent.Sprint("Unrecognized file:"), preview.File)
	if preview.Format != "" {
		fmt.Fprintf(p.out, "Format: %s\n", preview.Format)
	}
	if preview.TotalColumns > 0 {
		fmt.Fprintf(p.out, "Rows: %d, columns: %d\n", preview.Rows, preview.TotalColumns)
		fmt.Fprintf(p.out, "Columns: %s\n", strings.Join(preview.Columns, ", "))
		for _, row := range preview.SampleRows {
			fmt.Fprintf(p.out, "  | %s\n", strings.Join(row, " | "))
		}
	}
	if preview.Text != "" {
		fmt.Fprintf(p.out, "Text: %s\n", preview.Text)
	}
	if len(preview.Keywords) > 0 {
		fmt.Fprintf(p.out, "Keywords: %s\n", strings.Join(preview.Keywords, ", "))
	}
}

// parseSelection accepts a 1-based index, a report type id, "s" or "u".
func parseSelection(line string, candidates []detector.Candidate) (detector.Choice, bool) {
	answer := strings.ToLower(strings.TrimSpace(line))
	switch answer {
	case "":
		return detector.Choice{}, false
	case "s", "skip":
		return detector.Choice{Action: detector.ActionSkip}, true
	case "u", "unknown":
		return detector.Choice{Action: detector.ActionUnknown}, true
	}

	if n, err := strconv.Atoi(answer); err == nil {
		if n < 1 || n > len(candidates) {
			return detector.Choice{}, false
		}
		return detector.Choice{Action: detector.ActionSelect, ReportTypeID: candidates[n-1].ID}, true
	}
	for _, c := range candidates {
		if strings.EqualFold(c.ID, answer) {
			return detector.Choice{Action: detector.ActionSelect, ReportTypeID: c.ID}, true
		}
	}
	return detector.Choice{}, false
}

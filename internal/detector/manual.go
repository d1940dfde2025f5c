package detector

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/reportspectre/internal/models"
	"github.com/ppiankov/reportspectre/internal/reporttype"
)

// Preview limits.
const (
	PreviewColumns  = 20
	PreviewRows     = 3
	PreviewText     = 500
	PreviewKeywords = 10
)

// Action is what an operator decided for a file.
type Action string

const (
	ActionSelect  Action = "select"
	ActionSkip    Action = "skip"
	ActionUnknown Action = "unknown"
)

// Choice is the answer of a Selector.
type Choice struct {
	Action       Action
	ReportTypeID string
}

// Candidate is a report type offered for selection.
type Candidate struct {
	ID          string
	Name        string
	Description string
}

// Preview summarises a file for an operator.
type Preview struct {
	File         string
	Format       string
	Rows         int
	TotalColumns int
	Columns      []string
	SampleRows   [][]string
	Text         string
	Keywords     []string
}

// Selector asks an operator to choose a report type.
type Selector interface {
	Select(ctx context.Context, preview Preview, candidates []Candidate) (Choice, error)
}

var keywordPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(bericht|report)\b`),
	regexp.MustCompile(`\b(monat|month)\b`),
	regexp.MustCompile(`\b(jahr|year|20\d{2})\b`),
	regexp.MustCompile(`\b(backup|sicherung)\b`),
	regexp.MustCompile(`\b(server|host|system)\b`),
	regexp.MustCompile(`\b(fehler|error|problem)\b`),
	regexp.MustCompile(`\b(status|zustand|state)\b`),
	regexp.MustCompile(`\b(transaktion|transaction)\b`),
	regexp.MustCompile(`\b(summe|total|gesamt)\b`),
	regexp.MustCompile(`\b(datum|date|zeit|time)\b`),
}

// Keywords returns the report vocabulary found in text, sorted and deduplicated.
func Keywords(text string) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]struct{})
	for _, re := range keywordPatterns {
		for _, m := range re.FindAllString(lower, -1) {
			seen[m] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BuildPreview condenses a document for display.
func BuildPreview(path string, doc *models.Document) Preview {
	p := Preview{
		File:   filepath.Base(path),
		Format: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
	}
	if doc == nil {
		return p
	}
	if t := doc.Table; t != nil {
		p.Rows = t.Len()
		p.TotalColumns = len(t.Columns)
		p.Columns = append([]string(nil), t.Columns[:min(len(t.Columns), PreviewColumns)]...)
		for i := 0; i < min(t.Len(), PreviewRows); i++ {
			row := make([]string, len(p.Columns))
			for j := range p.Columns {
				row[j] = models.CellString(t.Rows[i][j])
			}
			p.SampleRows = append(p.SampleRows, row)
		}
	}
	p.Text = truncate(doc.Text, PreviewText)
	kw := Keywords(doc.Text)
	p.Keywords = kw[:min(len(kw), PreviewKeywords)]
	return p
}

func (d *Detector) selectManually(ctx context.Context, path string, doc *models.Document, candidates []*reporttype.ReportType) (*models.DetectionResult, error) {
	offered := make([]Candidate, 0, len(candidates))
	for _, rt := range candidates {
		offered = append(offered, Candidate{ID: rt.ID(), Name: rt.Name(), Description: rt.Meta.Description})
	}

	choice, err := d.selector.Select(ctx, BuildPreview(path, doc), offered)
	if err != nil {
		return nil, fmt.Errorf("manual selection failed: %w", err)
	}

	switch choice.Action {
	case ActionSkip, "":
		return nil, nil
	case ActionUnknown:
		return &models.DetectionResult{
			ReportTypeID: models.UnknownReportType,
			DisplayName:  "Unknown Report Type",
			Confidence:   1.0,
			Method:       models.MethodManual,
			Evidence:     []string{"marked as unknown by operator"},
		}, nil
	case ActionSelect:
		for _, rt := range candidates {
			if rt.ID() == choice.ReportTypeID {
				return &models.DetectionResult{
					ReportTypeID: rt.ID(),
					DisplayName:  rt.Name(),
					Confidence:   1.0,
					Method:       models.MethodManual,
					Evidence:     []string{"selected by operator"},
					Config:       rt,
				}, nil
			}
		}
		return nil, fmt.Errorf("unknown report type %q selected", choice.ReportTypeID)
	default:
		return nil, fmt.Errorf("unsupported selection action %q", choice.Action)
	}
}

package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/ppiankov/reportspectre/internal/models"
)

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	delimiters = []rune{',', ';', '\t', '|', ':'}
)

const textSampleRows = 100

// CSV loads delimited text files.
type CSV struct {
	// Delimiter overrides sniffing when set.
	Delimiter rune
}

// Load reads a delimited file. The first row is the header.
func (c *CSV) Load(ctx context.Context, path string) (*models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	table, err := c.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &models.Document{
		Path:  path,
		Table: table,
		Text:  TableText(filepath.Base(path), table),
	}, nil
}

// Parse decodes delimited data into a table.
func (c *CSV) Parse(data []byte) (*models.Table, error) {
	text := decode(data)
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmpty
	}

	delim := c.Delimiter
	if delim == 0 {
		delim = SniffDelimiter(text)
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				slog.Debug("skipping malformed csv line", slog.Int("line", parseErr.Line), slog.String("error", parseErr.Err.Error()))
				continue
			}
			return nil, err
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, ErrEmpty
	}

	return buildTable(records[0], records[1:]), nil
}

func decode(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}

// SniffDelimiter picks the most frequent candidate delimiter in the first line,
// defaulting to a comma.
func SniffDelimiter(text string) rune {
	first := text
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		first = text[:i]
	}
	best, bestCount := ',', 0
	for _, d := range delimiters {
		if n := strings.Count(first, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func buildTable(header []string, records [][]string) *models.Table {
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
		if columns[i] == "" {
			columns[i] = "Unnamed: " + strconv.Itoa(i)
		}
	}

	var rows [][]any
	for _, rec := range records {
		row := make([]any, len(columns))
		empty := true
		for i := range columns {
			if i >= len(rec) {
				continue
			}
			if v := strings.TrimSpace(rec[i]); v != "" {
				row[i] = v
				empty = false
			}
		}
		if !empty {
			rows = append(rows, row)
		}
	}

	keep := make([]int, 0, len(columns))
	for i := range columns {
		for _, row := range rows {
			if row[i] != nil {
				keep = append(keep, i)
				break
			}
		}
	}
	if len(rows) == 0 {
		keep = keep[:0]
		for i := range columns {
			keep = append(keep, i)
		}
	}

	outCols := make([]string, len(keep))
	for j, i := range keep {
		outCols[j] = columns[i]
	}
	outRows := make([][]any, len(rows))
	for r, row := range rows {
		out := make([]any, len(keep))
		for j, i := range keep {
			out[j] = row[i]
		}
		outRows[r] = out
	}

	t := models.NewTable(outCols, outRows)
	for j := range outCols {
		convertNumeric(t, j)
	}
	return t
}

// convertNumeric turns a column into numbers when more than half the rows parse.
func convertNumeric(t *models.Table, col int) {
	parsed := make([]any, len(t.Rows))
	count := 0
	for i, row := range t.Rows {
		s, ok := row[col].(string)
		if !ok {
			continue
		}
		if f, ok := parseNumber(s); ok {
			parsed[i] = f
			count++
		}
	}
	if count*2 <= len(t.Rows) {
		return
	}
	for i := range t.Rows {
		t.Rows[i][col] = parsed[i]
	}
}

// parseNumber accepts plain numbers, a single decimal comma ("1,5") and
// comma thousands separators ("1,234,567" or "1,234.5").
func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(s, " ", "")
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	commas := strings.Count(s, ",")
	switch {
	case commas == 0:
		return 0, false
	case commas == 1 && !strings.Contains(s, "."):
		s = strings.Replace(s, ",", ".", 1)
	default:
		s = strings.ReplaceAll(s, ",", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// TableText renders a table as plain text for keyword matching and classification.
func TableText(name string, t *models.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CSV File: %s\n", name)
	fmt.Fprintf(&b, "Columns (%d): %s\n", len(t.Columns), strings.Join(t.Columns, ", "))
	fmt.Fprintf(&b, "Rows: %d\n\n", t.Len())

	n := min(textSampleRows, t.Len())
	fmt.Fprintf(&b, "First %d rows:\n", n)
	for i := 0; i < n; i++ {
		parts := make([]string, len(t.Columns))
		for j, col := range t.Columns {
			parts[j] = col + ": " + models.CellString(t.Rows[i][j])
		}
		fmt.Fprintf(&b, "Row %d: %s\n", i+1, strings.Join(parts, " | "))
		if b.Len() >= MaxTextChars {
			break
		}
	}
	return capText(b.String())
}

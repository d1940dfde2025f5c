package schema

import (
	"fmt"
	"strings"

	"github.com/ppiankov/reportspectre/internal/models"
	"github.com/ppiankov/reportspectre/internal/reporttype"
	"github.com/ppiankov/reportspectre/internal/similarity"
)

// UnknownCategory is returned when a value matches no configured category.
const UnknownCategory = "unknown"

// Collision records two source columns resolving to one canonical field.
// The later column (Winner) keeps the canonical name.
type Collision struct {
	Canonical string `json:"canonical"`
	Winner    string `json:"winner"`
	Loser     string `json:"loser"`
}

// Mapping describes how a table was renamed.
type Mapping struct {
	// Renamed maps source column name to its canonical name.
	Renamed    map[string]string `json:"renamed"`
	Unmatched  []string          `json:"unmatched,omitempty"`
	Collisions []Collision       `json:"collisions,omitempty"`
}

// Source returns the source column now carrying the canonical name.
func (m Mapping) Source(canonical string) (string, bool) {
	for source, target := range m.Renamed {
		if target == canonical {
			return source, true
		}
	}
	return "", false
}

// Mapper renames columns onto a canonical vocabulary.
type Mapper struct {
	fuzzy reporttype.FuzzyMatching
}

// NewMapper returns a mapper for the given vocabulary.
func NewMapper(fuzzy reporttype.FuzzyMatching) *Mapper {
	return &Mapper{fuzzy: fuzzy}
}

// Match returns the first canonical field, in configured order, whose
// alternatives fuzzy-match the column name.
func (m *Mapper) Match(column string) (string, bool) {
	for _, field := range m.fuzzy.Fields {
		candidates := field.Alternatives
		if len(candidates) == 0 {
			candidates = []string{field.Name}
		}
		if similarity.FuzzyMatch(column, candidates, m.fuzzy.FieldThreshold(field)) {
			return field.Name, true
		}
	}
	return "", false
}

// Map returns a renamed copy of table; the input is never modified.
// When two columns resolve to the same canonical name the later column wins it
// and the earlier one keeps its source name. No column is dropped.
func (m *Mapper) Map(table *models.Table) (*models.Table, Mapping) {
	mapping := Mapping{Renamed: map[string]string{}}
	if table == nil {
		return nil, mapping
	}

	targets := make([]string, len(table.Columns))
	owner := map[string]int{}
	for i, column := range table.Columns {
		targets[i] = column
		canonical, ok := m.Match(column)
		if !ok {
			mapping.Unmatched = append(mapping.Unmatched, column)
			continue
		}
		if prev, taken := owner[canonical]; taken {
			mapping.Collisions = append(mapping.Collisions, Collision{
				Canonical: canonical,
				Winner:    column,
				Loser:     table.Columns[prev],
			})
			targets[prev] = table.Columns[prev]
			delete(mapping.Renamed, table.Columns[prev])
		}
		owner[canonical] = i
		targets[i] = canonical
		mapping.Renamed[column] = canonical
	}

	out := table.Clone()
	out.Columns = dedupe(targets, owner)
	return out, mapping
}

// dedupe suffixes names that still clash after renaming, leaving canonical owners untouched.
func dedupe(names []string, owner map[string]int) []string {
	out := make([]string, len(names))
	used := map[string]bool{}
	for i, name := range names {
		if idx, ok := owner[name]; ok && idx == i {
			used[name] = true
		}
	}
	for i, name := range names {
		if idx, ok := owner[name]; ok && idx == i {
			out[i] = name
			continue
		}
		candidate := name
		for n := 1; used[candidate]; n++ {
			candidate = fmt.Sprintf("%s_%d", name, n)
		}
		used[candidate] = true
		out[i] = candidate
	}
	return out
}

// Categorize returns the first category whose normalized alternative occurs
// in the normalized value, UnknownCategory otherwise.
func Categorize(value string, categories []reporttype.ValueCategory) string {
	normalized := similarity.Normalize(value)
	if normalized == "" {
		return UnknownCategory
	}
	for _, category := range categories {
		for _, alt := range category.Alternatives {
			if a := similarity.Normalize(alt); a != "" && strings.Contains(normalized, a) {
				return category.Category
			}
		}
	}
	return UnknownCategory
}

// CategorizeColumn returns a copy of table with every value of column replaced
// by its category. Tables without the column are returned unchanged.
func CategorizeColumn(table *models.Table, column string, categories []reporttype.ValueCategory) *models.Table {
	values := table.Column(column)
	if values == nil || len(categories) == 0 {
		return table
	}
	out := make([]any, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = nil
			continue
		}
		out[i] = Categorize(models.CellString(v), categories)
	}
	return table.WithColumn(column, out)
}

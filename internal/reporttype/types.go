package reporttype

import (
	"regexp"
	"strconv"
	"strings"
)

// Defaults applied when a report type leaves a value unset.
const (
	DefaultFuzzyThreshold      = 0.85
	DefaultMinMatches          = 2
	DefaultClassifierThreshold = 0.7
	DefaultBaseScore           = 100.0
)

// ReportType is one configured report profile loaded from YAML.
// Values are shared read-only between concurrent analyses and must not be modified
// after loading.
type ReportType struct {
	Meta           Meta           `yaml:"report_type"`
	Identification Identification `yaml:"identification"`
	Analysis       Analysis       `yaml:"analysis"`

	source     string
	filenameRe []*regexp.Regexp
}

// Meta identifies a report type.
type Meta struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Enabled     *bool  `yaml:"enabled"`
	Analyzer    string `yaml:"analyzer"`
}

// Identification holds the detection rules for a report type.
type Identification struct {
	FilenamePatterns   []string           `yaml:"filename_patterns"`
	ContentIdentifiers ContentIdentifiers `yaml:"content_identifiers"`
	Classification     Classification     `yaml:"classification"`
	FuzzyMatching      FuzzyMatching      `yaml:"fuzzy_matching"`
}

// ContentIdentifiers configure content-based scoring.
type ContentIdentifiers struct {
	RequiredColumns  []string `yaml:"required_columns"`
	OptionalColumns  []string `yaml:"optional_columns"`
	RequiredKeywords []string `yaml:"required_keywords"`
	OptionalKeywords []string `yaml:"optional_keywords"`
	MinMatches       float64  `yaml:"min_matches"`
}

// Empty reports whether no identifier is configured.
func (c ContentIdentifiers) Empty() bool {
	return len(c.RequiredColumns)+len(c.OptionalColumns)+len(c.RequiredKeywords)+len(c.OptionalKeywords) == 0
}

// Threshold returns min_matches or its default.
func (c ContentIdentifiers) Threshold() float64 {
	if c.MinMatches <= 0 {
		return DefaultMinMatches
	}
	return c.MinMatches
}

// Classification configures the external classifier stage.
type Classification struct {
	Enabled             bool    `yaml:"enabled"`
	Prompt              string  `yaml:"prompt"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// Threshold returns the configured confidence threshold or its default.
func (c Classification) Threshold() float64 {
	if c.ConfidenceThreshold <= 0 {
		return DefaultClassifierThreshold
	}
	return c.ConfidenceThreshold
}

// FuzzyMatching is the canonical field vocabulary of a report type.
// Fields are kept in configured order; mapping is first-match-wins over that order.
type FuzzyMatching struct {
	Threshold float64          `yaml:"threshold"`
	Fields    []CanonicalField `yaml:"fields"`
}

// FieldThreshold returns the threshold for a field, falling back to the
// report-wide threshold and then to the default.
func (f FuzzyMatching) FieldThreshold(field CanonicalField) float64 {
	if field.Threshold > 0 {
		return field.Threshold
	}
	if f.Threshold > 0 {
		return f.Threshold
	}
	return DefaultFuzzyThreshold
}

// Field returns the canonical field with the given name.
func (f FuzzyMatching) Field(name string) (CanonicalField, bool) {
	for _, field := range f.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return CanonicalField{}, false
}

// CanonicalField maps alternative raw spellings to one internal name.
type CanonicalField struct {
	Name         string          `yaml:"name"`
	Alternatives []string        `yaml:"alternatives"`
	Threshold    float64         `yaml:"threshold"`
	Values       []ValueCategory `yaml:"values"`
}

// ValueCategory groups alternative spellings of one enumerated value.
type ValueCategory struct {
	Category     string   `yaml:"category"`
	Alternatives []string `yaml:"alternatives"`
}

// Analysis configures checks, extraction and scoring.
type Analysis struct {
	Parameters       map[string]any    `yaml:"parameters"`
	Checks           []CheckConfig     `yaml:"checks"`
	ExtractionFields []ExtractionField `yaml:"extraction_fields"`
	Scoring          Scoring           `yaml:"scoring"`
}

// Check returns the configured check with the given id.
func (a Analysis) Check(id string) (CheckConfig, bool) {
	for _, check := range a.Checks {
		if check.ID == id {
			return check, true
		}
	}
	return CheckConfig{}, false
}

// Float returns a numeric analysis parameter.
func (a Analysis) Float(key string, def float64) float64 {
	return ParamFloat(a.Parameters, key, def)
}

// String returns a string analysis parameter.
func (a Analysis) String(key, def string) string {
	return ParamString(a.Parameters, key, def)
}

// CheckConfig is one generic or named check.
type CheckConfig struct {
	ID         string         `yaml:"check_id"`
	Name       string         `yaml:"name"`
	Type       string         `yaml:"type"`
	Severity   string         `yaml:"severity"`
	Parameters map[string]any `yaml:"parameters"`
}

// DisplayName returns the name or the id when no name is set.
func (c CheckConfig) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// ExtractionField configures one extracted value.
type ExtractionField struct {
	Field     string `yaml:"field"`
	Type      string `yaml:"type"`
	Source    string `yaml:"source"`
	Condition string `yaml:"condition"`
	Formula   string `yaml:"formula"`
	Format    string `yaml:"format"`
	Default   any    `yaml:"default"`
	Required  bool   `yaml:"required"`
}

// Scoring configures the risk scorer.
type Scoring struct {
	BaseScore  *float64    `yaml:"base_score"`
	Deductions []Deduction `yaml:"deductions"`
	RiskLevels RiskLevels  `yaml:"risk_levels"`
}

// Base returns the configured base score or the default.
func (s Scoring) Base() float64 {
	if s.BaseScore == nil {
		return DefaultBaseScore
	}
	return *s.BaseScore
}

// Deduction is a condition to points rule.
type Deduction struct {
	Condition     string   `yaml:"condition"`
	Points        float64  `yaml:"points"`
	PerOccurrence bool     `yaml:"per_occurrence"`
	MaxDeduction  *float64 `yaml:"max_deduction"`
	Description   string   `yaml:"description"`
}

// RiskLevels configures triggers and score bands per level.
type RiskLevels struct {
	Critical *RiskBand `yaml:"critical"`
	High     *RiskBand `yaml:"high"`
	Medium   *RiskBand `yaml:"medium"`
	Low      *RiskBand `yaml:"low"`
}

// RiskBand holds trigger conditions and an inclusive [min, max] score range.
type RiskBand struct {
	Triggers   []string  `yaml:"triggers"`
	ScoreRange []float64 `yaml:"score_range"`
}

// Contains reports whether a score falls inside the band's range.
func (b *RiskBand) Contains(score float64) bool {
	if b == nil || len(b.ScoreRange) != 2 {
		return false
	}
	return b.ScoreRange[0] <= score && score <= b.ScoreRange[1]
}

// ID returns the report type id.
func (rt *ReportType) ID() string { return rt.Meta.ID }

// Name returns the display name.
func (rt *ReportType) Name() string { return rt.Meta.Name }

// Source returns the file the report type was loaded from.
func (rt *ReportType) Source() string { return rt.source }

// IsEnabled reports whether the report type takes part in detection.
func (rt *ReportType) IsEnabled() bool {
	return rt.Meta.Enabled == nil || *rt.Meta.Enabled
}

// AnalyzerName returns the check suite to run, defaulting to the id.
func (rt *ReportType) AnalyzerName() string {
	if name := strings.TrimSpace(rt.Meta.Analyzer); name != "" {
		return name
	}
	return rt.Meta.ID
}

// FilenamePatterns returns the compiled, case-insensitive filename patterns.
func (rt *ReportType) FilenamePatterns() []*regexp.Regexp {
	return rt.filenameRe
}

// ParamFloat reads a numeric value from a free-form parameter map.
func ParamFloat(params map[string]any, key string, def float64) float64 {
	raw, ok := params[key]
	if !ok || raw == nil {
		return def
	}
	switch value := raw.(type) {
	case float64:
		return value
	case int:
		return float64(value)
	case int64:
		return float64(value)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return def
}

// ParamString reads a string value from a free-form parameter map.
func ParamString(params map[string]any, key, def string) string {
	raw, ok := params[key]
	if !ok || raw == nil {
		return def
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return def
}

// ParamBool reads a boolean value from a free-form parameter map.
func ParamBool(params map[string]any, key string, def bool) bool {
	raw, ok := params[key]
	if !ok || raw == nil {
		return def
	}
	if b, ok := raw.(bool); ok {
		return b
	}
	return def
}

// ParamStrings reads a string list from a free-form parameter map.
func ParamStrings(params map[string]any, key string) []string {
	raw, ok := params[key]
	if !ok || raw == nil {
		return nil
	}
	switch value := raw.(type) {
	case []string:
		return value
	case []any:
		out := make([]string, 0, len(value))
		for _, item := range value {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{value}
	}
	return nil
}

package reporttype

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigError is a malformed or incomplete report type configuration.
// It is fatal for a batch and must stop the run before any file is analysed.
type ConfigError struct {
	File   string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid report type config %s: %s", e.File, e.Reason)
	}
	return fmt.Sprintf("invalid report type config %s: %s %s", e.File, e.Field, e.Reason)
}

// LoadDir loads every *.yaml / *.yml file in dir into a new Registry.
func LoadDir(dir string) (*Registry, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access report type directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("report type path %q is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list report type directory %q: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	types := make([]*ReportType, 0, len(paths))
	for _, path := range paths {
		rt, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		types = append(types, rt)
		slog.Debug("loaded report type",
			slog.String("id", rt.ID()),
			slog.String("file", path),
		)
	}

	return NewRegistry(types...)
}

// LoadFile loads and validates one report type file.
func LoadFile(path string) (*ReportType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report type file %q: %w", path, err)
	}
	return Parse(path, data)
}

// Parse decodes and validates a report type from YAML bytes.
// name is used for error attribution only.
func Parse(name string, data []byte) (*ReportType, error) {
	rt := &ReportType{}
	if err := yaml.Unmarshal(data, rt); err != nil {
		return nil, &ConfigError{File: name, Reason: fmt.Sprintf("yaml: %v", err)}
	}
	rt.source = name
	rt.normalize()
	if err := rt.validate(); err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *ReportType) normalize() {
	rt.Meta.ID = strings.TrimSpace(rt.Meta.ID)
	rt.Meta.Name = strings.TrimSpace(rt.Meta.Name)
	rt.Identification.FilenamePatterns = normalizeList(rt.Identification.FilenamePatterns)
	ci := &rt.Identification.ContentIdentifiers
	ci.RequiredColumns = normalizeList(ci.RequiredColumns)
	ci.OptionalColumns = normalizeList(ci.OptionalColumns)
	ci.RequiredKeywords = normalizeList(ci.RequiredKeywords)
	ci.OptionalKeywords = normalizeList(ci.OptionalKeywords)
}

func (rt *ReportType) validate() error {
	fail := func(field, reason string) error {
		return &ConfigError{File: rt.source, Field: field, Reason: reason}
	}

	if rt.Meta.ID == "" {
		return fail("report_type.id", "is required")
	}
	if rt.Meta.ID == "unknown" {
		return fail("report_type.id", "must not be the reserved id \"unknown\"")
	}
	if rt.Meta.Name == "" {
		return fail("report_type.name", "is required")
	}

	ident := rt.Identification
	if len(ident.FilenamePatterns) == 0 && ident.ContentIdentifiers.Empty() && !ident.Classification.Enabled {
		return fail("identification", "must configure at least one method (filename_patterns, content_identifiers or classification)")
	}

	rt.filenameRe = make([]*regexp.Regexp, 0, len(ident.FilenamePatterns))
	for i, pattern := range ident.FilenamePatterns {
		// Patterns match from the start of the file name.
		re, err := regexp.Compile("(?i)^(?:" + pattern + ")")
		if err != nil {
			return fail(fmt.Sprintf("identification.filename_patterns[%d]", i), fmt.Sprintf("is invalid: %v", err))
		}
		rt.filenameRe = append(rt.filenameRe, re)
	}

	if ident.ContentIdentifiers.MinMatches < 0 {
		return fail("identification.content_identifiers.min_matches", "must be >= 0")
	}
	if t := ident.Classification.ConfidenceThreshold; t < 0 || t > 1 {
		return fail("identification.classification.confidence_threshold", "must be between 0 and 1")
	}
	if ident.Classification.Enabled && strings.TrimSpace(ident.Classification.Prompt) == "" {
		return fail("identification.classification.prompt", "is required when classification is enabled")
	}

	fuzzy := ident.FuzzyMatching
	if fuzzy.Threshold < 0 || fuzzy.Threshold > 1 {
		return fail("identification.fuzzy_matching.threshold", "must be between 0 and 1")
	}
	seen := map[string]bool{}
	for i, field := range fuzzy.Fields {
		if strings.TrimSpace(field.Name) == "" {
			return fail(fmt.Sprintf("identification.fuzzy_matching.fields[%d].name", i), "is required")
		}
		if seen[field.Name] {
			return fail(fmt.Sprintf("identification.fuzzy_matching.fields[%d].name", i), fmt.Sprintf("duplicates %q", field.Name))
		}
		seen[field.Name] = true
		if field.Threshold < 0 || field.Threshold > 1 {
			return fail(fmt.Sprintf("identification.fuzzy_matching.fields[%d].threshold", i), "must be between 0 and 1")
		}
	}

	scoring := rt.Analysis.Scoring
	if base := scoring.Base(); base < 0 || base > 100 {
		return fail("analysis.scoring.base_score", fmt.Sprintf("must be between 0 and 100, got %v", base))
	}
	for i, deduction := range scoring.Deductions {
		if strings.TrimSpace(deduction.Condition) == "" {
			return fail(fmt.Sprintf("analysis.scoring.deductions[%d].condition", i), "is required")
		}
		if deduction.Points < 0 {
			return fail(fmt.Sprintf("analysis.scoring.deductions[%d].points", i), "must be >= 0")
		}
	}
	bands := []struct {
		name string
		band *RiskBand
	}{
		{"critical", scoring.RiskLevels.Critical},
		{"high", scoring.RiskLevels.High},
		{"medium", scoring.RiskLevels.Medium},
		{"low", scoring.RiskLevels.Low},
	}
	for _, b := range bands {
		if b.band != nil && len(b.band.ScoreRange) != 0 && len(b.band.ScoreRange) != 2 {
			return fail("analysis.scoring.risk_levels."+b.name+".score_range", "must have exactly two values")
		}
	}

	for i, check := range rt.Analysis.Checks {
		if strings.TrimSpace(check.ID) == "" {
			return fail(fmt.Sprintf("analysis.checks[%d].check_id", i), "is required")
		}
	}
	for i, field := range rt.Analysis.ExtractionFields {
		if strings.TrimSpace(field.Field) == "" {
			return fail(fmt.Sprintf("analysis.extraction_fields[%d].field", i), "is required")
		}
	}

	return nil
}

// IsConfigError reports whether err is, or wraps, a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func normalizeList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

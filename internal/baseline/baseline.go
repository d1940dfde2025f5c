// Package baseline records known failed checks and findings so repeated runs
// only report what is new.
package baseline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ppiankov/reportspectre/internal/models"
)

const (
	// DefaultPath is used when --update-baseline is enabled without an explicit --baseline path.
	DefaultPath = ".reportspectre-baseline.json"
	fileVersion = 1
)

// Item kinds.
const (
	KindCheck   = "check"
	KindFinding = "finding"
)

// Set stores baseline fingerprints.
type Set map[string]struct{}

// File is the persisted baseline JSON payload.
type File struct {
	Version      int      `json:"version"`
	Fingerprints []string `json:"fingerprints"`
}

// Item is one failed check or finding of one file.
type Item struct {
	Fingerprint string
	File        string
	ReportType  string
	Kind        string
	Name        string
	Message     string
}

// Load reads a baseline file. Missing files return an empty set.
func Load(path string) (Set, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("baseline path is empty")
	}

	data, err := os.ReadFile(trimmed)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Set{}, nil
		}
		return nil, fmt.Errorf("read baseline file: %w", err)
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse baseline file: %w", err)
	}
	if file.Version != 0 && file.Version != fileVersion {
		return nil, fmt.Errorf("unsupported baseline version: %d", file.Version)
	}

	set := Set{}
	AddAll(set, file.Fingerprints)
	return set, nil
}

// Save writes a baseline file with sorted, unique fingerprints.
func Save(path string, set Set) error {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return errors.New("baseline path is empty")
	}

	dir := filepath.Dir(trimmed)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create baseline directory: %w", err)
		}
	}

	payload := File{
		Version:      fileVersion,
		Fingerprints: Sorted(set),
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal baseline file: %w", err)
	}

	if err := os.WriteFile(trimmed, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write baseline file: %w", err)
	}

	return nil
}

// AddAll inserts fingerprints into the target set.
func AddAll(target Set, fingerprints []string) {
	for _, fingerprint := range fingerprints {
		if fingerprint == "" {
			continue
		}
		target[fingerprint] = struct{}{}
	}
}

// Sorted returns sorted fingerprints from a set.
func Sorted(set Set) []string {
	fingerprints := make([]string, 0, len(set))
	for fingerprint := range set {
		fingerprints = append(fingerprints, fingerprint)
	}
	sort.Strings(fingerprints)
	return fingerprints
}

// Collect returns the failed checks and findings of all results, one item per
// fingerprint, sorted by file then name.
func Collect(results []*models.AnalysisResult) []Item {
	seen := map[string]bool{}
	items := make([]Item, 0)
	add := func(item Item) {
		if seen[item.Fingerprint] {
			return
		}
		seen[item.Fingerprint] = true
		items = append(items, item)
	}

	for _, result := range results {
		if result == nil {
			continue
		}
		file := filepath.Base(result.File)
		for _, check := range result.FailedChecks() {
			add(Item{
				Fingerprint: FingerprintCheck(file, result.ReportType, check.ID),
				File:        file,
				ReportType:  result.ReportType,
				Kind:        KindCheck,
				Name:        check.ID,
				Message:     check.Message,
			})
		}
		for _, finding := range result.Findings {
			add(Item{
				Fingerprint: FingerprintFinding(file, result.ReportType, finding.Kind),
				File:        file,
				ReportType:  result.ReportType,
				Kind:        KindFinding,
				Name:        finding.Kind,
				Message:     finding.Message,
			})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].File != items[j].File {
			return items[i].File < items[j].File
		}
		return items[i].Name < items[j].Name
	})
	return items
}

// CountFindings returns the number of items treated as findings.
func CountFindings(results []*models.AnalysisResult) int {
	return len(Collect(results))
}

// CollectFingerprints extracts fingerprints for all current items.
func CollectFingerprints(results []*models.AnalysisResult) []string {
	set := Set{}
	for _, item := range Collect(results) {
		set[item.Fingerprint] = struct{}{}
	}
	return Sorted(set)
}

// SuppressKnown returns the items not present in the baseline and the number
// of items it suppressed.
func SuppressKnown(results []*models.AnalysisResult, known Set) (remaining []Item, suppressed int) {
	items := Collect(results)
	if len(known) == 0 {
		return items, 0
	}

	remaining = make([]Item, 0, len(items))
	for _, item := range items {
		if _, exists := known[item.Fingerprint]; exists {
			suppressed++
			continue
		}
		remaining = append(remaining, item)
	}
	return remaining, suppressed
}

// FingerprintCheck returns a stable fingerprint for a failed check.
func FingerprintCheck(file, reportType, checkID string) string {
	return hash(KindCheck, file, reportType, checkID)
}

// FingerprintFinding returns a stable fingerprint for a finding.
func FingerprintFinding(file, reportType, kind string) string {
	return hash(KindFinding, file, reportType, kind)
}

func hash(parts ...string) string {
	canonical := strings.Join(parts, "\x1f")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

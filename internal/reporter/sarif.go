package reporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ppiankov/reportspectre/internal/baseline"
	"github.com/ppiankov/reportspectre/internal/models"
	"github.com/ppiankov/reportspectre/pkg/config"
)

const (
	ruleFailedCheck = "reportspectre/FAILED_CHECK"
	ruleFinding     = "reportspectre/FINDING"
	ruleNotAnalyzed = "reportspectre/NOT_ANALYZED"

	ruleIndexFailedCheck = 0
	ruleIndexFinding     = 1
	ruleIndexNotAnalyzed = 2

	// SARIFFile is the SARIF log written to the output directory.
	SARIFFile = "report.sarif"

	sarifFingerprintKey = "reportspectre/findingHash"
	sarifSchemaURI      = "https://docs.oasis-open.org/sarif/sarif/v2.1.0/cs01/schemas/sarif-schema-2.1.0.json"
)

var semanticVersionPattern = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?$`)

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool              sarifTool               `json:"tool"`
	Results           []sarifResult           `json:"results"`
	AutomationDetails *sarifAutomationDetails `json:"automationDetails,omitempty"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifAutomationDetails struct {
	ID string `json:"id"`
}

type sarifDriver struct {
	Name            string       `json:"name"`
	Version         string       `json:"version,omitempty"`
	InformationURI  string       `json:"informationUri,omitempty"`
	ShortDesc       sarifMessage `json:"shortDescription"`
	FullDesc        sarifMessage `json:"fullDescription"`
	Rules           []sarifRule  `json:"rules"`
	SemanticVersion string       `json:"semanticVersion,omitempty"`
}

type sarifRule struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	ShortDesc     sarifMessage `json:"shortDescription"`
	FullDesc      sarifMessage `json:"fullDescription"`
	DefaultConfig sarifConfig  `json:"defaultConfiguration"`
}

type sarifConfig struct {
	Level string `json:"level"`
}

type sarifResult struct {
	RuleID              string            `json:"ruleId"`
	RuleIndex           *int              `json:"ruleIndex,omitempty"`
	Level               string            `json:"level,omitempty"`
	Message             sarifMessage      `json:"message"`
	Locations           []sarifLocation   `json:"locations,omitempty"`
	PartialFingerprints map[string]string `json:"partialFingerprints,omitempty"`
	Properties          map[string]any    `json:"properties,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation  `json:"physicalLocation,omitempty"`
	LogicalLocations []sarifLogicalLocation `json:"logicalLocations,omitempty"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifLogicalLocation struct {
	Name               string `json:"name,omitempty"`
	FullyQualifiedName string `json:"fullyQualifiedName,omitempty"`
	Kind               string `json:"kind,omitempty"`
}

// WriteSARIF writes SARIF 2.1.0 output to report.sarif.
func WriteSARIF(report *Report, cfg *config.Config) error {
	if report == nil {
		return fmt.Errorf("report is nil")
	}
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	version := report.Summary.Version
	output := sarifLog{
		Version: "2.1.0",
		Schema:  sarifSchemaURI,
		Runs: []sarifRun{
			{
				Tool: sarifTool{
					Driver: sarifDriver{
						Name:            "reportspectre",
						Version:         version,
						SemanticVersion: normalizeSemanticVersion(version),
						InformationURI:  "https://github.com/ppiankov/reportspectre",
						ShortDesc:       sarifMessage{Text: "Report classification and risk scoring"},
						FullDesc:        sarifMessage{Text: "Classifies compliance and IT reports, runs their configured checks, and scores their risk."},
						Rules: []sarifRule{
							{
								ID:            ruleFailedCheck,
								Name:          "FAILED_CHECK",
								ShortDesc:     sarifMessage{Text: "Report check failed"},
								FullDesc:      sarifMessage{Text: "A check configured for the report type did not pass."},
								DefaultConfig: sarifConfig{Level: "warning"},
							},
							{
								ID:            ruleFinding,
								Name:          "FINDING",
								ShortDesc:     sarifMessage{Text: "Processing finding"},
								FullDesc:      sarifMessage{Text: "A non-fatal problem was recorded while processing the report."},
								DefaultConfig: sarifConfig{Level: "note"},
							},
							{
								ID:            ruleNotAnalyzed,
								Name:          "NOT_ANALYZED",
								ShortDesc:     sarifMessage{Text: "Report was not analyzed"},
								FullDesc:      sarifMessage{Text: "The report could not be classified or scored."},
								DefaultConfig: sarifConfig{Level: "warning"},
							},
						},
					},
				},
				Results:           buildSARIFResults(report),
				AutomationDetails: &sarifAutomationDetails{ID: "reportspectre/analyze"},
			},
		},
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal SARIF: %w", err)
	}

	outputPath := filepath.Join(cfg.OutputDir, SARIFFile)
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", SARIFFile, err)
	}

	return nil
}

func buildSARIFResults(report *Report) []sarifResult {
	results := make([]sarifResult, 0)
	if report == nil {
		return results
	}

	for _, result := range report.Results {
		if result == nil {
			continue
		}
		file := filepath.Base(result.File)
		location := reportLocation(result)

		if result.Status() == models.StatusNotAnalyzed {
			results = append(results, sarifResult{
				RuleID:    ruleNotAnalyzed,
				RuleIndex: ruleIndexPtr(ruleIndexNotAnalyzed),
				Level:     "warning",
				Message:   sarifMessage{Text: fmt.Sprintf("Report %q was not analyzed.", file)},
				Locations: location,
				PartialFingerprints: map[string]string{
					sarifFingerprintKey: baseline.FingerprintFinding(file, result.ReportType, string(models.StatusNotAnalyzed)),
				},
				Properties: map[string]any{
					"report_type": result.ReportType,
					"findings":    len(result.Findings),
				},
			})
		}

		for _, check := range result.FailedChecks() {
			message := check.Message
			if message == "" {
				message = fmt.Sprintf("Check %q failed.", check.ID)
			}
			properties := map[string]any{
				"report_type":     result.ReportType,
				"check_id":        check.ID,
				"severity":        normalizeSeverity(string(check.Severity)),
				"points_deducted": check.PointsDeducted,
			}
			if result.Score != nil {
				properties["score"] = result.Score.Score
				properties["risk_level"] = result.Score.RiskLevel
			}
			results = append(results, sarifResult{
				RuleID:    ruleFailedCheck,
				RuleIndex: ruleIndexPtr(ruleIndexFailedCheck),
				Level:     mapSeverityToSARIFLevel(normalizeSeverity(string(check.Severity))),
				Message:   sarifMessage{Text: message},
				Locations: location,
				PartialFingerprints: map[string]string{
					sarifFingerprintKey: baseline.FingerprintCheck(file, result.ReportType, check.ID),
				},
				Properties: properties,
			})
		}

		for _, finding := range result.Findings {
			results = append(results, sarifResult{
				RuleID:    ruleFinding,
				RuleIndex: ruleIndexPtr(ruleIndexFinding),
				Level:     findingLevel(finding.Kind),
				Message:   sarifMessage{Text: finding.Message},
				Locations: location,
				PartialFingerprints: map[string]string{
					sarifFingerprintKey: baseline.FingerprintFinding(file, result.ReportType, finding.Kind),
				},
				Properties: map[string]any{
					"report_type": result.ReportType,
					"kind":        finding.Kind,
				},
			})
		}
	}

	return results
}

func reportLocation(result *models.AnalysisResult) []sarifLocation {
	uri := filepath.ToSlash(strings.TrimSpace(result.File))
	if uri == "" {
		uri = "unknown"
	}
	reportType := strings.TrimSpace(result.ReportType)
	if reportType == "" {
		reportType = models.UnknownReportType
	}

	return []sarifLocation{
		{
			PhysicalLocation: sarifPhysicalLocation{
				ArtifactLocation: sarifArtifactLocation{URI: uri},
			},
			LogicalLocations: []sarifLogicalLocation{
				{
					Name:               reportType,
					FullyQualifiedName: reportType + "/" + filepath.Base(uri),
					Kind:               "report",
				},
			},
		},
	}
}

// findingLevel raises processing failures above informational findings.
func findingLevel(kind string) string {
	switch kind {
	case models.FindingParseError, models.FindingAnalysisError, models.FindingDetectionError:
		return "error"
	case models.FindingUnclassified, models.FindingClassifierError, models.FindingScoringRule:
		return "warning"
	default:
		return "note"
	}
}

func normalizeSeverity(severity string) string {
	normalized := strings.ToLower(strings.TrimSpace(severity))
	if normalized == "" {
		return "medium"
	}
	return normalized
}

func mapSeverityToSARIFLevel(severity string) string {
	switch severity {
	case "high":
		return "error"
	case "low":
		return "note"
	default:
		return "warning"
	}
}

func normalizeSemanticVersion(version string) string {
	normalized := strings.TrimSpace(strings.TrimPrefix(version, "v"))
	if semanticVersionPattern.MatchString(normalized) {
		return normalized
	}
	return ""
}

func ruleIndexPtr(index int) *int {
	value := index
	return &value
}

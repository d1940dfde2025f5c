package analyzer

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/ppiankov/reportspectre/internal/models"
	"github.com/ppiankov/reportspectre/internal/reporttype"
	"github.com/ppiankov/reportspectre/internal/timeline"
)

const backupYAML = `
report_type:
  id: veeam_backup
  name: Veeam Backup Report
identification:
  filename_patterns: ['veeam']
  fuzzy_matching:
    fields:
      - name: vm_name
        alternatives: [VM Name]
      - name: status
        alternatives: [Status]
        values:
          - category: success
            alternatives: [success]
          - category: failed
            alternatives: [failed, error]
          - category: warning
            alternatives: [warning]
      - name: start_time
        alternatives: [Start Time]
      - name: total_gb
        alternatives: [Total GB]
analysis:
  checks:
    - check_id: backup_failures
      parameters:
        max_percentage: 0.01
  scoring:
    deductions:
      - condition: "failed:missing_backups"
        points: 10
`

func mustReportType(t *testing.T, yaml string) *reporttype.ReportType {
	t.Helper()
	rt, err := reporttype.Parse("test.yaml", []byte(yaml))
	if err != nil {
		t.Fatalf("failed to parse report type: %v", err)
	}
	return rt
}

// mayBackups returns a May 2024 table: vm "a" misses the 10th (recovered on the
// 11th) and the 20th (the 21st failed); vm "b" has every day.
func mayBackups() *models.Table {
	var rows [][]any
	for day := 1; day <= 31; day++ {
		if day == 10 || day == 20 {
			continue
		}
		status := "Success"
		if day == 21 {
			status = "Error"
		}
		rows = append(rows, []any{"a", status, fmt.Sprintf("2024-05-%02d 22:00:00", day), 1.5})
	}
	for day := 1; day <= 31; day++ {
		rows = append(rows, []any{"b", "Success", fmt.Sprintf("2024-05-%02d 23:00:00", day), 1.5})
	}
	return models.NewTable([]string{"vm_name", "status", "start_time", "total_gb"}, rows)
}

func checkByID(t *testing.T, checks []models.CheckResult, id string) models.CheckResult {
	t.Helper()
	for _, c := range checks {
		if c.ID == id {
			return c
		}
	}
	t.Fatalf("check %s not found in %+v", id, checks)
	return models.CheckResult{}
}

func TestBackupJobsPerEntity(t *testing.T) {
	rt := mustReportType(t, backupYAML)
	out, err := BackupJobs(mayBackups(), rt, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c := checkByID(t, out.Checks, "completeness"); !c.Passed {
		t.Fatalf("expected completeness to pass, got %+v", c)
	}
	failures := checkByID(t, out.Checks, "backup_failures")
	if failures.Passed {
		t.Fatalf("expected failure rate 1/60 to exceed the configured 1%%, got %+v", failures)
	}
	if failures.Details["failed_count"] != 1 || failures.Details["total_count"] != 60 {
		t.Fatalf("unexpected failure details %+v", failures.Details)
	}
	if c := checkByID(t, out.Checks, "backup_warnings"); !c.Passed {
		t.Fatalf("expected warnings to pass, got %+v", c)
	}
	missing := checkByID(t, out.Checks, "missing_backups")
	if missing.Passed || missing.Severity != models.SeverityMedium {
		t.Fatalf("expected missing backups failure, got %+v", missing)
	}

	f := out.Fields
	if !reflect.DeepEqual(f["missing_backup_days"], []string{"2024-05-20"}) {
		t.Fatalf("expected only the unrecovered day, got %v", f["missing_backup_days"])
	}
	expect := map[string]any{
		"report_month":              "2024-05",
		"total_backups":             60,
		"successful_backups":        59,
		"failed_backups":            1,
		"warning_backups":           0,
		"success_rate":              98.33,
		"failure_rate":              1.67,
		"total_capacity_gb":         90.0,
		"period_start":              "2024-05-01",
		"period_end":                "2024-05-31",
		"unique_vms":                2,
		"missing_backup_days_count": 1,
	}
	for k, v := range expect {
		if f[k] != v {
			t.Errorf("%s: expected %#v, got %#v", k, v, f[k])
		}
	}

	failedVMs := f["failed_vms"].([]map[string]any)
	if len(failedVMs) != 1 || failedVMs[0]["vm_name"] != "a" || failedVMs[0]["start_time"] != "2024-05-21 22:00:00" {
		t.Fatalf("unexpected failed vms %v", failedVMs)
	}

	analysis := f["vm_analysis"].(map[string]any)
	vms := analysis["vms"].(map[string]any)
	a := vms["a"].(map[string]any)
	if a["missing_days_total"] != 2 || a["missing_days_recoverable"] != 1 || a["missing_days_critical"] != 1 {
		t.Fatalf("unexpected vm a analysis %v", a)
	}
	summary := analysis["summary"].(map[string]any)
	if summary["total_vms"] != 2 || summary["vms_with_missing_days"] != 1 || summary["vms_with_failures"] != 1 {
		t.Fatalf("unexpected summary %v", summary)
	}
	if len(out.Gaps) != 2 {
		t.Fatalf("expected a gap per vm, got %d", len(out.Gaps))
	}
}

func TestBackupJobsWholeReport(t *testing.T) {
	rt := mustReportType(t, `
report_type: {id: keepit_backup, name: Keepit}
identification:
  filename_patterns: ['keepit']
analysis:
  parameters:
    entity_field: ""
    breakdown_fields: [connector]
`)
	var rows [][]any
	for day := 1; day <= 29; day++ {
		connector := "OneDrive"
		if day%2 == 0 {
			connector = "Exchange"
		}
		rows = append(rows, []any{connector, "Erfolgreich", fmt.Sprintf("2024-06-%02d", day)})
	}
	table := models.NewTable([]string{"connector", "status", "start_time"}, rows)

	out, err := BackupJobs(table, rt, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c := checkByID(t, out.Checks, "completeness"); !c.Passed {
		t.Fatalf("expected only status to be required, got %+v", c)
	}
	if !reflect.DeepEqual(out.Fields["missing_backup_days"], []string{"2024-06-30"}) {
		t.Fatalf("expected the last day of june missing, got %v", out.Fields["missing_backup_days"])
	}
	if out.Fields["successful_backups"] != 29 {
		t.Fatalf("expected default categories to recognise Erfolgreich, got %v", out.Fields["successful_backups"])
	}
	breakdown := out.Fields["connector_breakdown"].(map[string]int)
	if breakdown["OneDrive"] != 15 || breakdown["Exchange"] != 14 || out.Fields["unique_connectors"] != 2 {
		t.Fatalf("unexpected breakdown %v", breakdown)
	}
	if _, ok := out.Fields["vm_analysis"]; ok {
		t.Fatalf("whole-report mode must not emit per-entity analysis")
	}
	if len(out.Gaps) != 1 || out.Gaps[0].Entity != "" {
		t.Fatalf("expected a single report-wide gap, got %+v", out.Gaps)
	}
}

func TestBackupJobsAmbiguousPeriod(t *testing.T) {
	rt := mustReportType(t, backupYAML)
	table := models.NewTable([]string{"vm_name", "status", "start_time"}, [][]any{
		{"a", "success", "2024-05-30"},
		{"a", "success", "2024-05-31"},
		{"a", "success", "2024-06-01"},
		{"a", "success", "2024-06-02"},
	})

	out, err := BackupJobs(table, rt, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, finding := range out.Findings {
		if finding.Kind == models.FindingAmbiguousPeriod {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ambiguous period finding, got %+v", out.Findings)
	}
	if out.Fields["report_month"] != "2024-05" {
		t.Fatalf("expected tie to go to the earlier month, got %v", out.Fields["report_month"])
	}
}

func TestBackupJobsPinnedMonth(t *testing.T) {
	rt := mustReportType(t, backupYAML)
	out, err := BackupJobs(mayBackups(), rt, Options{ReportMonth: timeline.Month{Year: 2024, Month: time.June}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Fields["report_month"] != "2024-06" {
		t.Fatalf("expected pinned month, got %v", out.Fields["report_month"])
	}
	// No events fall in June, so no entity has a timeline to compare.
	if out.Fields["missing_backup_days_count"] != 0 {
		t.Fatalf("expected no entity timelines in june, got %v", out.Fields["missing_backup_days"])
	}
}

func TestBackupJobsWithoutStatus(t *testing.T) {
	rt := mustReportType(t, backupYAML)
	table := models.NewTable([]string{"vm_name"}, [][]any{{"a"}, {"b"}})

	out, err := BackupJobs(table, rt, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c := checkByID(t, out.Checks, "completeness"); c.Passed {
		t.Fatalf("expected completeness failure")
	}
	for _, c := range out.Checks {
		if c.ID == "backup_failures" || c.ID == "backup_warnings" {
			t.Fatalf("rate checks need a status column, got %s", c.ID)
		}
	}
	if out.Fields["success_rate"] != 100.0 || out.Fields["period_start"] != notAvailable {
		t.Fatalf("unexpected fields %v", out.Fields)
	}
}

func TestBackupJobsWithoutUsableDates(t *testing.T) {
	rt := mustReportType(t, backupYAML)
	cases := []struct {
		name  string
		table *models.Table
	}{
		{
			name: "compact_dates",
			table: models.NewTable([]string{"vm_name", "status", "start_time"}, [][]any{
				{"a", "success", "20240501"},
				{"a", "success", "20240502"},
			}),
		},
		{
			name: "missing_date_column",
			table: models.NewTable([]string{"vm_name", "status"}, [][]any{
				{"a", "success"},
			}),
		},
		{
			name: "empty_date_cells",
			table: models.NewTable([]string{"vm_name", "status", "start_time"}, [][]any{
				{"a", "success", nil},
			}),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := BackupJobs(tc.table, rt, Options{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			missing := checkByID(t, out.Checks, "missing_backups")
			if missing.Passed || missing.Severity != models.SeverityLow || missing.Details["evaluated"] != false {
				t.Fatalf("expected unevaluated missing backups check, got %+v", missing)
			}
			found := false
			for _, finding := range out.Findings {
				if finding.Kind == models.FindingDateInference && finding.Details["column"] == "start_time" {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected date finding for start_time, got %+v", out.Findings)
			}
		})
	}
}

func TestBackupJobsNativeDatesNeedNoInference(t *testing.T) {
	rt := mustReportType(t, backupYAML)
	var rows [][]any
	for day := 1; day <= 31; day++ {
		rows = append(rows, []any{"a", "success", time.Date(2024, 5, day, 22, 0, 0, 0, time.UTC)})
	}
	table := models.NewTable([]string{"vm_name", "status", "start_time"}, rows)

	out, err := BackupJobs(table, rt, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Findings) != 0 {
		t.Fatalf("expected no findings for native dates, got %+v", out.Findings)
	}
	if c := checkByID(t, out.Checks, "missing_backups"); !c.Passed {
		t.Fatalf("expected complete month, got %+v", c)
	}
}

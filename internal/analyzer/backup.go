package analyzer

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/reportspectre/internal/dates"
	"github.com/ppiankov/reportspectre/internal/models"
	"github.com/ppiankov/reportspectre/internal/reporttype"
	"github.com/ppiankov/reportspectre/internal/schema"
	"github.com/ppiankov/reportspectre/internal/timeline"
)

// Status categories used by backup reports.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusWarning = "warning"
)

const (
	defaultMaxFailureRate = 0.10
	defaultMaxWarningRate = 0.10
	notAvailable          = "N/A"
)

// defaultStatusValues applies when the status field configures no categories.
var defaultStatusValues = []reporttype.ValueCategory{
	{Category: StatusSuccess, Alternatives: []string{"success", "successful", "ok", "erfolgreich", "completed"}},
	{Category: StatusFailed, Alternatives: []string{"failed", "failure", "error", "fehler", "fehlgeschlagen"}},
	{Category: StatusWarning, Alternatives: []string{"warning", "warnung", "partial"}},
}

// backupParams are the analysis.parameters understood by BackupJobs.
type backupParams struct {
	requiredFields  []string
	entityField     string
	entityLabel     string
	dateField       string
	statusField     string
	capacityField   string
	breakdownFields []string
	detailFields    []string
	maxFailureRate  float64
	maxWarningRate  float64
}

func newBackupParams(rt *reporttype.ReportType) backupParams {
	a := rt.Analysis
	p := backupParams{
		requiredFields:  reporttype.ParamStrings(a.Parameters, "required_fields"),
		entityField:     a.String("entity_field", "vm_name"),
		entityLabel:     a.String("entity_label", "vm"),
		dateField:       a.String("date_field", "start_time"),
		statusField:     a.String("status_field", "status"),
		capacityField:   a.String("capacity_field", "total_gb"),
		breakdownFields: reporttype.ParamStrings(a.Parameters, "breakdown_fields"),
		detailFields:    reporttype.ParamStrings(a.Parameters, "detail_fields"),
		maxFailureRate:  rateLimit(rt, "backup_failures", a.Float("max_failure_rate", defaultMaxFailureRate)),
		maxWarningRate:  rateLimit(rt, "backup_warnings", a.Float("max_warning_rate", defaultMaxWarningRate)),
	}
	if p.requiredFields == nil {
		p.requiredFields = []string{p.entityField, p.statusField}
		if p.entityField == "" {
			p.requiredFields = []string{p.statusField}
		}
	}
	return p
}

// rateLimit reads max_percentage from a configured check, accepting a
// fraction (0.1) or a percentage (10).
func rateLimit(rt *reporttype.ReportType, checkID string, def float64) float64 {
	cfg, ok := rt.Analysis.Check(checkID)
	if !ok {
		return def
	}
	v := reporttype.ParamFloat(cfg.Parameters, "max_percentage", def)
	if v > 1 {
		v /= 100
	}
	return v
}

// BackupJobs analyses backup job reports: status rates, capacity and missing
// backup days. With an entity column present, days are tracked per entity;
// otherwise the whole report is one timeline.
func BackupJobs(table *models.Table, rt *reporttype.ReportType, opts Options) (Outcome, error) {
	p := newBackupParams(rt)
	out := Outcome{Fields: map[string]any{}}

	// 1. Categorize status values
	categories := defaultStatusValues
	if field, ok := rt.Identification.FuzzyMatching.Field(p.statusField); ok && len(field.Values) > 0 {
		categories = field.Values
	}
	table = schema.CategorizeColumn(table, p.statusField, categories)
	out.Table = table
	hasStatus := table.HasColumn(p.statusField)
	perEntity := p.entityField != "" && table.HasColumn(p.entityField)

	// 2. Completeness
	out.Checks = append(out.Checks, completeness(table, p.requiredFields))

	// 3. Status counts and rates
	statuses := table.Column(p.statusField)
	total := table.Len()
	counts := map[string]int{}
	for _, v := range statuses {
		counts[models.CellString(v)]++
	}
	if hasStatus {
		out.Checks = append(out.Checks,
			rateCheck("backup_failures", "Failed backups", models.SeverityHigh, counts[StatusFailed], total, p.maxFailureRate, "failed"),
			rateCheck("backup_warnings", "Backup warnings", models.SeverityMedium, counts[StatusWarning], total, p.maxWarningRate, "warning"),
		)
	}

	// 4. Build the timeline
	parsed, valid := columnDates(table, p.dateField, &out)
	var events []timeline.Event
	var seen []time.Time
	for i := range table.Rows {
		if !valid[i] {
			continue
		}
		entity := ""
		if perEntity {
			entity = strings.TrimSpace(models.CellString(table.Value(i, p.entityField)))
			if entity == "" {
				continue
			}
		}
		seen = append(seen, parsed[i])
		events = append(events, timeline.Event{
			Entity:  entity,
			At:      parsed[i],
			Success: models.CellString(table.Value(i, p.statusField)) == StatusSuccess,
		})
	}

	month, evaluated := reportMonth(opts, seen, &out)
	var critical []string
	if evaluated {
		out.Gaps = timeline.AnalyzeAll(events, month)
		critical = timeline.CriticalUnion(out.Gaps)
		out.Fields["report_month"] = month.String()
	}

	// 5. Missing backups
	missing := models.CheckResult{
		ID:       "missing_backups",
		Name:     "Missing backups",
		Passed:   len(critical) == 0,
		Severity: models.SeverityMedium,
		Message:  "All expected backups present",
		Details:  map[string]any{"missing_days": nonNil(critical)},
	}
	switch {
	case !evaluated:
		missing.Passed = false
		missing.Severity = models.SeverityLow
		missing.Message = "No backup dates available, missing days not evaluated"
		missing.Details["evaluated"] = false
	case len(critical) > 0:
		missing.Message = fmt.Sprintf("%d days without backups", len(critical))
	}
	out.Checks = append(out.Checks, missing)

	// 6. Fields
	f := out.Fields
	f["total_backups"] = total
	f["successful_backups"] = counts[StatusSuccess]
	f["failed_backups"] = counts[StatusFailed]
	f["warning_backups"] = counts[StatusWarning]
	if !hasStatus {
		f["successful_backups"], f["failed_backups"], f["warning_backups"] = 0, 0, 0
	}
	f["success_rate"], f["failure_rate"] = 100.0, 0.0
	if total > 0 && hasStatus {
		f["success_rate"] = round2(float64(counts[StatusSuccess]) / float64(total) * 100)
		f["failure_rate"] = round2(float64(counts[StatusFailed]) / float64(total) * 100)
	}

	capacity := 0.0
	for _, v := range table.Column(p.capacityField) {
		if c, ok := models.CellFloat(v); ok {
			capacity += c
		}
	}
	f["total_capacity_gb"] = round2(capacity)

	f["period_start"], f["period_end"] = notAvailable, notAvailable
	if len(seen) > 0 {
		first, last := seen[0], seen[0]
		for _, t := range seen[1:] {
			if t.Before(first) {
				first = t
			}
			if t.After(last) {
				last = t
			}
		}
		f["period_start"] = first.Format("2006-01-02")
		f["period_end"] = last.Format("2006-01-02")
	}

	for _, field := range p.breakdownFields {
		breakdown := valueCounts(table.Column(field))
		f[field+"_breakdown"] = breakdown
		f["unique_"+field+"s"] = len(breakdown)
	}

	var failedRows []int
	for i := range table.Rows {
		if models.CellString(table.Value(i, p.statusField)) == StatusFailed {
			failedRows = append(failedRows, i)
		}
	}
	f["failed_backup_details"] = rowDetails(table, failedRows, p.detailFields)

	if perEntity {
		label := p.entityLabel
		f["unique_"+label+"s"] = len(valueCounts(table.Column(p.entityField)))
		f["failed_"+label+"s"] = rowDetails(table, failedRows, []string{p.entityField, p.dateField})
		if evaluated {
			f[label+"_analysis"] = entityAnalysis(table, p, parsed, valid, month, out.Gaps)
		}
	}

	f["missing_backup_days"] = nonNil(critical)
	f["missing_backup_days_count"] = len(critical)

	slog.Debug("backup report analyzed",
		slog.String("report_type", rt.ID()),
		slog.Int("rows", total),
		slog.Bool("per_entity", perEntity),
		slog.Int("missing_days", len(critical)),
	)
	return out, nil
}

func completeness(table *models.Table, required []string) models.CheckResult {
	var missing []string
	for _, col := range required {
		if !table.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	check := models.CheckResult{
		ID:       "completeness",
		Name:     "Completeness",
		Passed:   len(missing) == 0,
		Severity: models.SeverityHigh,
		Message:  "All required fields present",
		Details:  map[string]any{"missing_columns": nonNil(missing)},
	}
	if len(missing) > 0 {
		check.Message = "Missing required fields: " + strings.Join(missing, ", ")
	}
	return check
}

func rateCheck(id, name string, sev models.Severity, count, total int, limit float64, noun string) models.CheckResult {
	rate := 0.0
	if total > 0 {
		rate = float64(count) / float64(total)
	}
	return models.CheckResult{
		ID:       id,
		Name:     name,
		Passed:   rate <= limit,
		Severity: sev,
		Message:  fmt.Sprintf("%d of %d backups %s (%.1f%%)", count, total, noun, rate*100),
		Details: map[string]any{
			noun + "_count": count,
			"total_count":   total,
			noun + "_rate":  rate,
		},
	}
}

// columnDates parses the date column. A missing column, a column with no
// parseable value and a guessed format are each recorded as a finding.
func columnDates(table *models.Table, column string, out *Outcome) ([]time.Time, []bool) {
	if !table.HasColumn(column) {
		if table.Len() > 0 {
			out.addFinding(models.FindingDateInference,
				fmt.Sprintf("date column %s not found", column),
				map[string]any{"column": column, "samples": 0})
		}
		return make([]time.Time, table.Len()), make([]bool, table.Len())
	}
	parsed, valid, inf := dates.CellDates(table, column)
	values := table.Column(column)

	parsedCount := 0
	for _, ok := range valid {
		if ok {
			parsedCount++
		}
	}
	switch {
	case inf.Samples == 0 && nonEmptyStrings(values) > 0:
		out.addFinding(models.FindingDateInference,
			fmt.Sprintf("no value of %s could be parsed as a date", column),
			map[string]any{"column": column, "samples": 0})
	case inf.LowConfidence && inf.Samples > 0:
		out.Findings = append(out.Findings, dateFinding(column, inf))
	case parsedCount == 0 && table.Len() > 0:
		out.addFinding(models.FindingDateInference,
			fmt.Sprintf("date column %s holds no dates", column),
			map[string]any{"column": column, "samples": 0})
	}
	return parsed, valid
}

func nonEmptyStrings(values []any) int {
	n := 0
	for _, v := range values {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			n++
		}
	}
	return n
}

// reportMonth returns the pinned month or the plurality month of seen.
func reportMonth(opts Options, seen []time.Time, out *Outcome) (timeline.Month, bool) {
	if !opts.ReportMonth.IsZero() {
		return opts.ReportMonth, true
	}
	vote, ok := timeline.TargetMonth(seen)
	if !ok {
		return timeline.Month{}, false
	}
	if vote.Ambiguous {
		out.addFinding(models.FindingAmbiguousPeriod,
			fmt.Sprintf("no dominant month: %s holds %d of %d entries", vote.Month, vote.Count, vote.Total),
			map[string]any{"month": vote.Month.String(), "share": round2(vote.Share)})
	}
	return vote.Month, true
}

func valueCounts(values []any) map[string]int {
	out := map[string]int{}
	for _, v := range values {
		s := strings.TrimSpace(models.CellString(v))
		if s == "" {
			continue
		}
		out[s]++
	}
	return out
}

// rowDetails renders the selected rows as maps. All columns are kept when fields is empty.
func rowDetails(table *models.Table, rows []int, fields []string) []map[string]any {
	if len(fields) == 0 {
		fields = table.Columns
	}
	out := make([]map[string]any, 0, len(rows))
	for _, i := range rows {
		row := make(map[string]any, len(fields))
		for _, field := range fields {
			if !table.HasColumn(field) {
				row[field] = notAvailable
				continue
			}
			row[field] = cellValue(table.Value(i, field))
		}
		out = append(out, row)
	}
	return out
}

func cellValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return models.CellString(t)
	}
	return v
}

// entityAnalysis summarises every entity inside the report month.
func entityAnalysis(table *models.Table, p backupParams, parsed []time.Time, valid []bool, month timeline.Month, gaps []timeline.Gap) map[string]any {
	type stats struct {
		total, success, failed, warning int
		failedRows                      []int
		days                            map[string]struct{}
	}
	byEntity := map[string]*stats{}
	for i := range table.Rows {
		if !valid[i] || !month.Contains(parsed[i]) {
			continue
		}
		entity := strings.TrimSpace(models.CellString(table.Value(i, p.entityField)))
		if entity == "" {
			continue
		}
		s, ok := byEntity[entity]
		if !ok {
			s = &stats{days: map[string]struct{}{}}
			byEntity[entity] = s
		}
		s.total++
		s.days[parsed[i].Format("2006-01-02")] = struct{}{}
		switch models.CellString(table.Value(i, p.statusField)) {
		case StatusSuccess:
			s.success++
		case StatusFailed:
			s.failed++
			s.failedRows = append(s.failedRows, i)
		case StatusWarning:
			s.warning++
		}
	}

	entities := map[string]any{}
	withFailures, withMissing := 0, 0
	sumRate := 0.0
	for _, gap := range gaps {
		s, ok := byEntity[gap.Entity]
		if !ok {
			continue
		}
		rate := 0.0
		if s.total > 0 {
			rate = round2(float64(s.success) / float64(s.total) * 100)
		}
		backupDays := make([]string, 0, len(s.days))
		for d := range s.days {
			backupDays = append(backupDays, d)
		}
		sort.Strings(backupDays)

		entities[gap.Entity] = map[string]any{
			"total_backups":            s.total,
			"successful_backups":       s.success,
			"failed_backups":           s.failed,
			"warning_backups":          s.warning,
			"success_rate":             rate,
			"score":                    rate,
			"missing_days_total":       gap.MissingTotal,
			"missing_days_recoverable": gap.MissingRecoverable,
			"missing_days_critical":    gap.MissingCritical,
			"missing_days_list":        gap.MissingDates,
			"critical_days":            gap.CriticalDates,
			"failed_backup_details":    rowDetails(table, s.failedRows, p.detailFields),
			"backup_dates":             backupDays,
		}
		if s.failed > 0 {
			withFailures++
		}
		if gap.MissingCritical > 0 {
			withMissing++
		}
		sumRate += rate
	}

	average := 0.0
	if len(entities) > 0 {
		average = round2(sumRate / float64(len(entities)))
	}
	label := p.entityLabel
	return map[string]any{
		"report_month": month.String(),
		label + "s":    entities,
		"summary": map[string]any{
			"total_" + label + "s":        len(entities),
			label + "s_with_failures":     withFailures,
			label + "s_with_missing_days": withMissing,
			"average_success_rate":        average,
			"average_score":               average,
		},
	}
}

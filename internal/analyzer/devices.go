package analyzer

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/reportspectre/internal/dates"
	"github.com/ppiankov/reportspectre/internal/models"
	"github.com/ppiankov/reportspectre/internal/reporttype"
	"github.com/ppiankov/reportspectre/internal/timeline"
)

const (
	defaultInactiveDays = 90
	defaultRecentDays   = 30
)

// deviceColumns names the inventory columns, overridable via analysis.parameters.
type deviceColumns struct {
	name, os, deviceID, signIn, registered string
	owners, compliant, enabled, managed    string
	trustType                              string
}

func newDeviceColumns(a reporttype.Analysis) deviceColumns {
	return deviceColumns{
		name:       a.String("name_field", "displayName"),
		os:         a.String("os_field", "operatingSystem"),
		deviceID:   a.String("device_id_field", "deviceId"),
		signIn:     a.String("signin_field", "approximateLastSignInDateTime"),
		registered: a.String("registration_field", "registrationDateTime"),
		owners:     a.String("owner_field", "registeredOwners"),
		compliant:  a.String("compliance_field", "isCompliant"),
		enabled:    a.String("enabled_field", "accountEnabled"),
		managed:    a.String("managed_field", "isManaged"),
		trustType:  a.String("trust_type_field", "trustType"),
	}
}

// DeviceInventory analyses device inventory exports: completeness, inactive
// devices, compliance and inventory breakdowns. Ages are measured against the
// last day of the report month.
func DeviceInventory(table *models.Table, rt *reporttype.ReportType, opts Options) (Outcome, error) {
	a := rt.Analysis
	cols := newDeviceColumns(a)
	inactiveDays := int(a.Float("inactive_days", defaultInactiveDays))
	recentDays := int(a.Float("recent_days", defaultRecentDays))
	required := reporttype.ParamStrings(a.Parameters, "required_fields")
	if required == nil {
		required = []string{cols.name, cols.os}
	}

	out := Outcome{Fields: map[string]any{}, Table: table}
	total := table.Len()

	// 1. Parse dates and pick the report month
	signIn, signInOK := columnDates(table, cols.signIn, &out)
	registered, registeredOK := columnDates(table, cols.registered, &out)
	month := opts.ReportMonth
	if month.IsZero() {
		month = latestMonth(signIn, signInOK)
	}
	if month.IsZero() {
		month = latestMonth(registered, registeredOK)
	}
	if month.IsZero() {
		month = timeline.MonthOf(opts.Now)
	}
	reportDate := month.Last()

	// 2. Classify devices by age
	var inactive, recent []int
	sinceSignIn := make([]int, total)
	for i := 0; i < total; i++ {
		if signInOK[i] {
			sinceSignIn[i] = daysBetween(signIn[i], reportDate)
			if sinceSignIn[i] > inactiveDays {
				inactive = append(inactive, i)
			}
		}
		if registeredOK[i] && daysBetween(registered[i], reportDate) <= recentDays {
			recent = append(recent, i)
		}
	}

	// 3. Checks
	out.Checks = append(out.Checks, completeness(table, required))

	inactiveRate := percent(len(inactive), total)
	check := models.CheckResult{
		ID:       "inactive_devices",
		Name:     fmt.Sprintf("Inactive devices (>%d days)", inactiveDays),
		Passed:   len(inactive) == 0,
		Severity: models.SeverityMedium,
		Message:  "No inactive devices",
		Details: map[string]any{
			"inactive_count": len(inactive),
			"inactive_rate":  inactiveRate,
		},
	}
	if len(inactive) > 0 {
		check.Message = fmt.Sprintf("%d inactive devices (%.1f%%)", len(inactive), inactiveRate)
	}
	out.Checks = append(out.Checks, check)

	compliant, nonCompliant := 0, 0
	if table.HasColumn(cols.compliant) {
		compliant = countFlag(table, cols.compliant, "true")
		nonCompliant = countFlag(table, cols.compliant, "false")
		rate := percent(nonCompliant, total)
		check := models.CheckResult{
			ID:       "non_compliant_devices",
			Name:     "Non-compliant devices",
			Passed:   nonCompliant == 0,
			Severity: models.SeverityMedium,
			Message:  "All devices compliant",
			Details: map[string]any{
				"non_compliant_count": nonCompliant,
				"non_compliant_rate":  rate,
			},
		}
		if nonCompliant > 0 {
			check.Message = fmt.Sprintf("%d non-compliant devices (%.1f%%)", nonCompliant, rate)
		}
		out.Checks = append(out.Checks, check)
	}

	// 4. Fields
	f := out.Fields
	f["total_devices"] = total
	f["report_month"] = month.String()

	var withoutOwner []int
	if table.HasColumn(cols.owners) {
		for i := 0; i < total; i++ {
			if strings.TrimSpace(models.CellString(table.Value(i, cols.owners))) == "" {
				withoutOwner = append(withoutOwner, i)
			}
		}
	}
	f["devices_without_owner"] = len(withoutOwner)
	f["devices_without_owner_list"] = rowDetails(table, withoutOwner, []string{cols.name, cols.os, cols.deviceID})

	f["inactive_devices"] = len(inactive)
	inactiveList := rowDetails(table, inactive, []string{cols.name, cols.os, cols.signIn})
	for j, i := range inactive {
		inactiveList[j]["days_since_signin"] = sinceSignIn[i]
	}
	f["inactive_devices_list"] = inactiveList

	f["recent_registrations"] = len(recent)
	f["recent_registrations_list"] = rowDetails(table, recent, []string{cols.name, cols.os, cols.registered})

	f["compliant_devices"] = compliant
	f["non_compliant_devices"] = nonCompliant
	f["enabled_devices"] = countFlag(table, cols.enabled, "true")
	f["managed_devices"] = countFlag(table, cols.managed, "true")
	f["inactive_rate"] = inactiveRate
	f["compliance_rate"] = percent(compliant, total)

	f["os_breakdown"] = valueCounts(table.Column(cols.os))
	f["trust_type_breakdown"] = valueCounts(table.Column(cols.trustType))

	return out, nil
}

func latestMonth(times []time.Time, ok []bool) timeline.Month {
	var latest time.Time
	for i, t := range times {
		if ok[i] && t.After(latest) {
			latest = t
		}
	}
	if latest.IsZero() {
		return timeline.Month{}
	}
	return timeline.MonthOf(latest)
}

// daysBetween returns whole calendar days from t to ref.
func daysBetween(t, ref time.Time) int {
	return int(dates.Day(ref).Sub(dates.Day(t)).Hours() / 24)
}

func countFlag(table *models.Table, column, want string) int {
	n := 0
	for _, v := range table.Column(column) {
		if strings.ToLower(strings.TrimSpace(models.CellString(v))) == want {
			n++
		}
	}
	return n
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(n) / float64(total) * 100)
}

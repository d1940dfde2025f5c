package analyzer

import (
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/reportspectre/internal/models"
	"github.com/ppiankov/reportspectre/internal/reporttype"
	"github.com/ppiankov/reportspectre/internal/timeline"
)

// Suite names.
const (
	SuiteGeneric         = "generic"
	SuiteBackupJobs      = "backup_jobs"
	SuiteDeviceInventory = "device_inventory"
)

// Options carry run-wide inputs into a check function.
type Options struct {
	// ReportMonth overrides the month inferred from the data.
	ReportMonth timeline.Month
	// Now is the reference time for relative checks.
	Now time.Time
}

// Outcome is what a check function hands back to the pipeline.
type Outcome struct {
	Checks   []models.CheckResult
	Fields   map[string]any
	Table    *models.Table
	Gaps     []timeline.Gap
	Findings []models.Finding
}

func (o *Outcome) addFinding(kind, message string, details map[string]any) {
	o.Findings = append(o.Findings, models.Finding{Kind: kind, Message: message, Details: details})
}

// CheckFunc runs the checks of one suite against a mapped table.
type CheckFunc func(table *models.Table, rt *reporttype.ReportType, opts Options) (Outcome, error)

// Registry maps suite names and report type ids to check functions.
type Registry struct {
	funcs   map[string]CheckFunc
	aliases map[string]string
}

// NewRegistry returns a registry holding the built-in suites.
func NewRegistry() *Registry {
	r := &Registry{
		funcs:   map[string]CheckFunc{},
		aliases: map[string]string{},
	}
	r.Register(SuiteGeneric, Generic)
	r.Register(SuiteBackupJobs, BackupJobs)
	r.Register(SuiteDeviceInventory, DeviceInventory)

	r.Alias("veeam_backup", SuiteBackupJobs)
	r.Alias("keepit_backup", SuiteBackupJobs)
	r.Alias("entra_devices", SuiteDeviceInventory)
	return r
}

// Register binds a check function to a name, replacing any previous binding.
func (r *Registry) Register(name string, fn CheckFunc) {
	r.funcs[strings.ToLower(name)] = fn
}

// Alias makes name resolve to an already registered suite.
func (r *Registry) Alias(name, suite string) {
	r.aliases[strings.ToLower(name)] = strings.ToLower(suite)
}

// Names returns the registered suite names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the check function for a report type: its analyzer name,
// then its id, then the generic suite.
func (r *Registry) Resolve(rt *reporttype.ReportType) (string, CheckFunc) {
	if rt != nil {
		for _, key := range []string{rt.AnalyzerName(), rt.ID()} {
			if name, fn, ok := r.lookup(key); ok {
				return name, fn
			}
		}
	}
	return SuiteGeneric, r.funcs[SuiteGeneric]
}

func (r *Registry) lookup(key string) (string, CheckFunc, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", nil, false
	}
	if fn, ok := r.funcs[key]; ok {
		return key, fn, true
	}
	if target, ok := r.aliases[key]; ok {
		if fn, ok := r.funcs[target]; ok {
			return target, fn, true
		}
	}
	return "", nil, false
}

package reporttype

import (
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"
)

// Registry is an immutable set of report types keyed by id.
type Registry struct {
	types    map[string]*ReportType
	ids      []string
	loadedAt time.Time
}

// NewRegistry builds a registry. Duplicate ids are a configuration error.
func NewRegistry(types ...*ReportType) (*Registry, error) {
	r := &Registry{
		types:    make(map[string]*ReportType, len(types)),
		loadedAt: time.Now(),
	}
	for _, rt := range types {
		if rt == nil {
			continue
		}
		if existing, ok := r.types[rt.ID()]; ok {
			return nil, &ConfigError{
				File:   rt.Source(),
				Field:  "report_type.id",
				Reason: fmt.Sprintf("duplicates %q already defined in %s", rt.ID(), existing.Source()),
			}
		}
		r.types[rt.ID()] = rt
		r.ids = append(r.ids, rt.ID())
	}
	sort.Strings(r.ids)
	return r, nil
}

// Get returns a report type by id.
func (r *Registry) Get(id string) (*ReportType, bool) {
	if r == nil {
		return nil, false
	}
	rt, ok := r.types[id]
	return rt, ok
}

// All returns every report type sorted by id.
func (r *Registry) All() []*ReportType {
	if r == nil {
		return nil
	}
	out := make([]*ReportType, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.types[id])
	}
	return out
}

// Enabled returns the enabled report types sorted by id.
func (r *Registry) Enabled() []*ReportType {
	var out []*ReportType
	for _, rt := range r.All() {
		if rt.IsEnabled() {
			out = append(out, rt)
		}
	}
	return out
}

// Len returns the number of report types.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ids)
}

// LoadedAt returns when the registry was built.
func (r *Registry) LoadedAt() time.Time {
	if r == nil {
		return time.Time{}
	}
	return r.loadedAt
}

// Holder publishes the current registry. Reload swaps in a complete new
// registry; readers holding the old one keep a consistent view.
type Holder struct {
	current atomic.Pointer[Registry]
	dir     string
}

// NewHolder returns a holder serving reg, reloading from dir.
func NewHolder(dir string, reg *Registry) *Holder {
	h := &Holder{dir: dir}
	h.current.Store(reg)
	return h
}

// Current returns the registry in effect.
func (h *Holder) Current() *Registry {
	return h.current.Load()
}

// Reload loads the directory again. On failure the previous registry stays active.
func (h *Holder) Reload() error {
	reg, err := LoadDir(h.dir)
	if err != nil {
		slog.Warn("report type reload failed, keeping previous configuration",
			slog.String("dir", h.dir),
			slog.String("error", err.Error()),
		)
		return err
	}
	h.current.Store(reg)
	slog.Info("report types reloaded",
		slog.String("dir", h.dir),
		slog.Int("count", reg.Len()),
	)
	return nil
}

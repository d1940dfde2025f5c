package timeline

import (
	"fmt"
	"sort"
	"time"
)

const dayLayout = "2006-01-02"

// Month is a calendar month.
type Month struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth parses "YYYY-MM".
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q, expected YYYY-MM: %w", s, err)
	}
	return MonthOf(t), nil
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// IsZero reports whether the month is unset.
func (m Month) IsZero() bool { return m.Year == 0 && m.Month == 0 }

// Before orders months by (year, month).
func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

// First returns the first day of the month.
func (m Month) First() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Last returns the last day of the month.
func (m Month) Last() time.Time {
	return time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC)
}

// Contains reports whether t falls in the month.
func (m Month) Contains(t time.Time) bool {
	return t.Year() == m.Year && t.Month() == m.Month
}

// Calendar returns every day of the month in order.
func (m Month) Calendar() []time.Time {
	last := m.Last().Day()
	days := make([]time.Time, 0, last)
	for d := 1; d <= last; d++ {
		days = append(days, time.Date(m.Year, m.Month, d, 0, 0, 0, 0, time.UTC))
	}
	return days
}

// Vote is the outcome of picking the report month by plurality.
type Vote struct {
	Month Month   `json:"month"`
	Count int     `json:"count"`
	Total int     `json:"total"`
	Share float64 `json:"share"`
	// Ambiguous is set when the winning month holds 50% of entries or less.
	Ambiguous bool `json:"ambiguous"`
}

// TargetMonth picks the month holding the most dates. Ties go to the earliest month.
// ok is false when dates is empty.
func TargetMonth(dates []time.Time) (Vote, bool) {
	if len(dates) == 0 {
		return Vote{}, false
	}
	counts := map[Month]int{}
	for _, d := range dates {
		counts[MonthOf(d)]++
	}

	var best Month
	bestCount := -1
	for m, c := range counts {
		if c > bestCount || (c == bestCount && m.Before(best)) {
			best, bestCount = m, c
		}
	}

	share := float64(bestCount) / float64(len(dates))
	return Vote{
		Month:     best,
		Count:     bestCount,
		Total:     len(dates),
		Share:     share,
		Ambiguous: share <= 0.5,
	}, true
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayOutcomes maps a calendar day (see Day) to whether the day's deciding event succeeded.
type DayOutcomes map[time.Time]bool

// Gap summarises the missing days of one entity in one month.
type Gap struct {
	Entity             string   `json:"entity"`
	Month              string   `json:"month"`
	Days               int      `json:"days_in_month"`
	EventDays          int      `json:"event_days"`
	MissingTotal       int      `json:"missing_total"`
	MissingRecoverable int      `json:"missing_recoverable"`
	MissingCritical    int      `json:"missing_critical"`
	MissingDates       []string `json:"missing_dates"`
	CriticalDates      []string `json:"critical_dates"`
}

// Analyze finds the missing days of an entity. A missing day is recoverable
// when the next day has an event whose outcome is successful, critical otherwise.
func Analyze(entity string, events DayOutcomes, month Month) Gap {
	calendar := month.Calendar()
	gap := Gap{
		Entity:        entity,
		Month:         month.String(),
		Days:          len(calendar),
		MissingDates:  []string{},
		CriticalDates: []string{},
	}

	for _, day := range calendar {
		if _, ok := events[day]; ok {
			gap.EventDays++
			continue
		}
		gap.MissingTotal++
		gap.MissingDates = append(gap.MissingDates, day.Format(dayLayout))
		if success, ok := events[day.AddDate(0, 0, 1)]; ok && success {
			gap.MissingRecoverable++
			continue
		}
		gap.CriticalDates = append(gap.CriticalDates, day.Format(dayLayout))
	}
	gap.MissingCritical = gap.MissingTotal - gap.MissingRecoverable
	return gap
}

// Event is one dated outcome for an entity.
type Event struct {
	Entity  string
	At      time.Time
	Success bool
}

// Group collects events inside month per entity. The first event of a day in
// input order decides that day's outcome.
func Group(events []Event, month Month) map[string]DayOutcomes {
	out := map[string]DayOutcomes{}
	for _, ev := range events {
		if !month.Contains(ev.At) {
			continue
		}
		outcomes, ok := out[ev.Entity]
		if !ok {
			outcomes = DayOutcomes{}
			out[ev.Entity] = outcomes
		}
		day := Day(ev.At)
		if _, seen := outcomes[day]; !seen {
			outcomes[day] = ev.Success
		}
	}
	return out
}

// AnalyzeAll groups events and analyzes every entity, sorted by entity name.
func AnalyzeAll(events []Event, month Month) []Gap {
	grouped := Group(events, month)
	entities := make([]string, 0, len(grouped))
	for entity := range grouped {
		entities = append(entities, entity)
	}
	sort.Strings(entities)

	gaps := make([]Gap, 0, len(entities))
	for _, entity := range entities {
		gaps = append(gaps, Analyze(entity, grouped[entity], month))
	}
	return gaps
}

// CriticalUnion returns the sorted set of critical dates across gaps.
func CriticalUnion(gaps []Gap) []string {
	set := map[string]struct{}{}
	for _, gap := range gaps {
		for _, d := range gap.CriticalDates {
			set[d] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Package dates infers the slot order of ambiguous date columns and parses
// values with the inferred order.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/reportspectre/internal/models"
)

// Format is the positional order of year, month and day in a date string.
type Format string

const (
	YearMonthDay Format = "year-month-day"
	YearDayMonth Format = "year-day-month"
	DayMonthYear Format = "day-month-year"
	MonthDayYear Format = "month-day-year"
)

// MaxSamples bounds how many values inference looks at.
const MaxSamples = 50

// Inference is the result of analysing one column.
type Inference struct {
	Format Format `json:"format"`
	// LowConfidence is set when the default format was used because the
	// samples did not disambiguate the slots.
	LowConfidence bool `json:"low_confidence"`
	Samples       int  `json:"samples"`
}

var (
	separators = regexp.MustCompile(`[-/.\s]+`)
	timeSuffix = regexp.MustCompile(`[T\s]\d{1,2}:\d{2}.*$`)
)

// components splits a raw date into three integers, ignoring any time part.
func components(raw string) ([3]int, bool) {
	var out [3]int
	s := strings.TrimSpace(raw)
	s = timeSuffix.ReplaceAllString(s, "")
	parts := separators.Split(strings.TrimSpace(s), -1)
	if len(parts) < 3 {
		return out, false
	}
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 {
			return out, false
		}
		out[i] = n
	}
	return out, true
}

type slot struct {
	max    int
	values map[int]struct{}
}

func (s *slot) add(v int) {
	if s.values == nil {
		s.values = map[int]struct{}{}
	}
	if v > s.max {
		s.max = v
	}
	s.values[v] = struct{}{}
}

// singleMonth reports whether the slot holds exactly one value in [1,12].
func (s *slot) singleMonth() bool {
	if len(s.values) != 1 {
		return false
	}
	for v := range s.values {
		return v >= 1 && v <= 12
	}
	return false
}

func (s *slot) exceedsMonth() bool { return s.max > 12 }

// Infer derives the format of a column from up to MaxSamples non-empty values.
func Infer(samples []string) Inference {
	var slots [3]slot
	parsed := 0
	seen := 0
	for _, raw := range samples {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if seen >= MaxSamples {
			break
		}
		seen++
		c, ok := components(raw)
		if !ok {
			continue
		}
		parsed++
		for i := range slots {
			slots[i].add(c[i])
		}
	}

	if parsed == 0 {
		return Inference{Format: YearMonthDay, LowConfidence: true}
	}
	result := Inference{Samples: parsed}

	first, second, third := &slots[0], &slots[1], &slots[2]
	switch {
	case first.max > 31:
		switch {
		case third.singleMonth():
			result.Format = YearDayMonth
		case second.singleMonth():
			result.Format = YearMonthDay
		case second.exceedsMonth():
			result.Format = YearDayMonth
		case third.exceedsMonth():
			result.Format = YearMonthDay
		default:
			result.Format = YearMonthDay
			result.LowConfidence = true
		}
	case third.max > 31:
		switch {
		case first.exceedsMonth():
			result.Format = DayMonthYear
		case second.exceedsMonth():
			result.Format = MonthDayYear
		default:
			result.Format = DayMonthYear
			result.LowConfidence = true
		}
	default:
		result.Format = YearMonthDay
		result.LowConfidence = true
	}
	return result
}

// InferColumn infers the format of a table column. Native time values are skipped.
func InferColumn(values []any) Inference {
	samples := make([]string, 0, MaxSamples)
	for _, v := range values {
		if len(samples) >= MaxSamples {
			break
		}
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		samples = append(samples, s)
	}
	if len(samples) == 0 {
		return Inference{Format: YearMonthDay, LowConfidence: true}
	}
	return Infer(samples)
}

// Parse converts one raw value to a date using format. Time-of-day parts are
// kept when present in HH:MM[:SS] form. Two-digit years are taken as 20xx.
func Parse(raw string, format Format) (time.Time, bool) {
	c, ok := components(raw)
	if !ok {
		return time.Time{}, false
	}

	var year, month, day int
	switch format {
	case YearDayMonth:
		year, day, month = c[0], c[1], c[2]
	case DayMonthYear:
		day, month, year = c[0], c[1], c[2]
	case MonthDayYear:
		month, day, year = c[0], c[1], c[2]
	default:
		year, month, day = c[0], c[1], c[2]
	}
	if year < 100 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > daysIn(year, time.Month(month)) {
		return time.Time{}, false
	}

	hour, minute, second := clock(raw)
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), true
}

var clockPattern = regexp.MustCompile(`(\d{1,2}):(\d{2})(?::(\d{2}))?`)

func clock(raw string) (int, int, int) {
	m := clockPattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, 0, 0
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	s := 0
	if m[3] != "" {
		s, _ = strconv.Atoi(m[3])
	}
	if h > 23 || mi > 59 || s > 59 {
		return 0, 0, 0
	}
	return h, mi, s
}

// ParseValue converts a table cell into a date, accepting native times.
func ParseValue(v any, format Format) (time.Time, bool) {
	switch value := v.(type) {
	case time.Time:
		return value, true
	case string:
		return Parse(value, format)
	default:
		return time.Time{}, false
	}
}

// ParseColumn infers the format for values and parses all of them.
// Unparseable cells are returned as zero times with ok=false.
func ParseColumn(values []any) ([]time.Time, []bool, Inference) {
	inf := InferColumn(values)
	times := make([]time.Time, len(values))
	oks := make([]bool, len(values))
	for i, v := range values {
		times[i], oks[i] = ParseValue(v, inf.Format)
	}
	return times, oks, inf
}

// DaysIn returns the number of days in a month.
func DaysIn(year int, month time.Month) int {
	return daysIn(year, month)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CellDates is a convenience for analyzers working on a table column.
func CellDates(table *models.Table, column string) ([]time.Time, []bool, Inference) {
	return ParseColumn(table.Column(column))
}

// Package grouping holds the bucketing policy for grouped list views:
// which key shape each filter produces, how keys are labelled for display,
// and how groups and the records inside them are ordered.
package grouping

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Filter is the grouping dimension selected by a list view.
type Filter int

const (
	Day Filter = iota
	Month
	Year
	// Dimension is the entity-specific third axis (category, project or vehicle).
	Dimension
	// ByClient is the entity-specific fourth axis.
	ByClient
)

var ErrInvalidFilter = errors.New("invalid filter")

// Key layouts as sent by the backend.
const (
	DayLayout   = "01/02/2006"
	MonthLayout = "01/2006"
	YearLayout  = "2006"
	// DayISOLayout is the day key shape of the jobs collection.
	DayISOLayout = "2006-01-02"
)

// Label layouts for presentation.
const (
	DayLabelLayout   = "January 2, 2006"
	MonthLabelLayout = "January 2006"
)

// ParseFilter converts a view's filter index (0..4).
func ParseFilter(i int) (Filter, error) {
	f := Filter(i)
	if f < Day || f > ByClient {
		return 0, fmt.Errorf("%w: %d", ErrInvalidFilter, i)
	}
	return f, nil
}

// ParseFilterName accepts the CLI spelling of a filter.
func ParseFilterName(s string) (Filter, error) {
	switch s {
	case "day", "daily", "0":
		return Day, nil
	case "month", "monthly", "1":
		return Month, nil
	case "year", "yearly", "2":
		return Year, nil
	case "dimension", "category", "project", "projects", "vehicle", "vehicles", "3":
		return Dimension, nil
	case "client", "clients", "4":
		return ByClient, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidFilter, s)
}

func (f Filter) String() string {
	switch f {
	case Day:
		return "day"
	case Month:
		return "month"
	case Year:
		return "year"
	case Dimension:
		return "dimension"
	case ByClient:
		return "client"
	}
	return fmt.Sprintf("filter(%d)", int(f))
}

// IsTimeBased is true for day, month and year.
func (f Filter) IsTimeBased() bool {
	return f >= Day && f <= Year
}

// Layout returns the key layout for time-based filters, "" otherwise.
func (f Filter) Layout() string {
	switch f {
	case Day:
		return DayLayout
	case Month:
		return MonthLayout
	case Year:
		return YearLayout
	}
	return ""
}

// ParseKey parses a date-shaped group key. Day keys may also be ISO dates.
// ok is false for dimension filters and for keys that do not match.
func ParseKey(f Filter, key string) (time.Time, bool) {
	layout := f.Layout()
	if layout == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(layout, key); err == nil {
		return t, true
	}
	if f == Day {
		if t, err := time.Parse(DayISOLayout, key); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Label renders a group key for display. Keys that do not parse are shown verbatim.
func Label(f Filter, key string) string {
	t, ok := ParseKey(f, key)
	if !ok {
		return key
	}
	switch f {
	case Day:
		return t.Format(DayLabelLayout)
	case Month:
		return t.Format(MonthLabelLayout)
	}
	return key
}

// Timed is implemented by records that are ordered by a timestamp.
type Timed interface {
	SortTime() time.Time
}

// Group is one bucket of records under a key.
type Group[T any] struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Records []T    `json:"records"`
}

// Sort orders groups by key and records within each group by time ascending.
// Date-shaped keys come first in chronological order; keys that fail to parse
// follow, lexicographically. Dimension filters sort lexicographically. Labels
// are filled in for groups that have none. The input slice is reordered in place.
func Sort[T Timed](f Filter, groups []Group[T]) []Group[T] {
	type keyed struct {
		t  time.Time
		ok bool
	}
	parsed := make(map[string]keyed, len(groups))
	for _, g := range groups {
		t, ok := ParseKey(f, g.Key)
		parsed[g.Key] = keyed{t, ok}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := parsed[groups[i].Key], parsed[groups[j].Key]
		switch {
		case a.ok && b.ok:
			if !a.t.Equal(b.t) {
				return a.t.Before(b.t)
			}
			return groups[i].Key < groups[j].Key
		case a.ok != b.ok:
			return a.ok
		default:
			return groups[i].Key < groups[j].Key
		}
	})

	for i := range groups {
		SortRecords(groups[i].Records)
		if groups[i].Label == "" {
			groups[i].Label = Label(f, groups[i].Key)
		}
	}
	return groups
}

// SortRecords orders records by time ascending, keeping ties in input order.
func SortRecords[T Timed](records []T) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SortTime().Before(records[j].SortTime())
	})
}

// Flatten concatenates the records of every group in order.
func Flatten[T any](groups []Group[T]) []T {
	n := 0
	for _, g := range groups {
		n += len(g.Records)
	}
	out := make([]T, 0, n)
	for _, g := range groups {
		out = append(out, g.Records...)
	}
	return out
}

// Map converts the records of every group, preserving keys and labels.
func Map[T, R any](groups []Group[T], fn func(T) R) []Group[R] {
	out := make([]Group[R], len(groups))
	for i, g := range groups {
		records := make([]R, len(g.Records))
		for j, r := range g.Records {
			records[j] = fn(r)
		}
		out[i] = Group[R]{Key: g.Key, Label: g.Label, Records: records}
	}
	return out
}

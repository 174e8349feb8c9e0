package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"biztrack/internal/core"
)

// dateLayout is the short form accepted for dates on the command line.
const dateLayout = "2006-01-02"

// parseDate accepts "now", a calendar date or an RFC 3339 timestamp.
func parseDate(s string, now time.Time) (core.Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "now" {
		return core.NewTimestamp(now), nil
	}
	if t, err := time.ParseInLocation(dateLayout, s, time.Local); err == nil {
		return core.NewTimestamp(t), nil
	}
	ts, err := core.ParseTimestamp(s)
	if err != nil {
		return core.Timestamp{}, usageErrorf("invalid date %q, want YYYY-MM-DD or RFC 3339", s)
	}
	return core.NewTimestamp(ts.Time), nil
}

// edits copies flag values onto a record, but only for flags the user set,
// so that updating one field keeps the others. The first error sticks.
type edits struct {
	cmd *cobra.Command
	now time.Time
	err error
}

func newEdits(cmd *cobra.Command) *edits {
	return &edits{cmd: cmd, now: time.Now()}
}

func (e *edits) set(name string) bool {
	return e.err == nil && e.cmd.Flags().Changed(name)
}

func (e *edits) str(name string, dst *string, v string) {
	if e.set(name) {
		*dst = strings.TrimSpace(v)
	}
}

// optional clears dst when the flag is set to an empty string.
func (e *edits) optional(name string, dst **string, v string) {
	if !e.set(name) {
		return
	}
	v = strings.TrimSpace(v)
	if v == "" {
		*dst = nil
		return
	}
	*dst = &v
}

func (e *edits) money(name string, dst *float64, v string) {
	if !e.set(name) {
		return
	}
	f, err := core.ParseMoney(v)
	if err != nil {
		e.err = usageErrorf("--%s: %v", name, err)
		return
	}
	*dst = f
}

func (e *edits) date(name string, dst *core.Timestamp, v string) {
	if !e.set(name) {
		return
	}
	ts, err := parseDate(v, e.now)
	if err != nil {
		e.err = err
		return
	}
	*dst = ts
}

// defaultDate stamps the current time on records created without a date.
func (e *edits) defaultDate(dst *core.Timestamp) {
	if e.err == nil && dst.IsZero() {
		*dst = core.NewTimestamp(e.now)
	}
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"biztrack/internal/aggregate"
	"biztrack/internal/api"
	"biztrack/internal/core"
	"biztrack/internal/grouping"
	"biztrack/internal/session"
)

var errUsage = errors.New("invalid usage")

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// describe turns an error into the line shown to the user.
func describe(err error) string {
	switch {
	case errors.Is(err, session.ErrNoSession):
		return "not signed in, run 'biztrack login' first"
	case errors.Is(err, api.ErrUsernameTaken):
		return "that username is already taken"
	case errors.Is(err, api.ErrReceiptRejected):
		return "the app store receipt was rejected: " + err.Error()
	}
	switch api.Classify(err) {
	case api.StateOffline:
		return "backend unreachable: " + err.Error()
	case api.StateServerError:
		return "backend error: " + err.Error()
	}
	return err.Error()
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type column[R any] struct {
	title string
	value func(R) string
}

type feedView[R any] struct {
	Entity     string              `json:"entity"`
	Filter     string              `json:"filter"`
	Groups     []grouping.Group[R] `json:"groups"`
	Total      string              `json:"total"`
	Unresolved []string            `json:"unresolved,omitempty"`
}

// renderFeed prints feed grouped under its labels, then the total. Names
// that could not be resolved are reported on stderr.
func renderFeed[R any](stdout, stderr io.Writer, output string, feed *aggregate.Feed[R], cols []column[R]) error {
	unresolved := slices.Sorted(maps.Keys(feed.LookupErrors))
	for _, name := range unresolved {
		fmt.Fprintf(stderr, "warning: could not load %s, names shown as %s\n", name, core.UnknownName)
	}

	if output == OutputJSON {
		groups := feed.Groups
		if groups == nil {
			groups = []grouping.Group[R]{}
		}
		return printJSON(stdout, feedView[R]{
			Entity:     feed.Entity,
			Filter:     feed.Filter.String(),
			Groups:     groups,
			Total:      core.FormatMoney(feed.Total),
			Unresolved: unresolved,
		})
	}

	if feed.Empty() {
		fmt.Fprintf(stdout, "No %s.\n", feed.Entity)
		return nil
	}
	for i, g := range feed.Groups {
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		fmt.Fprintf(stdout, "%s (%d)\n", g.Label, len(g.Records))
		tw := newTable(stdout)
		titles := make([]string, len(cols))
		for j, c := range cols {
			titles[j] = c.title
		}
		fmt.Fprintln(tw, "  "+strings.Join(titles, "\t"))
		for _, r := range g.Records {
			cells := make([]string, len(cols))
			for j, c := range cols {
				cells[j] = c.value(r)
			}
			fmt.Fprintln(tw, "  "+strings.Join(cells, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	fmt.Fprintf(stdout, "\nTotal: %s\n", core.FormatMoney(feed.Total))
	return nil
}

// renderList prints plain records as a table.
func renderList[T any](stdout io.Writer, output string, noun string, records []T, cols []column[T]) error {
	if output == OutputJSON {
		if records == nil {
			records = []T{}
		}
		return printJSON(stdout, records)
	}
	if len(records) == 0 {
		fmt.Fprintf(stdout, "No %s.\n", noun)
		return nil
	}
	tw := newTable(stdout)
	titles := make([]string, len(cols))
	for i, c := range cols {
		titles[i] = c.title
	}
	fmt.Fprintln(tw, strings.Join(titles, "\t"))
	for _, r := range records {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = c.value(r)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func formatDate(t core.Timestamp) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02")
}

func formatDateTime(t core.Timestamp) string {
	if t.IsZero() {
		return "open"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var receiptColumns = []column[aggregate.ReceiptRow]{
	{"DATE", func(r aggregate.ReceiptRow) string { return formatDate(r.Date) }},
	{"CLIENT", func(r aggregate.ReceiptRow) string { return r.ClientName }},
	{"CATEGORY", func(r aggregate.ReceiptRow) string { return r.CategoryName }},
	{"PAYMENT", func(r aggregate.ReceiptRow) string { return r.PaymentMode }},
	{"DESCRIPTION", func(r aggregate.ReceiptRow) string { return r.Description }},
	{"TOTAL", func(r aggregate.ReceiptRow) string { return core.FormatMoney(r.Total()) }},
}

var jobColumns = []column[aggregate.JobRow]{
	{"START", func(r aggregate.JobRow) string { return formatDateTime(r.Start) }},
	{"END", func(r aggregate.JobRow) string { return formatDateTime(r.End) }},
	{"HOURS", func(r aggregate.JobRow) string { return r.Duration().StringFixed(2) }},
	{"CLIENT", func(r aggregate.JobRow) string { return r.ClientName }},
	{"PROJECT", func(r aggregate.JobRow) string { return r.Project }},
	{"INCOME", func(r aggregate.JobRow) string { return core.FormatMoney(core.Amount(r.Income)) }},
}

var tripLogColumns = []column[aggregate.TripLogRow]{
	{"DATE", func(r aggregate.TripLogRow) string { return formatDate(r.Date) }},
	{"VEHICLE", func(r aggregate.TripLogRow) string { return r.VehicleName }},
	{"CLIENT", func(r aggregate.TripLogRow) string { return r.ClientName }},
	{"FROM", func(r aggregate.TripLogRow) string { return r.Origin }},
	{"TO", func(r aggregate.TripLogRow) string { return r.Destination }},
	{"DISTANCE", func(r aggregate.TripLogRow) string { return r.Distance().String() }},
	{"TOTAL", func(r aggregate.TripLogRow) string { return core.FormatMoney(core.Amount(r.Total)) }},
}

var clientColumns = []column[core.Client]{
	{"ID", func(c core.Client) string { return c.ID }},
	{"NAME", func(c core.Client) string { return c.Name }},
	{"EMAIL", func(c core.Client) string { return deref(c.EmailAddress) }},
	{"PHONE", func(c core.Client) string { return deref(c.MobilePhone) }},
	{"CITY", func(c core.Client) string { return deref(c.City) }},
}

var categoryColumns = []column[core.Category]{
	{"ID", func(c core.Category) string { return c.ID }},
	{"NAME", func(c core.Category) string { return c.Name }},
	{"ICON", func(c core.Category) string { return c.Icon }},
}

var vehicleColumns = []column[core.Vehicle]{
	{"ID", func(v core.Vehicle) string { return v.ID }},
	{"NAME", func(v core.Vehicle) string { return v.Name }},
}

// Package report exports aggregate feeds to tabular destinations.
package report

import (
	"context"
	"errors"
	"strings"

	"biztrack/internal/aggregate"
	"biztrack/internal/core"
)

// DateLayout is how receipt dates appear in exported rows.
const DateLayout = "2006-01-02"

var ErrEmptyTitle = errors.New("empty report title")

// Header names the exported receipt columns.
var Header = []string{
	"Group", "Date", "Client", "Category", "Payment mode", "Description",
	"Initial total", "Tax", "Tip", "Total",
}

// Ports for outbound adapters.
type (
	// Writer stores a receipts feed under title and returns a reference to
	// where the rows ended up.
	Writer interface {
		WriteReceipts(ctx context.Context, title string, feed *aggregate.Feed[aggregate.ReceiptRow]) (ref string, err error)
	}
)

// ReceiptRows renders one row per receipt in feed order, followed by a
// grand total row. Amounts are fixed two-decimal strings.
func ReceiptRows(feed *aggregate.Feed[aggregate.ReceiptRow]) [][]string {
	if feed == nil {
		return nil
	}
	rows := make([][]string, 0, len(feed.Rows)+1)
	for _, g := range feed.Groups {
		for _, r := range g.Records {
			date := ""
			if !r.Date.IsZero() {
				date = r.Date.UTC().Format(DateLayout)
			}
			rows = append(rows, []string{
				g.Label,
				date,
				r.ClientName,
				r.CategoryName,
				r.PaymentMode,
				strings.TrimSpace(r.Description),
				core.FormatMoney(core.Amount(r.InitialTotal)),
				core.FormatMoney(core.Amount(r.Tax)),
				core.FormatMoney(core.Amount(r.Tip)),
				core.FormatMoney(r.Total()),
			})
		}
	}
	total := make([]string, len(Header))
	total[0] = "Total"
	total[len(total)-1] = core.FormatMoney(feed.Total)
	return append(rows, total)
}

// ValidateTitle trims title and rejects empty ones.
func ValidateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrEmptyTitle
	}
	return title, nil
}

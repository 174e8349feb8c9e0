package memory

import (
	"context"
	"fmt"
	"sync"

	"biztrack/internal/aggregate"
	"biztrack/internal/report"
)

var _ report.Writer = (*Writer)(nil)

// Writer keeps exported tables in memory, keyed by title. A second write
// under the same title replaces the first.
type Writer struct {
	mu     sync.Mutex
	tables map[string][][]string
}

func New() *Writer {
	return &Writer{tables: map[string][][]string{}}
}

func (w *Writer) WriteReceipts(_ context.Context, title string, feed *aggregate.Feed[aggregate.ReceiptRow]) (string, error) {
	title, err := report.ValidateTitle(title)
	if err != nil {
		return "", err
	}
	rows := append([][]string{report.Header}, report.ReceiptRows(feed)...)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.tables[title] = rows
	return fmt.Sprintf("mem:%s:%d", title, len(rows)), nil
}

// Table returns a copy of the rows written under title, header included.
func (w *Writer) Table(title string) ([][]string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rows, ok := w.tables[title]
	if !ok {
		return nil, false
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out, true
}

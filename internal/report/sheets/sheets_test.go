package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"biztrack/internal/aggregate"
	"biztrack/internal/core"
	"biztrack/internal/grouping"
)

// fakeSheets serves the handful of Sheets REST calls the writer makes.
type fakeSheets struct {
	mu       sync.Mutex
	titles   []string
	added    []string
	written  map[string][][]any
	failRead bool
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/v4/spreadsheets/sid":
		if f.failRead {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"denied"}}`))
			return
		}
		var sheets []*gsheet.Sheet
		for _, t := range f.titles {
			sheets = append(sheets, &gsheet.Sheet{Properties: &gsheet.SheetProperties{Title: t}})
		}
		_ = json.NewEncoder(w).Encode(&gsheet.Spreadsheet{Sheets: sheets})
	case r.Method == http.MethodPost && r.URL.Path == "/v4/spreadsheets/sid:batchUpdate":
		var req gsheet.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, q := range req.Requests {
			if q.AddSheet != nil {
				f.added = append(f.added, q.AddSheet.Properties.Title)
				f.titles = append(f.titles, q.AddSheet.Properties.Title)
			}
		}
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/v4/spreadsheets/sid/values/"):
		rng := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/sid/values/")
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.written[rng] = vr.Values
		_ = json.NewEncoder(w).Encode(&gsheet.UpdateValuesResponse{UpdatedRange: rng})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestWriter(t *testing.T, fake *fakeSheets) *Writer {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	w, err := New(svc, "sid", nil)
	require.NoError(t, err)
	return w
}

func feed() *aggregate.Feed[aggregate.ReceiptRow] {
	row := aggregate.ReceiptRow{Receipt: core.Receipt{ID: "r1", InitialTotal: 10, Tax: 1}, ClientName: "Acme", CategoryName: "Travel"}
	return &aggregate.Feed[aggregate.ReceiptRow]{
		Groups: []grouping.Group[aggregate.ReceiptRow]{{Key: "c1", Label: "Acme", Records: []aggregate.ReceiptRow{row}}},
		Rows:   []aggregate.ReceiptRow{row},
		Total:  decimal.NewFromInt(11),
	}
}

func TestWriteReceiptsCreatesSheet(t *testing.T) {
	fake := &fakeSheets{titles: []string{"Sheet1"}, written: map[string][][]any{}}
	w := newTestWriter(t, fake)

	ref, err := w.WriteReceipts(context.Background(), "March 2024", feed())
	require.NoError(t, err)

	assert.Equal(t, "'March 2024'!A1:J3", ref)
	assert.Equal(t, []string{"March 2024"}, fake.added)

	values := fake.written["'March 2024'!A1:J3"]
	require.Len(t, values, 3)
	assert.Equal(t, "Group", values[0][0])
	assert.Equal(t, "Acme", values[1][0])
	assert.Equal(t, "11.00", values[1][9])
	assert.Equal(t, "Total", values[2][0])
}

func TestWriteReceiptsReusesExistingSheet(t *testing.T) {
	fake := &fakeSheets{titles: []string{"Q1"}, written: map[string][][]any{}}
	w := newTestWriter(t, fake)

	_, err := w.WriteReceipts(context.Background(), "Q1", feed())
	require.NoError(t, err)
	assert.Empty(t, fake.added)
}

func TestWriteReceiptsReadFailure(t *testing.T) {
	fake := &fakeSheets{failRead: true, written: map[string][][]any{}}
	w := newTestWriter(t, fake)

	_, err := w.WriteReceipts(context.Background(), "Q1", feed())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read spreadsheet sid")
	assert.Empty(t, fake.written)
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	_, err := New(nil, " ", nil)
	assert.Error(t, err)
}

func TestNewFromEnvMissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromEnv(context.Background(), "sid", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing service account credentials")

	_, err = NewFromEnv(context.Background(), "", nil)
	assert.EqualError(t, err, "missing GOOGLE_SPREADSHEET_ID")
}

func TestColumn(t *testing.T) {
	tests := map[int]string{1: "A", 10: "J", 26: "Z", 27: "AA", 52: "AZ", 53: "BA"}
	for n, want := range tests {
		assert.Equal(t, want, column(n))
	}
}

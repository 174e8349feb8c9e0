package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biztrack/internal/core"
	"biztrack/internal/events"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func ts(s string) core.Timestamp {
	t, err := core.ParseTimestamp(s)
	if err != nil {
		panic(err)
	}
	return t
}

// fakeBackend serves the routes the commands below touch.
type fakeBackend struct {
	mu          sync.Mutex
	receipts    map[string]core.Receipt
	accountType string
	deleted     bool
	failClients atomic.Bool
	singleGets  atomic.Int32
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	b := &fakeBackend{
		receipts: map[string]core.Receipt{
			"r1": {ID: "r1", Date: ts("2024-03-15T09:00:00.000Z"), Category: "cat1", ClientID: "c1", InitialTotal: 10.5, Tax: 1.37, Tip: 1.54, Description: "Taxi"},
			"r2": {ID: "r2", Date: ts("2024-03-15T17:45:00.000Z"), Category: "cat1", ClientID: "c1", InitialTotal: 0.1, Tax: 0.2, Description: "Coffee"},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "alice" || body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]string{"token": "tok", "userId": "u1", "accountType": "free"})
	})
	mux.HandleFunc("GET /users/u1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, core.User{ID: "u1", Username: "alice", Name: "Alice", CompanyName: "Alice Ltd", AccountType: core.AccountFree})
	})
	mux.HandleFunc("PUT /users/u1/{type}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.accountType = r.PathValue("type")
		b.mu.Unlock()
		writeJSON(w, "account updated")
	})
	mux.HandleFunc("DELETE /users/u1", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.deleted = true
		b.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /clients/user/u1", func(w http.ResponseWriter, r *http.Request) {
		if b.failClients.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, []core.Client{{ID: "c1", Name: "Acme"}})
	})
	mux.HandleFunc("GET /categories/user/u1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []core.Category{{ID: "cat1", Name: "Travel"}})
	})
	mux.HandleFunc("GET /receipts/user/u1/daily", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		out := map[string][]core.Receipt{}
		for _, rec := range b.receipts {
			key := rec.Date.UTC().Format("01/02/2006")
			out[key] = append(out[key], rec)
		}
		b.mu.Unlock()
		writeJSON(w, out)
	})
	mux.HandleFunc("GET /receipts/user/u1/total", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]float64{"total": 13.71})
	})
	// The backend has no single-record route for receipts.
	mux.HandleFunc("GET /receipts/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.singleGets.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("POST /receipts", func(w http.ResponseWriter, r *http.Request) {
		var rec core.Receipt
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.receipts[rec.ID] = rec
		b.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("PUT /receipts/{id}", func(w http.ResponseWriter, r *http.Request) {
		var rec core.Receipt
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.receipts[rec.ID] = rec
		b.mu.Unlock()
		writeJSON(w, rec)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *fakeBackend) receipt(id string) (core.Receipt, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[id]
	return r, ok
}

// setupEnv points the command line at srv with a session database of its own.
func setupEnv(t *testing.T, srv *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("BIZTRACK_CONFIG", filepath.Join(dir, "config.toml"))
	t.Setenv("BIZTRACK_BASE_URL", srv.URL)
	t.Setenv("BIZTRACK_SESSION_BACKEND", "sqlite")
	t.Setenv("BIZTRACK_SESSION_DB", filepath.Join(dir, "session.db"))
	t.Setenv("BIZTRACK_HTTP_TIMEOUT", "5s")
	t.Setenv("AMQP_URL", "")
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")
	t.Setenv("LOG_LEVEL", "error")
}

type result struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(args, strings.NewReader(stdin), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func login(t *testing.T) {
	t.Helper()
	res := run(t, "", "login", "-u", "alice", "--password", "secret")
	require.Equal(t, 0, res.code, res.stderr)
}

func TestLoginAndWhoami(t *testing.T) {
	_, srv := newFakeBackend(t)
	setupEnv(t, srv)

	res := run(t, "secret\n", "login", "-u", "alice")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Signed in as alice (free account)")
	assert.Contains(t, res.stderr, "Password: ")

	res = run(t, "", "whoami", "-o", "json")
	require.Equal(t, 0, res.code, res.stderr)
	var who whoami
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &who))
	assert.Equal(t, "u1", who.UserID)
	assert.Equal(t, "Alice", who.Name)
	assert.Equal(t, "free", who.AccountType)
	assert.True(t, who.ShowsAds)

	res = run(t, "", "logout")
	require.Equal(t, 0, res.code, res.stderr)

	res = run(t, "", "whoami")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "not signed in")
}

func TestLoginRejected(t *testing.T) {
	_, srv := newFakeBackend(t)
	setupEnv(t, srv)

	res := run(t, "", "login", "-u", "alice", "--password", "wrong")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "backend error")
}

func TestUsageErrors(t *testing.T) {
	_, srv := newFakeBackend(t)
	setupEnv(t, srv)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown filter", []string{"receipts", "list", "--group", "weekly"}},
		{"unknown flag", []string{"receipts", "list", "--nope"}},
		{"login without username", []string{"login"}},
		{"delete without confirmation", []string{"account", "delete"}},
		{"bad account type", []string{"account", "set-type", "gold"}},
		{"bad amount", []string{"receipts", "save", "--amount", "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, "", tt.args...)
			assert.Equal(t, 2, res.code, res.stderr)
			assert.Contains(t, res.stderr, "Error: invalid usage")
		})
	}
}

func TestReceiptsListTable(t *testing.T) {
	_, srv := newFakeBackend(t)
	setupEnv(t, srv)
	login(t)

	res := run(t, "", "receipts", "list", "--group", "day")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "March 15, 2024 (2)")
	assert.Contains(t, res.stdout, "Acme")
	assert.Contains(t, res.stdout, "Travel")
	assert.Contains(t, res.stdout, "13.41")
	assert.Contains(t, res.stdout, "Total: 13.71")
	assert.Less(t, strings.Index(res.stdout, "Taxi"), strings.Index(res.stdout, "Coffee"), "records ascend by date")
	assert.Empty(t, res.stderr)
}

func TestReceiptsListJSON(t *testing.T) {
	_, srv := newFakeBackend(t)
	setupEnv(t, srv)
	login(t)

	res := run(t, "", "receipts", "list", "-o", "json")
	require.Equal(t, 0, res.code, res.stderr)

	var view struct {
		Entity string `json:"entity"`
		Filter string `json:"filter"`
		Total  string `json:"total"`
		Groups []struct {
			Label   string `json:"label"`
			Records []struct {
				ID         string `json:"id"`
				ClientName string `json:"clientName"`
			} `json:"records"`
		} `json:"groups"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &view))
	assert.Equal(t, "receipts", view.Entity)
	assert.Equal(t, "13.71", view.Total)
	require.Len(t, view.Groups, 1)
	require.Len(t, view.Groups[0].Records, 2)
	assert.Equal(t, "r1", view.Groups[0].Records[0].ID)
	assert.Equal(t, "Acme", view.Groups[0].Records[0].ClientName)
}

func TestReceiptsListWarnsOnLookupFailure(t *testing.T) {
	b, srv := newFakeBackend(t)
	setupEnv(t, srv)
	login(t)
	b.failClients.Store(true)

	res := run(t, "", "receipts", "list")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stderr, "warning: could not load clients")
	assert.Contains(t, res.stdout, core.UnknownName)
	assert.Contains(t, res.stdout, "Travel")
}

func TestReceiptsRequireSession(t *testing.T) {
	_, srv := newFakeBackend(t)
	setupEnv(t, srv)

	res := run(t, "", "receipts", "list")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "not signed in, run 'biztrack login' first")
}

func TestReceiptsTotal(t *testing.T) {
	_, srv := newFakeBackend(t)
	setupEnv(t, srv)
	login(t)

	res := run(t, "", "receipts", "total")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "Total: 13.71\n", res.stdout)
}

func TestReceiptSaveCreatesAndUpdates(t *testing.T) {
	b, srv := newFakeBackend(t)
	setupEnv(t, srv)
	login(t)

	res := run(t, "", "receipts", "save",
		"--date", "2024-04-01",
		"--category", "cat1",
		"--client", "c1",
		"--amount", "10,30",
		"--payment", "card",
		"-o", "json")
	require.Equal(t, 0, res.code, res.stderr)
	var created core.Receipt
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &created))
	require.NotEmpty(t, created.ID)
	stored, ok := b.receipt(created.ID)
	require.True(t, ok)
	assert.Equal(t, 10.3, stored.InitialTotal)

	res = run(t, "", "receipts", "save", "--id", "r1", "--tax", "2")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Saved receipt r1 (total 14.04)")

	updated, ok := b.receipt("r1")
	require.True(t, ok)
	assert.Equal(t, 2.0, updated.Tax)
	assert.Equal(t, 10.5, updated.InitialTotal, "unset flags keep their values")
	assert.Equal(t, "Taxi", updated.Description)
	assert.Zero(t, b.singleGets.Load(), "stored receipts are found through the daily listing")
}

func TestReceiptSaveUnknownID(t *testing.T) {
	b, srv := newFakeBackend(t)
	setupEnv(t, srv)
	login(t)

	res := run(t, "", "receipts", "save", "--id", "nope", "--tip", "2")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "not found")
	_, ok := b.receipt("nope")
	assert.False(t, ok)
}

func TestReceiptsExportDryRun(t *testing.T) {
	_, srv := newFakeBackend(t)
	setupEnv(t, srv)
	login(t)

	res := run(t, "", "receipts", "export", "--sheet", "Q1", "--group", "day", "--dry-run")
	require.Equal(t, 0, res.code, res.stderr)
	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "Group"))
	assert.Contains(t, lines[1], "Taxi")
	assert.True(t, strings.HasPrefix(lines[3], "Total"))
	assert.Contains(t, lines[3], "13.71")
}

func TestReceiptsExportNeedsSpreadsheet(t *testing.T) {
	_, srv := newFakeBackend(t)
	setupEnv(t, srv)
	login(t)

	res := run(t, "", "receipts", "export", "--sheet", "Q1")
	assert.Equal(t, 2, res.code)
	assert.Contains(t, res.stderr, "GOOGLE_SPREADSHEET_ID is not set")
}

func TestAccountSetTypeAndDelete(t *testing.T) {
	b, srv := newFakeBackend(t)
	setupEnv(t, srv)
	login(t)

	res := run(t, "", "account", "set-type", "paid")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Account is now paid")
	b.mu.Lock()
	assert.Equal(t, "paid", b.accountType)
	b.mu.Unlock()

	res = run(t, "", "whoami", "-o", "json")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, `"accountType": "paid"`)

	res = run(t, "", "account", "delete", "--yes")
	require.Equal(t, 0, res.code, res.stderr)
	b.mu.Lock()
	assert.True(t, b.deleted)
	b.mu.Unlock()

	res = run(t, "", "whoami")
	assert.Equal(t, 1, res.code)
}

func TestParseDate(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	got, err := parseDate("now", now)
	require.NoError(t, err)
	assert.True(t, got.Equal(core.NewTimestamp(now)))

	got, err = parseDate("2024-03-15T09:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15T09:00:00Z", got.UTC().Format(time.RFC3339))

	got, err = parseDate("2024-03-15", now)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", got.In(time.Local).Format(dateLayout))

	_, err = parseDate("15/03/2024", now)
	assert.ErrorIs(t, err, errUsage)
}

func TestFormatEvent(t *testing.T) {
	msg := events.NewRecordChanged("receipts", "r1", "update", "u1")
	msg.Timestamp = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	msg.Changes = []string{"tax", "tip"}
	line := formatEvent(msg)
	assert.Equal(t, "2024-03-15T09:00:00Z update receipts r1 (tax, tip)", line)
}

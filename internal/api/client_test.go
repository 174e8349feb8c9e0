package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biztrack/internal/core"
	"biztrack/internal/grouping"
)

func newTestBackend(t *testing.T, mux *http.ServeMux, opts ...Option) *Backend {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, opts...)
	require.NoError(t, err)
	return NewBackend(c)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveRequest(resource, method string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, resource+" "+method+" "+http.StatusText(status))
}

func TestNewRejectsInvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"ftp://example.com", "://nope", "http://"} {
		_, err := New(raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}

	c, err := New("")
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
}

func TestLoginTokenIsSentUnmodified(t *testing.T) {
	const token = "eyJhbGciOi.payload sig"
	var gotAuth []string
	var mu sync.Mutex

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "jo", creds["username"])
		assert.Equal(t, "secret", creds["password"])
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, map[string]string{"token": token, "userId": "u1", "accountType": "free"})
	})
	mux.HandleFunc("GET /clients/user/u1", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		mu.Unlock()
		assert.NotEmpty(t, r.Header.Get(HeaderRequestID))
		writeJSON(w, []core.Client{{ID: "c1", Name: "Acme"}})
	})
	mux.HandleFunc("GET /receipts/user/u1/daily", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		mu.Unlock()
		writeJSON(w, map[string]any{})
	})
	b := newTestBackend(t, mux)
	ctx := context.Background()

	res, err := b.Users.Login(ctx, "jo", "secret")
	require.NoError(t, err)
	assert.Equal(t, LoginResult{Token: token, UserID: "u1", AccountType: core.AccountFree}, res)

	clients, err := b.Clients.List(ctx, res.UserID, res.Token)
	require.NoError(t, err)
	assert.Len(t, clients, 1)
	_, err = b.Receipts.ListGrouped(ctx, res.UserID, res.Token, grouping.Day)
	require.NoError(t, err)

	assert.Equal(t, []string{token, token}, gotAuth)
}

func TestLoginFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["username"] == "partial" {
			writeJSON(w, map[string]string{"token": "t"})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	})
	b := newTestBackend(t, mux)

	_, err := b.Users.Login(context.Background(), "jo", "wrong")
	assert.ErrorIs(t, err, ErrInvalidResponse)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	_, err = b.Users.Login(context.Background(), "partial", "x")
	assert.ErrorIs(t, err, ErrDecoding)
}

func TestListGroupedBranchesOnNesting(t *testing.T) {
	start := time.Date(2024, 3, 15, 9, 30, 0, 250_000_000, time.UTC)
	job := core.Job{ID: "j1", Start: core.NewTimestamp(start), ClientID: "c1", Project: "Site"}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /jobs/user/u1/daily", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"03/15/2024": map[string]any{"jobs": []core.Job{job}}})
	})
	mux.HandleFunc("GET /jobs/user/u1/clients", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"c1": []core.Job{job}})
	})
	mux.HandleFunc("GET /triplog/user/u1/monthly", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"03/2024": map[string]any{"tripLogs": []core.TripLog{{ID: "t1", Start: 100, End: 142.2}}}})
	})
	mux.HandleFunc("GET /receipts/user/u1/yearly", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"2024": []core.Receipt{{ID: "r1"}}})
	})
	b := newTestBackend(t, mux)
	ctx := context.Background()

	daily, err := b.Jobs.ListGrouped(ctx, "u1", "tok", grouping.Day)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, "03/15/2024", daily[0].Key)
	require.Len(t, daily[0].Records, 1)
	assert.True(t, daily[0].Records[0].Start.Equal(job.Start))

	byClient, err := b.Jobs.ListGrouped(ctx, "u1", "tok", grouping.ByClient)
	require.NoError(t, err)
	require.Len(t, byClient, 1)
	assert.Equal(t, "c1", byClient[0].Key)
	assert.Equal(t, "j1", byClient[0].Records[0].ID)

	trips, err := b.TripLogs.ListGrouped(ctx, "u1", "tok", grouping.Month)
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, "42.2", trips[0].Records[0].Distance().String())

	receipts, err := b.Receipts.ListGrouped(ctx, "u1", "tok", grouping.Year)
	require.NoError(t, err)
	assert.Equal(t, "r1", receipts[0].Records[0].ID)
}

func TestListGroupedRejectsInvalidFilter(t *testing.T) {
	b := newTestBackend(t, http.NewServeMux())

	_, err := b.Receipts.ListGrouped(context.Background(), "u1", "tok", grouping.Filter(7))
	assert.ErrorIs(t, err, grouping.ErrInvalidFilter)
}

func TestListFailuresCollapseToDataError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /categories/user/u1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /vehicles/user/u1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"not":"a list"}`)
	})
	mux.HandleFunc("GET /receipts/user/u1/category", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"cat1": "oops"}`)
	})
	b := newTestBackend(t, mux)
	ctx := context.Background()

	_, err := b.Categories.List(ctx, "u1", "tok")
	assert.ErrorIs(t, err, ErrData)
	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.Equal(t, StateServerError, Classify(err))

	_, err = b.Vehicles.List(ctx, "u1", "tok")
	assert.ErrorIs(t, err, ErrData)
	assert.ErrorIs(t, err, ErrDecoding)

	_, err = b.Receipts.ListGrouped(ctx, "u1", "tok", grouping.Dimension)
	assert.ErrorIs(t, err, ErrData)
	assert.ErrorIs(t, err, ErrDecoding)
}

func TestTransportFailureIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.NewServeMux())
	c, err := New(srv.URL)
	require.NoError(t, err)
	srv.Close()

	_, err = NewBackend(c).Clients.List(context.Background(), "u1", "tok")
	assert.ErrorIs(t, err, ErrData)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, StateOffline, Classify(err))
}

func TestGetMapsNon200ToNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /clients/c1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, core.Client{ID: "c1", Name: "Acme"})
	})
	mux.HandleFunc("GET /clients/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /users/u1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, core.User{ID: "u1", Username: "jo", AccountType: core.AccountPaid})
	})
	b := newTestBackend(t, mux)
	ctx := context.Background()

	c, err := b.Clients.Get(ctx, "c1", "tok")
	require.NoError(t, err)
	assert.Equal(t, "Acme", c.Name)

	_, err = b.Clients.Get(ctx, "missing", "tok")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, StateNoData, Classify(err))

	_, err = b.Clients.Get(ctx, "", "tok")
	assert.ErrorIs(t, err, ErrInvalidURL)

	u, err := b.Users.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, core.AccountPaid, u.AccountType)

	_, err = b.Users.Get(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateAndUpdateContract(t *testing.T) {
	var paths []string
	var mu sync.Mutex
	record := func(r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		paths = append(paths, r.Method+" "+r.URL.Path)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /receipts", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
	})
	mux.HandleFunc("PUT /receipts/{id}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		var rec core.Receipt
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
		rec.Description = "from server"
		writeJSON(w, rec)
	})
	mux.HandleFunc("PUT /clients", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, "updated")
	})
	mux.HandleFunc("POST /jobs", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.WriteHeader(http.StatusBadRequest)
	})
	b := newTestBackend(t, mux)
	ctx := context.Background()

	sent := core.Receipt{ID: "r1", Category: "cat1", ClientID: "c1", InitialTotal: 10}
	got, err := b.Receipts.Create(ctx, sent, "tok")
	require.NoError(t, err)
	assert.Equal(t, sent, got)

	got, err = b.Receipts.Update(ctx, sent, "tok")
	require.NoError(t, err)
	assert.Equal(t, "from server", got.Description)

	client := core.Client{ID: "c1", Name: "Acme"}
	gotClient, err := b.Clients.Update(ctx, client, "tok")
	require.NoError(t, err)
	assert.Equal(t, client, gotClient)

	_, err = b.Jobs.Create(ctx, core.Job{ID: "j1"}, "tok")
	assert.ErrorIs(t, err, ErrInvalidResponse)

	_, err = b.Receipts.Update(ctx, core.Receipt{}, "tok")
	assert.ErrorIs(t, err, ErrInvalidURL)
	assert.ErrorIs(t, err, core.ErrEmptyID)

	assert.Equal(t, []string{"POST /receipts", "PUT /receipts/r1", "PUT /clients", "POST /jobs"}, paths)
}

func TestReceiptTotalAndPDF(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /receipts/user/u1/total", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"total": 1234.56}`)
	})
	mux.HandleFunc("GET /receipts/user/u1/category/pdf", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/pdf", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF-1.4")
	})
	b := newTestBackend(t, mux)
	ctx := context.Background()

	total, err := b.Receipts.Total(ctx, "u1", "tok")
	require.NoError(t, err)
	assert.Equal(t, "1234.56", total.StringFixed(2))

	pdf, err := b.Receipts.CategoryPDF(ctx, "u1", "tok")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(pdf))

	_, err = b.Receipts.CategoryPDF(ctx, "u2", "tok")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestSignUp(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /users", func(w http.ResponseWriter, r *http.Request) {
		var u core.User
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&u))
		if u.Username == "taken" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		assert.NotEmpty(t, u.ID)
		assert.Equal(t, core.AccountFree, u.AccountType)
		writeJSON(w, u)
	})
	b := newTestBackend(t, mux)
	ctx := context.Background()

	u, err := b.Users.SignUp(ctx, core.User{Username: "new", Name: "Jo"})
	require.NoError(t, err)
	assert.Equal(t, "new", u.Username)

	_, err = b.Users.SignUp(ctx, core.User{Username: "taken"})
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestAccountEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /users/u1/paid", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.Header.Get("Authorization"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "paid", body["accountType"])
		writeJSON(w, "Account type updated")
	})
	mux.HandleFunc("DELETE /users/u1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	b := newTestBackend(t, mux)
	ctx := context.Background()

	msg, err := b.Users.UpdateAccountType(ctx, "u1", "tok", core.AccountPaid)
	require.NoError(t, err)
	assert.Equal(t, "Account type updated", msg)

	status, err := b.Users.Delete(ctx, "u1", "tok")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestValidateReceipt(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /validateReceipt", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch body["receiptData"] {
		case "b2s=": // "ok"
			writeJSON(w, map[string]any{"success": true, "expiry_date": "2025-01-31T00:00:00Z"})
		case "bm9leHA=": // "noexp"
			writeJSON(w, map[string]any{"success": true})
		default:
			writeJSON(w, map[string]any{"success": false})
		}
	})
	b := newTestBackend(t, mux)
	ctx := context.Background()

	exp, err := b.Users.ValidateReceipt(ctx, []byte("ok"))
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.True(t, exp.Equal(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)))

	exp, err = b.Users.ValidateReceipt(ctx, []byte("noexp"))
	require.NoError(t, err)
	assert.Nil(t, exp)

	_, err = b.Users.ValidateReceipt(ctx, []byte("bad"))
	assert.ErrorIs(t, err, ErrReceiptRejected)
}

func TestObserverSeesEveryRequest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /vehicles/user/u1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []core.Vehicle{})
	})
	obs := &recordingObserver{}
	b := newTestBackend(t, mux, WithMetrics(obs), WithTimeout(time.Second), WithUserAgent("test"))

	_, err := b.Vehicles.List(context.Background(), "u1", "tok")
	require.NoError(t, err)
	_, err = b.Vehicles.List(context.Background(), "u2", "tok")
	require.Error(t, err)

	assert.Equal(t, []string{"vehicles GET OK", "vehicles GET Not Found"}, obs.calls)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, StateOK, Classify(nil))
	assert.Equal(t, StateUnknown, Classify(errors.New("other")))
	assert.Equal(t, StateOffline, Classify(context.DeadlineExceeded))
	assert.Equal(t, StateNoData, Classify(&Error{Op: "GET /x", Kind: ErrInvalidResponse, Status: 404}))
	assert.Equal(t, StateServerError, Classify(&Error{Op: "GET /x", Kind: ErrInvalidResponse, Status: 502}))
	assert.Equal(t, "offline", StateOffline.String())
}

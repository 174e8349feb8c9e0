package watch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biztrack/internal/core"
	"biztrack/internal/events"
	"biztrack/internal/metrics"
	"biztrack/internal/session"
)

func newTestServer(t *testing.T, status StatusFunc) (*Server, *httptest.Server) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.EventPublished("receipts", nil)

	s := NewServer(Options{Gatherer: reg, Status: status, RequestsPerMinute: 100})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func TestHealthz(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Empty(t, resp.Header.Get("Strict-Transport-Security"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `biztrack_events_published_total{entity="receipts",outcome="ok"} 1`)
}

func TestStatus(t *testing.T) {
	updated := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		status   StatusFunc
		wantCode int
	}{
		{
			name: "signed in",
			status: func(context.Context) (session.Session, error) {
				return session.Session{UserID: "u1", Username: "ana", AccountType: core.AccountPaid, UpdatedAt: updated}, nil
			},
			wantCode: http.StatusOK,
		},
		{
			name:     "signed out",
			status:   func(context.Context) (session.Session, error) { return session.Session{}, session.ErrNoSession },
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "store failure",
			status:   func(context.Context) (session.Session, error) { return session.Session{}, errors.New("disk") },
			wantCode: http.StatusInternalServerError,
		},
		{name: "no status source", wantCode: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, srv := newTestServer(t, tt.status)

			resp, err := http.Get(srv.URL + "/status")
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantCode, resp.StatusCode)

			if tt.wantCode == http.StatusOK {
				var st Status
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
				assert.Equal(t, "u1", st.UserID)
				assert.Equal(t, "paid", st.AccountType)
				assert.True(t, st.UpdatedAt.Equal(updated))
			}
		})
	}
}

func TestEventsStream(t *testing.T) {
	s, srv := newTestServer(t, nil)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.Hub().Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	s.Hub().Broadcast(events.NewRecordChanged("receipts", "r1", "update", "u1"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got events.RecordChanged
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "receipts", got.Entity)
	assert.Equal(t, "r1", got.ID)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return s.Hub().Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s := NewServer(Options{Gatherer: prometheus.NewRegistry()})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

package api

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biztrack/internal/core"
)

func TestFindSearchesDailyGrouping(t *testing.T) {
	var singleRecordCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /receipts/{id}", func(w http.ResponseWriter, r *http.Request) {
		singleRecordCalls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("GET /receipts/user/u1/daily", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string][]core.Receipt{
			"03/15/2024": {{ID: "r1", Description: "Taxi"}},
			"03/16/2024": {{ID: "r2", Description: "Coffee"}},
		})
	})
	mux.HandleFunc("GET /jobs/user/u1/daily", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]map[string][]core.Job{
			"2024-03-15": {"jobs": {{ID: "j1", Project: "Site"}}},
		})
	})
	b := newTestBackend(t, mux)
	ctx := context.Background()

	rec, err := b.Receipts.Find(ctx, "u1", "tok", "r2")
	require.NoError(t, err)
	assert.Equal(t, "Coffee", rec.Description)

	job, err := b.Jobs.Find(ctx, "u1", "tok", "j1")
	require.NoError(t, err)
	assert.Equal(t, "Site", job.Project)

	_, err = b.Receipts.Find(ctx, "u1", "tok", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, StateNoData, Classify(err))

	_, err = b.Receipts.Find(ctx, "u1", "tok", "")
	assert.ErrorIs(t, err, ErrInvalidURL)

	assert.Zero(t, singleRecordCalls.Load(), "grouped collections have no single-record route")
}

func TestFindSearchesFlatList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /clients/user/u1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []core.Client{{ID: "c1", Name: "Acme"}, {ID: "c2", Name: "Globex"}})
	})
	b := newTestBackend(t, mux)

	c, err := b.Clients.Find(context.Background(), "u1", "tok", "c2")
	require.NoError(t, err)
	assert.Equal(t, "Globex", c.Name)
}

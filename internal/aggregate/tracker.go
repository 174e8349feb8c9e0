package aggregate

import (
	"context"
	"errors"
	"sync"
)

// ErrStale is returned for a fetch that a newer fetch superseded.
var ErrStale = errors.New("stale fetch result")

// Tracker hands out fetch generations. Starting a generation cancels the
// previous one, and only the latest generation may deliver.
type Tracker struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// Begin starts a new generation and returns its context.
func (t *Tracker) Begin(ctx context.Context) (context.Context, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	gctx, cancel := context.WithCancel(ctx)
	t.gen++
	t.cancel = cancel
	return gctx, t.gen
}

// Deliver reports whether gen is still the latest generation. Delivering
// the latest generation releases its context.
func (t *Tracker) Deliver(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.gen {
		return false
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	return true
}

// Current returns the latest generation handed out.
func (t *Tracker) Current() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

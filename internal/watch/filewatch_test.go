package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchFileReportsSettledChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "receipt.bin")
	other := filepath.Join(dir, "other.bin")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var changes atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- WatchFile(ctx, path, nil, func() { changes.Add(1) })
	}()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(other, []byte("x"), 0o600))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("v2"), 0o600))
	}

	assert.Eventually(t, func() bool { return changes.Load() == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(2 * settle)
	assert.Equal(t, int32(1), changes.Load(), "a burst of writes is one change")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WatchFile did not return after cancel")
	}
}

func TestWatchFileMissingDirectory(t *testing.T) {
	err := WatchFile(context.Background(), filepath.Join(t.TempDir(), "nope", "r.bin"), nil, func() {})
	assert.Error(t, err)
}

package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"biztrack/internal/log"
)

// settle is how long a file must stay quiet before a change is reported.
const settle = 300 * time.Millisecond

// WatchFile calls onChange once a burst of writes to path has settled. It
// watches the parent directory so editors that replace the file are seen.
// It returns when ctx is done.
func WatchFile(ctx context.Context, path string, logger *log.Logger, onChange func()) error {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentWatch)

	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	logger.InfoContext(ctx, "Watching file", "path", path)

	var pending time.Time
	ticker := time.NewTicker(settle / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = time.Now()
			}
		case <-ticker.C:
			if !pending.IsZero() && time.Since(pending) > settle {
				pending = time.Time{}
				onChange()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.WarnContext(ctx, "File watch error", log.FieldError, err.Error())
		}
	}
}

package session

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 100 * time.Millisecond

// Watch observes the session database at dbPath for writes made by any
// process (including this one) and calls cb once per burst of changes,
// until ctx is cancelled. SQLite writes land in sidecar files (-wal,
// -journal), so the parent directory is watched and events are filtered by
// the database file name prefix.
func Watch(ctx context.Context, dbPath string, logger *slog.Logger, cb func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return err
	}
	dir, base := filepath.Split(abs)
	if err := w.Add(dir); err != nil {
		return err
	}

	logger.Info("session watcher: started", slog.String("path", abs))

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("session watcher: stopped")
			return nil

		case <-fire:
			fire = nil
			if cb != nil {
				cb()
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), base) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("session watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// Tracker remembers the last observed identity so that Watch callbacks can
// tell a real login/logout apart from an unrelated write. Writes made by this
// process are fed in through Record so they are not mistaken for another
// window's.
type Tracker struct {
	store Store

	mu   sync.Mutex
	last string
}

// NewTracker snapshots the current token of store.
func NewTracker(ctx context.Context, store Store) *Tracker {
	tok, _ := store.Token(ctx)
	return &Tracker{store: store, last: tok}
}

// Change describes a transition observed by Tracker.
type Change int

const (
	Unchanged Change = iota
	LoggedIn
	LoggedOut
	Switched
)

// Record sets the identity this process just wrote, so the next Observe
// compares against it. It matches the SQLiteStore.OnWrite hook signature.
func (t *Tracker) Record(token string) {
	t.mu.Lock()
	t.last = token
	t.mu.Unlock()
}

// Observe re-reads the store and classifies the transition since the last
// call or Record.
func (t *Tracker) Observe(ctx context.Context) Change {
	tok, _ := t.store.Token(ctx)
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.last
	t.last = tok
	switch {
	case prev == tok:
		return Unchanged
	case prev == "":
		return LoggedIn
	case tok == "":
		return LoggedOut
	default:
		return Switched
	}
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/tripwire/internal/compiler"
)

const (
	inboxProcessedDir = "processed"
	inboxFailedDir    = "failed"

	// DefaultInboxSettle is how long a document must stay unchanged before
	// it is picked up.
	DefaultInboxSettle = 250 * time.Millisecond
)

// InboxSubmitFunc stores the schedules compiled from one document.
type InboxSubmitFunc func(ctx context.Context, path string, entries []compiler.Entry) error

// Inbox watches a directory for schedule documents. Each document that
// stays unchanged for the settle interval is compiled and submitted, then
// moved to processed/ on success or failed/ otherwise.
type Inbox struct {
	dir     string
	settle  time.Duration
	submit  InboxSubmitFunc
	watcher *fsnotify.Watcher

	// path -> last write seen; owned by Run
	pending map[string]time.Time
}

// NewInbox creates the inbox directory layout and starts watching dir.
func NewInbox(dir string, settle time.Duration, submit InboxSubmitFunc) (*Inbox, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	for _, sub := range []string{inboxProcessedDir, inboxFailedDir} {
		if err := os.MkdirAll(filepath.Join(absDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create inbox: %w", err)
		}
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(absDir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch inbox: %w", err)
	}
	if settle <= 0 {
		settle = DefaultInboxSettle
	}
	return &Inbox{
		dir:     absDir,
		settle:  settle,
		submit:  submit,
		watcher: w,
		pending: make(map[string]time.Time),
	}, nil
}

// Run picks up documents already in the inbox, then serves watch events
// until ctx is cancelled. It closes the watcher on return.
func (in *Inbox) Run(ctx context.Context) error {
	defer in.watcher.Close()

	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			in.track(filepath.Join(in.dir, e.Name()), time.Time{})
		}
	}

	ticker := time.NewTicker(in.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-in.watcher.Events:
			if !ok {
				return nil
			}
			// Only track writes and creates
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			in.track(ev.Name, time.Now())

		case err, ok := <-in.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("inbox watch error", "dir", in.dir, "error", err)

		case now := <-ticker.C:
			in.flushStable(ctx, now)
		}
	}
}

func (in *Inbox) track(path string, seen time.Time) {
	if !isDocument(path) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	in.pending[path] = seen
}

// flushStable processes documents that have not changed for the settle
// interval.
func (in *Inbox) flushStable(ctx context.Context, now time.Time) {
	threshold := now.Add(-in.settle)
	for path, seen := range in.pending {
		if seen.After(threshold) {
			continue
		}
		delete(in.pending, path)
		in.process(ctx, path)
	}
}

func (in *Inbox) process(ctx context.Context, path string) {
	entries, err := compiler.LoadFile(path)
	if err == nil {
		err = in.submit(ctx, path, entries)
	}
	if err != nil {
		slog.Warn("inbox document rejected", "path", path, "error", err)
		in.move(path, inboxFailedDir)
		return
	}
	slog.Info("inbox document scheduled", "path", path, "schedules", len(entries))
	in.move(path, inboxProcessedDir)
}

func (in *Inbox) move(path, sub string) {
	dst := filepath.Join(in.dir, sub, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		slog.Error("inbox move failed", "path", path, "to", dst, "error", err)
	}
}

func isDocument(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml", ".json", ".cue":
		return true
	}
	return false
}

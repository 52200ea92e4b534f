// Package watch notifies observers when the manifest file changes,
// debounced the same way the pack's fsnotify-based session watchers do
// (spec §4.14). A polling fallback covers filesystems where fsnotify
// cannot establish a watch — correctness never depends on which path
// fires, only on eventual delivery.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDelay = 100 * time.Millisecond

// PollInterval is the fallback polling period when fsnotify setup fails.
const PollInterval = 2 * time.Second

// ManifestWatcher emits a notification each time the watched manifest
// file's content changes, debounced to collapse the write-to-temp +
// rename pair (manifest.Store.writeAtomic) into a single event.
type ManifestWatcher struct {
	path   string
	events chan struct{}
	cancel context.CancelFunc
}

// Watch starts watching path (the manifest.json file) and returns a
// ManifestWatcher whose Events channel receives a value after each
// debounced change. The channel is closed when ctx is canceled or Close is
// called.
func Watch(ctx context.Context, path string) (*ManifestWatcher, error) {
	ctx, cancel := context.WithCancel(ctx)
	w := &ManifestWatcher{path: path, events: make(chan struct{}, 1), cancel: cancel}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		go w.pollLoop(ctx)
		return w, nil
	}
	// Watch the containing directory rather than the file itself: the
	// manifest is replaced via rename (manifest.Store.writeAtomic), which
	// invalidates a watch held on the old inode directly.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		go w.pollLoop(ctx)
		return w, nil
	}

	go w.fsnotifyLoop(ctx, fw)
	return w, nil
}

// Events returns the channel observers should range over.
func (w *ManifestWatcher) Events() <-chan struct{} { return w.events }

// Close stops the watcher.
func (w *ManifestWatcher) Close() { w.cancel() }

func (w *ManifestWatcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}

func (w *ManifestWatcher) fsnotifyLoop(ctx context.Context, fw *fsnotify.Watcher) {
	defer fw.Close()
	defer close(w.events)

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.notify)
		case _, ok := <-fw.Errors:
			if !ok {
				return
			}
		}
	}
}

// pollLoop is the fallback path: stat the manifest on an interval and
// notify whenever its modification time advances.
func (w *ManifestWatcher) pollLoop(ctx context.Context) {
	defer close(w.events)

	var lastModTime time.Time
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			if info.ModTime().After(lastModTime) {
				lastModTime = info.ModTime()
				w.notify()
			}
		}
	}
}

package manifest

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/xcawolfe-amzn/ppg/internal/apperr"
	"github.com/xcawolfe-amzn/ppg/internal/ids"
)

const (
	lockStaleAfter  = 10 * time.Second
	lockMaxRetries  = 5
	lockBackoffMin  = 100 * time.Millisecond
	lockBackoffMax  = 1 * time.Second
	lockPollInterval = 20 * time.Millisecond
)

// Store serializes all structural mutations to a project's manifest file
// under an exclusive sidecar file lock (see spec §4.3). Reads outside of
// Update are permitted and lock-free; callers must tolerate eventual
// consistency when reading without the lock.
type Store struct {
	layout ids.Layout
}

// NewStore returns a manifest store rooted at projectRoot.
func NewStore(projectRoot string) *Store {
	return &Store{layout: ids.NewLayout(projectRoot)}
}

// Mutate is invoked with the current manifest state under lock. It may
// mutate m in place, or return a replacement manifest to be persisted
// instead. Returning a non-nil error aborts the write; the prior on-disk
// state is left untouched.
type Mutate func(m *Manifest) (*Manifest, error)

// Read loads the manifest without acquiring the lock. Safe for observers
// that tolerate a torn-free but possibly stale snapshot.
func (s *Store) Read() (*Manifest, error) {
	data, err := os.ReadFile(s.layout.ManifestPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.CodeNotInitialized, "manifest not found", nil)
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperr.New(apperr.CodeNotInitialized, "manifest is not valid JSON: "+err.Error(), nil)
	}
	return &m, nil
}

// Update acquires the exclusive manifest lock, loads the current state
// (creating an empty one if uninitialized is permitted by the caller via
// allowMissing), invokes mutate, and atomically persists the result before
// releasing the lock.
func (s *Store) Update(allowMissing bool, mutate Mutate) (*Manifest, error) {
	unlock, err := s.acquireLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	m, err := s.Read()
	if err != nil {
		if !(allowMissing && apperr.Is(err, apperr.CodeNotInitialized)) {
			return nil, err
		}
		m = New(s.layout.ProjectRoot, filepath.Base(s.layout.ProjectRoot))
	}

	next, err := mutate(m)
	if err != nil {
		return nil, err
	}
	if next == nil {
		next = m
	}
	next.UpdatedAt = time.Now().UTC()

	if err := s.writeAtomic(next); err != nil {
		return nil, err
	}
	return next, nil
}

// acquireLock takes the sidecar flock with bounded exponential-backoff
// retries, treating a lock file whose own mtime is older than
// lockStaleAfter as abandoned by a dead holder. Staleness is judged by
// the lock file's age, not the caller's own elapsed retry time, so an
// acquirer arriving long after a crash still reclaims it on its first
// attempt rather than only after retrying for lockStaleAfter itself.
func (s *Store) acquireLock() (func(), error) {
	lockPath := s.layout.ManifestLockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating manifest lock dir: %w", err)
	}

	fl := flock.New(lockPath)
	backoff := lockBackoffMin

	for attempt := 0; attempt <= lockMaxRetries; attempt++ {
		ok, err := fl.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquiring manifest lock: %w", err)
		}
		if ok {
			return func() { _ = fl.Unlock() }, nil
		}
		if lockIsStale(lockPath) {
			// The holder has exceeded the staleness window; assume it is
			// dead, remove the lock file, and retry.
			_ = forceBreakLock(lockPath)
			continue
		}
		if attempt == lockMaxRetries {
			break
		}
		jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
		time.Sleep(backoff + jitter)
		backoff *= 2
		if backoff > lockBackoffMax {
			backoff = lockBackoffMax
		}
	}
	return nil, apperr.New(apperr.CodeManifestLock, "could not acquire manifest lock", nil)
}

// lockIsStale reports whether the lock file at path was last modified
// more than lockStaleAfter ago. A missing lock file is not stale — it is
// simply gone, and the next TryLock will succeed normally.
func lockIsStale(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > lockStaleAfter
}

// forceBreakLock removes the lock file so a subsequent TryLock can
// succeed; used only once the staleness window has elapsed.
func forceBreakLock(path string) error {
	return os.Remove(path)
}

// writeAtomic serializes m to JSON and replaces the manifest file via
// write-to-temp, fsync, rename, guaranteeing readers never observe a torn
// write.
func (s *Store) writeAtomic(m *Manifest) error {
	path := s.layout.ManifestPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp manifest: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsyncing temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp manifest: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming manifest into place: %w", err)
	}
	return nil
}

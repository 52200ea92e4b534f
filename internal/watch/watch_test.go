package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchNotifiesOnRenameReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := Watch(ctx, path)
	require.NoError(t, err)
	defer w.Close()

	tmp := filepath.Join(dir, ".manifest-tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(`{"version":2}`), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case _, ok := <-w.Events():
		require.True(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for manifest change notification")
	}
}

func TestWatchClosesEventsOnClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	w, err := Watch(context.Background(), path)
	require.NoError(t, err)
	w.Close()

	select {
	case _, ok := <-w.Events():
		require.False(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for events channel to close")
	}
}

package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"shadow/internal/change"
	"shadow/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitFor returns the first pass over path whose first change carries content.
func waitFor(t *testing.T, results <-chan Result, path, content string) Result {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case r := <-results:
			if r.Path == path && r.Err == nil && len(r.Changes) > 0 && r.Changes[0].Content == content {
				return r
			}
		case <-deadline:
			t.Fatalf("no detection for %s", path)
		}
	}
}

func TestWatcher(t *testing.T) {
	root := t.TempDir()
	tracked := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(tracked, []byte("a\nb\nc"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "untracked.txt"), []byte("u"), 0644))

	e, err := engine.New(root)
	require.NoError(t, err)
	defer e.Close()
	_, err = e.TakeSnapshot("a.txt")
	require.NoError(t, err)

	results := make(chan Result, 16)
	w, err := New(root, e, 20*time.Millisecond, func(r Result) { results <- r }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	t.Run("write triggers detection", func(t *testing.T) {
		require.NoError(t, os.WriteFile(tracked, []byte("a\nX\nc"), 0644))

		r := waitFor(t, results, "a.txt", "X")
		require.Len(t, r.Changes, 1)
		assert.Equal(t, change.Modification, r.Changes[0].Type)
		assert.Equal(t, "X", r.Changes[0].Content)
	})

	t.Run("untracked files are ignored", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(root, "untracked.txt"), []byte("v"), 0644))
		require.NoError(t, os.WriteFile(tracked, []byte("a\nY\nc"), 0644))

		r := waitFor(t, results, "a.txt", "Y")
		assert.Equal(t, change.Modification, r.Changes[0].Type)
		assert.NotContains(t, e.GetTrackedFiles(), "untracked.txt")
	})

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.NoError(t, w.Close())
}

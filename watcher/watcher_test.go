package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

const testDebounce = 50 * time.Millisecond

func startWatcher(t *testing.T, root string, rebuild RebuildFunc) *Watcher {
	t.Helper()
	w, err := NewWatcher(root, testDebounce, rebuild, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { w.Stop() })
	return w
}

func waitEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case event := <-w.Events():
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for event")
		return Event{}
	}
}

func TestWatcher(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "articles", "foo"), 0755))

	var rebuilds atomic.Int32
	w := startWatcher(t, root, func(ctx context.Context) error {
		rebuilds.Add(1)
		return nil
	})

	testFile := filepath.Join(root, "articles", "foo", "index.md")
	require.NoError(t, os.WriteFile(testFile, []byte("# Foo"), 0644))

	// Could be Create or Write depending on OS
	event := waitEvent(t, w)
	assert.Contains(t, []EventType{EventCreated, EventModified}, event.Type)
	assert.Equal(t, testFile, event.FilePath)

	assert.Eventually(t, func() bool { return rebuilds.Load() >= 1 }, time.Second, 10*time.Millisecond)
}

func TestWatcherDebouncesWrites(t *testing.T) {
	root := t.TempDir()

	var rebuilds atomic.Int32
	w := startWatcher(t, root, func(ctx context.Context) error {
		rebuilds.Add(1)
		return nil
	})

	testFile := filepath.Join(root, "index.md")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(testFile, []byte{byte('a' + i)}, 0644))
	}

	waitEvent(t, w)
	time.Sleep(4 * testDebounce)
	assert.Equal(t, int32(1), rebuilds.Load())
}

func TestWatcherIgnoresHiddenFiles(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root, nil)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".index.md.swp"), []byte("x"), 0644))

	select {
	case event := <-w.Events():
		t.Errorf("Should not receive event for hidden file, got: %v", event)
	case <-time.After(300 * time.Millisecond):
		// Expected - no event received
	}
}

func TestWatcherFollowsNewFolders(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root, nil)

	dir := filepath.Join(root, "articles", "bar")
	require.NoError(t, os.MkdirAll(dir, 0755))
	waitEvent(t, w)

	// give the watcher time to register the new folders
	time.Sleep(100 * time.Millisecond)

	testFile := filepath.Join(dir, "index.md")
	require.NoError(t, os.WriteFile(testFile, []byte("# Bar"), 0644))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-w.Events():
			if event.FilePath == testFile {
				return
			}
		case <-deadline:
			t.Fatal("Timeout waiting for event in new folder")
		}
	}
}

func TestWatcherOneRebuildPerBurst(t *testing.T) {
	root := t.TempDir()

	var rebuilds atomic.Int32
	startWatcher(t, root, func(ctx context.Context) error {
		rebuilds.Add(1)
		return nil
	})

	for _, name := range []string{"a.md", "b.md", "c.md", "d.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(name), 0644))
	}

	assert.Eventually(t, func() bool { return rebuilds.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(4 * testDebounce)
	assert.Equal(t, int32(1), rebuilds.Load())
}

func TestWatcherFoldsChangesDuringRebuild(t *testing.T) {
	root := t.TempDir()

	var running, overlaps, rebuilds atomic.Int32
	started := make(chan struct{}, 10)
	startWatcher(t, root, func(ctx context.Context) error {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		rebuilds.Add(1)
		started <- struct{}{}
		time.Sleep(6 * testDebounce)
		running.Add(-1)
		return nil
	})

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("a"), 0644))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for rebuild")
	}

	// both land while the first rebuild is still running
	for _, name := range []string{"b.md", "c.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(name), 0644))
	}

	assert.Eventually(t, func() bool { return rebuilds.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(10 * testDebounce)
	assert.Equal(t, int32(2), rebuilds.Load())
	assert.Zero(t, overlaps.Load())
}

func TestWatcherStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	w, err := NewWatcher(t.TempDir(), testDebounce, nil, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, w.Start())

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok)
}

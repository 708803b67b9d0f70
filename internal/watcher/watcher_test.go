package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskchain/taskchain/internal/eventbus"
)

func fsEvent(name string, write bool) fsnotify.Event {
	op := fsnotify.Chmod
	if write {
		op = fsnotify.Write
	}
	return fsnotify.Event{Name: name, Op: op}
}

func TestRelevant(t *testing.T) {
	assert.True(t, relevant(fsEvent("tasks/01ABC.yaml", true)))
	assert.False(t, relevant(fsEvent("tasks/01ABC.yaml.tmp", true)))
	assert.False(t, relevant(fsEvent("tasks/.01ABC.yaml.swp", true)))
	assert.False(t, relevant(fsEvent("notes.txt", true)))
	assert.False(t, relevant(fsEvent("tasks/01ABC.yaml", false)))
}

func TestWatcherPublishesSettledChanges(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tasks"), 0o755))

	bus := eventbus.New()
	_, ch := bus.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := New(dir, bus)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	// Give the watcher a moment to install its watches.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tasks", "01ABC.yaml"), []byte("id: 01ABC\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tasks", "01DEF.yaml"), []byte("id: 01DEF\n"), 0o644))

	select {
	case ev := <-ch:
		assert.Equal(t, eventbus.EventStorageChanged, ev.Type)
		assert.Contains(t, ev.Metadata["paths"], "tasks/01ABC.yaml")
	case <-time.After(3 * time.Second):
		t.Fatal("no storage change event")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

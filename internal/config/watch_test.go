package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/guardrail/internal/permission"
)

func TestWatcher_ReloadsOnSettingsWrite(t *testing.T) {
	workdir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(workdir, "xdg"))

	// Scope directories must exist before the watcher starts so their
	// inotify watches attach.
	path := ScopePath(permission.ScopeProject, workdir)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	reloaded := make(chan struct{}, 1)
	w, err := NewWatcher(workdir, func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(`{"permissions": {}}`), 0o644))

	select {
	case <-reloaded:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not fire after settings write")
	}
}

func TestWatcher_CoalescesWriteBursts(t *testing.T) {
	workdir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(workdir, "xdg"))

	path := ScopePath(permission.ScopeLocal, workdir)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	var reloads atomic.Int32
	w, err := NewWatcher(workdir, func() {
		reloads.Add(1)
	})
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte(`{"permissions": {}}`), 0o644))
	}

	time.Sleep(3 * debounceWindow)
	assert.Equal(t, int32(1), reloads.Load())
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	workdir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(workdir, "xdg"))

	dir := filepath.Join(workdir, projectDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	fired := make(chan struct{}, 1)
	w, err := NewWatcher(workdir, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	select {
	case <-fired:
		t.Fatal("watcher fired for an unrelated file")
	case <-time.After(2 * debounceWindow):
	}
}

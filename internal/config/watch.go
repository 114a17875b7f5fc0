package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/opencode-ai/guardrail/internal/logging"
	"github.com/opencode-ai/guardrail/internal/permission"
)

// debounceWindow coalesces editor write bursts into one reload.
const debounceWindow = 200 * time.Millisecond

// Watcher triggers a reload callback when a scope settings file changes
// on disk. The rule snapshot is only ever recomputed here, never
// live-read on the check path.
type Watcher struct {
	fs       *fsnotify.Watcher
	files    map[string]bool
	onReload func()
	done     chan struct{}
}

// NewWatcher watches the settings files for the workspace. onReload runs
// debounced on the watcher goroutine.
func NewWatcher(workdir string, onReload func()) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fs:       fs,
		files:    make(map[string]bool),
		onReload: onReload,
		done:     make(chan struct{}),
	}

	// Watch the containing directories: the files themselves may not
	// exist yet, and atomic saves replace them by rename.
	dirs := make(map[string]bool)
	for _, scope := range PersistentScopes() {
		path := ScopePath(scope, workdir)
		w.files[filepath.Clean(path)] = true
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := fs.Add(dir); err != nil {
			log := logging.Component("watcher")
			log.Debug().Str("dir", dir).Err(err).Msg("scope directory not watchable yet")
		}
	}

	go w.run()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fs.Close()
}

func (w *Watcher) run() {
	log := logging.Component("watcher")

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.files[filepath.Clean(ev.Name)] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			// A fresh timer per event: resetting one that already fired
			// would leave the stale fire in the old channel.
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounceWindow)
			timerC = timer.C

		case <-timerC:
			timer = nil
			timerC = nil
			w.onReload()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("settings watch error")
		}
	}
}

// Reloader reloads the store into the manager and announces the new
// snapshot, the standard onReload wiring.
func Reloader(store *TrustStore, manager *permission.Manager, announce func(allow, deny int)) func() {
	return func() {
		rules, err := store.Load()
		if err != nil {
			log := logging.Component("watcher")
			log.Error().Err(err).Msg("reload failed, keeping previous rules")
			return
		}
		manager.SetRules(rules)
		if announce != nil {
			announce(len(rules.Allow), len(rules.Deny))
		}
	}
}

package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fleetcore/agentfleet/internal/logging"
)

// Watcher reloads the subset of Config sections declared hot-reloadable
// whenever the backing YAML file changes on disk.
type Watcher struct {
	path     string
	mu       sync.RWMutex
	current  *Config
	fsw      *fsnotify.Watcher
	onReload func(*Config)
	stopCh   chan struct{}
}

// NewWatcher starts watching path for changes. onReload, if non-nil, is
// called with the newly merged config after every reload.
func NewWatcher(path string, initial *Config, onReload func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		current:  initial,
		fsw:      fsw,
		onReload: onReload,
		stopCh:   make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			debounce.Reset(150 * time.Millisecond)
		case <-debounce.C:
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.FleetWarn("config watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	fresh, err := Load(w.path)
	if err != nil {
		logging.FleetWarn("config reload failed, keeping previous config: %v", err)
		return
	}

	w.mu.Lock()
	merged := w.current
	merged.Skills = fresh.Skills
	merged.Planner = fresh.Planner
	merged.Coordination = fresh.Coordination
	merged.Reflex = fresh.Reflex
	merged.Logging = fresh.Logging
	merged.Loop = fresh.Loop
	w.current = merged
	w.mu.Unlock()

	logging.ReloadConfig()
	logging.Fleet("config hot-reloaded from %s", w.path)
	if w.onReload != nil {
		w.onReload(merged)
	}
}

// Current returns the most recently reloaded config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Stop terminates the watcher goroutine and closes the underlying fsnotify
// watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.fsw.Close()
}

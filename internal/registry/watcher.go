package registry

import (
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow batches bursts of filesystem events (editors often write a
// file several times in quick succession) into a single reload.
const debounceWindow = 250 * time.Millisecond

// Watcher reloads a Registry when markdown files change in its tier
// directories. It is optional; callers that poll can skip it entirely.
type Watcher struct {
	registry *Registry
	onReload func(ReloadReport)

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher starts watching the registry's tier directories. Directories
// that do not exist yet are skipped; onReload, if non-nil, receives the
// report of every triggered reload.
func NewWatcher(reg *Registry, onReload func(ReloadReport)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		registry: reg,
		onReload: onReload,
		watcher:  fsw,
		done:     make(chan struct{}),
	}

	for _, dir := range []string{reg.userDir, reg.projectDir} {
		if dir == "" {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			// A tier directory may not exist yet; keep watching the rest.
			log.Printf("[registry] not watching %s: %v", dir, err)
		}
	}

	go w.loop()

	return w, nil
}

// loop coalesces watch events and triggers debounced reloads.
func (w *Watcher) loop() {
	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !definitionEvent(event) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounceWindow)
			pending = timer.C
		case <-pending:
			timer = nil
			pending = nil
			report := w.registry.Reload()
			log.Printf("[registry] reloaded: %d loaded, %d removed, %d errors",
				len(report.Loaded), len(report.Removed), len(report.Errors))
			if w.onReload != nil {
				w.onReload(report)
			}
		case <-w.watcher.Errors:
			// Ignore errors, keep watching.
		}
	}
}

// definitionEvent reports whether a filesystem event could change the
// effective definition set.
func definitionEvent(event fsnotify.Event) bool {
	if strings.ToLower(filepath.Ext(event.Name)) != ".md" {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}

// Close stops the watch loop.
func (w *Watcher) Close() {
	close(w.done)
	w.watcher.Close()
}

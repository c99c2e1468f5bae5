// Package watch monitors calibration product files (flat fields, aspect
// database) and reports changes so long-running servers can log that a
// restart is needed to pick up refreshed products.
package watch

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event represents a calibration file change.
type Event struct {
	Path      string    `json:"path"`
	Operation string    `json:"operation"` // "created", "modified", "deleted", "renamed"
	Time      time.Time `json:"time"`
}

// CalibrationWatcher monitors the directories holding calibration products
// and reports changes to the watched files.
type CalibrationWatcher struct {
	watcher *fsnotify.Watcher
	Events  chan Event
	files   map[string]bool
	log     *slog.Logger
	done    chan bool
}

// New creates a watcher for the given calibration files. The parent
// directories are watched; events for unrelated files are dropped.
func New(paths []string, logger *slog.Logger) (*CalibrationWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	files := make(map[string]bool, len(paths))
	for _, p := range paths {
		files[filepath.Clean(p)] = true
	}

	cw := &CalibrationWatcher{
		watcher: watcher,
		Events:  make(chan Event, 16),
		files:   files,
		log:     logger,
		done:    make(chan bool),
	}
	return cw, nil
}

// Start begins monitoring the parent directories of the configured files.
func (cw *CalibrationWatcher) Start() error {
	dirs := make(map[string]bool)
	for p := range cw.files {
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := cw.watcher.Add(dir); err != nil {
			return err
		}
		cw.log.Info("watching calibration directory", "dir", dir)
	}

	go cw.processEvents()
	return nil
}

// Stop stops the watcher. The Events channel is closed once the event loop
// has drained.
func (cw *CalibrationWatcher) Stop() error {
	close(cw.done)
	return cw.watcher.Close()
}

func (cw *CalibrationWatcher) processEvents() {
	defer close(cw.Events)
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !cw.files[filepath.Clean(event.Name)] {
				continue
			}

			var operation string
			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
				operation = "created"
			case event.Op&fsnotify.Write == fsnotify.Write:
				operation = "modified"
			case event.Op&fsnotify.Remove == fsnotify.Remove:
				operation = "deleted"
			case event.Op&fsnotify.Rename == fsnotify.Rename:
				operation = "renamed"
			case event.Op&fsnotify.Chmod == fsnotify.Chmod:
				continue
			default:
				continue
			}

			cw.log.Info("calibration product changed", "path", event.Name, "op", operation)

			select {
			case cw.Events <- Event{Path: event.Name, Operation: operation, Time: time.Now()}:
			case <-cw.done:
				return
			default:
				// Drop when nobody is draining; the next event will retrigger.
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.log.Warn("calibration watcher error", "error", err)

		case <-cw.done:
			return
		}
	}
}

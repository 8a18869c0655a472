package keymap

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"

	"github.com/deskrelay/gateway/internal/logging"
)

// Watcher reloads a Manager's active chain whenever its keymap
// directory changes on disk — the config-hot-reload path named in
// SPEC_FULL.md, the only piece of configuration this gateway treats as
// mutable after startup.
type Watcher struct {
	dir        string
	layerName  string
	manager    *Manager
	fsWatcher  *fsnotify.Watcher
	log        *slog.Logger
	stopCh     chan struct{}
}

// NewWatcher starts watching dir for changes and reloads manager's
// chain (rooted at layerName) on every write, create or rename event.
func NewWatcher(dir, layerName string, manager *Manager) (*Watcher, error) {
	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsW.Add(dir); err != nil {
		fsW.Close()
		return nil, err
	}

	w := &Watcher{
		dir:       dir,
		layerName: layerName,
		manager:   manager,
		fsWatcher: fsW,
		log:       logging.L("keymap"),
		stopCh:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("keymap watcher error", logging.KeyError, err)
		}
	}
}

func (w *Watcher) reload() {
	chain, err := LoadChainFromFile(w.dir, w.layerName)
	if err != nil {
		w.log.Warn("keymap reload failed, keeping previous chain", logging.KeyError, err)
		return
	}
	w.manager.Reload(chain)
	w.log.Info("keymap reloaded", "layer", w.layerName)
}

// Close stops the watch loop and releases the underlying fsnotify
// watcher.
func (w *Watcher) Close() error {
	close(w.stopCh)
	return w.fsWatcher.Close()
}

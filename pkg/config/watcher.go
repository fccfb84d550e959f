package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/cuemby/agora/pkg/log"
)

// Watcher re-reads the config file when it changes and applies the subset
// of settings that are safe to change at runtime (currently the log level).
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	onApply func(*Config)
	stopCh  chan struct{}
}

// NewWatcher watches path. onApply receives each successfully reloaded
// config; it may be nil.
func NewWatcher(path string, onApply func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors and config managers replace files by
	// rename, which drops a watch set on the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		path:    path,
		watcher: fw,
		onApply: onApply,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	go w.run()
}

// Stop ends watching.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
}

func (w *Watcher) run() {
	logger := log.WithComponent("config")
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				logger.Warn().Err(err).Msg("Config reload failed, keeping previous settings")
				continue
			}
			log.SetLevel(log.Level(cfg.Log.Level))
			if w.onApply != nil {
				w.onApply(cfg)
			}
			logger.Info().Str("path", w.path).Msg("Config reloaded")
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

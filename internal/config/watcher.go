package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reloads the configuration file when it changes on disk and applies
// the logging level without a restart. Other settings still need a restart.
type Watcher struct {
	path    string
	logger  *logrus.Logger
	watcher *fsnotify.Watcher
}

// StartWatcher begins watching the config file's directory. Editors often
// replace the file instead of writing in place, so the directory is watched
// and events are filtered by name.
func StartWatcher(configPath string, logger *logrus.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{path: configPath, logger: logger, watcher: fw}

	go w.watchFile()

	if err := fw.Add(filepath.Dir(configPath)); err != nil {
		fw.Close()
		return nil, err
	}

	logger.WithField("config_path", configPath).Info("Config watcher started")
	return w, nil
}

// watchFile selects on watcher channels and dispatches reloads.
func (w *Watcher) watchFile() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("Config watcher error")
		}
	}
}

// reload re-parses the file and applies the log level. A broken file is
// logged and ignored so the running config stays intact.
func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("Ignoring invalid config change")
		return
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		w.logger.WithError(err).Warn("Ignoring invalid log level")
		return
	}

	if w.logger.GetLevel() != level {
		w.logger.SetLevel(level)
		w.logger.WithField("level", level.String()).Info("Log level updated from config")
	}
}

// Stop closes the watcher (idempotent).
func (w *Watcher) Stop() {
	if w.watcher != nil {
		w.watcher.Close()
	}
}

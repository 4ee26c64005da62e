package config

import (
	"github.com/fsnotify/fsnotify"

	"github.com/ehrlich-b/flock/internal/logger"
)

// WatchServer re-reads the server config file whenever it changes and hands
// the result to onChange (used for live log-level adjustment). Returns a
// stop function. Best-effort: a file that does not exist yet is not watched.
func WatchServer(path string, onChange func(Server)) (func(), error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := LoadServer(path)
				if err != nil {
					logger.Warn("config reload failed", "path", path, "error", err)
					continue
				}
				logger.Info("config reloaded", "path", path)
				onChange(cfg)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("config watch error", "error", err)
			}
		}
	}()
	return func() { w.Close() }, nil
}

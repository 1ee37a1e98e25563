package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads cfg in place whenever path changes on disk, logging and
// ignoring a reload that fails to parse so a bad edit doesn't tear down a
// running scheduler. Returns a stop function; the caller should defer it.
func Watch(cfg *Config, path string) (stop func(), err error) {
	if path == "" {
		return func() {}, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				reloaded, err := Load(path)
				if err != nil {
					slog.Warn("config: reload failed, keeping previous config", "path", path, "error", err)
					continue
				}
				cfg.replace(reloaded)
				slog.Info("config: reloaded", "path", path)
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config: watcher error", "error", watchErr)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = watcher.Close()
	}, nil
}

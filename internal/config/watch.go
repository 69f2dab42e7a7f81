package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// WatchManifest watches the manifest file and invokes onChange with each
// successfully reloaded manifest. A manifest that fails to parse is logged
// and ignored; the previous manifest stays in effect. Watching stops when
// ctx is cancelled.
func WatchManifest(ctx context.Context, path string, logger *slog.Logger, onChange func(Manifest)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
					continue
				}
				m, err := LoadManifest(path)
				if err != nil {
					logger.Error("manifest reload failed", "path", path, "error", err)
					continue
				}
				logger.Info("manifest reloaded", "path", path)
				onChange(m)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("manifest watcher error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// watchConfig reloads path whenever it changes and passes the result to
// apply. The directory is watched so that editors replacing the file by
// rename are noticed.
func watchConfig(ctx context.Context, path string, logger *slog.Logger, apply func(Options)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		var (
			timer   *time.Timer
			reloadC <-chan time.Time
		)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(reloadDebounce)
				reloadC = timer.C
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("config watcher error", "error", err)
			case <-reloadC:
				reloadC = nil
				opts, err := loadOptionsFile(abs)
				if err != nil {
					logger.Warn("config reload failed", "path", abs, "error", err)
					continue
				}
				apply(opts)
			}
		}
	}()
	return nil
}

package stationd

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/northslopetech/agent-station/internal/stationconfig"
)

const configReloadDebounce = 200 * time.Millisecond

// watchConfig reloads the project store when config.toml changes on disk, so
// edits made outside the daemon (another client, a text editor) take effect
// without a restart. Watches the directory rather than the file: editors and
// atomic saves replace the inode.
func watchConfig(ctx context.Context, store *stationconfig.Store, log *slog.Logger) error {
	if store == nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(store.Path())
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}
	name := filepath.Base(store.Path())

	go func() {
		defer watcher.Close()
		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != name {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if debounce == nil {
					debounce = time.AfterFunc(configReloadDebounce, func() {
						if err := store.Reload(); err != nil {
							log.Warn("config reload failed", "error", err)
							return
						}
						log.Info("config reloaded", "path", store.Path())
					})
					continue
				}
				debounce.Reset(configReloadDebounce)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config watch error", "error", err)
			}
		}
	}()
	return nil
}

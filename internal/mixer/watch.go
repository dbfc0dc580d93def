package mixer

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay debounces sequences of file events into one reload.
const reloadDelay = 100 * time.Millisecond

// Run reloads the paths file whenever it changes, until ctx is done. It
// returns immediately when live reload is disabled.
func (b *Backend) Run(ctx context.Context) error {
	if !b.cfg.LiveReload {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Editors replace files, so the directory is watched.
	fname := filepath.Clean(b.cfg.PathsFile)
	if err := watcher.Add(filepath.Dir(fname)); err != nil {
		return err
	}

	var chanReload <-chan time.Time

	b.log.Debugf("Watching %s for changes", fname)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-chanReload:
			chanReload = nil
			if err := b.Reload(); err != nil {
				b.log.Errorf("Unable to reload mixer paths: %v", err)
			}

		case event, ok := <-watcher.Events:
			if !ok {
				b.log.Warnf("watcher.Events not ok")
				return nil
			}
			if filepath.Clean(event.Name) != fname {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			b.log.Debugf("Watcher event: %s", event)
			chanReload = time.After(reloadDelay)

		case err, ok := <-watcher.Errors:
			if !ok {
				b.log.Warnf("watcher.Errors not ok")
				return nil
			}
			b.log.Debugf("Watcher error: %v", err)
		}
	}
}

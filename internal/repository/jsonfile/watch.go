package jsonfile

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Reloadable is a store whose cache can be refreshed from its backing file.
type Reloadable interface {
	Path() string
	Reload(ctx context.Context) error
}

// Watch reloads a store each time its document is written or replaced.
// The watcher runs until ctx is cancelled.
func Watch(ctx context.Context, logger logrus.FieldLogger, stores ...Reloadable) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	byPath := make(map[string]Reloadable, len(stores))
	dirs := make(map[string]struct{})
	for _, s := range stores {
		abs, err := filepath.Abs(s.Path())
		if err != nil {
			watcher.Close()
			return fmt.Errorf("resolve %s: %w", s.Path(), err)
		}
		byPath[abs] = s
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	// documents are replaced by rename, so the directory is watched rather than the file
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				store, ok := byPath[filepath.Clean(event.Name)]
				if !ok {
					continue
				}
				if err := store.Reload(ctx); err != nil {
					logger.Warnf("reload %s: %v", event.Name, err)
					continue
				}
				logger.Infof("reloaded %s", event.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("watcher error: %v", err)
			}
		}
	}()

	return nil
}

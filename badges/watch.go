package badges

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the catalog whenever its file is written or replaced, until
// ctx is cancelled. The parent directory is watched so atomic renames are seen.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.path == "" {
		return errors.New("badge catalog has no backing file")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	target, err := filepath.Abs(c.path)
	if err != nil {
		_ = watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
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
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if err := c.Reload(); err != nil {
					c.log.Warn("badge catalog reload failed, keeping previous definitions", "path", c.path, "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.log.Error("badge catalog watcher error", "error", err)
			}
		}
	}()
	return nil
}

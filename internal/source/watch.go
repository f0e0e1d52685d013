package source

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch follows the file until ctx is cancelled, calling Sync whenever it
// changes. The parent directory is watched rather than the file itself, so
// rotation (rename plus recreate) keeps producing events. A poll ticker
// backs up fsnotify on filesystems that drop or lack change events.
//
// Consumers observe changes through Changed.
func (s *Source) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		s.log.Warn("failed to watch directory, relying on polling", "dir", dir, "error", err)
	}

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	sync := func() {
		if _, err := s.Sync(); err != nil {
			// The file may be mid-rotation; the next event or tick retries.
			s.log.Warn("sync failed", "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				sync()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("fsnotify error", "error", err)

		case <-ticker.C:
			sync()
		}
	}
}

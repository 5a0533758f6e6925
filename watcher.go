package msgproj

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

const watchBufferSize = 256

// Watch observes root and all subdirectories. New directories created under
// root are added to the watch as they appear. Events carry paths relative to
// root. Both channels close once ctx is cancelled.
func (osFs) Watch(ctx context.Context, root string) (<-chan WatchEvent, <-chan error, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	if err := addRecursive(fsw, root); err != nil {
		_ = fsw.Close()
		return nil, nil, err
	}

	events := make(chan WatchEvent, watchBufferSize)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)
		defer fsw.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op.Has(fsnotify.Create) {
					// fsnotify only reports files inside directories it
					// knows about, so pick up new subdirectories.
					if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
						_ = addRecursive(fsw, ev.Name)
						continue
					}
				}
				if ev.Op.Has(fsnotify.Chmod) {
					continue
				}
				rel, relErr := filepath.Rel(root, ev.Name)
				if relErr != nil || strings.HasPrefix(rel, "..") {
					continue
				}
				select {
				case events <- WatchEvent{Name: filepath.ToSlash(rel)}:
				case <-ctx.Done():
					return
				}

			case werr, ok := <-fsw.Errors:
				if !ok {
					return
				}
				select {
				case errs <- werr:
				case <-ctx.Done():
				}
				return
			}
		}
	}()

	return events, errs, nil
}

// addRecursive watches path and every directory below it. Walk errors on
// individual entries are skipped so one unreadable directory does not stop
// the rest of the tree from being watched.
func addRecursive(fsw *fsnotify.Watcher, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fsw.Add(path)
	}
	return filepath.WalkDir(path, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			_ = fsw.Add(p)
		}
		return nil
	})
}

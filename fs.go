package msgproj

import (
	"context"
	"os"
	"path/filepath"
)

// DirEntry describes one entry returned by Fs.ReadDir or Fs.Stat.
type DirEntry struct {
	Name  string
	IsDir bool
}

// WatchEvent is one filesystem change notification. Name is the path of the
// changed file relative to the watched directory.
type WatchEvent struct {
	Name string
}

// Fs is the storage abstraction the engine runs against. Implementations
// report missing files with errors satisfying errors.Is(err, fs.ErrNotExist).
//
// Watch observes a directory recursively and delivers events until ctx is
// cancelled, after which both channels are closed. Errors on the error
// channel other than the cancellation are watcher failures.
type Fs interface {
	ReadDir(path string) ([]DirEntry, error)
	Stat(path string) (DirEntry, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	MkdirAll(path string) error
	Remove(path string) error
	Watch(ctx context.Context, path string) (<-chan WatchEvent, <-chan error, error)
}

// osFs is the operating-system backed Fs. Watch is implemented in watcher.go
// on top of fsnotify.
type osFs struct{}

// NewOsFs returns an Fs backed by the host filesystem.
func NewOsFs() Fs { return osFs{} }

func (osFs) ReadDir(path string) ([]DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, len(entries))
	for i, e := range entries {
		out[i] = DirEntry{Name: e.Name(), IsDir: e.IsDir()}
	}
	return out, nil
}

func (osFs) Stat(path string) (DirEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return DirEntry{}, err
	}
	return DirEntry{Name: info.Name(), IsDir: info.IsDir()}, nil
}

func (osFs) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (osFs) WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (osFs) MkdirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

func (osFs) Remove(path string) error {
	return os.Remove(path)
}

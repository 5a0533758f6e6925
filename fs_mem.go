package msgproj

import (
	"context"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
)

// MemFs is an in-memory Fs. It backs tests and examples and supports the
// full Watch contract, so external edits can be simulated by writing to it
// directly.
type MemFs struct {
	mu       sync.Mutex
	files    map[string][]byte
	dirs     map[string]bool
	watchers []*memWatcher
}

type memWatcher struct {
	root   string
	events chan WatchEvent
	errs   chan error
}

// NewMemFs returns an empty in-memory filesystem.
func NewMemFs() *MemFs {
	return &MemFs{
		files: map[string][]byte{},
		dirs:  map[string]bool{"/": true},
	}
}

func normalize(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return p
}

func (m *MemFs) ReadDir(p string) ([]DirEntry, error) {
	p = normalize(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirs[p] {
		return nil, &fs.PathError{Op: "readdir", Path: p, Err: fs.ErrNotExist}
	}
	seen := map[string]DirEntry{}
	prefix := p
	if prefix != "/" {
		prefix += "/"
	}
	for f := range m.files {
		if !strings.HasPrefix(f, prefix) {
			continue
		}
		rest := strings.TrimPrefix(f, prefix)
		if idx := strings.Index(rest, "/"); idx >= 0 {
			seen[rest[:idx]] = DirEntry{Name: rest[:idx], IsDir: true}
		} else {
			seen[rest] = DirEntry{Name: rest, IsDir: false}
		}
	}
	for d := range m.dirs {
		if !strings.HasPrefix(d, prefix) || d == p {
			continue
		}
		rest := strings.TrimPrefix(d, prefix)
		if idx := strings.Index(rest, "/"); idx >= 0 {
			rest = rest[:idx]
		}
		seen[rest] = DirEntry{Name: rest, IsDir: true}
	}
	out := make([]DirEntry, 0, len(seen))
	for _, e := range seen {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemFs) Stat(p string) (DirEntry, error) {
	p = normalize(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirs[p] {
		return DirEntry{Name: path.Base(p), IsDir: true}, nil
	}
	if _, ok := m.files[p]; ok {
		return DirEntry{Name: path.Base(p), IsDir: false}, nil
	}
	return DirEntry{}, &fs.PathError{Op: "stat", Path: p, Err: fs.ErrNotExist}
}

func (m *MemFs) ReadFile(p string) ([]byte, error) {
	p = normalize(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[p]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: p, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (m *MemFs) WriteFile(p string, data []byte) error {
	p = normalize(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[p] = append([]byte(nil), data...)
	m.mkdirLocked(path.Dir(p))
	m.notifyLocked(p)
	return nil
}

func (m *MemFs) MkdirAll(p string) error {
	p = normalize(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirLocked(p)
	return nil
}

func (m *MemFs) mkdirLocked(p string) {
	for p != "/" && !m.dirs[p] {
		m.dirs[p] = true
		p = path.Dir(p)
	}
}

func (m *MemFs) Remove(p string) error {
	p = normalize(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, existed := m.files[p]; !existed {
		return &fs.PathError{Op: "remove", Path: p, Err: fs.ErrNotExist}
	}
	delete(m.files, p)
	m.notifyLocked(p)
	return nil
}

func (m *MemFs) Watch(ctx context.Context, root string) (<-chan WatchEvent, <-chan error, error) {
	root = normalize(root)
	w := &memWatcher{
		root:   root,
		events: make(chan WatchEvent, watchBufferSize),
		errs:   make(chan error, 1),
	}
	m.mu.Lock()
	m.watchers = append(m.watchers, w)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		// Removal and close are serialized with notifyLocked by m.mu, so a
		// send can never race the close.
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, other := range m.watchers {
			if other == w {
				m.watchers = append(m.watchers[:i], m.watchers[i+1:]...)
				break
			}
		}
		close(w.events)
		close(w.errs)
	}()

	return w.events, w.errs, nil
}

func (m *MemFs) notifyLocked(p string) {
	for _, w := range m.watchers {
		prefix := w.root
		if prefix != "/" {
			prefix += "/"
		}
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		select {
		case w.events <- WatchEvent{Name: strings.TrimPrefix(p, prefix)}:
		default:
			// buffer full, drop
		}
	}
}

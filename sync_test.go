package msgproj

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"testing"
	"time"
)

const msgDir = "/proj.inlang/messages"

func newTestSynchronizer(t *testing.T, fsys Fs) (*synchronizer, *MessageStore, *errorList) {
	t.Helper()
	store := newMessageStore()
	errs := &errorList{}
	s := newSynchronizer(fsys, NewJSONCodec(), store, msgDir, discardLogger(), inlineSubmit, errs.add, errs.add)
	return s, store, errs
}

type errorList struct {
	mu   sync.Mutex
	errs []error
}

func (l *errorList) add(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *errorList) all() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errs...)
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func writeMessageFile(t *testing.T, fsys Fs, id, lang, text string) []byte {
	t.Helper()
	codec := NewJSONCodec()
	enc, err := codec.EncodeMessage(&Message{ID: id, Variants: []Variant{{LanguageTag: lang, Pattern: Text(text)}}})
	if err != nil {
		t.Fatal(err)
	}
	if err := fsys.WriteFile(msgDir+"/"+codec.PathFromMessageID(id), enc); err != nil {
		t.Fatal(err)
	}
	return enc
}

func TestInitialLoad_emptyDirectory(t *testing.T) {
	s, store, errs := newTestSynchronizer(t, NewMemFs())
	if err := s.initialLoad(); err != nil {
		t.Fatal(err)
	}
	if got := store.IncludedMessageIDs(); len(got) != 0 {
		t.Errorf("store not empty after load: %v", got)
	}
	if got := errs.all(); len(got) != 0 {
		t.Errorf("errors after empty load: %v", got)
	}
}

func TestInitialLoad_populatesStore(t *testing.T) {
	fsys := NewMemFs()
	writeMessageFile(t, fsys, "hello", "en", "Hi")
	writeMessageFile(t, fsys, "nested/bye", "en", "Bye")
	// Not a message file: silently skipped.
	if err := fsys.WriteFile(msgDir+"/notes.txt", []byte("scratch")); err != nil {
		t.Fatal(err)
	}

	s, store, errs := newTestSynchronizer(t, fsys)
	if err := s.initialLoad(); err != nil {
		t.Fatal(err)
	}
	ids := store.IncludedMessageIDs()
	if len(ids) != 2 || ids[0] != "hello" || ids[1] != "nested/bye" {
		t.Errorf("ids = %v", ids)
	}
	if got := errs.all(); len(got) != 0 {
		t.Errorf("unexpected errors: %v", got)
	}
}

func TestInitialLoad_isolatesDecodeFailures(t *testing.T) {
	fsys := NewMemFs()
	writeMessageFile(t, fsys, "good", "en", "Hi")
	if err := fsys.WriteFile(msgDir+"/bad.json", []byte(`{broken`)); err != nil {
		t.Fatal(err)
	}

	s, store, errs := newTestSynchronizer(t, fsys)
	if err := s.initialLoad(); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Get("good"); !ok {
		t.Error("decode failure aborted the rest of the batch")
	}
	if _, ok := store.Get("bad"); ok {
		t.Error("undecodable file landed in the store")
	}
	got := errs.all()
	if len(got) != 1 {
		t.Fatalf("errors = %v, want one", got)
	}
	var parseErr *MessageParseError
	if !errors.As(got[0], &parseErr) {
		t.Errorf("error = %v, want MessageParseError", got[0])
	}
}

func TestOutboundPersistence(t *testing.T) {
	fsys := NewMemFs()
	s, store, _ := newTestSynchronizer(t, fsys)
	if err := s.initialLoad(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.close()

	store.Upsert("hello", &Message{Variants: []Variant{{LanguageTag: "en", Pattern: Text("Hi")}}})
	raw, err := fsys.ReadFile(msgDir + "/hello.json")
	if err != nil {
		t.Fatalf("message file not written: %v", err)
	}
	m, err := NewJSONCodec().ParseMessage("hello.json", raw)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := m.Variant("en"); len(v.Pattern) == 0 || v.Pattern[0].Value != "Hi" {
		t.Errorf("persisted message = %+v", m)
	}

	store.Delete("hello")
	if _, err := fsys.ReadFile(msgDir + "/hello.json"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("message file not removed, err = %v", err)
	}
}

func TestWatch_externalWriteUpdatesStore(t *testing.T) {
	fsys := NewMemFs()
	s, store, _ := newTestSynchronizer(t, fsys)
	if err := s.initialLoad(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.close()

	writeMessageFile(t, fsys, "hello", "en", "Hi")
	waitUntil(t, "store pickup", func() bool {
		_, ok := store.Get("hello")
		return ok
	})

	writeMessageFile(t, fsys, "hello", "en", "Hello there")
	waitUntil(t, "store update", func() bool {
		m, ok := store.Get("hello")
		if !ok {
			return false
		}
		v, _ := m.Variant("en")
		return len(v.Pattern) > 0 && v.Pattern[0].Value == "Hello there"
	})
}

func TestWatch_externalDeleteRemovesMessage(t *testing.T) {
	fsys := NewMemFs()
	writeMessageFile(t, fsys, "hello", "en", "Hi")

	s, store, _ := newTestSynchronizer(t, fsys)
	if err := s.initialLoad(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.close()

	if err := fsys.Remove(msgDir + "/hello.json"); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, "store delete", func() bool {
		_, ok := store.Get("hello")
		return !ok
	})
	if _, err := fsys.ReadFile(msgDir + "/hello.json"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("file reappeared after delete, err = %v", err)
	}
}

func TestWatch_identicalContentIsNoOp(t *testing.T) {
	fsys := NewMemFs()
	enc := writeMessageFile(t, fsys, "hello", "en", "Hi")

	s, store, _ := newTestSynchronizer(t, fsys)
	if err := s.initialLoad(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.close()

	var mu sync.Mutex
	mutations := 0
	store.Subscribe(func(StoreEvent) {
		mu.Lock()
		mutations++
		mu.Unlock()
	})

	// Re-write the exact same canonical bytes twice.
	for i := 0; i < 2; i++ {
		if err := fsys.WriteFile(msgDir+"/hello.json", enc); err != nil {
			t.Fatal(err)
		}
	}
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if mutations != 0 {
		t.Errorf("identical content caused %d store mutations", mutations)
	}
}

func TestWatch_undecodableFileIsSwallowed(t *testing.T) {
	fsys := NewMemFs()
	s, store, errs := newTestSynchronizer(t, fsys)
	if err := s.initialLoad(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.close()

	if err := fsys.WriteFile(msgDir+"/partial.json", []byte(`{"varian`)); err != nil {
		t.Fatal(err)
	}
	writeMessageFile(t, fsys, "after", "en", "still alive")
	waitUntil(t, "later event handled", func() bool {
		_, ok := store.Get("after")
		return ok
	})
	if _, ok := store.Get("partial"); ok {
		t.Error("partial write landed in the store")
	}
	if got := errs.all(); len(got) != 0 {
		t.Errorf("watch decode failure should be swallowed, got %v", got)
	}
}

// watchErrFs hands out an injectable watch error channel so watcher backend
// failures can be simulated.
type watchErrFs struct {
	Fs
	errs chan error
}

func (f *watchErrFs) Watch(ctx context.Context, path string) (<-chan WatchEvent, <-chan error, error) {
	events, _, err := f.Fs.Watch(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return events, f.errs, nil
}

func TestWatchLoop_backendErrorIsFatal(t *testing.T) {
	fsys := &watchErrFs{Fs: NewMemFs(), errs: make(chan error, 1)}
	store := newMessageStore()
	var mu sync.Mutex
	var fatal []error
	s := newSynchronizer(fsys, NewJSONCodec(), store, msgDir, discardLogger(), inlineSubmit,
		func(error) {},
		func(err error) {
			mu.Lock()
			fatal = append(fatal, err)
			mu.Unlock()
		})
	if err := s.initialLoad(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.close()

	boom := errors.New("watch backend failed")
	fsys.errs <- boom
	waitUntil(t, "fatal callback", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fatal) == 1 && errors.Is(fatal[0], boom)
	})

	// The loop has exited, so later filesystem changes no longer reach
	// the store.
	writeMessageFile(t, fsys, "after", "en", "ignored")
	time.Sleep(50 * time.Millisecond)
	if _, ok := store.Get("after"); ok {
		t.Error("watch loop still running after a fatal watcher error")
	}
}

func TestOutboundWrite_doesNotEchoThroughWatcher(t *testing.T) {
	fsys := NewMemFs()
	s, store, _ := newTestSynchronizer(t, fsys)
	if err := s.initialLoad(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.close()

	var mu sync.Mutex
	mutations := 0
	store.Subscribe(func(StoreEvent) {
		mu.Lock()
		mutations++
		mu.Unlock()
	})

	store.Upsert("hello", &Message{Variants: []Variant{{LanguageTag: "en", Pattern: Text("Hi")}}})

	// The write lands on the fs and produces a watch event; it must not
	// come back as a second mutation.
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if mutations != 1 {
		t.Errorf("mutations = %d, want 1", mutations)
	}
}

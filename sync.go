package msgproj

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path"
	"sync"
)

// synchronizer keeps the message store and the on-disk message tree mutually
// consistent: initial bulk load, outbound persistence on store mutation, and
// inbound updates from filesystem watch events.
//
// tracked holds, per message id, the last canonical encoding this process
// has observed for that id (loaded, written, or read back from a watch
// event). Both directions compare against it before acting, which is what
// stops the watcher and the outbound writes from feeding each other.
type synchronizer struct {
	fsys  Fs
	codec MessageCodec
	store *MessageStore
	dir   string
	log   *slog.Logger

	submit  func(task func())
	onError func(error)
	onFatal func(error)

	mu      sync.Mutex
	tracked map[string][]byte

	subToken string
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func newSynchronizer(fsys Fs, codec MessageCodec, store *MessageStore, dir string, log *slog.Logger, submit func(func()), onError, onFatal func(error)) *synchronizer {
	return &synchronizer{
		fsys:    fsys,
		codec:   codec,
		store:   store,
		dir:     dir,
		log:     log,
		submit:  submit,
		onError: onError,
		onFatal: onFatal,
		tracked: map[string][]byte{},
	}
}

func (s *synchronizer) messagePath(id string) string {
	return path.Join(s.dir, s.codec.PathFromMessageID(id))
}

// initialLoad populates the store from the message directory. Files whose
// path does not derive a message id are skipped; a decode failure for one
// file is recorded through onError and never aborts the rest of the batch.
func (s *synchronizer) initialLoad() error {
	if err := s.fsys.MkdirAll(s.dir); err != nil {
		return err
	}

	var files []string
	if err := s.walk("", &files); err != nil {
		return err
	}

	for _, rel := range files {
		id, ok := s.codec.MessageIDFromPath(rel)
		if !ok {
			continue
		}
		raw, err := s.fsys.ReadFile(path.Join(s.dir, rel))
		if err != nil {
			s.onError(&MessageParseError{Path: rel, Err: err})
			continue
		}
		m, err := s.codec.ParseMessage(rel, raw)
		if err != nil {
			s.onError(err)
			continue
		}
		enc, err := s.codec.EncodeMessage(m)
		if err != nil {
			s.onError(&MessageParseError{Path: rel, Err: err})
			continue
		}
		s.mu.Lock()
		s.tracked[id] = enc
		s.mu.Unlock()
		s.store.Upsert(id, m)
	}
	return nil
}

func (s *synchronizer) walk(rel string, out *[]string) error {
	entries, err := s.fsys.ReadDir(path.Join(s.dir, rel))
	if err != nil {
		return err
	}
	for _, e := range entries {
		child := path.Join(rel, e.Name)
		if e.IsDir {
			if err := s.walk(child, out); err != nil {
				return err
			}
			continue
		}
		*out = append(*out, child)
	}
	return nil
}

// attach wires the outbound persistence subscription. Call after initialLoad
// so the initial snapshot does not trigger a rewrite of every file.
func (s *synchronizer) attach() {
	s.subToken = s.store.Subscribe(s.handleStoreEvent)
}

// watch launches the inbound watch loop. Kept separate from attach so the
// one-time import can run against a quiescent store with persistence already
// wired but no inbound events arriving yet.
func (s *synchronizer) watch(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	events, errs, err := s.fsys.Watch(ctx, s.dir)
	if err != nil {
		cancel()
		return err
	}

	s.wg.Add(1)
	go s.watchLoop(ctx, events, errs)
	return nil
}

// start is attach followed by watch.
func (s *synchronizer) start(ctx context.Context) error {
	s.attach()
	return s.watch(ctx)
}

// close tears down the watch subscription and the store subscription.
// In-flight writes already dispatched are not cancelled.
func (s *synchronizer) close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.store.Unsubscribe(s.subToken)
}

// handleStoreEvent persists store mutations. It runs synchronously on the
// mutating call (the store invokes it under its lock), so writes for a
// single id are submitted in mutation order. The write itself is
// asynchronous and not awaited; failures are reported, not retried.
func (s *synchronizer) handleStoreEvent(ev StoreEvent) {
	switch ev.Kind {
	case MessageUpserted:
		enc, err := s.codec.EncodeMessage(ev.Message)
		if err != nil {
			s.onError(&PersistError{Op: "write", Path: s.messagePath(ev.ID), Err: err})
			return
		}
		s.mu.Lock()
		if bytes.Equal(s.tracked[ev.ID], enc) {
			s.mu.Unlock()
			return
		}
		s.tracked[ev.ID] = enc
		s.mu.Unlock()

		target := s.messagePath(ev.ID)
		s.submit(func() {
			if err := s.fsys.WriteFile(target, enc); err != nil {
				s.log.Error("failed to persist message", "id", ev.ID, "path", target, "error", err)
				s.onError(&PersistError{Op: "write", Path: target, Err: err})
			}
		})

	case MessageDeleted:
		s.mu.Lock()
		delete(s.tracked, ev.ID)
		s.mu.Unlock()

		target := s.messagePath(ev.ID)
		s.submit(func() {
			if err := s.fsys.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
				s.log.Error("failed to remove message file", "id", ev.ID, "path", target, "error", err)
				s.onError(&PersistError{Op: "remove", Path: target, Err: err})
			}
		})
	}
}

func (s *synchronizer) watchLoop(ctx context.Context, events <-chan WatchEvent, errs <-chan error) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handleWatchEvent(ev)

		case err, ok := <-errs:
			if !ok {
				return
			}
			if err == nil || errors.Is(err, context.Canceled) {
				return
			}
			// Anything else ends useful synchronization for this session.
			s.log.Error("watcher failed", "dir", s.dir, "error", err)
			s.onFatal(err)
			return
		}
	}
}

// handleWatchEvent folds one filesystem change back into the store. Decode
// failures are swallowed with a log line: a transient partial write to a
// message file must not crash the synchronizer.
func (s *synchronizer) handleWatchEvent(ev WatchEvent) {
	id, ok := s.codec.MessageIDFromPath(ev.Name)
	if !ok {
		return
	}

	raw, err := s.fsys.ReadFile(s.messagePath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Deleted externally. Delete from the store; the resulting
			// remove of the already-absent file is tolerated.
			s.store.Delete(id)
			return
		}
		s.log.Warn("failed to read changed message file", "id", id, "error", err)
		return
	}

	m, err := s.codec.ParseMessage(ev.Name, raw)
	if err != nil {
		s.log.Warn("ignoring undecodable message file", "id", id, "error", err)
		return
	}
	enc, err := s.codec.EncodeMessage(m)
	if err != nil {
		s.log.Warn("ignoring unencodable message", "id", id, "error", err)
		return
	}

	s.mu.Lock()
	if bytes.Equal(s.tracked[id], enc) {
		// Same content as the last observed encoding. Skipping here is what
		// keeps outbound writes from echoing back through the watcher.
		s.mu.Unlock()
		return
	}
	s.tracked[id] = enc
	s.mu.Unlock()

	s.store.Upsert(id, m)
}

package msgproj

import (
	"sort"
	"sync"

	"github.com/rs/xid"
)

// newToken returns an opaque subscription token.
func newToken() string { return xid.New().String() }

// StoreEventKind discriminates message store change notifications.
type StoreEventKind int

const (
	// MessageUpserted reports a message that was created or replaced.
	MessageUpserted StoreEventKind = iota
	// MessageDeleted reports a message removed from the store.
	MessageDeleted
)

func (k StoreEventKind) String() string {
	switch k {
	case MessageUpserted:
		return "upserted"
	case MessageDeleted:
		return "deleted"
	}
	return "unknown"
}

// StoreEvent is one message store mutation. Message is nil for deletions.
type StoreEvent struct {
	Kind    StoreEventKind
	ID      string
	Message *Message
}

// MessageStore is the authoritative in-memory set of messages for a project
// session. All operations are synchronous over the in-memory mapping; no I/O
// happens here. Persistence is wired externally through Subscribe.
//
// Subscribers are invoked in mutation order while the store lock is held and
// must not call back into the store.
type MessageStore struct {
	mu       sync.RWMutex
	messages map[string]*Message
	subs     map[string]func(StoreEvent)
}

func newMessageStore() *MessageStore {
	return &MessageStore{
		messages: map[string]*Message{},
		subs:     map[string]func(StoreEvent){},
	}
}

// Get returns a copy of the message with the given id.
func (s *MessageStore) Get(id string) (*Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// GetAll returns copies of all messages ordered by id.
func (s *MessageStore) GetAll() []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IncludedMessageIDs returns the sorted set of ids currently in the store.
func (s *MessageStore) IncludedMessageIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.messages))
	for id := range s.messages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Upsert creates or replaces the message stored under id. The stored
// message's ID field always equals id.
func (s *MessageStore) Upsert(id string, m *Message) {
	stored := m.Clone()
	stored.ID = id
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[id] = stored
	s.emitLocked(StoreEvent{Kind: MessageUpserted, ID: id, Message: stored.Clone()})
}

// Create inserts a new message and fails if its id is already taken.
func (s *MessageStore) Create(m *Message) error {
	stored := m.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[stored.ID]; exists {
		return &MessageExistsError{ID: stored.ID}
	}
	s.messages[stored.ID] = stored
	s.emitLocked(StoreEvent{Kind: MessageUpserted, ID: stored.ID, Message: stored.Clone()})
	return nil
}

// Delete removes the message with the given id and reports whether it was
// present.
func (s *MessageStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		return false
	}
	delete(s.messages, id)
	s.emitLocked(StoreEvent{Kind: MessageDeleted, ID: id})
	return true
}

// Subscribe registers a mutation observer and returns its token.
func (s *MessageStore) Subscribe(fn func(StoreEvent)) string {
	token := newToken()
	s.mu.Lock()
	s.subs[token] = fn
	s.mu.Unlock()
	return token
}

// Unsubscribe removes the observer registered under token.
func (s *MessageStore) Unsubscribe(token string) {
	s.mu.Lock()
	delete(s.subs, token)
	s.mu.Unlock()
}

func (s *MessageStore) emitLocked(ev StoreEvent) {
	for _, fn := range s.subs {
		fn(ev)
	}
}

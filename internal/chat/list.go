// Package chat holds the client-side conversation state: the ordered list of
// known contacts and rooms, the message history of the open conversation and
// the presence of its peer.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/longapp/chat-client/internal/protocol"
	"github.com/longapp/chat-client/internal/store"
)

// ListKeyPrefix prefixes the per-user key the chat list is persisted under.
const ListKeyPrefix = "my_chat_list_"

// Kind distinguishes a direct conversation from a room.
type Kind int

const (
	KindPerson Kind = 0
	KindRoom   Kind = 1
)

func (k Kind) String() string {
	if k == KindRoom {
		return "room"
	}
	return "person"
}

// ChatType returns the outbound addressing for the kind.
func (k Kind) ChatType() protocol.ChatType {
	if k == KindRoom {
		return protocol.ChatRoom
	}
	return protocol.ChatPeople
}

// Entry is one conversation in the chat list. Entries are unique by
// (Name, Type).
type Entry struct {
	Name string `json:"name"`
	Type Kind   `json:"type"`
}

// Person returns a direct conversation entry.
func Person(name string) Entry { return Entry{Name: name, Type: KindPerson} }

// Room returns a room entry.
func Room(name string) Entry { return Entry{Name: name, Type: KindRoom} }

// IsRoom reports whether the entry is a room.
func (e Entry) IsRoom() bool { return e.Type == KindRoom }

// ListKey returns the persistence key of a user's chat list.
func ListKey(user string) string {
	return ListKeyPrefix + user
}

// List is the ordered, most-recent-first chat list of the current user.
// Every mutation is written through to the backend.
type List struct {
	mu      sync.RWMutex
	backend store.Backend
	user    string
	entries []Entry
}

// NewList creates an empty, unbound chat list.
func NewList(b store.Backend) *List {
	return &List{backend: b}
}

// Load binds the list to user and reads the persisted entries. The user's
// own conversation is seeded at the front when missing.
func (l *List) Load(ctx context.Context, user string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.user = user
	l.entries = nil

	raw, ok, err := l.backend.Get(ctx, ListKey(user))
	if err != nil {
		return fmt.Errorf("chat: load list: %w", err)
	}
	if ok && raw != "" {
		var entries []Entry
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			log.Warn().Err(err).Msgf("[chat] discarding unreadable chat list for %s", user)
		} else {
			l.entries = dedupe(entries)
		}
	}

	if indexOf(l.entries, Person(user)) < 0 {
		l.entries = append([]Entry{Person(user)}, l.entries...)
		return l.persistLocked(ctx)
	}
	return nil
}

// AddOrPromote moves e to the front of the list, inserting it if absent.
func (l *List) AddOrPromote(ctx context.Context, e Entry) error {
	if e.Name == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if i := indexOf(l.entries, e); i >= 0 {
		if i == 0 {
			return nil
		}
		l.entries = append(l.entries[:i], l.entries[i+1:]...)
	}
	l.entries = append([]Entry{e}, l.entries...)
	return l.persistLocked(ctx)
}

// Contains reports whether e is in the list.
func (l *List) Contains(e Entry) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return indexOf(l.entries, e) >= 0
}

// Entries returns a copy of the list, most recent first.
func (l *List) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// User returns the user the list is bound to.
func (l *List) User() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.user
}

// Reset clears the in-memory list and unbinds it. Persisted state is kept.
func (l *List) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.user = ""
	l.entries = nil
}

// persistLocked writes the list; it is a no-op while no user is bound.
func (l *List) persistLocked(ctx context.Context) error {
	if l.user == "" {
		return nil
	}
	data, err := json.Marshal(l.entries)
	if err != nil {
		return fmt.Errorf("chat: marshal list: %w", err)
	}
	if err := l.backend.Set(ctx, ListKey(l.user), string(data)); err != nil {
		return fmt.Errorf("chat: save list: %w", err)
	}
	return nil
}

func indexOf(entries []Entry, e Entry) int {
	for i, x := range entries {
		if x == e {
			return i
		}
	}
	return -1
}

func dedupe(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Name == "" || indexOf(out, e) >= 0 {
			continue
		}
		out = append(out, e)
	}
	return out
}

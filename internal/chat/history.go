package chat

import (
	"sync"
	"time"

	"github.com/longapp/chat-client/internal/protocol"
)

// TimestampLayout is the layout used to stamp messages that arrive without
// a creation time.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// History holds the ascending message history of the open conversation.
// Signaling payloads are never stored.
type History struct {
	mu        sync.RWMutex
	target    Entry
	hasTarget bool
	messages  []protocol.ChatMessage
	now       func() time.Time
}

// NewHistory creates an empty history with no open conversation.
func NewHistory() *History {
	return &History{now: time.Now}
}

// Target returns the open conversation, if any.
func (h *History) Target() (Entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.target, h.hasTarget
}

// IsTarget reports whether e is the open conversation.
func (h *History) IsTarget(e Entry) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hasTarget && h.target == e
}

// Reset opens target with an empty history.
func (h *History) Reset(target Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.target = target
	h.hasTarget = true
	h.messages = nil
}

// Clear closes the open conversation.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.target = Entry{}
	h.hasTarget = false
	h.messages = nil
}

// Replace installs a server page, given newest first, as the history of
// target. It reports false and leaves the history untouched when target is
// not the open conversation.
func (h *History) Replace(target Entry, page []protocol.ChatMessage) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.hasTarget || h.target != target {
		return false
	}
	msgs := make([]protocol.ChatMessage, 0, len(page))
	for i := len(page) - 1; i >= 0; i-- {
		if page[i].IsSignal() {
			continue
		}
		msgs = append(msgs, page[i])
	}
	h.messages = msgs
	return true
}

// Append adds msg to the end of the history. Messages carrying an id that
// is already present, and signaling payloads, are rejected.
func (h *History) Append(msg protocol.ChatMessage) (protocol.ChatMessage, bool) {
	if msg.IsSignal() {
		return msg, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if msg.ID != 0 {
		for _, m := range h.messages {
			if m.ID == msg.ID {
				return msg, false
			}
		}
	}
	if msg.CreateAt == "" {
		msg.CreateAt = h.now().UTC().Format(TimestampLayout)
	}
	h.messages = append(h.messages, msg)
	return msg, true
}

// Messages returns a copy of the history in ascending order.
func (h *History) Messages() []protocol.ChatMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]protocol.ChatMessage, len(h.messages))
	copy(out, h.messages)
	return out
}

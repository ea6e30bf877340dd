// Package correlate pairs server responses with the requests that caused
// them. The chat server does not echo request ids, so a response resolves
// the oldest outstanding request carrying the same event tag.
package correlate

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long an unanswered request stays pending.
const DefaultTTL = 30 * time.Second

// Request is one outstanding request.
type Request struct {
	ID      string
	Event   string
	Subject string // target name, searched user or room
	Kind    int    // subject kind, when the subject is a conversation
	SentAt  time.Time
}

// Tracker keeps pending requests in send order per event tag.
type Tracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	pending map[string][]Request
	now     func() time.Time
}

// NewTracker creates a Tracker. A non-positive ttl selects DefaultTTL.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		ttl:     ttl,
		pending: make(map[string][]Request),
		now:     time.Now,
	}
}

// Track registers an outgoing request and returns it with a fresh id.
func (t *Tracker) Track(event, subject string, kind int) Request {
	req := Request{
		ID:      uuid.New().String(),
		Event:   event,
		Subject: subject,
		Kind:    kind,
		SentAt:  t.now(),
	}

	t.mu.Lock()
	t.pending[event] = append(t.pending[event], req)
	t.mu.Unlock()
	return req
}

// Resolve pops the oldest live request for event. The boolean is false when
// nothing is pending.
func (t *Tracker) Resolve(event string) (Request, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.expireLocked(event)
	queue := t.pending[event]
	if len(queue) == 0 {
		return Request{}, false
	}
	req := queue[0]
	if len(queue) == 1 {
		delete(t.pending, event)
	} else {
		t.pending[event] = queue[1:]
	}
	return req, true
}

// Cancel forgets a request, for instance when sending it failed.
func (t *Tracker) Cancel(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for event, queue := range t.pending {
		for i, req := range queue {
			if req.ID != id {
				continue
			}
			queue = append(queue[:i:i], queue[i+1:]...)
			if len(queue) == 0 {
				delete(t.pending, event)
			} else {
				t.pending[event] = queue
			}
			return
		}
	}
}

// Pending returns the number of live requests for event, or across all
// events when event is empty.
func (t *Tracker) Pending(event string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if event != "" {
		t.expireLocked(event)
		return len(t.pending[event])
	}
	n := 0
	for e := range t.pending {
		t.expireLocked(e)
		n += len(t.pending[e])
	}
	return n
}

// Expire drops every request older than the TTL and returns how many were
// dropped.
func (t *Tracker) Expire() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for e := range t.pending {
		n += t.expireLocked(e)
	}
	return n
}

// Reset drops all pending requests.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.pending = make(map[string][]Request)
	t.mu.Unlock()
}

func (t *Tracker) expireLocked(event string) int {
	queue := t.pending[event]
	cutoff := t.now().Add(-t.ttl)
	i := 0
	for i < len(queue) && queue[i].SentAt.Before(cutoff) {
		i++
	}
	if i == 0 {
		return 0
	}
	if i == len(queue) {
		delete(t.pending, event)
	} else {
		t.pending[event] = queue[i:]
	}
	return i
}

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/longapp/chat-client/internal/call"
	"github.com/longapp/chat-client/internal/chat"
	"github.com/longapp/chat-client/internal/client"
	"github.com/longapp/chat-client/internal/protocol"
)

// SubmitTimeout bounds how long a bridged send may wait for the event loop.
const SubmitTimeout = 5 * time.Second

// ErrRateLimited is returned when a bridged send exceeds the send rule.
var ErrRateLimited = errors.New("messaging: send rate limited")

// Conn is the pub/sub surface the bridge needs. NATSClient implements it.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte)) error
	Unsubscribe(subject string) error
}

// Limiter throttles bridged sends. ratelimit.Limiter implements it.
type Limiter interface {
	Allow(ctx context.Context, identifier string) (bool, error)
}

// Submitter delivers an outbound message to the session.
type Submitter func(ctx context.Context, target chat.Entry, text string) error

// ---------------------------------------------------------------------------
// Payloads
// ---------------------------------------------------------------------------

// Direction values of MessageEvent.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// MessageEvent is published for every chat message sent or received.
type MessageEvent struct {
	Direction string               `json:"direction"`
	Message   protocol.ChatMessage `json:"message"`
}

// PresenceEvent is published when the open peer's presence changes.
type PresenceEvent struct {
	Target string `json:"target"`
	State  string `json:"state"`
}

// CallEvent is published on every call state change.
type CallEvent struct {
	State string `json:"state"`
	Peer  string `json:"peer,omitempty"`
}

// SendRequest is the payload accepted on the send subject.
type SendRequest struct {
	To   string            `json:"to"`
	Type protocol.ChatType `json:"type,omitempty"`
	Mes  string            `json:"mes"`
}

// Target returns the addressed conversation. Type defaults to people.
func (r SendRequest) Target() (chat.Entry, error) {
	if r.To == "" {
		return chat.Entry{}, fmt.Errorf("messaging: send request without recipient")
	}
	switch r.Type {
	case "", protocol.ChatPeople:
		return chat.Person(r.To), nil
	case protocol.ChatRoom:
		return chat.Room(r.To), nil
	default:
		return chat.Entry{}, fmt.Errorf("messaging: unknown chat type %q", r.Type)
	}
}

// ---------------------------------------------------------------------------
// Bridge
// ---------------------------------------------------------------------------

// Bridge is a client.Notifier that mirrors session activity onto pub/sub
// subjects scoped to the logged-in user, and feeds requests from the send
// subject back into the session.
type Bridge struct {
	client.NopNotifier

	conn    Conn
	submit  Submitter
	limiter Limiter

	mu   sync.Mutex
	user string
}

// NewBridge creates a Bridge. limiter may be nil to disable throttling.
func NewBridge(conn Conn, submit Submitter, limiter Limiter) *Bridge {
	return &Bridge{conn: conn, submit: submit, limiter: limiter}
}

// User returns the user the bridge is currently bound to.
func (b *Bridge) User() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.user
}

// AuthChanged binds the bridge to user on login and unbinds it on logout.
func (b *Bridge) AuthChanged(user string, authenticated bool) {
	b.mu.Lock()
	prev := b.user
	if authenticated {
		b.user = user
	} else {
		b.user = ""
	}
	b.mu.Unlock()

	if prev != "" && (!authenticated || prev != user) {
		if err := b.conn.Unsubscribe(Subject(prev, SubjectSend)); err != nil {
			log.Warn().Err(err).Msgf("[bridge] unsubscribe %s", prev)
		}
	}
	if !authenticated || prev == user {
		return
	}

	subject := Subject(user, SubjectSend)
	if err := b.conn.Subscribe(subject, func(data []byte) { b.handleSend(user, data) }); err != nil {
		log.Error().Err(err).Msgf("[bridge] failed to subscribe %s", subject)
		return
	}
	log.Info().Msgf("[bridge] accepting sends on %s", subject)
}

// MessageReceived publishes an inbound message.
func (b *Bridge) MessageReceived(msg protocol.ChatMessage) {
	b.publish(SubjectMessage, MessageEvent{Direction: DirectionIn, Message: msg})
}

// MessageSent publishes an outbound message.
func (b *Bridge) MessageSent(msg protocol.ChatMessage) {
	b.publish(SubjectMessage, MessageEvent{Direction: DirectionOut, Message: msg})
}

// PresenceChanged publishes the open peer's presence.
func (b *Bridge) PresenceChanged(target string, state chat.PresenceState) {
	if target == "" {
		return
	}
	b.publish(SubjectPresence, PresenceEvent{Target: target, State: state.String()})
}

// CallStateChanged publishes call state transitions.
func (b *Bridge) CallStateChanged(state call.State, peer string) {
	b.publish(SubjectCall, CallEvent{State: state.String(), Peer: peer})
}

func (b *Bridge) publish(kind string, v interface{}) {
	user := b.User()
	if user == "" {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msgf("[bridge] failed to marshal %s event", kind)
		return
	}
	if err := b.conn.Publish(Subject(user, kind), data); err != nil {
		log.Warn().Err(err).Msgf("[bridge] publish %s failed", kind)
	}
}

// handleSend runs on the pub/sub delivery goroutine.
func (b *Bridge) handleSend(user string, data []byte) {
	if err := b.Send(context.Background(), user, data); err != nil {
		log.Warn().Err(err).Msg("[bridge] rejected send request")
	}
}

// Send decodes a send request addressed to user's subject and submits it.
func (b *Bridge) Send(ctx context.Context, user string, data []byte) error {
	if user != b.User() {
		return fmt.Errorf("messaging: send for %s after logout", user)
	}

	var req SendRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("messaging: decode send request: %w", err)
	}
	target, err := req.Target()
	if err != nil {
		return err
	}

	if b.limiter != nil {
		ok, err := b.limiter.Allow(ctx, user)
		if err != nil {
			log.Debug().Err(err).Msg("[bridge] limiter unavailable")
		}
		if !ok {
			return ErrRateLimited
		}
	}

	ctx, cancel := context.WithTimeout(ctx, SubmitTimeout)
	defer cancel()
	if err := b.submit(ctx, target, req.Mes); err != nil {
		return fmt.Errorf("messaging: submit to %s: %w", target.Name, err)
	}
	return nil
}

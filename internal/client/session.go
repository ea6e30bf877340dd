// Package client reconciles the chat server's event stream into local
// state: authentication, the chat list, the open conversation's history and
// presence, and call signaling. A Session is owned by a single event loop
// (see Runner) and is not safe for concurrent use.
package client

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/longapp/chat-client/internal/call"
	"github.com/longapp/chat-client/internal/chat"
	"github.com/longapp/chat-client/internal/correlate"
	"github.com/longapp/chat-client/internal/metrics"
	"github.com/longapp/chat-client/internal/protocol"
	"github.com/longapp/chat-client/internal/session"
	"github.com/longapp/chat-client/internal/store"
)

var (
	// ErrNotAuthenticated is returned by operations that need a login.
	ErrNotAuthenticated = errors.New("client: not authenticated")

	// ErrNoTarget is returned when an operation needs an open conversation.
	ErrNoTarget = errors.New("client: no conversation open")

	// ErrRoomCall is returned when a call is started in a room.
	ErrRoomCall = errors.New("client: calls are only possible with a person")
)

// Sender transmits a request to the chat server.
type Sender interface {
	Send(event string, data interface{}) error
}

// Options wires a Session to its environment.
type Options struct {
	Sender    Sender
	Backend   store.Backend
	Notifier  Notifier
	Scheduler Scheduler
	Delays    Delays

	// Post runs f on the event loop; it is used for peer connection
	// callbacks. A nil Post runs f inline.
	Post func(f func())

	CallFactory call.Factory
	CallMedia   call.MediaSource
	CallConfig  call.Config

	RequestTTL time.Duration
}

// Session is the client state machine.
type Session struct {
	opts     Options
	ctx      context.Context
	notifier Notifier

	creds      *session.Store
	resolver   *session.Resolver
	list       *chat.List
	history    *chat.History
	presence   chat.Presence
	tracker    *correlate.Tracker
	calls      *call.Negotiator
	dispatcher *Dispatcher

	connected     bool
	authenticated bool
	checking      bool
	checkTimer    Timer
	user          string
	pendingUser   string
	registering   *protocol.Credentials
	searching     string
	displayName   string
	screen        Screen
	timers        timerSet
}

// NewSession creates a Session. Sender, Backend and Scheduler are required.
func NewSession(opts Options) *Session {
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Delays == (Delays{}) {
		opts.Delays = DefaultDelays()
	}
	if opts.CallFactory == nil {
		opts.CallFactory = call.PionFactory{}
	}
	if opts.CallMedia == nil {
		opts.CallMedia = call.SyntheticSource{}
	}

	s := &Session{
		opts:       opts,
		ctx:        context.Background(),
		notifier:   opts.Notifier,
		creds:      session.NewStore(opts.Backend),
		list:       chat.NewList(opts.Backend),
		history:    chat.NewHistory(),
		tracker:    correlate.NewTracker(opts.RequestTTL),
		dispatcher: NewDispatcher(),
	}
	s.resolver = session.NewResolver(s.creds)
	s.calls = call.NewNegotiator(call.Options{
		Config:  opts.CallConfig,
		Factory: opts.CallFactory,
		Media:   opts.CallMedia,
		Send:    s.sendSignal,
		Confirm: func(from string) bool { return s.notifier.ConfirmCall(from) },
		Post:    opts.Post,
		OnStateChange: func(state call.State, peer string) {
			s.notifier.CallStateChanged(state, peer)
		},
	})
	s.registerHandlers()
	return s
}

// ---------------------------------------------------------------------------
// Connection lifecycle
// ---------------------------------------------------------------------------

// OnConnected runs after every successful handshake. A stored credential
// is replayed; otherwise the login screen is shown.
func (s *Session) OnConnected() {
	s.connected = true
	s.notifier.ConnectionChanged(true)

	// Responses to requests sent on the previous connection never arrive.
	s.tracker.Reset()

	pending, err := s.resolver.Resume(s.ctx, s.opts.Sender)
	if err != nil {
		log.Warn().Err(err).Msg("[session] resume failed")
	}
	if !pending {
		if !s.authenticated && s.screen != ScreenRegister {
			s.navigate(ScreenLogin, "")
		}
		return
	}

	s.checking = true
	if s.checkTimer != nil {
		s.checkTimer.Stop()
	}
	s.checkTimer = s.opts.Scheduler.After(s.opts.Delays.SessionCheck, func() {
		s.checkTimer = nil
		if !s.checking {
			return
		}
		log.Warn().Msg("[session] no answer to session resume")
		s.checking = false
		if !s.authenticated {
			s.navigate(ScreenLogin, "")
		}
	})
}

// OnDisconnected runs when an established connection ends.
func (s *Session) OnDisconnected(err error) {
	s.connected = false
	s.notifier.ConnectionChanged(false)
	if err != nil {
		log.Debug().Err(err).Msg("[session] connection lost")
	}
}

// HandleFrame dispatches one inbound frame.
func (s *Session) HandleFrame(in protocol.Inbound) {
	s.dispatcher.Dispatch(in)
}

// ExpireRequests drops correlations that will never be answered.
func (s *Session) ExpireRequests() {
	if n := s.tracker.Expire(); n > 0 {
		log.Debug().Msgf("[session] expired %d unanswered requests", n)
	}
}

// Close ends any call and cancels pending timers.
func (s *Session) Close() {
	s.calls.End()
	s.timers.stopAll()
	if s.checkTimer != nil {
		s.checkTimer.Stop()
		s.checkTimer = nil
	}
}

// ---------------------------------------------------------------------------
// State accessors
// ---------------------------------------------------------------------------

// Snapshot is a read-only view of the session.
type Snapshot struct {
	Connected     bool                   `json:"connected"`
	Authenticated bool                   `json:"authenticated"`
	Checking      bool                   `json:"checking"`
	User          string                 `json:"user,omitempty"`
	DisplayName   string                 `json:"displayName,omitempty"`
	Screen        Screen                 `json:"screen,omitempty"`
	Entries       []chat.Entry           `json:"entries"`
	Target        *chat.Entry            `json:"target,omitempty"`
	History       []protocol.ChatMessage `json:"history"`
	Presence      string                 `json:"presence"`
	Call          string                 `json:"call"`
	CallPeer      string                 `json:"callPeer,omitempty"`
	Pending       int                    `json:"pendingRequests"`
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Connected:     s.connected,
		Authenticated: s.authenticated,
		Checking:      s.checking,
		User:          s.user,
		DisplayName:   s.displayName,
		Screen:        s.screen,
		Entries:       s.list.Entries(),
		History:       s.history.Messages(),
		Pending:       s.tracker.Pending(""),
	}
	if target, ok := s.history.Target(); ok {
		snap.Target = &target
	}
	_, presence := s.presence.State()
	snap.Presence = presence.String()
	state, peer := s.calls.State()
	snap.Call = state.String()
	snap.CallPeer = peer
	return snap
}

// User returns the authenticated user, or "".
func (s *Session) User() string { return s.user }

// Authenticated reports whether the session is logged in.
func (s *Session) Authenticated() bool { return s.authenticated }

// Target returns the open conversation.
func (s *Session) Target() (chat.Entry, bool) { return s.history.Target() }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *Session) navigate(screen Screen, target string) {
	s.screen = screen
	s.notifier.Navigate(screen, target)
}

func (s *Session) notice(level Level, text string, timeout time.Duration) {
	s.notifier.Notice(Notice{Level: level, Text: text, Timeout: timeout})
}

func (s *Session) after(d time.Duration, f func()) {
	s.timers.add(s.opts.Scheduler, d, f)
}

// request tracks and sends a correlated request.
func (s *Session) request(event string, data interface{}, subject string, kind chat.Kind) error {
	req := s.tracker.Track(event, subject, int(kind))
	if err := s.opts.Sender.Send(event, data); err != nil {
		s.tracker.Cancel(req.ID)
		return err
	}
	return nil
}

// resolve pops the request a response answers and records its latency.
func (s *Session) resolve(event string) (correlate.Request, bool) {
	req, ok := s.tracker.Resolve(event)
	if ok {
		metrics.RequestLatency.WithLabelValues(event).Observe(time.Since(req.SentAt).Seconds())
	}
	return req, ok
}

func (s *Session) sendSignal(peer string, sig protocol.Signal) error {
	body, err := protocol.EncodeSignal(sig)
	if err != nil {
		return err
	}
	return s.opts.Sender.Send(protocol.EventSendChat, protocol.SendChat{
		Type: protocol.ChatPeople,
		To:   peer,
		Mes:  body,
	})
}

func (s *Session) promote(e chat.Entry) {
	if err := s.list.AddOrPromote(s.ctx, e); err != nil {
		log.Warn().Err(err).Msgf("[session] failed to persist chat list")
	}
	s.notifier.ListChanged(s.list.Entries())
}

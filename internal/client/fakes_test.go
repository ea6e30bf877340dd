package client

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/longapp/chat-client/internal/call"
	"github.com/longapp/chat-client/internal/chat"
	"github.com/longapp/chat-client/internal/protocol"
	"github.com/longapp/chat-client/internal/store"
)

// ---------------------------------------------------------------------------
// Sender
// ---------------------------------------------------------------------------

type request struct {
	event string
	data  interface{}
}

type fakeSender struct {
	sent []request
	err  error
}

func (f *fakeSender) Send(event string, data interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, request{event, data})
	return nil
}

func (f *fakeSender) events() []string {
	out := make([]string, len(f.sent))
	for i, r := range f.sent {
		out[i] = r.event
	}
	return out
}

func (f *fakeSender) last(t *testing.T) request {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("expected a request to be sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeSender) count(event string) int {
	n := 0
	for _, r := range f.sent {
		if r.event == event {
			n++
		}
	}
	return n
}

func (f *fakeSender) reset() { f.sent = nil }

// ---------------------------------------------------------------------------
// Scheduler with a manual clock
// ---------------------------------------------------------------------------

type fakeTimer struct {
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type fakeScheduler struct {
	now    time.Duration
	timers []*fakeTimer
}

func (s *fakeScheduler) After(d time.Duration, f func()) Timer {
	t := &fakeTimer{at: s.now + d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the clock forward, firing due timers in order.
func (s *fakeScheduler) Advance(d time.Duration) {
	end := s.now + d
	for {
		var due []*fakeTimer
		for _, t := range s.timers {
			if !t.stopped && !t.fired && t.at <= end {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			break
		}
		sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
		t := due[0]
		s.now = t.at
		t.fired = true
		t.f()
	}
	s.now = end
}

// ---------------------------------------------------------------------------
// Notifier
// ---------------------------------------------------------------------------

type navigation struct {
	screen Screen
	target string
}

type recordingNotifier struct {
	NopNotifier
	navigations []navigation
	notices     []Notice
	sounds      int
	accept      bool
	lists       [][]chat.Entry
	loaded      []chat.Entry
	appended    []protocol.ChatMessage
	received    []protocol.ChatMessage
	sent        []protocol.ChatMessage
	presence    []chat.PresenceState
	displayName string
	auth        []bool
	calls       []call.State
}

func (n *recordingNotifier) Navigate(screen Screen, target string) {
	n.navigations = append(n.navigations, navigation{screen, target})
}

func (n *recordingNotifier) Notice(notice Notice) {
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) Sound() {
	n.sounds++
}

func (n *recordingNotifier) ConfirmCall(string) bool {
	return n.accept
}

func (n *recordingNotifier) AuthChanged(_ string, auth bool) {
	n.auth = append(n.auth, auth)
}

func (n *recordingNotifier) ListChanged(entries []chat.Entry) {
	n.lists = append(n.lists, entries)
}

func (n *recordingNotifier) HistoryLoaded(target chat.Entry, _ []protocol.ChatMessage) {
	n.loaded = append(n.loaded, target)
}

func (n *recordingNotifier) MessageAppended(_ chat.Entry, msg protocol.ChatMessage) {
	n.appended = append(n.appended, msg)
}

func (n *recordingNotifier) MessageReceived(msg protocol.ChatMessage) {
	n.received = append(n.received, msg)
}

func (n *recordingNotifier) MessageSent(msg protocol.ChatMessage) {
	n.sent = append(n.sent, msg)
}

func (n *recordingNotifier) PresenceChanged(_ string, s chat.PresenceState) {
	n.presence = append(n.presence, s)
}

func (n *recordingNotifier) DisplayNameChanged(name string) {
	n.displayName = name
}

func (n *recordingNotifier) CallStateChanged(s call.State, _ string) {
	n.calls = append(n.calls, s)
}

func (n *recordingNotifier) lastScreen() Screen {
	if len(n.navigations) == 0 {
		return ""
	}
	return n.navigations[len(n.navigations)-1].screen
}

func (n *recordingNotifier) lastNotice() Notice {
	if len(n.notices) == 0 {
		return Notice{}
	}
	return n.notices[len(n.notices)-1]
}

// ---------------------------------------------------------------------------
// Call fakes
// ---------------------------------------------------------------------------

type nopMedia struct{}

func (nopMedia) Stop() {}

type fakeMediaSource struct{}

func (fakeMediaSource) Acquire(context.Context) (call.Media, error) {
	return nopMedia{}, nil
}

type fakePeer struct {
	h      call.Handlers
	remote int
	closed bool
}

func (p *fakePeer) AddMedia(call.Media) error { return nil }

func (p *fakePeer) CreateOffer() (protocol.SessionDescription, error) {
	return protocol.SessionDescription{Type: "offer", SDP: "v=0"}, nil
}

func (p *fakePeer) CreateAnswer() (protocol.SessionDescription, error) {
	return protocol.SessionDescription{Type: "answer", SDP: "v=0"}, nil
}

func (p *fakePeer) SetRemoteDescription(protocol.SessionDescription) error {
	p.remote++
	return nil
}

func (p *fakePeer) AddICECandidate(protocol.ICECandidate) error { return nil }

func (p *fakePeer) Close() error {
	p.closed = true
	return nil
}

type fakeFactory struct {
	peers []*fakePeer
}

func (f *fakeFactory) New(_ call.Config, h call.Handlers) (call.PeerConnection, error) {
	p := &fakePeer{h: h}
	f.peers = append(f.peers, p)
	return p, nil
}

// ---------------------------------------------------------------------------
// Session harness
// ---------------------------------------------------------------------------

type harness struct {
	s        *Session
	sender   *fakeSender
	sched    *fakeScheduler
	notifier *recordingNotifier
	backend  store.Backend
	factory  *fakeFactory
	seq      uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithBackend(t, store.NewMemory())
}

func newHarnessWithBackend(t *testing.T, backend store.Backend) *harness {
	t.Helper()
	h := &harness{
		sender:   &fakeSender{},
		sched:    &fakeScheduler{},
		notifier: &recordingNotifier{},
		backend:  backend,
		factory:  &fakeFactory{},
	}
	h.s = NewSession(Options{
		Sender:      h.sender,
		Backend:     backend,
		Notifier:    h.notifier,
		Scheduler:   h.sched,
		CallFactory: h.factory,
		CallMedia:   fakeMediaSource{},
	})
	return h
}

// frame feeds a raw server frame through the dispatcher with a fresh
// sequence number.
func (h *harness) frame(t *testing.T, raw string) {
	t.Helper()
	in, err := protocol.ParseInbound([]byte(raw))
	if err != nil {
		t.Fatalf("bad test frame %s: %v", raw, err)
	}
	h.seq++
	in.Seq = h.seq
	h.s.HandleFrame(in)
}

// login runs a password login for user through to the home screen.
func (h *harness) login(t *testing.T, user string) {
	t.Helper()
	h.s.OnConnected()
	if err := h.s.Login(user, "pw"); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	h.frame(t, `{"status":"success","event":"LOGIN","data":{"RE_LOGIN_CODE":"code-1"}}`)
	h.frame(t, `{"status":"success","event":"GET_PEOPLE_CHAT_MES","data":[]}`)
	h.sched.Advance(DefaultDelays().Display)
	h.sender.reset()
}

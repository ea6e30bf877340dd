package call

import (
	"context"
	"errors"
	"testing"

	"github.com/longapp/chat-client/internal/protocol"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeMedia struct{ stopped int }

func (m *fakeMedia) Stop() { m.stopped++ }

type fakeSource struct {
	err   error
	media []*fakeMedia
}

func (s *fakeSource) Acquire(ctx context.Context) (Media, error) {
	if s.err != nil {
		return nil, s.err
	}
	m := &fakeMedia{}
	s.media = append(s.media, m)
	return m, nil
}

type fakePeer struct {
	h          Handlers
	offerErr   error
	remoteErr  error
	remote     []protocol.SessionDescription
	candidates []protocol.ICECandidate
	added      int
	closed     int
}

func (p *fakePeer) AddMedia(m Media) error { p.added++; return nil }

func (p *fakePeer) CreateOffer() (protocol.SessionDescription, error) {
	if p.offerErr != nil {
		return protocol.SessionDescription{}, p.offerErr
	}
	return protocol.SessionDescription{Type: "offer", SDP: "v=0 offer"}, nil
}

func (p *fakePeer) CreateAnswer() (protocol.SessionDescription, error) {
	return protocol.SessionDescription{Type: "answer", SDP: "v=0 answer"}, nil
}

func (p *fakePeer) SetRemoteDescription(d protocol.SessionDescription) error {
	if p.remoteErr != nil {
		return p.remoteErr
	}
	p.remote = append(p.remote, d)
	return nil
}

func (p *fakePeer) AddICECandidate(c protocol.ICECandidate) error {
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) Close() error { p.closed++; return nil }

type fakeFactory struct {
	peers    []*fakePeer
	offerErr error
}

func (f *fakeFactory) New(cfg Config, h Handlers) (PeerConnection, error) {
	p := &fakePeer{h: h, offerErr: f.offerErr}
	f.peers = append(f.peers, p)
	return p, nil
}

type sentSignal struct {
	peer string
	sig  protocol.Signal
}

type harness struct {
	n       *Negotiator
	factory *fakeFactory
	source  *fakeSource
	sent    []sentSignal
	accept  bool
	states  []State
}

func newHarness() *harness {
	h := &harness{factory: &fakeFactory{}, source: &fakeSource{}, accept: true}
	h.n = NewNegotiator(Options{
		Factory: h.factory,
		Media:   h.source,
		Send: func(peer string, sig protocol.Signal) error {
			h.sent = append(h.sent, sentSignal{peer, sig})
			return nil
		},
		Confirm:       func(string) bool { return h.accept },
		OnStateChange: func(s State, _ string) { h.states = append(h.states, s) },
	})
	return h
}

func (h *harness) lastSent(t *testing.T) sentSignal {
	t.Helper()
	if len(h.sent) == 0 {
		t.Fatal("expected a signal to be sent")
	}
	return h.sent[len(h.sent)-1]
}

func offer() protocol.Signal {
	return protocol.Signal{Type: protocol.SignalOffer, SDP: &protocol.SessionDescription{Type: "offer", SDP: "v=0 remote"}}
}

func candidate(s string) protocol.Signal {
	return protocol.Signal{Type: protocol.SignalCandidate, Candidate: &protocol.ICECandidate{Candidate: s}}
}

// ---------------------------------------------------------------------------
// Test: Originating
// ---------------------------------------------------------------------------

func TestNegotiator_StartSendsOffer(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if err := h.n.Start(ctx, "bob"); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if s, peer := h.n.State(); s != Originating || peer != "bob" {
		t.Fatalf("expected originating call to bob, got %v %q", s, peer)
	}
	sent := h.lastSent(t)
	if sent.peer != "bob" || sent.sig.Type != protocol.SignalOffer || sent.sig.SDP == nil {
		t.Errorf("unexpected offer %+v", sent)
	}
	pc := h.factory.peers[0]
	if pc.added != 1 {
		t.Error("expected local media to be added")
	}

	// Candidates that arrive before the answer are held back.
	_ = h.n.HandleSignal(ctx, "bob", candidate("c1"))
	if len(pc.candidates) != 0 {
		t.Fatal("expected candidate to be buffered until the answer")
	}

	answer := protocol.Signal{Type: protocol.SignalAnswer, SDP: &protocol.SessionDescription{Type: "answer", SDP: "v=0"}}
	if err := h.n.HandleSignal(ctx, "bob", answer); err != nil {
		t.Fatalf("HandleSignal(answer) error: %v", err)
	}
	if len(pc.remote) != 1 || len(pc.candidates) != 1 {
		t.Fatalf("expected answer applied and candidate flushed, got %+v", pc)
	}
	_ = h.n.HandleSignal(ctx, "bob", candidate("c2"))
	if len(pc.candidates) != 2 {
		t.Error("expected candidate after answer to be applied directly")
	}

	pc.h.OnTrack("audio")
	if s, _ := h.n.State(); s != Connected {
		t.Errorf("expected connected after remote track, got %v", s)
	}
}

func TestNegotiator_LocalCandidatesGoToPeer(t *testing.T) {
	h := newHarness()
	_ = h.n.Start(context.Background(), "bob")

	h.factory.peers[0].h.OnICECandidate(protocol.ICECandidate{Candidate: "local"})
	sent := h.lastSent(t)
	if sent.peer != "bob" || sent.sig.Type != protocol.SignalCandidate || sent.sig.Candidate.Candidate != "local" {
		t.Errorf("unexpected candidate signal %+v", sent)
	}
}

func TestNegotiator_StartWhileActive(t *testing.T) {
	h := newHarness()
	_ = h.n.Start(context.Background(), "bob")
	if err := h.n.Start(context.Background(), "carol"); !errors.Is(err, ErrCallActive) {
		t.Errorf("expected ErrCallActive, got %v", err)
	}
	if err := newHarness().n.Start(context.Background(), ""); !errors.Is(err, ErrNoPeer) {
		t.Errorf("expected ErrNoPeer, got %v", err)
	}
}

func TestNegotiator_StartFailureTearsDown(t *testing.T) {
	h := newHarness()
	h.factory.offerErr = errors.New("no codecs")

	if err := h.n.Start(context.Background(), "bob"); err == nil {
		t.Fatal("expected Start() to fail")
	}
	if s, peer := h.n.State(); s != Idle || peer != "" {
		t.Errorf("expected idle after failure, got %v %q", s, peer)
	}
	if h.factory.peers[0].closed != 1 {
		t.Error("expected peer connection to be closed")
	}
	if h.source.media[0].stopped != 1 {
		t.Error("expected local media to be released")
	}
	if len(h.sent) != 0 {
		t.Errorf("expected nothing sent, got %+v", h.sent)
	}
}

func TestNegotiator_MediaFailure(t *testing.T) {
	h := newHarness()
	h.source.err = errors.New("no device")

	if err := h.n.Start(context.Background(), "bob"); err == nil {
		t.Fatal("expected Start() to fail")
	}
	if len(h.factory.peers) != 0 {
		t.Error("expected no peer connection without media")
	}
	if h.n.Active() {
		t.Error("expected no active call")
	}
}

// ---------------------------------------------------------------------------
// Test: Answering
// ---------------------------------------------------------------------------

func TestNegotiator_AcceptOffer(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if err := h.n.HandleSignal(ctx, "bob", offer()); err != nil {
		t.Fatalf("HandleSignal(offer) error: %v", err)
	}
	if s, peer := h.n.State(); s != Answering || peer != "bob" {
		t.Fatalf("expected answering bob, got %v %q", s, peer)
	}
	pc := h.factory.peers[0]
	if len(pc.remote) != 1 || pc.remote[0].SDP != "v=0 remote" {
		t.Errorf("expected remote offer applied, got %+v", pc.remote)
	}
	sent := h.lastSent(t)
	if sent.peer != "bob" || sent.sig.Type != protocol.SignalAnswer {
		t.Errorf("expected answer to bob, got %+v", sent)
	}

	// Remote description is set, so candidates apply immediately.
	_ = h.n.HandleSignal(ctx, "bob", candidate("c1"))
	if len(pc.candidates) != 1 {
		t.Error("expected candidate to be applied")
	}
}

func TestNegotiator_DeclineOffer(t *testing.T) {
	h := newHarness()
	h.accept = false

	_ = h.n.HandleSignal(context.Background(), "bob", offer())
	if h.n.Active() || len(h.factory.peers) != 0 {
		t.Fatal("expected declined offer to create nothing")
	}
	if sent := h.lastSent(t); sent.sig.Type != protocol.SignalHangup || sent.peer != "bob" {
		t.Errorf("expected hangup to caller, got %+v", sent)
	}
}

func TestNegotiator_OfferDuringCallIgnored(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_ = h.n.Start(ctx, "bob")

	_ = h.n.HandleSignal(ctx, "carol", offer())
	_ = h.n.HandleSignal(ctx, "bob", offer())

	if len(h.factory.peers) != 1 {
		t.Errorf("expected a single peer connection, got %d", len(h.factory.peers))
	}
	if _, peer := h.n.State(); peer != "bob" {
		t.Errorf("expected call with bob to continue, got %q", peer)
	}
}

func TestNegotiator_SignalsWithoutCallIgnored(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_ = h.n.HandleSignal(ctx, "bob", candidate("c"))
	_ = h.n.HandleSignal(ctx, "bob", protocol.Signal{Type: protocol.SignalHangup})
	if h.n.Active() || len(h.sent) != 0 {
		t.Error("expected stray signals to be ignored")
	}
}

// ---------------------------------------------------------------------------
// Test: Ending
// ---------------------------------------------------------------------------

func TestNegotiator_EndSendsHangup(t *testing.T) {
	h := newHarness()
	_ = h.n.Start(context.Background(), "bob")
	h.n.End()

	if sent := h.lastSent(t); sent.sig.Type != protocol.SignalHangup || sent.peer != "bob" {
		t.Errorf("expected hangup to bob, got %+v", sent)
	}
	if h.n.Active() {
		t.Error("expected idle after End()")
	}
	if h.factory.peers[0].closed != 1 || h.source.media[0].stopped != 1 {
		t.Error("expected resources to be released")
	}
	if last := h.states[len(h.states)-1]; last != Idle {
		t.Errorf("expected final state change to idle, got %v", last)
	}

	n := len(h.sent)
	h.n.End()
	if len(h.sent) != n {
		t.Error("expected End() while idle to do nothing")
	}
}

func TestNegotiator_RemoteHangup(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_ = h.n.HandleSignal(ctx, "bob", offer())
	sent := len(h.sent)

	_ = h.n.HandleSignal(ctx, "bob", protocol.Signal{Type: protocol.SignalHangup})
	if h.n.Active() {
		t.Error("expected idle after remote hangup")
	}
	if len(h.sent) != sent {
		t.Error("expected no hangup echo")
	}

	// A new call can follow.
	if err := h.n.Start(ctx, "carol"); err != nil {
		t.Errorf("expected new call after hangup, got %v", err)
	}
}

func TestNegotiator_ConnectionFailureEnds(t *testing.T) {
	h := newHarness()
	_ = h.n.Start(context.Background(), "bob")
	pc := h.factory.peers[0]

	pc.h.OnStateChange(PeerDisconnected)
	if !h.n.Active() {
		t.Fatal("expected disconnected state to keep the call")
	}
	pc.h.OnStateChange(PeerFailed)
	if h.n.Active() {
		t.Error("expected failed connection to end the call")
	}
}

func TestNegotiator_StaleCallbacksIgnored(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_ = h.n.Start(ctx, "bob")
	old := h.factory.peers[0]
	h.n.End()
	_ = h.n.Start(ctx, "carol")
	sent := len(h.sent)

	old.h.OnICECandidate(protocol.ICECandidate{Candidate: "late"})
	old.h.OnTrack("video")
	old.h.OnStateChange(PeerClosed)

	if len(h.sent) != sent {
		t.Error("expected late candidate from previous call to be dropped")
	}
	if s, peer := h.n.State(); s != Originating || peer != "carol" {
		t.Errorf("expected current call untouched, got %v %q", s, peer)
	}
}

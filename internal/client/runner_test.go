package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/longapp/chat-client/internal/protocol"
	"github.com/longapp/chat-client/internal/store"
	"github.com/longapp/chat-client/internal/ws"
)

// fakeTransport delivers scripted events and records sent requests.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []string
	events chan ws.Event
	runErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan ws.Event, 16)}
}

func (f *fakeTransport) Send(event string, _ interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, event)
	return nil
}

func (f *fakeTransport) Run(ctx context.Context) error {
	<-ctx.Done()
	close(f.events)
	if f.runErr != nil {
		return f.runErr
	}
	return ctx.Err()
}

func (f *fakeTransport) Events() <-chan ws.Event { return f.events }

func (f *fakeTransport) sentEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func startRunner(t *testing.T, tr *fakeTransport) (*Runner, context.CancelFunc, <-chan error) {
	t.Helper()
	r := NewRunner(tr, Options{
		Backend:     store.NewMemory(),
		CallFactory: &fakeFactory{},
		CallMedia:   fakeMediaSource{},
	})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()
	return r, cancel, errc
}

func snapshot(t *testing.T, r *Runner) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var snap Snapshot
	if err := r.Do(ctx, func(s *Session) error {
		snap = s.Snapshot()
		return nil
	}); err != nil {
		t.Fatalf("Do() error: %v", err)
	}
	return snap
}

// waitFor polls the session on the loop until cond holds. Transport events
// and actions travel on separate channels, so an action may overtake an
// event that was queued just before it.
func waitFor(t *testing.T, r *Runner, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		snap := snapshot(t, r)
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met, last snapshot: %+v", snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunner_AppliesTransportEvents(t *testing.T) {
	tr := newFakeTransport()
	r, cancel, errc := startRunner(t, tr)
	defer cancel()

	tr.events <- ws.Event{Kind: ws.Opened}
	waitFor(t, r, func(s Snapshot) bool { return s.Connected })

	ctx := context.Background()
	if err := r.Do(ctx, func(s *Session) error { return s.Login("alice", "pw") }); err != nil {
		t.Fatalf("Login via Do() error: %v", err)
	}
	tr.events <- ws.Event{Kind: ws.Frame, Inbound: protocol.Inbound{
		Seq:    1,
		Status: protocol.StatusSuccess,
		Event:  protocol.EventLogin,
		Data:   []byte(`{"RE_LOGIN_CODE":"c"}`),
	}}
	snap := waitFor(t, r, func(s Snapshot) bool { return s.Authenticated })
	if snap.User != "alice" {
		t.Errorf("expected alice logged in, got %+v", snap)
	}
	sent := tr.sentEvents()
	if len(sent) != 2 || sent[0] != protocol.EventLogin || sent[1] != protocol.EventPeopleHistory {
		t.Errorf("unexpected requests: %v", sent)
	}

	tr.events <- ws.Event{Kind: ws.Closed, Err: errors.New("reset")}
	waitFor(t, r, func(s Snapshot) bool { return !s.Connected })

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunner_DoAfterStop(t *testing.T) {
	tr := newFakeTransport()
	r, cancel, errc := startRunner(t, tr)
	cancel()
	<-errc

	err := r.Do(context.Background(), func(*Session) error { return nil })
	if !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
	// Post must not block once the loop is gone.
	r.Post(func() {})
}

func TestRunner_DoReturnsActionError(t *testing.T) {
	tr := newFakeTransport()
	r, cancel, errc := startRunner(t, tr)
	defer func() {
		cancel()
		<-errc
	}()

	err := r.Do(context.Background(), func(s *Session) error { return s.SendChat("hi") })
	if !errors.Is(err, ErrNoTarget) {
		t.Errorf("expected ErrNoTarget, got %v", err)
	}
}

func TestRunner_TimersRunOnLoop(t *testing.T) {
	tr := newFakeTransport()
	r, cancel, errc := startRunner(t, tr)
	defer func() {
		cancel()
		<-errc
	}()

	fired := make(chan struct{})
	r.After(10*time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	stopped := r.After(time.Hour, func() { t.Error("stopped timer fired") })
	if !stopped.Stop() {
		t.Error("expected first Stop to succeed")
	}
	if stopped.Stop() {
		t.Error("expected second Stop to report false")
	}
}

func TestRunner_TransportFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.runErr = ws.ErrRetriesExhausted
	_, cancel, errc := startRunner(t, tr)
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, ws.ErrRetriesExhausted) {
			t.Errorf("expected ErrRetriesExhausted, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}

package client

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/longapp/chat-client/internal/ws"
)

// ErrStopped is returned by Do once the runner has exited.
var ErrStopped = errors.New("client: runner stopped")

// Transport is the chat connection driven by the runner. Events must be
// closed when Run returns.
type Transport interface {
	Sender
	Run(ctx context.Context) error
	Events() <-chan ws.Event
}

// Runner owns the event loop: transport events, user actions and timer
// callbacks are executed one at a time, in arrival order, on a single
// goroutine.
type Runner struct {
	transport Transport
	session   *Session
	actions   chan func()
	done      chan struct{}
}

// NewRunner creates a Runner and its Session. The Sender, Scheduler and Post
// fields of opts are filled in by the runner.
func NewRunner(t Transport, opts Options) *Runner {
	r := &Runner{
		transport: t,
		actions:   make(chan func(), 64),
		done:      make(chan struct{}),
	}
	opts.Sender = t
	opts.Scheduler = r
	opts.Post = r.Post
	r.session = NewSession(opts)
	return r
}

// Run drives the transport and the loop until ctx is cancelled or the
// transport gives up.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- r.transport.Run(ctx) }()

	every := r.session.opts.Delays.ExpireRequest
	if every <= 0 {
		every = DefaultDelays().ExpireRequest
	}
	expire := time.NewTicker(every)
	defer expire.Stop()
	defer r.session.Close()

	events := r.transport.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			r.handle(ev)
		case f := <-r.actions:
			f()
		case <-expire.C:
			r.session.ExpireRequests()
		case err := <-errc:
			// Drain what the transport delivered before it stopped.
			if events != nil {
				for ev := range events {
					r.handle(ev)
				}
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("[runner] transport stopped")
			}
			return err
		}
	}
}

func (r *Runner) handle(ev ws.Event) {
	switch ev.Kind {
	case ws.Opened:
		r.session.OnConnected()
	case ws.Frame:
		r.session.HandleFrame(ev.Inbound)
	case ws.Closed:
		r.session.OnDisconnected(ev.Err)
	}
}

// Post queues f for the loop. It returns without running f once the loop
// has exited.
func (r *Runner) Post(f func()) {
	select {
	case r.actions <- f:
	case <-r.done:
	}
}

// Do runs f against the session on the loop and waits for it.
func (r *Runner) Do(ctx context.Context, f func(s *Session) error) error {
	result := make(chan error, 1)
	select {
	case r.actions <- func() { result <- f(r.session) }:
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// After implements Scheduler: f runs on the loop after d unless stopped.
func (r *Runner) After(d time.Duration, f func()) Timer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		r.Post(func() {
			if !lt.stopped.Load() {
				lt.stopped.Store(true)
				f()
			}
		})
	})
	return lt
}

type loopTimer struct {
	t       *time.Timer
	stopped atomic.Bool
}

func (lt *loopTimer) Stop() bool {
	if lt.stopped.Swap(true) {
		return false
	}
	lt.t.Stop()
	return true
}

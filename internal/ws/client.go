// Package ws owns the single WebSocket connection to the chat server: it
// dials, reads and parses frames, keeps the connection alive with pings and
// reconnects with bounded exponential backoff when it drops.
package ws

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog/log"

	"github.com/longapp/chat-client/internal/metrics"
	"github.com/longapp/chat-client/internal/protocol"
)

var (
	// ErrNotConnected is returned by Send while no connection is open. The
	// request is dropped, not queued.
	ErrNotConnected = errors.New("ws: not connected")

	// ErrRetriesExhausted is returned by Run after MaxRetries consecutive
	// failed connection attempts.
	ErrRetriesExhausted = errors.New("ws: reconnect retries exhausted")

	// ErrClosed is returned by Run after Close.
	ErrClosed = errors.New("ws: client closed")
)

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the gobwas dialer, mostly for tests.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// Client is the chat connection. Run drives it; Send may be called from any
// goroutine.
type Client struct {
	cfg    Config
	dialer Dialer
	events chan Event

	mu   sync.Mutex // guards conn
	conn net.Conn

	writeMu   sync.Mutex // serializes frame writes
	connected atomic.Bool
	latest    atomic.Pointer[protocol.Inbound]
	seq       uint64 // owned by the read loop

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a Client. Nothing is dialed until Run.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	c := &Client{
		cfg:    cfg,
		events: make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = NetDialer{ws.Dialer{Timeout: cfg.DialTimeout}}
	}
	return c
}

// Events returns the inbound event stream. It is closed when Run returns.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Latest returns the most recently received frame, or nil.
func (c *Client) Latest() *protocol.Inbound {
	return c.latest.Load()
}

// Run dials and serves the connection until ctx is cancelled, Close is
// called or MaxRetries consecutive attempts fail. It must be called once.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)

	failures := 0
	for attempt := 0; ; attempt++ {
		if err := c.stopped(ctx); err != nil {
			return err
		}
		if attempt > 0 {
			metrics.ReconnectsTotal.Inc()
		}

		conn, br, err := c.dialer.Dial(ctx, c.cfg.URL)
		if err != nil {
			if stopErr := c.stopped(ctx); stopErr != nil {
				return stopErr
			}
			failures++
			log.Warn().Err(err).Msgf("[ws] dial %s failed (attempt %d)", c.cfg.URL, failures)
			if c.cfg.MaxRetries > 0 && failures >= c.cfg.MaxRetries {
				return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, failures, err)
			}
			if err := c.wait(ctx, c.cfg.Backoff(failures-1)); err != nil {
				return err
			}
			continue
		}

		started := time.Now()
		cause := c.serve(ctx, conn, br)
		if err := c.stopped(ctx); err != nil {
			return err
		}

		// Connections shorter than StableAfter count as failed attempts.
		if time.Since(started) >= c.cfg.StableAfter {
			failures = 0
		} else {
			failures++
			if c.cfg.MaxRetries > 0 && failures >= c.cfg.MaxRetries {
				return fmt.Errorf("%w after %d short-lived connections: %v", ErrRetriesExhausted, failures, cause)
			}
		}
		delay := c.cfg.Backoff(failures)
		log.Warn().Err(cause).Msgf("[ws] connection closed, reconnecting in %s", delay)
		if err := c.wait(ctx, delay); err != nil {
			return err
		}
	}
}

// Send encodes and transmits a request. While disconnected the request is
// dropped and ErrNotConnected is returned.
func (c *Client) Send(event string, data interface{}) error {
	payload, err := protocol.NewRequest(event, data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || !c.connected.Load() {
		metrics.FramesDropped.Inc()
		log.Warn().Msgf("[ws] dropping %s: not connected", event)
		return ErrNotConnected
	}

	if err := c.write(conn, ws.OpText, payload); err != nil {
		conn.Close()
		return fmt.Errorf("ws: send %s: %w", event, err)
	}
	metrics.FramesTotal.WithLabelValues("out").Inc()
	return nil
}

// Close stops Run and closes the open connection. It is safe to call
// multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.conn != nil {
			err = c.conn.Close()
		}
		c.mu.Unlock()
	})
	return err
}

// serve runs one established connection until it fails and returns the
// cause.
func (c *Client) serve(ctx context.Context, conn net.Conn, br *bufio.Reader) error {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	metrics.Connected.Set(1)
	log.Info().Msgf("[ws] connected to %s", c.cfg.URL)

	stop := make(chan struct{})
	defer func() {
		close(stop)
		c.connected.Store(false)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
		metrics.Connected.Set(0)
		if br != nil {
			ws.PutReader(br)
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
		case <-c.done:
		case <-stop:
			return
		}
		conn.Close()
	}()
	if c.cfg.PingInterval > 0 {
		go c.heartbeat(conn, stop)
	}

	if err := c.emit(ctx, Event{Kind: Opened}); err != nil {
		return err
	}

	var src io.Reader = conn
	if br != nil {
		src = br
	}
	err := c.readLoop(ctx, conn, src)
	c.connected.Store(false)
	if emitErr := c.emit(ctx, Event{Kind: Closed, Err: err}); emitErr != nil {
		return emitErr
	}
	return err
}

// readLoop reads text frames until the connection fails. Control frames
// are answered inline; binary frames are discarded.
func (c *Client) readLoop(ctx context.Context, conn net.Conn, src io.Reader) error {
	w := &lockedWriter{c: c, conn: conn}
	control := wsutil.ControlFrameHandler(w, ws.StateClientSide)
	rd := wsutil.Reader{
		Source:         src,
		State:          ws.StateClientSide,
		CheckUTF8:      true,
		OnIntermediate: control,
	}

	for {
		if c.cfg.PingInterval > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PingInterval + c.cfg.PongTimeout))
		}

		hdr, err := rd.NextFrame()
		if err != nil {
			return err
		}
		if hdr.OpCode.IsControl() {
			if err := control(hdr, &rd); err != nil {
				return err
			}
			continue
		}
		if hdr.OpCode != ws.OpText {
			if err := rd.Discard(); err != nil {
				return err
			}
			continue
		}

		data, err := io.ReadAll(&rd)
		if err != nil {
			return err
		}
		metrics.FramesTotal.WithLabelValues("in").Inc()

		in, err := protocol.ParseInbound(data)
		if err != nil {
			metrics.ParseErrors.Inc()
			log.Warn().Err(err).Msgf("[ws] dropping malformed frame (%d bytes)", len(data))
			continue
		}
		c.seq++
		in.Seq = c.seq
		in.ReceivedAt = time.Now().UnixMilli()
		frame := in
		c.latest.Store(&frame)

		if err := c.emit(ctx, Event{Kind: Frame, Inbound: in}); err != nil {
			return err
		}
	}
}

// emit blocks while the event buffer is full.
func (c *Client) emit(ctx context.Context, ev Event) error {
	select {
	case c.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

func (c *Client) stopped(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
		return nil
	}
}

func (c *Client) write(conn net.Conn, op ws.OpCode, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return wsutil.WriteClientMessage(conn, op, payload)
}

// lockedWriter lets control frame replies share the write mutex with Send.
type lockedWriter struct {
	c    *Client
	conn net.Conn
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.c.writeMu.Lock()
	defer w.c.writeMu.Unlock()
	return w.conn.Write(p)
}

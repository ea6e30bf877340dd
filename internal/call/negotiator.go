// Package call negotiates one peer-to-peer audio/video call at a time. Offers,
// answers and ICE candidates travel as signaling payloads inside ordinary
// chat messages.
//
// A Negotiator is not safe for concurrent use. It is owned by the client's
// event loop; peer connection callbacks are handed to the post function and
// must be run on that loop.
package call

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/longapp/chat-client/internal/metrics"
	"github.com/longapp/chat-client/internal/protocol"
)

var (
	// ErrCallActive is returned when a call is started while another one is
	// in progress.
	ErrCallActive = errors.New("call: a call is already active")

	// ErrNoPeer is returned when a call is started without a peer.
	ErrNoPeer = errors.New("call: no peer")
)

// State is the negotiation state.
type State int

const (
	Idle State = iota
	Originating
	Answering
	Connected
)

func (s State) String() string {
	switch s {
	case Originating:
		return "originating"
	case Answering:
		return "answering"
	case Connected:
		return "connected"
	default:
		return "idle"
	}
}

// DefaultICEServers are the public STUN servers used for candidate gathering.
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Config configures peer connections.
type Config struct {
	ICEServers []string
}

// DefaultConfig returns the STUN-only configuration.
func DefaultConfig() Config {
	servers := make([]string, len(DefaultICEServers))
	copy(servers, DefaultICEServers)
	return Config{ICEServers: servers}
}

// SignalSender delivers a signal to peer.
type SignalSender func(peer string, sig protocol.Signal) error

// Options wires a Negotiator to its environment.
type Options struct {
	Config  Config
	Factory Factory
	Media   MediaSource
	Send    SignalSender

	// Confirm asks the user whether to accept a call from the named peer.
	// A nil Confirm declines every call.
	Confirm func(from string) bool

	// Post runs f on the owning event loop. A nil Post runs f inline.
	Post func(f func())

	// OnStateChange observes every state transition.
	OnStateChange func(state State, peer string)
}

// Negotiator drives the call state machine.
type Negotiator struct {
	opts Options

	state     State
	peer      string
	pc        PeerConnection
	media     Media
	remoteSet bool
	pending   []protocol.ICECandidate
	gen       uint64 // bumped on teardown so late callbacks are ignored
}

// NewNegotiator creates an idle Negotiator.
func NewNegotiator(opts Options) *Negotiator {
	if opts.Post == nil {
		opts.Post = func(f func()) { f() }
	}
	if len(opts.Config.ICEServers) == 0 {
		opts.Config = DefaultConfig()
	}
	return &Negotiator{opts: opts}
}

// State returns the current state and peer.
func (n *Negotiator) State() (State, string) {
	return n.state, n.peer
}

// Active reports whether a call is in progress.
func (n *Negotiator) Active() bool {
	return n.state != Idle
}

// Start calls peer: it acquires local media, creates the peer connection and
// sends an offer. Any failure releases what was acquired.
func (n *Negotiator) Start(ctx context.Context, peer string) error {
	if n.state != Idle {
		return ErrCallActive
	}
	if peer == "" {
		return ErrNoPeer
	}

	if err := n.setup(ctx, peer); err != nil {
		metrics.CallsTotal.WithLabelValues("failed").Inc()
		return err
	}

	offer, err := n.pc.CreateOffer()
	if err != nil {
		n.teardown()
		metrics.CallsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("call: create offer: %w", err)
	}
	if err := n.opts.Send(peer, protocol.Signal{Type: protocol.SignalOffer, SDP: &offer}); err != nil {
		n.teardown()
		metrics.CallsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("call: send offer: %w", err)
	}

	metrics.CallsTotal.WithLabelValues("started").Inc()
	log.Info().Msgf("[call] calling %s", peer)
	n.setState(Originating)
	return nil
}

// HandleSignal processes a signal received from another user.
func (n *Negotiator) HandleSignal(ctx context.Context, from string, sig protocol.Signal) error {
	if sig.Type == protocol.SignalOffer && n.state == Idle {
		return n.answer(ctx, from, sig)
	}
	if n.pc == nil {
		log.Debug().Msgf("[call] ignoring %s from %s: no call", sig.Type, from)
		return nil
	}
	if from != n.peer {
		log.Debug().Msgf("[call] ignoring %s from %s: in call with %s", sig.Type, from, n.peer)
		return nil
	}

	switch sig.Type {
	case protocol.SignalAnswer:
		if n.state != Originating || n.remoteSet || sig.SDP == nil {
			return nil
		}
		if err := n.pc.SetRemoteDescription(*sig.SDP); err != nil {
			n.hangup()
			return fmt.Errorf("call: apply answer: %w", err)
		}
		n.remoteSet = true
		n.flushCandidates()
	case protocol.SignalCandidate:
		if sig.Candidate == nil {
			return nil
		}
		if !n.remoteSet {
			n.pending = append(n.pending, *sig.Candidate)
			return nil
		}
		if err := n.pc.AddICECandidate(*sig.Candidate); err != nil {
			log.Warn().Err(err).Msgf("[call] rejected candidate from %s", from)
		}
	case protocol.SignalHangup:
		log.Info().Msgf("[call] %s hung up", from)
		n.teardown()
	}
	return nil
}

// End hangs up the current call, if any.
func (n *Negotiator) End() {
	if n.state == Idle && n.pc == nil {
		return
	}
	n.hangup()
}

func (n *Negotiator) answer(ctx context.Context, from string, sig protocol.Signal) error {
	if sig.SDP == nil {
		return nil
	}
	if n.opts.Confirm == nil || !n.opts.Confirm(from) {
		log.Info().Msgf("[call] declined call from %s", from)
		if err := n.opts.Send(from, protocol.Signal{Type: protocol.SignalHangup}); err != nil {
			log.Warn().Err(err).Msgf("[call] failed to notify %s of decline", from)
		}
		return nil
	}

	if err := n.setup(ctx, from); err != nil {
		metrics.CallsTotal.WithLabelValues("failed").Inc()
		return err
	}
	if err := n.pc.SetRemoteDescription(*sig.SDP); err != nil {
		n.teardown()
		metrics.CallsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("call: apply offer: %w", err)
	}
	n.remoteSet = true
	n.flushCandidates()

	answer, err := n.pc.CreateAnswer()
	if err != nil {
		n.teardown()
		metrics.CallsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("call: create answer: %w", err)
	}
	if err := n.opts.Send(from, protocol.Signal{Type: protocol.SignalAnswer, SDP: &answer}); err != nil {
		n.teardown()
		metrics.CallsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("call: send answer: %w", err)
	}

	metrics.CallsTotal.WithLabelValues("answered").Inc()
	log.Info().Msgf("[call] answered call from %s", from)
	n.setState(Answering)
	return nil
}

// setup acquires media and creates the peer connection with local tracks.
func (n *Negotiator) setup(ctx context.Context, peer string) error {
	media, err := n.opts.Media.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("call: acquire media: %w", err)
	}

	gen := n.gen
	pc, err := n.opts.Factory.New(n.opts.Config, n.handlers(gen))
	if err != nil {
		media.Stop()
		return fmt.Errorf("call: create peer connection: %w", err)
	}

	n.peer = peer
	n.pc = pc
	n.media = media
	if err := pc.AddMedia(media); err != nil {
		n.teardown()
		return fmt.Errorf("call: add tracks: %w", err)
	}
	return nil
}

// handlers binds peer connection callbacks to the current call.
func (n *Negotiator) handlers(gen uint64) Handlers {
	return Handlers{
		OnICECandidate: func(c protocol.ICECandidate) {
			n.opts.Post(func() {
				if gen != n.gen || n.pc == nil {
					return
				}
				cand := c
				if err := n.opts.Send(n.peer, protocol.Signal{Type: protocol.SignalCandidate, Candidate: &cand}); err != nil {
					log.Warn().Err(err).Msg("[call] failed to send candidate")
				}
			})
		},
		OnTrack: func(kind string) {
			n.opts.Post(func() {
				if gen != n.gen || n.pc == nil || n.state == Connected {
					return
				}
				log.Info().Msgf("[call] receiving %s from %s", kind, n.peer)
				metrics.CallsTotal.WithLabelValues("connected").Inc()
				n.setState(Connected)
			})
		},
		OnStateChange: func(s PeerState) {
			if s != PeerFailed && s != PeerClosed {
				return
			}
			n.opts.Post(func() {
				if gen != n.gen || n.pc == nil {
					return
				}
				log.Warn().Msgf("[call] connection %s", s)
				n.hangup()
			})
		},
	}
}

func (n *Negotiator) flushCandidates() {
	for _, c := range n.pending {
		if err := n.pc.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Msg("[call] rejected buffered candidate")
		}
	}
	n.pending = nil
}

// hangup tells the peer the call is over and tears it down.
func (n *Negotiator) hangup() {
	if n.peer != "" {
		if err := n.opts.Send(n.peer, protocol.Signal{Type: protocol.SignalHangup}); err != nil {
			log.Warn().Err(err).Msgf("[call] failed to send hangup to %s", n.peer)
		}
	}
	n.teardown()
}

// teardown releases every call resource and returns to Idle.
func (n *Negotiator) teardown() {
	n.gen++
	if n.pc != nil {
		if err := n.pc.Close(); err != nil {
			log.Warn().Err(err).Msg("[call] close peer connection")
		}
	}
	if n.media != nil {
		n.media.Stop()
	}
	wasActive := n.state != Idle
	n.pc = nil
	n.media = nil
	n.remoteSet = false
	n.pending = nil
	n.peer = ""
	if wasActive {
		metrics.CallsTotal.WithLabelValues("ended").Inc()
	}
	n.setState(Idle)
}

func (n *Negotiator) setState(s State) {
	if n.state == s {
		return
	}
	n.state = s
	if n.opts.OnStateChange != nil {
		n.opts.OnStateChange(s, n.peer)
	}
}

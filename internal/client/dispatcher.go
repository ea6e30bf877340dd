package client

import (
	"github.com/rs/zerolog/log"

	"github.com/longapp/chat-client/internal/protocol"
)

// Handler processes one inbound frame.
type Handler func(in protocol.Inbound)

// Dispatcher routes inbound frames to handlers by event tag. Every frame is
// processed at most once: frames whose sequence number is not greater than
// the last processed one are skipped.
type Dispatcher struct {
	handlers map[string]Handler
	lastSeq  uint64
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register associates a handler with an event tag. If a handler was already
// registered for the tag, it is silently replaced.
func (d *Dispatcher) Register(event string, h Handler) {
	d.handlers[event] = h
}

// Dispatch runs the handler for the frame's event tag. It reports whether a
// handler ran. Unstamped frames (Seq 0) are never treated as duplicates.
func (d *Dispatcher) Dispatch(in protocol.Inbound) bool {
	if in.Seq != 0 {
		if in.Seq <= d.lastSeq {
			log.Debug().Msgf("[dispatch] skipping already processed frame seq=%d", in.Seq)
			return false
		}
		d.lastSeq = in.Seq
	}

	h, ok := d.handlers[in.Event]
	if !ok {
		log.Debug().Msgf("[dispatch] ignoring event %q", in.Event)
		return false
	}
	h(in)
	return true
}

package ws

import "github.com/longapp/chat-client/internal/protocol"

// EventKind discriminates transport events.
type EventKind int

const (
	// Opened is emitted after every successful handshake.
	Opened EventKind = iota
	// Frame carries one parsed inbound frame.
	Frame
	// Closed is emitted when an established connection ends.
	Closed
)

func (k EventKind) String() string {
	switch k {
	case Opened:
		return "opened"
	case Frame:
		return "frame"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is delivered in order on Client.Events.
type Event struct {
	Kind    EventKind
	Inbound protocol.Inbound // set for Frame
	Err     error            // cause, for Closed
}

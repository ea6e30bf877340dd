package call

import (
	"context"

	"github.com/longapp/chat-client/internal/protocol"
)

// PeerState mirrors the peer connection state.
type PeerState int

const (
	PeerNew PeerState = iota
	PeerConnecting
	PeerConnected
	PeerDisconnected
	PeerFailed
	PeerClosed
)

func (s PeerState) String() string {
	switch s {
	case PeerConnecting:
		return "connecting"
	case PeerConnected:
		return "connected"
	case PeerDisconnected:
		return "disconnected"
	case PeerFailed:
		return "failed"
	case PeerClosed:
		return "closed"
	default:
		return "new"
	}
}

// Handlers receives peer connection callbacks. They may fire on any
// goroutine.
type Handlers struct {
	OnICECandidate func(protocol.ICECandidate)
	OnTrack        func(kind string)
	OnStateChange  func(PeerState)
}

// PeerConnection is the subset of a WebRTC peer connection the negotiator
// needs. CreateOffer and CreateAnswer also install the local description.
type PeerConnection interface {
	AddMedia(m Media) error
	CreateOffer() (protocol.SessionDescription, error)
	CreateAnswer() (protocol.SessionDescription, error)
	SetRemoteDescription(protocol.SessionDescription) error
	AddICECandidate(protocol.ICECandidate) error
	Close() error
}

// Factory creates peer connections.
type Factory interface {
	New(cfg Config, h Handlers) (PeerConnection, error)
}

// Media is an acquired set of local tracks.
type Media interface {
	Stop()
}

// MediaSource acquires local media for a call.
type MediaSource interface {
	Acquire(ctx context.Context) (Media, error)
}

package call

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/longapp/chat-client/internal/protocol"
)

// PionFactory creates pion/webrtc peer connections.
type PionFactory struct {
	API *webrtc.API // nil uses the package default
}

func (f PionFactory) New(cfg Config, h Handlers) (PeerConnection, error) {
	conf := webrtc.Configuration{}
	if len(cfg.ICEServers) > 0 {
		conf.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}

	var (
		pc  *webrtc.PeerConnection
		err error
	)
	if f.API != nil {
		pc, err = f.API.NewPeerConnection(conf)
	} else {
		pc, err = webrtc.NewPeerConnection(conf)
	}
	if err != nil {
		return nil, err
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || h.OnICECandidate == nil {
			return
		}
		cand := c.ToJSON()
		h.OnICECandidate(protocol.ICECandidate{
			Candidate:        cand.Candidate,
			SDPMid:           cand.SDPMid,
			SDPMLineIndex:    cand.SDPMLineIndex,
			UsernameFragment: cand.UsernameFragment,
		})
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if h.OnTrack != nil {
			h.OnTrack(track.Kind().String())
		}
		buf := make([]byte, 1500)
		for {
			if _, _, err := track.Read(buf); err != nil {
				return
			}
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if h.OnStateChange != nil {
			h.OnStateChange(peerState(s))
		}
	})

	return &pionPeer{pc: pc}, nil
}

type pionPeer struct {
	pc *webrtc.PeerConnection
}

func (p *pionPeer) AddMedia(m Media) error {
	tracks, ok := m.(interface{ Tracks() []webrtc.TrackLocal })
	if !ok {
		return fmt.Errorf("call: media %T has no pion tracks", m)
	}
	for _, t := range tracks.Tracks() {
		sender, err := p.pc.AddTrack(t)
		if err != nil {
			return err
		}
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()
	}
	return nil
}

func (p *pionPeer) CreateOffer() (protocol.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return protocol.SessionDescription{}, err
	}
	return protocol.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (p *pionPeer) CreateAnswer() (protocol.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return protocol.SessionDescription{}, err
	}
	return protocol.SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (p *pionPeer) SetRemoteDescription(d protocol.SessionDescription) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(d.Type),
		SDP:  d.SDP,
	})
}

func (p *pionPeer) AddICECandidate(c protocol.ICECandidate) error {
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}

func peerState(s webrtc.PeerConnectionState) PeerState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return PeerConnecting
	case webrtc.PeerConnectionStateConnected:
		return PeerConnected
	case webrtc.PeerConnectionStateDisconnected:
		return PeerDisconnected
	case webrtc.PeerConnectionStateFailed:
		return PeerFailed
	case webrtc.PeerConnectionStateClosed:
		return PeerClosed
	default:
		return PeerNew
	}
}

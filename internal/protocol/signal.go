package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SignalMarker prefixes chat message bodies that tunnel call signaling.
// Such messages are never shown in history.
const SignalMarker = "::RTC_SIGNAL::"

// ErrNotSignal is returned by DecodeSignal for ordinary chat bodies.
var ErrNotSignal = errors.New("protocol: body is not a signaling payload")

// SignalType discriminates signaling payloads.
type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
	SignalHangup    SignalType = "hangup"
)

// SessionDescription mirrors the browser RTCSessionDescriptionInit shape.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate mirrors the browser RTCIceCandidateInit shape.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Signal is one offer, answer, ICE candidate or hangup exchanged between
// call peers.
type Signal struct {
	Type      SignalType          `json:"type"`
	SDP       *SessionDescription `json:"sdp,omitempty"`
	Candidate *ICECandidate       `json:"candidate,omitempty"`
}

// IsSignal reports whether a chat body carries the signaling marker.
func IsSignal(body string) bool {
	return strings.HasPrefix(body, SignalMarker)
}

// EncodeSignal serializes a signal into a chat message body.
func EncodeSignal(sig Signal) (string, error) {
	data, err := json.Marshal(sig)
	if err != nil {
		return "", fmt.Errorf("protocol: failed to marshal signal: %w", err)
	}
	return SignalMarker + string(data), nil
}

// DecodeSignal extracts a signal from a chat message body.
func DecodeSignal(body string) (Signal, error) {
	if !IsSignal(body) {
		return Signal{}, ErrNotSignal
	}
	var sig Signal
	if err := json.Unmarshal([]byte(strings.TrimPrefix(body, SignalMarker)), &sig); err != nil {
		return Signal{}, fmt.Errorf("protocol: failed to decode signal: %w", err)
	}
	if sig.Type == "" {
		return Signal{}, fmt.Errorf("protocol: signal without type")
	}
	return sig, nil
}

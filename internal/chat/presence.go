package chat

import "sync"

// PresenceState is the online status of the open conversation's peer.
type PresenceState int

const (
	PresenceUnknown PresenceState = iota
	PresenceOnline
	PresenceOffline
)

func (s PresenceState) String() string {
	switch s {
	case PresenceOnline:
		return "online"
	case PresenceOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Presence tracks the peer status of a single target.
type Presence struct {
	mu     sync.RWMutex
	target string
	state  PresenceState
}

// Reset switches to target with an unknown status.
func (p *Presence) Reset(target string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.target = target
	p.state = PresenceUnknown
}

// Set records the status of target. Answers for any other target are
// ignored and reported as false.
func (p *Presence) Set(target string, online bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if target == "" || target != p.target {
		return false
	}
	if online {
		p.state = PresenceOnline
	} else {
		p.state = PresenceOffline
	}
	return true
}

// State returns the current status and the target it applies to.
func (p *Presence) State() (string, PresenceState) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.target, p.state
}

package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/longapp/chat-client/internal/protocol"
)

// CheckTimeout bounds how long a silent resume may stay unanswered before
// the client falls back to the login screen.
const CheckTimeout = 2 * time.Second

// Sender transmits a request over the chat connection.
type Sender interface {
	Send(event string, data interface{}) error
}

// Resolver replays a stored credential on a fresh connection.
type Resolver struct {
	store *Store
}

// NewResolver creates a Resolver reading credentials from s.
func NewResolver(s *Store) *Resolver {
	return &Resolver{store: s}
}

// Resume sends RE_LOGIN when a credential is stored. It reports whether a
// resume attempt is now pending.
func (r *Resolver) Resume(ctx context.Context, send Sender) (bool, error) {
	cred, ok, err := r.store.Load(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := send.Send(protocol.EventReLogin, protocol.ReLogin{User: cred.Username, Code: cred.Token}); err != nil {
		return false, err
	}
	log.Info().Msgf("[session] resuming session for %s", cred.Username)
	return true, nil
}

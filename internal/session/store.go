package session

import (
	"context"
	"fmt"

	"github.com/longapp/chat-client/internal/store"
)

const (
	// KeyUsername holds the name of the last user that logged in.
	KeyUsername = "username"

	// KeyReLoginCode holds the opaque reauthentication token.
	KeyReLoginCode = "re_login_code"
)

// Credential is the persisted session credential.
type Credential struct {
	Username string
	Token    string
}

// Store manages the session credential on top of a state backend.
type Store struct {
	backend store.Backend
}

// NewStore creates a credential store backed by b.
func NewStore(b store.Backend) *Store {
	return &Store{backend: b}
}

// Load returns the stored credential. The boolean is false unless both the
// username and the token are present.
func (s *Store) Load(ctx context.Context) (Credential, bool, error) {
	token, okToken, err := s.backend.Get(ctx, KeyReLoginCode)
	if err != nil {
		return Credential{}, false, fmt.Errorf("session: load token: %w", err)
	}
	user, okUser, err := s.backend.Get(ctx, KeyUsername)
	if err != nil {
		return Credential{}, false, fmt.Errorf("session: load username: %w", err)
	}
	cred := Credential{Username: user, Token: token}
	return cred, okToken && okUser && token != "" && user != "", nil
}

// Username returns the stored username, or "" if none.
func (s *Store) Username(ctx context.Context) (string, error) {
	user, _, err := s.backend.Get(ctx, KeyUsername)
	if err != nil {
		return "", fmt.Errorf("session: load username: %w", err)
	}
	return user, nil
}

// Save stores the token issued at login together with the username.
func (s *Store) Save(ctx context.Context, username, token string) error {
	if err := s.backend.Set(ctx, KeyReLoginCode, token); err != nil {
		return fmt.Errorf("session: save token: %w", err)
	}
	if err := s.backend.Set(ctx, KeyUsername, username); err != nil {
		return fmt.Errorf("session: save username: %w", err)
	}
	return nil
}

// UpdateToken replaces the token after a successful silent resume.
func (s *Store) UpdateToken(ctx context.Context, token string) error {
	if err := s.backend.Set(ctx, KeyReLoginCode, token); err != nil {
		return fmt.Errorf("session: update token: %w", err)
	}
	return nil
}

// Clear invalidates the credential on logout. The username is kept so the
// login form can be prefilled.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx, KeyReLoginCode); err != nil {
		return fmt.Errorf("session: clear token: %w", err)
	}
	return nil
}

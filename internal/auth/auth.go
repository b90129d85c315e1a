// Package auth provides the optional signed-in identity that decides which
// persistence backend is active.
package auth

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotSignedIn        = errors.New("not signed in")
	ErrRemoteUnavailable  = errors.New("remote store is not configured")
	ErrEmailTaken         = errors.New("email already registered")
)

type Identity struct {
	UID   string
	Email string
}

// Authenticator is the sign-in collaborator. Current reports the identity
// restored from a previous run, if any.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (Identity, error)
	SignOut(ctx context.Context) error
	Current(ctx context.Context) (Identity, bool)
}

// Session holds the current identity, if any.
type Session struct {
	mu sync.RWMutex
	id *Identity
}

func (s *Session) Set(id Identity) {
	s.mu.Lock()
	s.id = &id
	s.mu.Unlock()
}

func (s *Session) Clear() {
	s.mu.Lock()
	s.id = nil
	s.mu.Unlock()
}

func (s *Session) Current() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.id == nil {
		return Identity{}, false
	}
	return *s.id, true
}

type offline struct{}

// Offline is used when no remote store is configured.
func Offline() Authenticator { return offline{} }

func (offline) SignIn(context.Context, string, string) (Identity, error) {
	return Identity{}, ErrRemoteUnavailable
}

func (offline) SignOut(context.Context) error { return nil }

func (offline) Current(context.Context) (Identity, bool) { return Identity{}, false }

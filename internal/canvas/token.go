package canvas

import (
	"context"
	"errors"
)

// ErrNoToken is returned when no Canvas credential is available for the
// caller; the user must authorize Canvas access first.
var ErrNoToken = errors.New("no canvas token available")

// TokenSource yields a bearer token for outbound Canvas calls
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// RefreshableTokenSource can replace a rejected token with a fresh one.
// The client uses it for the single transparent retry after a 401.
type RefreshableTokenSource interface {
	TokenSource
	// Refresh discards the current token and returns a new one. A failed
	// refresh must leave the caller in a state where Token also fails, so
	// the user is told to re-authorize.
	Refresh(ctx context.Context) (string, error)
}

// StaticTokenSource wraps a fixed admin API token
type StaticTokenSource struct {
	token string
}

// NewStaticTokenSource creates a token source around a fixed token
func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

// Token returns the configured token
func (s *StaticTokenSource) Token(ctx context.Context) (string, error) {
	if s.token == "" {
		return "", ErrNoToken
	}
	return s.token, nil
}

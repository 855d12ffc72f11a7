// Package auth supplies bearer-token headers for stream connections.
//
// Tokens are never verified here; the server does that. A token that is a
// JWT is inspected for its "exp" claim so an expired credential fails fast
// instead of costing a round trip and a retry.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ggoodman/tradestream-go/stream"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoToken is returned when a source has no token to offer.
	ErrNoToken = errors.New("auth: no token")
	// ErrTokenExpired is returned when a JWT's exp claim is in the past.
	ErrTokenExpired = errors.New("auth: token expired")
)

// TokenSource yields the bearer token for the next connection attempt.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

func (f TokenSourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken is a fixed token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", ErrNoToken
	}
	return string(t), nil
}

// Option configures Bearer.
type Option func(*bearer)

// WithLeeway tolerates clock skew when checking expiry.
func WithLeeway(d time.Duration) Option {
	return func(b *bearer) { b.leeway = d }
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(b *bearer) { b.now = now }
}

type bearer struct {
	src    TokenSource
	leeway time.Duration
	now    func() time.Time
}

// Bearer returns a header source that sets "Authorization: Bearer <token>"
// from src on every connection attempt.
func Bearer(src TokenSource, opts ...Option) stream.HeaderFunc {
	b := &bearer{src: src, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b.header
}

func (b *bearer) header(ctx context.Context) (http.Header, error) {
	tok, err := b.src.Token(ctx)
	if err != nil {
		return nil, err
	}
	if tok == "" {
		return nil, ErrNoToken
	}
	if err := CheckExpiry(tok, b.now(), b.leeway); err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+tok)
	return h, nil
}

// CheckExpiry reports ErrTokenExpired when tok is a JWT whose exp claim,
// extended by leeway, is before now. Opaque tokens and JWTs without exp
// pass. The signature is not checked.
func CheckExpiry(tok string, now time.Time, leeway time.Duration) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("auth: read exp claim: %w", err)
	}
	if exp == nil {
		return nil
	}
	if now.After(exp.Add(leeway)) {
		return fmt.Errorf("%w: expired at %s", ErrTokenExpired, exp.UTC().Format(time.RFC3339))
	}
	return nil
}

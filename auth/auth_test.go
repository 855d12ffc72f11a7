package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestBearerSetsAuthorization(t *testing.T) {
	h, err := Bearer(StaticToken("opaque-token"))(context.Background())
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if got := h.Get("Authorization"); got != "Bearer opaque-token" {
		t.Fatalf("unexpected header %q", got)
	}
}

func TestBearerConsultsSourceEachTime(t *testing.T) {
	n := 0
	f := Bearer(TokenSourceFunc(func(context.Context) (string, error) {
		n++
		if n == 1 {
			return "first", nil
		}
		return "second", nil
	}))

	h1, _ := f(context.Background())
	h2, _ := f(context.Background())
	if h1.Get("Authorization") != "Bearer first" || h2.Get("Authorization") != "Bearer second" {
		t.Fatalf("unexpected headers %q %q", h1.Get("Authorization"), h2.Get("Authorization"))
	}
}

func TestBearerRejectsMissingToken(t *testing.T) {
	if _, err := Bearer(StaticToken(""))(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
	empty := TokenSourceFunc(func(context.Context) (string, error) { return "", nil })
	if _, err := Bearer(empty)(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestBearerRejectsExpiredJWT(t *testing.T) {
	tok := signToken(t, jwt.MapClaims{"sub": "acct", "exp": now.Add(-time.Minute).Unix()})
	f := Bearer(StaticToken(tok), WithClock(func() time.Time { return now }))

	if _, err := f(context.Background()); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	lenient := Bearer(StaticToken(tok), WithClock(func() time.Time { return now }), WithLeeway(2*time.Minute))
	if _, err := lenient(context.Background()); err != nil {
		t.Fatalf("leeway should accept token: %v", err)
	}
}

func TestCheckExpiry(t *testing.T) {
	cases := []struct {
		name    string
		tok     string
		wantErr error
	}{
		{"opaque", "not-a-jwt", nil},
		{"no exp", signToken(t, jwt.MapClaims{"sub": "acct"}), nil},
		{"valid", signToken(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()}), nil},
		{"expired", signToken(t, jwt.MapClaims{"exp": now.Add(-time.Hour).Unix()}), ErrTokenExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckExpiry(tc.tok, now, 0)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

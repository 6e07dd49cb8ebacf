// Package session persists the client-side proof of authentication: the
// bearer token, the username it belongs to, and the logged-in flag.
//
// Token presence is the single source of truth for "logged in". The flag is
// still written so that stores shared with older clients stay readable, but
// IsLoggedIn never trusts it on its own.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/thoughtnest/nestclient/internal/apperr"
)

// Persisted keys.
const (
	KeyToken         = "token"
	KeyUsername      = "username"
	KeyLoggedIn      = "loggedIn"
	KeyVisitedBefore = "visitedBefore"
)

// Store is the session lifecycle contract shared by every component that
// needs to know who the user is.
type Store interface {
	// Save records token and username and marks the session logged in.
	// The three keys are written together or not at all.
	Save(ctx context.Context, token, username string) error
	// Clear removes token, username and the logged-in flag.
	Clear(ctx context.Context) error
	// IsLoggedIn reports whether a non-empty token is stored.
	IsLoggedIn(ctx context.Context) bool
	// Token returns the stored token; ok is false when absent.
	Token(ctx context.Context) (token string, ok bool)
	// Username returns the stored username; ok is false when absent.
	Username(ctx context.Context) (username string, ok bool)
	// VisitedBefore reports whether this client has been marked as a returning visitor.
	VisitedBefore(ctx context.Context) bool
	// MarkVisited sets the returning-visitor flag.
	MarkVisited(ctx context.Context) error
	// ForgetVisit removes the returning-visitor flag.
	ForgetVisit(ctx context.Context) error
}

// Reconcile clears a logged-in flag left behind without a token. It returns
// true when it had to repair the store.
func Reconcile(ctx context.Context, s Store) (bool, error) {
	if s.IsLoggedIn(ctx) {
		return false, nil
	}
	flagged, err := flagSet(ctx, s)
	if err != nil || !flagged {
		return false, err
	}
	if err := s.Clear(ctx); err != nil {
		return false, fmt.Errorf("session: reconcile: %w", err)
	}
	return true, nil
}

type flagReader interface {
	loggedInFlag(ctx context.Context) (bool, error)
}

func flagSet(ctx context.Context, s Store) (bool, error) {
	if fr, ok := s.(flagReader); ok {
		return fr.loggedInFlag(ctx)
	}
	return false, nil
}

// SubjectFromToken extracts the identity carried by a JWT without verifying
// its signature (the backend does that). The "sub" claim wins over
// "username". A token that cannot be decoded yields apperr.ErrNoSession.
func SubjectFromToken(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", apperr.ErrNoSession
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("session: decode token: %w", errors.Join(apperr.ErrNoSession, err))
	}
	if sub, _ := claims["sub"].(string); sub != "" {
		return sub, nil
	}
	if name, _ := claims["username"].(string); name != "" {
		return name, nil
	}
	return "", fmt.Errorf("session: token has no subject: %w", apperr.ErrNoSession)
}

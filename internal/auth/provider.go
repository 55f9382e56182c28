package auth

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials is returned by SignInWithPassword for a bad
	// email/password pair.
	ErrInvalidCredentials = errors.New("invalid login credentials")
	// ErrNoSession is returned when a token does not identify a live session.
	ErrNoSession = errors.New("no session")
)

// User is the identity behind a session.
type User struct {
	ID    string
	Email string
}

// Session is an issued login.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         User
}

// Provider is the authentication service issuing and validating sessions.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	// GetUser returns the user owning accessToken, or ErrNoSession.
	GetUser(ctx context.Context, accessToken string) (*User, error)
	// Refresh exchanges a refresh token for a new session.
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

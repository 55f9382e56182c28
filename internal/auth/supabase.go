package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/edvart/property-listings/internal/supabase"
)

// SupabaseProvider authenticates through Supabase Auth. It must wrap a
// client built with the publishable key.
type SupabaseProvider struct {
	auth *supabase.AuthClient
}

func NewSupabaseProvider(client *supabase.Client) *SupabaseProvider {
	return &SupabaseProvider{auth: client.Auth()}
}

func (p *SupabaseProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	s, err := p.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		if isClientError(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return toSession(s), nil
}

func (p *SupabaseProvider) GetUser(ctx context.Context, accessToken string) (*User, error) {
	u, err := p.auth.GetUser(ctx, accessToken)
	if err != nil {
		if isClientError(err) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	return &User{ID: u.ID, Email: u.Email}, nil
}

func (p *SupabaseProvider) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	s, err := p.auth.RefreshToken(ctx, refreshToken)
	if err != nil {
		if isClientError(err) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	return toSession(s), nil
}

func (p *SupabaseProvider) SignOut(ctx context.Context, accessToken string) error {
	err := p.auth.SignOut(ctx, accessToken)
	if isClientError(err) {
		// Already expired or revoked.
		return nil
	}
	return err
}

func toSession(s *supabase.Session) *Session {
	session := &Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	}
	switch {
	case s.ExpiresAt > 0:
		session.ExpiresAt = time.Unix(s.ExpiresAt, 0)
	case s.ExpiresIn > 0:
		session.ExpiresAt = time.Now().Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	if s.User != nil {
		session.User = User{ID: s.User.ID, Email: s.User.Email}
	}
	return session
}

func isClientError(err error) bool {
	var apiErr *supabase.Error
	return errors.As(err, &apiErr) &&
		apiErr.StatusCode >= http.StatusBadRequest &&
		apiErr.StatusCode < http.StatusInternalServerError
}

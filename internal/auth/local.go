package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/edvart/property-listings/internal/store"
)

// LocalProvider authenticates against users kept in the local database.
// Access tokens are opaque session ids; refresh is not supported.
type LocalProvider struct {
	store store.UserStore
	now   func() time.Time
}

func NewLocalProvider(s store.UserStore) *LocalProvider {
	return &LocalProvider{store: s, now: time.Now}
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CreateUser creates or resets the password of a local user.
func (p *LocalProvider) CreateUser(ctx context.Context, email, password string) (*User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := p.now()
	u := &store.User{
		ID:           uuid.New().String(),
		Email:        normalizeEmail(email),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.store.UpsertUser(ctx, u); err != nil {
		return nil, err
	}

	saved, err := p.store.GetUserByEmail(ctx, u.Email)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, errors.New("user not saved")
	}
	return &User{ID: saved.ID, Email: saved.Email}, nil
}

func (p *LocalProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	u, err := p.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	sessionID, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	now := p.now()
	session := &store.Session{
		ID:        sessionID,
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(SessionDuration),
	}
	if err := p.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return &Session{
		AccessToken: sessionID,
		ExpiresAt:   session.ExpiresAt,
		User:        User{ID: u.ID, Email: u.Email},
	}, nil
}

func (p *LocalProvider) GetUser(ctx context.Context, accessToken string) (*User, error) {
	session, err := p.store.GetSession(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoSession
	}

	u, err := p.store.GetUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNoSession
	}
	return &User{ID: u.ID, Email: u.Email}, nil
}

func (p *LocalProvider) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	return nil, ErrNoSession
}

func (p *LocalProvider) SignOut(ctx context.Context, accessToken string) error {
	return p.store.DeleteSession(ctx, accessToken)
}

// PruneSessions removes expired sessions.
func (p *LocalProvider) PruneSessions(ctx context.Context) error {
	return p.store.DeleteExpiredSessions(ctx)
}

func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

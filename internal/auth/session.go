package auth

import (
	"context"
	"net/http"
	"time"
)

const (
	AccessCookieName  = "sb-access-token"
	RefreshCookieName = "sb-refresh-token"
	SessionDuration   = 7 * 24 * time.Hour
)

// Credentials gives read access to the cookies of one request.
type Credentials interface {
	Cookie(name string) (string, bool)
}

type requestCredentials struct {
	r *http.Request
}

// FromRequest exposes the cookies of r as Credentials.
func FromRequest(r *http.Request) Credentials {
	return requestCredentials{r: r}
}

func (c requestCredentials) Cookie(name string) (string, bool) {
	cookie, err := c.r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// CookieMap is a fixed set of credentials.
type CookieMap map[string]string

func (m CookieMap) Cookie(name string) (string, bool) {
	v, ok := m[name]
	return v, ok && v != ""
}

// SessionManager keeps the provider session in cookies.
type SessionManager struct {
	provider Provider
	verifier *TokenVerifier
	secure   bool
}

// NewSessionManager creates a session manager. verifier may be nil, in
// which case every lookup goes to the provider.
func NewSessionManager(provider Provider, verifier *TokenVerifier, secureCookies bool) *SessionManager {
	return &SessionManager{provider: provider, verifier: verifier, secure: secureCookies}
}

// SignIn authenticates against the provider and sets the session cookies.
func (sm *SessionManager) SignIn(ctx context.Context, w http.ResponseWriter, email, password string) (*Session, error) {
	session, err := sm.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	sm.setCookies(w, session)
	return session, nil
}

// SignOut ends the provider session, if any, and clears the cookies.
func (sm *SessionManager) SignOut(ctx context.Context, w http.ResponseWriter, creds Credentials) error {
	defer sm.clearCookies(w)

	token, ok := creds.Cookie(AccessCookieName)
	if !ok {
		return nil
	}
	return sm.provider.SignOut(ctx, token)
}

// CurrentUser asks the provider who owns the access token. It never trusts
// the token contents alone.
func (sm *SessionManager) CurrentUser(ctx context.Context, creds Credentials) (*User, error) {
	token, ok := creds.Cookie(AccessCookieName)
	if !ok {
		return nil, nil
	}
	return sm.provider.GetUser(ctx, token)
}

// PeekUser reads the user from a locally verified token when a verifier is
// configured and falls back to the provider otherwise.
func (sm *SessionManager) PeekUser(ctx context.Context, creds Credentials) (*User, error) {
	token, ok := creds.Cookie(AccessCookieName)
	if !ok {
		return nil, nil
	}
	if sm.verifier != nil {
		if user, err := sm.verifier.Verify(token); err == nil {
			return user, nil
		}
	}
	return sm.provider.GetUser(ctx, token)
}

// Refresh trades the refresh cookie for a new session and rewrites the
// cookies. It returns nil when there is nothing to refresh.
func (sm *SessionManager) Refresh(ctx context.Context, w http.ResponseWriter, creds Credentials) (*User, error) {
	refresh, ok := creds.Cookie(RefreshCookieName)
	if !ok {
		return nil, nil
	}
	session, err := sm.provider.Refresh(ctx, refresh)
	if err != nil {
		sm.clearCookies(w)
		return nil, err
	}
	sm.setCookies(w, session)
	return &session.User, nil
}

func (sm *SessionManager) setCookies(w http.ResponseWriter, session *Session) {
	expires := session.ExpiresAt
	if expires.IsZero() {
		expires = time.Now().Add(time.Hour)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookieName,
		Value:    session.AccessToken,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})

	if session.RefreshToken != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     RefreshCookieName,
			Value:    session.RefreshToken,
			Path:     "/",
			Expires:  time.Now().Add(SessionDuration),
			HttpOnly: true,
			Secure:   sm.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (sm *SessionManager) clearCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
	}
}

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvart/property-listings/internal/store"
)

// fakeProvider accepts one password and maps tokens to users.
type fakeProvider struct {
	password  string
	users     map[string]*User
	refreshed map[string]*Session
	getCalls  int
	signedOut []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		password:  "secret",
		users:     map[string]*User{},
		refreshed: map[string]*Session{},
	}
}

func (p *fakeProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	if password != p.password {
		return nil, ErrInvalidCredentials
	}
	u := &User{ID: "u-" + email, Email: email}
	p.users["tok-"+email] = u
	return &Session{AccessToken: "tok-" + email, RefreshToken: "ref-" + email, ExpiresAt: time.Now().Add(time.Hour), User: *u}, nil
}

func (p *fakeProvider) GetUser(ctx context.Context, token string) (*User, error) {
	p.getCalls++
	if u, ok := p.users[token]; ok {
		return u, nil
	}
	return nil, ErrNoSession
}

func (p *fakeProvider) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if s, ok := p.refreshed[refreshToken]; ok {
		p.users[s.AccessToken] = &s.User
		return s, nil
	}
	return nil, ErrNoSession
}

func (p *fakeProvider) SignOut(ctx context.Context, token string) error {
	p.signedOut = append(p.signedOut, token)
	delete(p.users, token)
	return nil
}

func cookieValue(rec *httptest.ResponseRecorder, name string) (string, bool) {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

func TestSessionManagerSignInAndOut(t *testing.T) {
	ctx := context.Background()
	provider := newFakeProvider()
	sm := NewSessionManager(provider, nil, false)

	_, err := sm.SignIn(ctx, httptest.NewRecorder(), "a@x.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	rec := httptest.NewRecorder()
	session, err := sm.SignIn(ctx, rec, "a@x.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", session.User.Email)

	token, ok := cookieValue(rec, AccessCookieName)
	require.True(t, ok)
	assert.Equal(t, "tok-a@x.com", token)

	creds := CookieMap{AccessCookieName: token}
	got, err := sm.CurrentUser(ctx, creds)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)

	rec = httptest.NewRecorder()
	require.NoError(t, sm.SignOut(ctx, rec, creds))
	assert.Equal(t, []string{token}, provider.signedOut)
	cleared, ok := cookieValue(rec, AccessCookieName)
	assert.True(t, ok)
	assert.Empty(t, cleared)

	_, err = sm.CurrentUser(ctx, creds)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestCurrentUserWithoutCookie(t *testing.T) {
	sm := NewSessionManager(newFakeProvider(), nil, false)
	user, err := sm.CurrentUser(context.Background(), CookieMap{})
	assert.NoError(t, err)
	assert.Nil(t, user)
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: AccessCookieName, Value: "abc"})
	r.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: ""})

	creds := FromRequest(r)
	v, ok := creds.Cookie(AccessCookieName)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)
	_, ok = creds.Cookie(RefreshCookieName)
	assert.False(t, ok)
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestTokenVerifier(t *testing.T) {
	assert.Nil(t, NewTokenVerifier(""))

	v := NewTokenVerifier("jwt-secret")
	valid := signToken(t, "jwt-secret", jwt.MapClaims{
		"sub":   "u1",
		"email": "admin@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	user, err := v.Verify(valid)
	require.NoError(t, err)
	assert.Equal(t, &User{ID: "u1", Email: "admin@example.com"}, user)

	expired := signToken(t, "jwt-secret", jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Minute).Unix()})
	_, err = v.Verify(expired)
	assert.Error(t, err)

	wrongKey := signToken(t, "other", jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(time.Hour).Unix()})
	_, err = v.Verify(wrongKey)
	assert.Error(t, err)

	noExp := signToken(t, "jwt-secret", jwt.MapClaims{"sub": "u1"})
	_, err = v.Verify(noExp)
	assert.Error(t, err)
}

func TestPeekUserPrefersVerifier(t *testing.T) {
	provider := newFakeProvider()
	sm := NewSessionManager(provider, NewTokenVerifier("jwt-secret"), false)

	token := signToken(t, "jwt-secret", jwt.MapClaims{
		"sub":   "u1",
		"email": "admin@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	user, err := sm.PeekUser(context.Background(), CookieMap{AccessCookieName: token})
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", user.Email)
	assert.Zero(t, provider.getCalls)

	_, err = sm.PeekUser(context.Background(), CookieMap{AccessCookieName: "opaque"})
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, 1, provider.getCalls)
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	defer db.Close()

	p := NewLocalProvider(db)
	created, err := p.CreateUser(ctx, " Admin@Example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", created.Email)

	_, err = p.SignInWithPassword(ctx, "admin@example.com", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = p.SignInWithPassword(ctx, "ghost@example.com", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	session, err := p.SignInWithPassword(ctx, "ADMIN@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, created.ID, session.User.ID)

	user, err := p.GetUser(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", user.Email)

	require.NoError(t, p.SignOut(ctx, session.AccessToken))
	_, err = p.GetUser(ctx, session.AccessToken)
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = p.Refresh(ctx, "anything")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.NoError(t, p.PruneSessions(ctx))
}

func TestLoginLimiter(t *testing.T) {
	logger, hook := test.NewNullLogger()
	rl := NewLoginLimiter(1, 2, logger)

	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(method, addr string) int {
		r := httptest.NewRequest(method, LoginPath, nil)
		r.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, do(http.MethodPost, "10.0.0.1:1000"))
	assert.Equal(t, http.StatusNoContent, do(http.MethodPost, "10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodPost, "10.0.0.1:1002"))
	assert.Equal(t, http.StatusNoContent, do(http.MethodGet, "10.0.0.1:1003"), "GET is not throttled")
	assert.Equal(t, http.StatusNoContent, do(http.MethodPost, "10.0.0.2:1000"))

	require.NotEmpty(t, hook.Entries)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

package auth

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
)

const (
	AuthCheckPath = "/admin/auth"
	LoginPath     = "/admin/login"
	LogoutPath    = "/admin/logout"
)

type contextKey string

const userContextKey = contextKey("admin_user")

// UserFromContext returns the user the gate let through, if any.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userContextKey).(*User)
	return u
}

// Refresher renews an expired session from its refresh cookie.
type Refresher interface {
	Refresh(ctx context.Context, w http.ResponseWriter, creds Credentials) (*User, error)
}

// Gate protects admin pages. Callers that fail are redirected to the login
// page. The auth check endpoint is never gated so that asking "am I an
// admin" cannot itself redirect. Login and logout accept any signed-in
// user: redirecting them to login would bounce forever.
type Gate struct {
	users     UserResolver
	refresher Refresher
	allow     AllowList
	logger    logrus.FieldLogger
}

// NewGate creates a gate. refresher may be nil.
func NewGate(users UserResolver, refresher Refresher, allow AllowList, logger logrus.FieldLogger) *Gate {
	return &Gate{users: users, refresher: refresher, allow: allow, logger: logger}
}

func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == AuthCheckPath {
			next.ServeHTTP(w, r)
			return
		}

		isLogin := r.URL.Path == LoginPath
		anyUser := isLogin || r.URL.Path == LogoutPath
		user := g.resolve(w, r)

		if user == nil {
			if isLogin {
				next.ServeHTTP(w, r)
				return
			}
			g.redirect(w, r, "no session")
			return
		}

		if !anyUser && !g.allow.Contains(user.Email) {
			g.redirect(w, r, "not an allowed admin")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Gate) resolve(w http.ResponseWriter, r *http.Request) *User {
	creds := FromRequest(r)

	user, err := g.users.CurrentUser(r.Context(), creds)
	if err == nil && user != nil {
		return user
	}
	if g.refresher == nil {
		return nil
	}

	user, err = g.refresher.Refresh(r.Context(), w, creds)
	if err != nil {
		g.logger.WithError(err).Debug("Session refresh failed")
		return nil
	}
	return user
}

func (g *Gate) redirect(w http.ResponseWriter, r *http.Request, reason string) {
	g.logger.WithFields(logrus.Fields{
		"path":   r.URL.Path,
		"reason": reason,
	}).Debug("Redirecting to admin login")
	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
}

package auth

import (
	"context"
	"net/http"
	"os"
	"strings"
)

// Environment keys holding the administrator allow-list.
const (
	EnvAdminEmails = "ADMIN_EMAILS"
	EnvAdminEmail  = "ADMIN_EMAIL"
)

// Error messages for non-authorized outcomes.
const (
	MsgNoSession     = "no session"
	MsgForbidden     = "forbidden"
	MsgMisconfigured = "server misconfiguration"
)

// AllowList resolves the administrator emails from configuration each time
// it is asked. Nothing is cached.
type AllowList struct {
	lookup func(key string) (string, bool)
}

// EnvAllowList reads ADMIN_EMAILS, falling back to ADMIN_EMAIL only when
// ADMIN_EMAILS is unset.
func EnvAllowList() AllowList {
	return AllowList{lookup: os.LookupEnv}
}

// StaticAllowList serves a fixed comma-separated list.
func StaticAllowList(emails string) AllowList {
	return AllowList{lookup: func(key string) (string, bool) {
		if key == EnvAdminEmails {
			return emails, true
		}
		return "", false
	}}
}

func (a AllowList) raw() string {
	if a.lookup == nil {
		return ""
	}
	if v, ok := a.lookup(EnvAdminEmails); ok {
		return v
	}
	v, _ := a.lookup(EnvAdminEmail)
	return v
}

// Emails returns the normalized, non-empty emails in configured order.
func (a AllowList) Emails() []string {
	var emails []string
	for _, e := range strings.Split(a.raw(), ",") {
		if e = normalizeEmail(e); e != "" {
			emails = append(emails, e)
		}
	}
	return emails
}

// Contains reports whether email is listed. An empty email never is.
func (a AllowList) Contains(email string) bool {
	return contains(a.Emails(), email)
}

func contains(emails []string, email string) bool {
	email = normalizeEmail(email)
	if email == "" {
		return false
	}
	for _, e := range emails {
		if e == email {
			return true
		}
	}
	return false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Outcome is the result of an admin check. The zero value is Unauthorized.
type Outcome int

const (
	Unauthorized Outcome = iota
	Authorized
	Misconfigured
	Forbidden
)

func (o Outcome) String() string {
	switch o {
	case Authorized:
		return "authorized"
	case Misconfigured:
		return "misconfigured"
	case Forbidden:
		return "forbidden"
	default:
		return "unauthorized"
	}
}

// Decision is what the guard concluded about a caller.
type Decision struct {
	Outcome Outcome
	// User is set whenever a session was resolved, even if not allowed.
	User *User
}

// Status maps the outcome to an HTTP status code.
func (d Decision) Status() int {
	switch d.Outcome {
	case Authorized:
		return http.StatusOK
	case Misconfigured:
		return http.StatusInternalServerError
	case Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}

// Message is the JSON error message for a non-authorized outcome.
func (d Decision) Message() string {
	switch d.Outcome {
	case Authorized:
		return ""
	case Misconfigured:
		return MsgMisconfigured
	case Forbidden:
		return MsgForbidden
	default:
		return MsgNoSession
	}
}

// UserResolver finds the user behind a set of request credentials.
// A nil user with a nil error means there is no session.
type UserResolver interface {
	CurrentUser(ctx context.Context, creds Credentials) (*User, error)
}

// ResolverFunc adapts a function to UserResolver.
type ResolverFunc func(ctx context.Context, creds Credentials) (*User, error)

func (f ResolverFunc) CurrentUser(ctx context.Context, creds Credentials) (*User, error) {
	return f(ctx, creds)
}

// Guard decides whether a caller may use the admin API.
type Guard struct {
	users UserResolver
	allow AllowList
}

func NewGuard(users UserResolver, allow AllowList) *Guard {
	return &Guard{users: users, allow: allow}
}

// Check resolves the caller and tests the allow-list, read fresh on every
// call.
func (g *Guard) Check(ctx context.Context, creds Credentials) Decision {
	user, err := g.users.CurrentUser(ctx, creds)
	if err != nil || user == nil {
		return Decision{Outcome: Unauthorized}
	}
	return g.Authorize(user)
}

// Authorize tests an already resolved user against the allow-list.
func (g *Guard) Authorize(user *User) Decision {
	if user == nil {
		return Decision{Outcome: Unauthorized}
	}

	emails := g.allow.Emails()
	if len(emails) == 0 {
		return Decision{Outcome: Misconfigured, User: user}
	}

	if !contains(emails, user.Email) {
		return Decision{Outcome: Forbidden, User: user}
	}

	return Decision{Outcome: Authorized, User: user}
}

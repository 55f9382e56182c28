// Package supabase is a small REST client for the hosted platform that holds
// the listing data: GoTrue auth, PostgREST tables and Storage buckets.
package supabase

import (
	"errors"
	"time"
)

// Config holds Supabase client configuration.
type Config struct {
	// ProjectURL is the Supabase project URL (e.g., https://xxx.supabase.co)
	ProjectURL string

	// APIKey is sent as the apikey header and as the default bearer token.
	// It is either the publishable key or the service role key.
	APIKey string

	// Timeout for HTTP requests
	Timeout time.Duration

	// DefaultHeaders are added to every request
	DefaultHeaders map[string]string
}

// User represents a Supabase user.
type User struct {
	ID           string                 `json:"id"`
	Aud          string                 `json:"aud"`
	Role         string                 `json:"role"`
	Email        string                 `json:"email"`
	LastSignInAt *time.Time             `json:"last_sign_in_at,omitempty"`
	AppMetadata  map[string]interface{} `json:"app_metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Session represents an auth session.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}

// OrderDirection for sorting.
type OrderDirection string

const (
	OrderAsc  OrderDirection = "asc"
	OrderDesc OrderDirection = "desc"
)

// UploadOptions for file uploads.
type UploadOptions struct {
	ContentType  string
	CacheControl string
	Upsert       bool
}

// CodeNoRows is the PostgREST code for a single-object request matching no row.
const CodeNoRows = "PGRST116"

// Error represents a Supabase API error.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Hint       string `json:"hint,omitempty"`
	StatusCode int    `json:"status_code"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// IsNoRows reports whether err is PostgREST's "no rows" answer to Single().
func IsNoRows(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == CodeNoRows
}

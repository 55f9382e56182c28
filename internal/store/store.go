package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a property row does not exist.
var ErrNotFound = errors.New("property not found")

// Status is the commercial state of a listing.
type Status string

const (
	StatusAvailable Status = "available"
	StatusSold      Status = "sold"
	StatusRented    Status = "rented"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusAvailable, StatusSold, StatusRented}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

// Label returns the human readable label shown on the site.
func (s Status) Label() string {
	switch s {
	case StatusAvailable:
		return "Disponible"
	case StatusSold:
		return "Vendida"
	case StatusRented:
		return "Arrendada"
	default:
		return string(s)
	}
}

type Property struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	Title        string    `json:"title"`
	Description  *string   `json:"description"`
	LocationText *string   `json:"location_text"`
	Price        *float64  `json:"price"`
	Currency     *string   `json:"currency"`
	AreaM2       *float64  `json:"area_m2"`
	ContactPhone *string   `json:"contact_phone"`
	Highlighted  bool      `json:"highlighted"`
	Status       Status    `json:"status"`
	Images       []string  `json:"images"`
	CreatedAt    time.Time `json:"created_at"`
}

// PropertyInput holds the editable fields of a property.
type PropertyInput struct {
	Title        string   `json:"title"`
	Description  *string  `json:"description"`
	LocationText *string  `json:"location_text"`
	Price        *float64 `json:"price"`
	Currency     *string  `json:"currency,omitempty"`
	AreaM2       *float64 `json:"area_m2"`
	ContactPhone *string  `json:"contact_phone"`
	Highlighted  bool     `json:"highlighted"`
	Status       Status   `json:"status"`
}

type ListOptions struct {
	HighlightedOnly bool
	Limit           int
}

// PropertyStore is the relational store holding property rows.
type PropertyStore interface {
	ListProperties(ctx context.Context, opts ListOptions) ([]Property, error)
	GetProperty(ctx context.Context, id string) (*Property, error)
	GetPropertyBySlug(ctx context.Context, slug string) (*Property, error)
	PropertyImages(ctx context.Context, id string) ([]string, error)

	CreateProperty(ctx context.Context, slug string, in PropertyInput) (*Property, error)
	UpdateProperty(ctx context.Context, id string, in PropertyInput, images []string) error
	SetPropertyImages(ctx context.Context, id string, images []string) error

	// DeleteProperty removes the row and returns the ids actually deleted.
	// An empty result means nothing matched.
	DeleteProperty(ctx context.Context, id string) ([]string, error)
}

// User is a locally managed administrator account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// UserStore backs the local authentication provider.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpsertUser(ctx context.Context, user *User) error

	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteExpiredSessions(ctx context.Context) error
}

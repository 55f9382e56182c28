package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements PropertyStore and UserStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS properties (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			description TEXT,
			location_text TEXT,
			price REAL,
			currency TEXT,
			area_m2 REAL,
			contact_phone TEXT,
			highlighted INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'available',
			images TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_properties_created ON properties(created_at)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const propertyColumns = `id, slug, title, description, location_text, price, currency,
	area_m2, contact_phone, highlighted, status, images, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProperty(row rowScanner) (*Property, error) {
	var (
		p                                      Property
		description, location, currency, phone sql.NullString
		price, area                            sql.NullFloat64
		status, images                         string
	)
	if err := row.Scan(
		&p.ID, &p.Slug, &p.Title, &description, &location, &price, &currency,
		&area, &phone, &p.Highlighted, &status, &images, &p.CreatedAt,
	); err != nil {
		return nil, err
	}

	p.Description = nullString(description)
	p.LocationText = nullString(location)
	p.Currency = nullString(currency)
	p.ContactPhone = nullString(phone)
	p.Price = nullFloat(price)
	p.AreaM2 = nullFloat(area)
	p.Status = Status(status)

	paths, err := decodeImages(images)
	if err != nil {
		return nil, err
	}
	p.Images = paths
	return &p, nil
}

// ListProperties returns properties, newest first.
func (s *SQLiteStore) ListProperties(ctx context.Context, opts ListOptions) ([]Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties`
	args := []any{}

	if opts.HighlightedOnly {
		query += " WHERE highlighted = 1"
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var properties []Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		properties = append(properties, *p)
	}
	return properties, rows.Err()
}

// GetProperty retrieves a property by ID.
func (s *SQLiteStore) GetProperty(ctx context.Context, id string) (*Property, error) {
	p, err := scanProperty(s.db.QueryRowContext(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// GetPropertyBySlug retrieves a property by its slug.
func (s *SQLiteStore) GetPropertyBySlug(ctx context.Context, slug string) (*Property, error) {
	p, err := scanProperty(s.db.QueryRowContext(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE slug = ?`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// PropertyImages returns the storage paths attached to a property.
func (s *SQLiteStore) PropertyImages(ctx context.Context, id string) ([]string, error) {
	var images string
	err := s.db.QueryRowContext(ctx, `SELECT images FROM properties WHERE id = ?`, id).Scan(&images)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeImages(images)
}

// CreateProperty inserts a property with no images.
func (s *SQLiteStore) CreateProperty(ctx context.Context, slug string, in PropertyInput) (*Property, error) {
	p := &Property{
		ID:           uuid.New().String(),
		Slug:         slug,
		Title:        in.Title,
		Description:  in.Description,
		LocationText: in.LocationText,
		Price:        in.Price,
		Currency:     in.Currency,
		AreaM2:       in.AreaM2,
		ContactPhone: in.ContactPhone,
		Highlighted:  in.Highlighted,
		Status:       in.Status,
		Images:       []string{},
		CreatedAt:    time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO properties (id, slug, title, description, location_text, price, currency,
			area_m2, contact_phone, highlighted, status, images, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '[]', ?)`,
		p.ID, p.Slug, p.Title, sqlString(p.Description), sqlString(p.LocationText),
		sqlFloat(p.Price), sqlString(p.Currency), sqlFloat(p.AreaM2), sqlString(p.ContactPhone),
		p.Highlighted, string(p.Status), p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProperty overwrites the editable fields and the image list.
func (s *SQLiteStore) UpdateProperty(ctx context.Context, id string, in PropertyInput, images []string) error {
	encoded, err := encodeImages(images)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE properties SET title = ?, description = ?, location_text = ?, price = ?,
			currency = COALESCE(?, currency), area_m2 = ?, contact_phone = ?, highlighted = ?,
			status = ?, images = ?
		 WHERE id = ?`,
		in.Title, sqlString(in.Description), sqlString(in.LocationText), sqlFloat(in.Price),
		sqlString(in.Currency), sqlFloat(in.AreaM2), sqlString(in.ContactPhone),
		in.Highlighted, string(in.Status), encoded, id,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// SetPropertyImages replaces the image list of a property.
func (s *SQLiteStore) SetPropertyImages(ctx context.Context, id string, images []string) error {
	encoded, err := encodeImages(images)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `UPDATE properties SET images = ? WHERE id = ?`, encoded, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// DeleteProperty removes a property row.
func (s *SQLiteStore) DeleteProperty(ctx context.Context, id string) ([]string, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM properties WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return []string{}, nil
	}
	return []string{id}, nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	return s.getUser(ctx, `WHERE id = ?`, id)
}

// GetUserByEmail retrieves a user by normalized email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, `WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at, updated_at FROM users `+where, arg).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpsertUser creates or updates a user keyed by email.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET
		 	password_hash = excluded.password_hash,
		 	updated_at = excluded.updated_at`,
		user.ID, strings.ToLower(strings.TrimSpace(user.Email)), user.PasswordHash,
		user.CreatedAt, user.UpdatedAt,
	)
	return err
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at)
		 VALUES (?, ?, ?, ?)`,
		session.ID, session.UserID, session.CreatedAt, session.ExpiresAt,
	)
	return err
}

// GetSession retrieves an unexpired session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var session Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at
		 FROM sessions WHERE id = ? AND expires_at > ?`,
		sessionID, time.Now()).Scan(
		&session.ID, &session.UserID, &session.CreatedAt, &session.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes a session.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	return err
}

// DeleteExpiredSessions removes all expired sessions.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, time.Now())
	return err
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeImages(images []string) (string, error) {
	if images == nil {
		images = []string{}
	}
	b, err := json.Marshal(images)
	if err != nil {
		return "", fmt.Errorf("encode images: %w", err)
	}
	return string(b), nil
}

func decodeImages(raw string) ([]string, error) {
	images := []string{}
	if raw == "" {
		return images, nil
	}
	if err := json.Unmarshal([]byte(raw), &images); err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	return images, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func sqlString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func sqlFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

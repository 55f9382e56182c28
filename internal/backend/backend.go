// Package backend wires the auth provider, property store and image bucket
// for the configured backend.
package backend

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/edvart/property-listings/internal/auth"
	"github.com/edvart/property-listings/internal/config"
	"github.com/edvart/property-listings/internal/listing"
	"github.com/edvart/property-listings/internal/media"
	"github.com/edvart/property-listings/internal/store"
	"github.com/edvart/property-listings/internal/supabase"
)

// MediaURLPrefix is where the local backend serves its bucket.
const MediaURLPrefix = "/media"

// ErrNoServiceKey is returned by Privileged when the service role key is
// not configured.
var ErrNoServiceKey = fmt.Errorf("%w: SUPABASE_SERVICE_ROLE_KEY is not set", listing.ErrMisconfigured)

// Backend bundles the collaborators of one deployment.
type Backend struct {
	Provider auth.Provider
	Verifier *auth.TokenVerifier

	// Properties and Images use the public credential and serve the
	// catalog pages.
	Properties store.PropertyStore
	Images     media.Bucket

	// MediaDir is set when images are served from local disk.
	MediaDir string

	privileged func() (store.PropertyStore, media.Bucket, error)
	closers    []func() error
}

// Privileged returns the handles allowed to bypass row level security.
func (b *Backend) Privileged() (store.PropertyStore, media.Bucket, error) {
	return b.privileged()
}

func (b *Backend) Close() error {
	var firstErr error
	for _, c := range b.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// New builds the backend selected by cfg.
func New(cfg *config.Config, logger logrus.FieldLogger) (*Backend, error) {
	switch cfg.Backend {
	case config.BackendLocal:
		return NewLocal(cfg.DataDir)
	case config.BackendSupabase:
		return NewSupabase(cfg, &http.Client{Timeout: cfg.SupabaseTimeout}, logger)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// NewSupabase uses the publishable key for auth and public reads and, when
// configured, the service role key for admin writes.
func NewSupabase(cfg *config.Config, httpClient *http.Client, logger logrus.FieldLogger) (*Backend, error) {
	public, err := supabase.New(supabase.Config{
		ProjectURL: cfg.SupabaseURL,
		APIKey:     cfg.SupabasePublishableKey,
		Timeout:    cfg.SupabaseTimeout,
	}, httpClient)
	if err != nil {
		return nil, fmt.Errorf("supabase client: %w", err)
	}

	b := &Backend{
		Provider:   auth.NewSupabaseProvider(public),
		Verifier:   auth.NewTokenVerifier(cfg.SupabaseJWTSecret),
		Properties: store.NewSupabaseStore(public),
		Images:     media.NewSupabaseBucket(public, media.BucketName),
		privileged: func() (store.PropertyStore, media.Bucket, error) {
			return nil, nil, ErrNoServiceKey
		},
	}

	if cfg.SupabaseServiceRoleKey == "" {
		logger.Warn("SUPABASE_SERVICE_ROLE_KEY not set; admin writes will fail")
		return b, nil
	}

	admin, err := supabase.New(supabase.Config{
		ProjectURL: cfg.SupabaseURL,
		APIKey:     cfg.SupabaseServiceRoleKey,
		Timeout:    cfg.SupabaseTimeout,
	}, httpClient)
	if err != nil {
		return nil, fmt.Errorf("supabase admin client: %w", err)
	}
	adminStore := store.NewSupabaseStore(admin)
	adminBucket := media.NewSupabaseBucket(admin, media.BucketName)
	b.privileged = func() (store.PropertyStore, media.Bucket, error) {
		return adminStore, adminBucket, nil
	}
	return b, nil
}

// NewLocal keeps everything under dataDir: a SQLite database, local users
// and an on-disk bucket.
func NewLocal(dataDir string) (*Backend, error) {
	db, err := store.NewSQLiteStore(filepath.Join(dataDir, "listings.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	mediaDir := filepath.Join(dataDir, "media")
	bucket, err := media.NewDiskBucket(mediaDir, MediaURLPrefix)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Backend{
		Provider:   auth.NewLocalProvider(db),
		Properties: db,
		Images:     bucket,
		MediaDir:   mediaDir,
		privileged: func() (store.PropertyStore, media.Bucket, error) {
			return db, bucket, nil
		},
		closers: []func() error{db.Close},
	}, nil
}

package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvart/property-listings/internal/auth"
	"github.com/edvart/property-listings/internal/config"
	"github.com/edvart/property-listings/internal/listing"
	"github.com/edvart/property-listings/internal/store"
)

func TestSupabaseWithoutServiceKeyIsMisconfigured(t *testing.T) {
	logger, hook := test.NewNullLogger()
	cfg := &config.Config{
		Backend:                config.BackendSupabase,
		SupabaseURL:            "https://abc.supabase.co",
		SupabasePublishableKey: "publishable",
	}

	b, err := NewSupabase(cfg, http.DefaultClient, logger)
	require.NoError(t, err)
	assert.Nil(t, b.Verifier)
	assert.NotEmpty(t, hook.Entries)

	_, _, err = b.Privileged()
	assert.ErrorIs(t, err, listing.ErrMisconfigured)
	assert.ErrorIs(t, err, ErrNoServiceKey)
}

func TestSupabaseUsesServiceKeyForPrivilegedCalls(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("apikey"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	cfg := &config.Config{
		SupabaseURL:            srv.URL,
		SupabasePublishableKey: "publishable",
		SupabaseServiceRoleKey: "service",
		SupabaseJWTSecret:      "secret",
	}
	b, err := NewSupabase(cfg, srv.Client(), logger)
	require.NoError(t, err)
	assert.NotNil(t, b.Verifier)

	_, err = b.Properties.ListProperties(context.Background(), store.ListOptions{})
	require.NoError(t, err)

	admin, _, err := b.Privileged()
	require.NoError(t, err)
	_, err = admin.DeleteProperty(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, []string{"publishable", "service"}, keys)
}

func TestLocal(t *testing.T) {
	b, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	defer b.Close()

	info, err := os.Stat(b.MediaDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	props, bucket, err := b.Privileged()
	require.NoError(t, err)
	assert.Same(t, b.Properties, props)
	assert.Equal(t, "/media/p1/a.jpg", bucket.PublicURL("p1/a.jpg"))

	local, ok := b.Provider.(*auth.LocalProvider)
	require.True(t, ok)
	_, err = local.CreateUser(context.Background(), "admin@example.com", "pw")
	require.NoError(t, err)
	_, err = b.Provider.SignInWithPassword(context.Background(), "admin@example.com", "pw")
	assert.NoError(t, err)
}

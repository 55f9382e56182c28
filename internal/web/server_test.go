package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvart/property-listings/internal/auth"
	"github.com/edvart/property-listings/internal/listing"
	"github.com/edvart/property-listings/internal/media"
	"github.com/edvart/property-listings/internal/store"
	assets "github.com/edvart/property-listings/web"
)

const (
	adminEmail    = "admin@example.com"
	strangerEmail = "someone@example.com"
	password      = "correct horse"
)

// flakyBucket fails removals on demand.
type flakyBucket struct {
	media.Bucket
	failRemove bool
}

func (b *flakyBucket) Remove(ctx context.Context, keys []string) error {
	if b.failRemove {
		return errors.New("storage unavailable")
	}
	return b.Bucket.Remove(ctx, keys)
}

type testEnv struct {
	server   *Server
	store    *store.SQLiteStore
	bucket   *flakyBucket
	provider *auth.LocalProvider
	hook     *test.Hook

	adminToken    string
	strangerToken string
	misconfigured bool
}

func newTestEnv(t *testing.T, allow auth.AllowList) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	db, err := store.NewSQLiteStore(filepath.Join(dir, "listings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	disk, err := media.NewDiskBucket(filepath.Join(dir, "media"), "/media")
	require.NoError(t, err)

	logger, hook := test.NewNullLogger()
	env := &testEnv{store: db, bucket: &flakyBucket{Bucket: disk}, hook: hook}

	env.provider = auth.NewLocalProvider(db)
	for _, email := range []string{adminEmail, strangerEmail} {
		_, err := env.provider.CreateUser(ctx, email, password)
		require.NoError(t, err)
	}
	env.adminToken = env.signIn(t, adminEmail)
	env.strangerToken = env.signIn(t, strangerEmail)

	sessions := auth.NewSessionManager(env.provider, nil, false)
	resolver := auth.ResolverFunc(sessions.CurrentUser)

	tmpl, err := LoadTemplates(assets.Templates())
	require.NoError(t, err)

	env.server = NewServer(Dependencies{
		Properties: db,
		Images:     env.bucket,
		Sessions:   sessions,
		Guard:      auth.NewGuard(resolver, allow),
		Gate:       auth.NewGate(resolver, sessions, allow, logger),
		Listings: listing.NewService(func() (store.PropertyStore, media.Bucket, error) {
			if env.misconfigured {
				return nil, nil, listing.ErrMisconfigured
			}
			return db, env.bucket, nil
		}, logger),
		Limiter:   auth.NewLoginLimiter(60, 5, logger),
		Templates: tmpl,
		StaticFS:  assets.Static(),
		Logger:    logger,
	}, Config{MediaDir: disk.Root()})

	return env
}

func (e *testEnv) signIn(t *testing.T, email string) string {
	t.Helper()
	session, err := e.provider.SignInWithPassword(context.Background(), email, password)
	require.NoError(t, err)
	return session.AccessToken
}

// seed creates a highlighted property with n uploaded images.
func (e *testEnv) seed(t *testing.T, title string, n int) *store.Property {
	t.Helper()
	ctx := context.Background()

	p, err := e.store.CreateProperty(ctx, store.Slugify(title), store.PropertyInput{
		Title:       title,
		Highlighted: true,
		Status:      store.StatusAvailable,
	})
	require.NoError(t, err)

	var keys []string
	for i := 0; i < n; i++ {
		key := media.NewImageKey(p.ID, "photo.jpg")
		require.NoError(t, e.bucket.Upload(ctx, key, "image/jpeg", strings.NewReader("jpeg")))
		keys = append(keys, key)
	}
	if len(keys) > 0 {
		require.NoError(t, e.store.SetPropertyImages(ctx, p.ID, keys))
	}
	p.Images = keys
	return p
}

func (e *testEnv) request(method, target, token string, body io.Reader) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, body)
	if token != "" {
		r.AddCookie(&http.Cookie{Name: auth.AccessCookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, r)
	return rec
}

// callDelete invokes the delete handler without the gate in front of it.
func (e *testEnv) callDelete(id, token string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodDelete, "/admin/properties/"+id, nil)
	if token != "" {
		r.AddCookie(&http.Cookie{Name: auth.AccessCookieName, Value: token})
	}
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	e.server.handleDeleteProperty(rec, r)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAuthCheck(t *testing.T) {
	env := newTestEnv(t, auth.StaticAllowList(" Admin@Example.com ,"))

	tests := []struct {
		name       string
		token      string
		wantStatus int
		wantError  string
	}{
		{"no session", "", http.StatusUnauthorized, auth.MsgNoSession},
		{"unknown token", "bogus", http.StatusUnauthorized, auth.MsgNoSession},
		{"not on the allow-list", env.strangerToken, http.StatusForbidden, auth.MsgForbidden},
		{"admin", env.adminToken, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.request(http.MethodGet, auth.AuthCheckPath, tt.token, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)

			body := decodeJSON(t, rec)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
				return
			}
			assert.Equal(t, true, body["success"])
			assert.Equal(t, true, body["authorized"])
		})
	}
}

func TestAuthCheckEmptyAllowList(t *testing.T) {
	env := newTestEnv(t, auth.StaticAllowList(" , "))

	rec := env.request(http.MethodGet, auth.AuthCheckPath, env.adminToken, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, auth.MsgMisconfigured, decodeJSON(t, rec)["error"])

	rec = env.request(http.MethodGet, auth.AuthCheckPath, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGateRedirectsAdminPages(t *testing.T) {
	env := newTestEnv(t, auth.StaticAllowList(adminEmail))
	p := env.seed(t, "Casa", 0)

	for _, tc := range []struct {
		method, path, token string
	}{
		{http.MethodGet, "/admin/dashboard", ""},
		{http.MethodGet, "/admin/dashboard", env.strangerToken},
		{http.MethodDelete, "/admin/properties/" + p.ID, ""},
		{http.MethodDelete, "/admin/properties/" + p.ID, env.strangerToken},
	} {
		rec := env.request(tc.method, tc.path, tc.token, nil)
		assert.Equal(t, http.StatusSeeOther, rec.Code, "%s %s", tc.method, tc.path)
		assert.Equal(t, auth.LoginPath, rec.Header().Get("Location"))
	}

	_, err := env.store.GetProperty(context.Background(), p.ID)
	assert.NoError(t, err, "gated delete must not reach the handler")

	rec := env.request(http.MethodGet, "/admin/dashboard", env.adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Casa")

	rec = env.request(http.MethodGet, auth.LoginPath, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginPageDoesNotBounceSignedInNonAdmins(t *testing.T) {
	tests := []struct {
		name    string
		allow   auth.AllowList
		token   func(*testEnv) string
		wantMsg string
	}{
		{"stranger", auth.StaticAllowList(adminEmail), func(e *testEnv) string { return e.strangerToken }, auth.MsgForbidden},
		{"admin with empty allow-list", auth.StaticAllowList(""), func(e *testEnv) string { return e.adminToken }, auth.MsgMisconfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.allow)
			token := tt.token(env)

			rec := env.request(http.MethodGet, auth.LoginPath, token, nil)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, rec.Header().Get("Location"))
			assert.Contains(t, rec.Body.String(), tt.wantMsg)
			assert.Contains(t, rec.Body.String(), `action="/admin/logout"`)

			rec = env.request(http.MethodPost, auth.LogoutPath, token, nil)
			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, auth.LoginPath, rec.Header().Get("Location"))

			rec = env.request(http.MethodGet, auth.AuthCheckPath, token, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestLoginPageSendsAdminToDashboard(t *testing.T) {
	env := newTestEnv(t, auth.StaticAllowList(adminEmail))

	rec := env.request(http.MethodGet, auth.LoginPath, env.adminToken, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/dashboard", rec.Header().Get("Location"))

	rec = env.request(http.MethodGet, "/admin/dashboard", env.adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthCheckAfterSessionEnds(t *testing.T) {
	env := newTestEnv(t, auth.StaticAllowList(adminEmail))

	rec := env.request(http.MethodGet, auth.AuthCheckPath, env.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(http.MethodPost, auth.LogoutPath, env.adminToken, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = env.request(http.MethodGet, auth.AuthCheckPath, env.adminToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, auth.MsgNoSession, decodeJSON(t, rec)["error"])

	// A session ended elsewhere is just as gone.
	token := env.signIn(t, adminEmail)
	rec = env.request(http.MethodGet, auth.AuthCheckPath, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, env.provider.SignOut(context.Background(), token))

	rec = env.request(http.MethodGet, auth.AuthCheckPath, token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, auth.MsgNoSession, decodeJSON(t, rec)["error"])
}

func TestDeleteGuard(t *testing.T) {
	env := newTestEnv(t, auth.StaticAllowList(adminEmail))
	p := env.seed(t, "Casa", 1)

	rec := env.callDelete(p.ID, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, auth.MsgNoSession, decodeJSON(t, rec)["error"])

	rec = env.callDelete(p.ID, env.strangerToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, auth.MsgForbidden, decodeJSON(t, rec)["error"])

	_, err := env.store.GetProperty(context.Background(), p.ID)
	assert.NoError(t, err)
}

func TestDeleteMisconfigured(t *testing.T) {
	t.Run("empty allow-list", func(t *testing.T) {
		env := newTestEnv(t, auth.StaticAllowList(""))
		p := env.seed(t, "Casa", 0)

		rec := env.callDelete(p.ID, env.adminToken)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, auth.MsgMisconfigured, decodeJSON(t, rec)["error"])
	})

	t.Run("no privileged credential", func(t *testing.T) {
		env := newTestEnv(t, auth.StaticAllowList(adminEmail))
		env.misconfigured = true
		p := env.seed(t, "Casa", 0)

		rec := env.callDelete(p.ID, env.adminToken)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, auth.MsgMisconfigured, decodeJSON(t, rec)["error"])

		_, err := env.store.GetProperty(context.Background(), p.ID)
		assert.NoError(t, err)
	})
}

func TestDeleteProperty(t *testing.T) {
	env := newTestEnv(t, auth.StaticAllowList(adminEmail))
	p := env.seed(t, "Casa con patio", 2)

	rec := env.request(http.MethodDelete, "/admin/properties/"+p.ID, env.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, []any{map[string]any{"id": p.ID}}, body["deleted"])
	assert.NotContains(t, body, "warning")

	_, err := env.store.GetProperty(context.Background(), p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	for _, key := range p.Images {
		rec := env.request(http.MethodGet, env.bucket.PublicURL(key), "", nil)
		assert.NotEqual(t, http.StatusOK, rec.Code, "image %s should be gone", key)
	}

	rec = env.request(http.MethodDelete, "/admin/properties/"+p.ID, env.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, msgPropertyNotFound, decodeJSON(t, rec)["error"])
}

func TestDeleteCleanupFailureIsWarning(t *testing.T) {
	env := newTestEnv(t, auth.StaticAllowList(adminEmail))
	p := env.seed(t, "Casa", 1)
	env.bucket.failRemove = true

	rec := env.request(http.MethodDelete, "/admin/properties/"+p.ID, env.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, msgCleanupFailed, body["warning"])
	assert.Contains(t, body["storageError"], "storage unavailable")

	_, err := env.store.GetProperty(context.Background(), p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	var warned bool
	for _, e := range env.hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["property_id"] == p.ID {
			warned = true
		}
	}
	assert.True(t, warned, "cleanup failure should be logged")
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, auth.StaticAllowList(adminEmail))

	login := func(email, pw string) *httptest.ResponseRecorder {
		form := url.Values{"email": {email}, "password": {pw}}
		r := httptest.NewRequest(http.MethodPost, auth.LoginPath, strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		env.server.ServeHTTP(rec, r)
		return rec
	}

	rec := login(adminEmail, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "incorrectos")

	rec = login(strangerEmail, password)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "", lastCookie(rec, auth.AccessCookieName))

	rec = login(adminEmail, password)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/dashboard", rec.Header().Get("Location"))
	token := lastCookie(rec, auth.AccessCookieName)
	require.NotEmpty(t, token)

	rec = env.request(http.MethodGet, auth.AuthCheckPath, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func lastCookie(rec *httptest.ResponseRecorder, name string) string {
	value := ""
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			value = c.Value
		}
	}
	return value
}

func multipartForm(t *testing.T, fields url.Values, images map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, vs := range fields {
		for _, v := range vs {
			require.NoError(t, mw.WriteField(k, v))
		}
	}
	for name, contentType := range images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="images"; filename="`+name+`"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte("image bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestCreateAndEditProperty(t *testing.T) {
	env := newTestEnv(t, auth.StaticAllowList(adminEmail))
	ctx := context.Background()

	body, contentType := multipartForm(t, url.Values{
		"title":       {"Depto Centro"},
		"price":       {"120000"},
		"highlighted": {"on"},
		"status":      {"available"},
	}, map[string]string{"front.PNG": "image/png"})

	r := httptest.NewRequest(http.MethodPost, "/admin/properties", body)
	r.Header.Set("Content-Type", contentType)
	r.AddCookie(&http.Cookie{Name: auth.AccessCookieName, Value: env.adminToken})
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, r)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	p, err := env.store.GetPropertyBySlug(ctx, "depto-centro")
	require.NoError(t, err)
	require.Len(t, p.Images, 1)
	assert.True(t, strings.HasPrefix(p.Images[0], p.ID+"/"))
	assert.True(t, strings.HasSuffix(p.Images[0], ".png"))
	assert.Nil(t, p.Currency)

	body, contentType = multipartForm(t, url.Values{
		"title":  {"Depto Centro renovado"},
		"status": {"sold"},
	}, nil)
	r = httptest.NewRequest(http.MethodPost, "/admin/properties/"+p.ID, body)
	r.Header.Set("Content-Type", contentType)
	r.AddCookie(&http.Cookie{Name: auth.AccessCookieName, Value: env.adminToken})
	rec = httptest.NewRecorder()
	env.server.ServeHTTP(rec, r)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	updated, err := env.store.GetProperty(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Depto Centro renovado", updated.Title)
	assert.Equal(t, "depto-centro", updated.Slug)
	assert.Equal(t, store.StatusSold, updated.Status)
	assert.Empty(t, updated.Images)
}

func TestCreatePropertyRejectsBadImage(t *testing.T) {
	env := newTestEnv(t, auth.StaticAllowList(adminEmail))

	body, contentType := multipartForm(t, url.Values{"title": {"Casa"}},
		map[string]string{"notes.pdf": "application/pdf"})
	r := httptest.NewRequest(http.MethodPost, "/admin/properties", body)
	r.Header.Set("Content-Type", contentType)
	r.AddCookie(&http.Cookie{Name: auth.AccessCookieName, Value: env.adminToken})
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Only JPG, PNG and WEBP images are allowed")
}

func TestPublicPages(t *testing.T) {
	env := newTestEnv(t, auth.StaticAllowList(adminEmail))
	p := env.seed(t, "Casa Azul", 1)

	rec := env.request(http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Casa Azul")
	assert.Contains(t, rec.Body.String(), "Disponible")
	assert.NotContains(t, rec.Body.String(), "/admin/dashboard")

	rec = env.request(http.MethodGet, "/", env.adminToken, nil)
	assert.Contains(t, rec.Body.String(), "/admin/dashboard")

	rec = env.request(http.MethodGet, "/properties/"+p.Slug, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), env.bucket.PublicURL(p.Images[0]))

	rec = env.request(http.MethodGet, "/properties/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.request(http.MethodGet, "/api/properties", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	props, ok := body["properties"].([]any)
	require.True(t, ok)
	require.Len(t, props, 1)
	assert.Equal(t, p.ID, props[0].(map[string]any)["id"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, auth.StaticAllowList(adminEmail))
	env.request(http.MethodGet, auth.AuthCheckPath, "", nil)

	rec := env.request(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, auth.MsgNoSession, decodeJSON(t, rec)["error"])

	rec = env.request(http.MethodGet, "/metrics", env.strangerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.request(http.MethodGet, "/metrics", env.adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `listings_admin_auth_decisions_total{outcome="unauthorized"} 1`)
	assert.NotContains(t, rec.Body.String(), `outcome="forbidden"`, "metrics scrapes are not counted")

	rec = httptest.NewRecorder()
	env.server.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFormatPrice(t *testing.T) {
	clp := "CLP"
	tests := []struct {
		currency *string
		amount   *float64
		want     string
	}{
		{nil, nil, "Consultar"},
		{nil, ptr(950.0), "950"},
		{nil, ptr(1500000.0), "1.500.000"},
		{&clp, ptr(120000.0), "CLP 120.000"},
		{nil, ptr(-2500.9), "-2.500"},
		{nil, ptr(1e20), "100.000.000.000.000.000.000"},
		{nil, ptr(math.NaN()), "Consultar"},
		{&clp, ptr(math.Inf(1)), "Consultar"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatPrice(tt.currency, tt.amount))
	}
}

func TestRenderMarkdown(t *testing.T) {
	desc := "**Amplia** casa\n\n<script>alert(1)</script>"
	out := string(renderMarkdown(&desc))
	assert.Contains(t, out, "<strong>Amplia</strong>")
	assert.NotContains(t, out, "<script>")
	assert.Empty(t, renderMarkdown(nil))
}

func ptr[T any](v T) *T { return &v }

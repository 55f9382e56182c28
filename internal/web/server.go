package web

import (
	"bytes"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/edvart/property-listings/internal/auth"
	"github.com/edvart/property-listings/internal/listing"
	"github.com/edvart/property-listings/internal/media"
	"github.com/edvart/property-listings/internal/store"
)

// Server holds the HTTP server and its dependencies.
type Server struct {
	router     *chi.Mux
	properties store.PropertyStore
	images     media.Bucket
	sessions   *auth.SessionManager
	guard      *auth.Guard
	gate       *auth.Gate
	listings   *listing.Service
	limiter    *auth.LoginLimiter
	templates  *template.Template
	metrics    *metrics
	logger     logrus.FieldLogger
	cfg        Config
}

// Dependencies are the collaborators the server routes to.
type Dependencies struct {
	Properties store.PropertyStore
	Images     media.Bucket
	Sessions   *auth.SessionManager
	Guard      *auth.Guard
	Gate       *auth.Gate
	Listings   *listing.Service
	Limiter    *auth.LoginLimiter
	Templates  *template.Template
	StaticFS   fs.FS
	Logger     logrus.FieldLogger
}

// Config holds server configuration.
type Config struct {
	// MediaDir, when set, is served under /media.
	MediaDir string
	// ImageHosts are added to the img-src of the content security policy.
	ImageHosts []string
	// HighlightedCount is the number of listings on the home page.
	HighlightedCount int
}

// NewServer creates a new HTTP server.
func NewServer(deps Dependencies, cfg Config) *Server {
	if cfg.HighlightedCount == 0 {
		cfg.HighlightedCount = 6
	}

	s := &Server{
		router:     chi.NewRouter(),
		properties: deps.Properties,
		images:     deps.Images,
		sessions:   deps.Sessions,
		guard:      deps.Guard,
		gate:       deps.Gate,
		listings:   deps.Listings,
		limiter:    deps.Limiter,
		templates:  deps.Templates,
		metrics:    newMetrics(),
		logger:     deps.Logger,
		cfg:        cfg,
	}

	s.setupRoutes(deps.StaticFS)
	return s
}

func (s *Server) setupRoutes(staticFS fs.FS) {
	r := s.router

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.logger, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.instrument)
	r.Use(s.securityHeaders)

	// Static files
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	if s.cfg.MediaDir != "" {
		r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(s.cfg.MediaDir))))
	}

	r.With(s.requireAdmin).Handle("/metrics", s.metrics.handler())

	// Public site
	r.Get("/", s.handleIndex)
	r.Get("/properties", s.handleCatalog)
	r.Get("/properties/{slug}", s.handleProperty)
	r.Get("/api/properties", s.handleAPIProperties)

	// Admin, behind the gate
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.gate.Middleware)

		r.Get("/auth", s.handleAuthCheck)

		r.Get("/login", s.handleLoginPage)
		r.With(s.limiter.Handler).Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)

		r.Get("/", http.RedirectHandler("/admin/dashboard", http.StatusSeeOther).ServeHTTP)
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/properties/new", s.handleNewProperty)
		r.Post("/properties", s.handleCreateProperty)
		r.Get("/properties/{id}/edit", s.handleEditProperty)
		r.Post("/properties/{id}", s.handleUpdateProperty)
		r.Delete("/properties/{id}", s.handleDeleteProperty)
	})
}

// MetricsHandler serves the metrics without the admin check. Mount it only
// on a listener that is not reachable from the internet.
func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.handler()
}

// requireAdmin answers like the admin API unless the caller is an allowed
// admin. The decision is not counted in auth_decisions.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := s.guard.Check(r.Context(), auth.FromRequest(r))
		if d.Outcome != auth.Authorized {
			writeJSONError(w, d.Status(), d.Message(), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// securityHeaders sets the content security policy. Images may come from
// the site itself and the configured image hosts.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	imgSrc := []string{"'self'", "data:"}
	for _, h := range s.cfg.ImageHosts {
		if !strings.Contains(h, "://") {
			h = "https://" + h
		}
		imgSrc = append(imgSrc, h)
	}
	csp := "default-src 'self'; img-src " + strings.Join(imgSrc, " ") + "; frame-ancestors 'none'"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", csp)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) render(w http.ResponseWriter, name string, status int, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.WithError(err).WithField("template", name).Error("Template error")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

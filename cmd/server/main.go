package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/edvart/property-listings/internal/auth"
	"github.com/edvart/property-listings/internal/backend"
	"github.com/edvart/property-listings/internal/config"
	"github.com/edvart/property-listings/internal/listing"
	"github.com/edvart/property-listings/internal/web"
	assets "github.com/edvart/property-listings/web"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	rootCmd := &cobra.Command{
		Use:          "server",
		Short:        "Property listings web server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	rootCmd.AddCommand(serveCmd(), seedAdminCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the site (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func seedAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create or reset an admin account on the local backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Backend != config.BackendLocal {
				return fmt.Errorf("seed-admin only works with BACKEND=%s", config.BackendLocal)
			}

			b, err := backend.NewLocal(cfg.DataDir)
			if err != nil {
				return err
			}
			defer b.Close()

			local, ok := b.Provider.(*auth.LocalProvider)
			if !ok {
				return errors.New("local backend has no local provider")
			}
			user, err := local.CreateUser(cmd.Context(), email, password)
			if err != nil {
				return err
			}

			fmt.Printf("Admin %s ready (id %s)\n", user.Email, user.ID)
			if !auth.EnvAllowList().Contains(user.Email) {
				fmt.Printf("Note: add %s to %s to allow it into the admin area\n", user.Email, auth.EnvAdminEmails)
			}
			return nil
		},
	}
	cmd.Flags().String("email", "", "admin email")
	cmd.Flags().String("password", "", "admin password")
	return cmd
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	if len(auth.EnvAllowList().Emails()) == 0 {
		logger.Warnf("Neither %s nor %s is set; every admin request will fail", auth.EnvAdminEmails, auth.EnvAdminEmail)
	}

	if cfg.Backend == config.BackendLocal {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	b, err := backend.New(cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	if local, ok := b.Provider.(*auth.LocalProvider); ok {
		if err := local.PruneSessions(ctx); err != nil {
			logger.WithError(err).Warn("Failed to prune expired sessions")
		}
	}

	templates, staticFS, err := loadAssets(logger)
	if err != nil {
		return err
	}

	allow := auth.EnvAllowList()
	sessions := auth.NewSessionManager(b.Provider, b.Verifier, cfg.SecureCookies)
	peek := auth.ResolverFunc(sessions.PeekUser)

	imageHosts := cfg.ImageHosts
	if cfg.Backend == config.BackendSupabase {
		if u, err := url.Parse(cfg.SupabaseURL); err == nil && u.Host != "" {
			imageHosts = append(imageHosts, u.Scheme+"://"+u.Host)
		}
	}

	server := web.NewServer(web.Dependencies{
		Properties: b.Properties,
		Images:     b.Images,
		Sessions:   sessions,
		Guard:      auth.NewGuard(auth.ResolverFunc(sessions.CurrentUser), allow),
		Gate:       auth.NewGate(peek, sessions, allow, logger),
		Listings:   listing.NewService(b.Privileged, logger),
		Limiter:    auth.NewLoginLimiter(10, 5, logger),
		Templates:  templates,
		StaticFS:   staticFS,
		Logger:     logger,
	}, web.Config{
		MediaDir:   b.MediaDir,
		ImageHosts: imageHosts,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", server.MetricsHandler())
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.WithField("addr", cfg.MetricsAddr).Info("Metrics listener running")
			if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.WithError(err).Error("Metrics server error")
			}
		}()
	}

	// Handle shutdown signals
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		logger.Info("Shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("HTTP server shutdown error")
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Metrics server shutdown error")
			}
		}
	}()

	logger.WithFields(logrus.Fields{
		"backend": cfg.Backend,
		"url":     cfg.BaseURL,
	}).Info("Server running")

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

// loadAssets prefers the web/ directory of a source checkout so templates
// can be edited without rebuilding, and falls back to the embedded copy.
func loadAssets(logger logrus.FieldLogger) (*template.Template, fs.FS, error) {
	if root := config.FindProjectRoot(); root != "" {
		templatesDir := filepath.Join(root, "web", "templates")
		if _, err := os.Stat(templatesDir); err == nil {
			templates, err := web.LoadTemplatesFromDir(templatesDir)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to load templates: %w", err)
			}
			logger.WithField("dir", templatesDir).Debug("Using templates from disk")
			return templates, os.DirFS(filepath.Join(root, "web", "static")), nil
		}
	}

	templates, err := web.LoadTemplates(assets.Templates())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load templates: %w", err)
	}
	return templates, assets.Static(), nil
}

// Package config loads the server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	BackendSupabase = "supabase"
	BackendLocal    = "local"
)

// Config holds server configuration. The admin allow-list is deliberately
// absent: it is read from the environment on every request.
type Config struct {
	Port    string
	BaseURL string
	// MetricsAddr, when set, serves /metrics without the admin check on a
	// separate listener meant for internal scrapes.
	MetricsAddr string
	Backend string
	DataDir string

	SupabaseURL            string
	SupabasePublishableKey string
	SupabaseServiceRoleKey string
	SupabaseJWTSecret      string
	SupabaseTimeout        time.Duration

	// ImageHosts are the extra origins allowed to serve listing images.
	ImageHosts []string

	SecureCookies bool
	LogLevel      string
	LogFormat     string
}

// LoadDotEnv reads .env files if present. Variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	port := getEnv("PORT", "8080")

	cfg := &Config{
		Port:                   port,
		BaseURL:                getEnv("BASE_URL", "http://localhost:"+port),
		MetricsAddr:            getEnv("METRICS_ADDR", ""),
		Backend:                getEnv("BACKEND", BackendSupabase),
		DataDir:                getEnv("DATA_DIR", "./data"),
		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabasePublishableKey: getEnv("SUPABASE_PUBLISHABLE_KEY", ""),
		SupabaseServiceRoleKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		SupabaseJWTSecret:      getEnv("SUPABASE_JWT_SECRET", ""),
		ImageHosts:             splitList(getEnv("IMAGE_HOSTS", "")),
		SecureCookies:          getEnv("SECURE_COOKIES", "") == "true",
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", "text"),
	}

	timeout, err := time.ParseDuration(getEnv("SUPABASE_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SUPABASE_TIMEOUT: %w", err)
	}
	cfg.SupabaseTimeout = timeout

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings required by the selected backend. The
// service role key is optional here; privileged operations report its
// absence themselves.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLocal:
		return nil
	case BackendSupabase:
		if c.SupabaseURL == "" {
			return fmt.Errorf("SUPABASE_URL is required for the %s backend", BackendSupabase)
		}
		if c.SupabasePublishableKey == "" {
			return fmt.Errorf("SUPABASE_PUBLISHABLE_KEY is required for the %s backend", BackendSupabase)
		}
		return nil
	default:
		return fmt.Errorf("unknown BACKEND %q", c.Backend)
	}
}

// NewLogger builds the logger described by LogLevel and LogFormat.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// FindProjectRoot walks up from the working directory to the directory
// containing web/.
func FindProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		webDir := filepath.Join(dir, "web")
		if info, err := os.Stat(webDir); err == nil && info.IsDir() {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

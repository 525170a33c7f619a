package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseDriver         string
	DatabaseURL            string
	DatabaseMigrationsPath string

	HTTPPort           int
	HTTPRequestTimeout time.Duration
	CORSAllowedOrigins []string

	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenSecret string
	RefreshTokenExpiry time.Duration

	NotificationsEnabled bool
	NotificationsBaseURL string
	NotificationsTimeout time.Duration

	ReportsDir             string
	ReportDownloadInterval time.Duration
	LogLevel               slog.Level
}

/* Reads the configuration from the environment, falling back to defaults for unset variables. */
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		DatabaseDriver:         getEnv("DATABASE_DRIVER", "postgres"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		DatabaseMigrationsPath: getEnv("DATABASE_MIGRATIONS_PATH", "migrations"),

		HTTPPort:           parse(&errs, "HTTP_PORT", "8080", strconv.Atoi),
		HTTPRequestTimeout: parse(&errs, "HTTP_REQUEST_TIMEOUT", "5s", time.ParseDuration),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		AccessTokenSecret:  os.Getenv("ACCESS_TOKEN_SECRET"),
		AccessTokenExpiry:  parse(&errs, "ACCESS_TOKEN_EXPIRY", "15m", time.ParseDuration),
		RefreshTokenSecret: os.Getenv("REFRESH_TOKEN_SECRET"),
		RefreshTokenExpiry: parse(&errs, "REFRESH_TOKEN_EXPIRY", "168h", time.ParseDuration),

		NotificationsEnabled: parse(&errs, "NOTIFICATIONS_ENABLED", "false", strconv.ParseBool),
		NotificationsBaseURL: getEnv("NOTIFICATIONS_BASE_URL", "https://ntfy.sh/library_service"),
		NotificationsTimeout: parse(&errs, "NOTIFICATIONS_TIMEOUT", "2s", time.ParseDuration),

		ReportsDir:             getEnv("REPORTS_DIR", "report_files"),
		ReportDownloadInterval: parse(&errs, "REPORT_DOWNLOAD_INTERVAL", "2s", time.ParseDuration),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	switch cfg.DatabaseDriver {
	case "postgres", "pgx":
		if cfg.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for driver "+cfg.DatabaseDriver))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER: unsupported value %q", cfg.DatabaseDriver))
	}
	if cfg.AccessTokenSecret == "" || cfg.RefreshTokenSecret == "" {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET are required"))
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("loading config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parse[T any](errs *[]error, key, defaultValue string, fn func(string) (T, error)) T {
	v, err := fn(getEnv(key, defaultValue))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/library-service/cmd/api/auth"
	"github.com/library-service/cmd/api/config"
	"github.com/library-service/cmd/api/database"
	libraryhttp "github.com/library-service/cmd/api/http"
	"github.com/library-service/cmd/api/inmemory"
	"github.com/library-service/cmd/api/library"
	"github.com/library-service/cmd/api/notifications"
	"github.com/library-service/cmd/api/report"
)

func main() {
	err := run()
	if err != nil {
		slog.Error("library service stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	repo, closeRepo, err := openRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	tokens := auth.NewManager(auth.Config{
		AccessSecret:  cfg.AccessTokenSecret,
		AccessTTL:     cfg.AccessTokenExpiry,
		RefreshSecret: cfg.RefreshTokenSecret,
		RefreshTTL:    cfg.RefreshTokenExpiry,
	})
	notifier := notifications.NewNtfy(cfg.NotificationsEnabled, cfg.NotificationsBaseURL, &http.Client{Timeout: cfg.NotificationsTimeout})

	service := library.NewService(repo,
		library.WithLogger(logger),
		library.WithTokens(tokens),
		library.WithNotifier(notifier, cfg.NotificationsTimeout),
		library.WithExporter(report.NewExporter(cfg.ReportsDir)),
	)
	handler := libraryhttp.NewHandler(service, logger)

	//create and init http server:
	server := libraryhttp.NewServer(libraryhttp.ServerConfig{
		Port:           cfg.HTTPPort,
		RequestTimeout: cfg.HTTPRequestTimeout,
		AllowedOrigins: cfg.CORSAllowedOrigins,

		DownloadInterval: cfg.ReportDownloadInterval,
		DownloadBurst:    1,
	}, handler, tokens)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "port", cfg.HTTPPort, "driver", cfg.DatabaseDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("unexpected http server error: %w", err)
		}
		close(serverErr)
	}()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sc:
	case err := <-serverErr:
		return err
	}

	ctx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	service.Wait()
	logger.Info("Graceful shutdown complete.")
	return nil
}

/* Opens the store chosen by DATABASE_DRIVER, migrating the database ones. */
func openRepository(cfg config.Config, logger *slog.Logger) (library.Repository, func(), error) {
	if cfg.DatabaseDriver == "memory" {
		store, err := inmemory.NewInMemoryStore()
		if err != nil {
			return nil, nil, fmt.Errorf("creating in-memory store: %w", err)
		}
		return store, func() {}, nil
	}

	dbObject, err := database.ConnectDb(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting with db: %w", err)
	}

	store := database.NewStore(dbObject, database.WithLogger(logger))
	err = database.MigrationUp(store, cfg.DatabaseMigrationsPath)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		dbObject.Close()
		return nil, nil, fmt.Errorf("migrating: %w", err)
	}

	return store, func() { dbObject.Close() }, nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alpinesight-server/internal/analytics"
	"alpinesight-server/internal/config"
	"alpinesight-server/internal/handlers/api"
	"alpinesight-server/internal/wayback"
	"alpinesight-server/internal/weather"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Exit status is decided here so run's defers (analytics flush among
	// them) always execute first.
	if err := run(*configPath); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	logger := setupLogger("info")

	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return err
	}
	logger = setupLogger(cfg.LogLevel)

	tracker := analytics.New(cfg.Analytics.PostHogAPIKey, cfg.Analytics.PostHogEndpoint, logger)
	defer tracker.Close()

	catalog := wayback.NewCatalog(cfg.Wayback.ConfigURL, cfg.Wayback.UserAgent, cfg.Wayback.Timeout.Std(), logger)
	fetcher := wayback.NewFetcher(wayback.FetcherConfig{
		Workers:     cfg.Fetch.Workers,
		MaxAttempts: cfg.Fetch.MaxAttempts,
		RetryDelay:  cfg.Fetch.RetryDelay.Std(),
		Timeout:     cfg.Fetch.Timeout.Std(),
		UserAgent:   cfg.Wayback.UserAgent,
	}, logger)
	timeline := wayback.NewService(catalog, fetcher, logger)
	weatherClient := weather.New(cfg.Weather.BaseURL, cfg.Weather.Timeout.Std(), logger)

	server := api.NewServer(timeline, weatherClient, tracker, cfg.Server.RequestTimeout.Std(), logger)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: server.Router(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("starting imagery server",
		"addr", cfg.Server.Addr(),
		"workers", cfg.Fetch.Workers,
		"request_timeout", cfg.Server.RequestTimeout.Std(),
	)
	tracker.Track("server_started", map[string]interface{}{
		"workers": cfg.Fetch.Workers,
	})

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}

// loadConfig reads the config file, falling back to defaults when the file
// does not exist so the server can run with zero setup.
func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("config file not found, using defaults", "path", path)
		return config.Default(), nil
	}
	return config.Load(path)
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

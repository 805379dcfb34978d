package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	ssogin "github.com/pilab-dev/exam-sso/api/gin"
	"github.com/pilab-dev/exam-sso/config"
	"github.com/pilab-dev/exam-sso/internal/janitor"
	"github.com/pilab-dev/exam-sso/internal/server"
	"github.com/pilab-dev/exam-sso/log"
	"github.com/pilab-dev/exam-sso/tracing"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

// loadRuntime reads and validates the configuration and sets up logging.
func loadRuntime() (*config.Config, log.Logger, io.Closer, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	logger, closer, err := log.Setup(log.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		File:   cfg.LogFile,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	return cfg, logger, closer, nil
}

func serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, logger, logCloser, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logCloser.Close()

	logger.Info(ctx, "Configuration loaded successfully", map[string]interface{}{
		"env":            cfg.Env,
		"http_port":      cfg.HTTPPort,
		"storage_driver": cfg.StorageDriver,
		"state_store":    cfg.StateStore,
		"linking_policy": cfg.LinkingPolicy,
		"providers":      len(cfg.Providers),
	})

	var spanOut io.Writer
	if cfg.TracingEnabled {
		spanOut = os.Stderr
	}
	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName, spanOut)
	if err != nil {
		return fmt.Errorf("failed to initialize TracerProvider: %w", err)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	j, err := janitor.New(a.refresh, cfg.JanitorSchedule, cfg.TokenRetention)
	if err != nil {
		return err
	}
	j.Start()

	sessionAPI := ssogin.NewSessionAPI(a.sessions, a.tokenService, a.signer, a.federation)
	httpServer := server.NewHTTPServer(server.Options{
		Addr:        ":" + cfg.HTTPPort,
		ServiceName: cfg.OtelServiceName,
		Debug:       cfg.Env == config.EnvDevelopment,
		Gatherer:    a.registry,
		Checks:      a.checks,
	}, logger.With(map[string]interface{}{"component": "http"}), sessionAPI, ssogin.NewAdminAPI(a.sessions, a.tokenService, a.auditLog))

	serverErr := make(chan error, 1)
	go func() {
		logger.Info(ctx, "HTTP server listening", map[string]interface{}{"addr": httpServer.Addr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		logger.Info(ctx, "Shutting down server...", map[string]interface{}{"signal": sig.String()})
	case runErr = <-serverErr:
		logger.Error(ctx, "HTTP server failed", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "HTTP server shutdown error", err)
	}
	j.Stop(shutdownCtx)
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "Failed to release resources", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "TracerProvider shutdown error", err)
	}

	logger.Info(shutdownCtx, "Server gracefully stopped.")

	return runErr
}

// Package main runs the hotel booking cancellation prediction server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"finitefield.org/booking-predictor/internal/content"
	"finitefield.org/booking-predictor/internal/form"
	"finitefield.org/booking-predictor/internal/httpserver"
	"finitefield.org/booking-predictor/internal/platform/config"
	"finitefield.org/booking-predictor/internal/platform/observability"
	"finitefield.org/booking-predictor/internal/prediction"
)

const (
	appName         = "booking-predictor"
	shutdownTimeout = 10 * time.Second
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		addr     string
		envFile  string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Hotel booking cancellation prediction form",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), addr, envFile, logLevel)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (defaults to :$PREDICTOR_SERVER_PORT)")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file read for unset variables")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func run(parent context.Context, addr, envFile, logLevel string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, config.WithEnvFile(envFile))
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			return fmt.Errorf("invalid configuration %v: %w", invalid.Fields(), err)
		}
		return fmt.Errorf("load configuration: %w", err)
	}
	if logLevel == "" {
		logLevel = cfg.Telemetry.LogLevel
	}
	if addr == "" {
		addr = cfg.Addr()
	}

	baseLogger, err := observability.NewLogger(logLevel)
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("web")

	catalog, err := content.Load()
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}

	metrics := observability.NewMetrics()
	client := prediction.NewClient(cfg.Predictor.EndpointURL, prediction.WithRecorder(metrics))
	forms := form.NewStore(client,
		form.WithRequestTimeout(cfg.Predictor.RequestTimeout),
		form.WithTTL(cfg.Session.TTL),
	)

	var signingKey []byte
	if cfg.Session.SigningKey != "" {
		signingKey = []byte(cfg.Session.SigningKey)
	}

	srv, err := httpserver.New(httpserver.Config{
		Address:           addr,
		Logger:            logger,
		Predictor:         client,
		Forms:             forms,
		Catalog:           &catalog,
		Metrics:           metrics,
		RequestTimeout:    cfg.Predictor.RequestTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		SessionCookieName: cfg.Session.CookieName,
		SessionSigningKey: signingKey,
		SessionTTL:        cfg.Session.TTL,
		SecureCookies:     cfg.Session.SecureCookies,
		CSRFCookieName:    cfg.Session.CSRFCookieName,
		TraceProjectID:    cfg.Telemetry.TraceProjectID,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		forms.RunSweeper(sweepCtx, cfg.Session.SweepInterval, logger.Named("sweeper"))
	}()
	defer func() {
		sweepCancel()
		wg.Wait()
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", addr),
			zap.String("env", cfg.Server.Environment),
			zap.String("endpoint", client.Endpoint()),
			zap.String("version", Version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

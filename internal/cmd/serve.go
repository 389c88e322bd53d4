package cmd

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	apperrors "github.com/docgate/docgate/internal/errors"
	"github.com/docgate/docgate/internal/observability"
	"github.com/docgate/docgate/internal/server"
	"github.com/docgate/docgate/internal/server/handlers"
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return apperrors.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker validates app identity metadata
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (i identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case i.binaryName == "":
		return apperrors.NewConfigInvalidError("app identity missing binary name")
	case i.envPrefix == "":
		return apperrors.NewConfigInvalidError("app identity missing env prefix")
	case i.configName == "":
		return apperrors.NewConfigInvalidError("app identity missing config name")
	}
	return nil
}

// pinger is implemented by stats backends with a remote dependency.
type pinger interface {
	Ping(ctx context.Context) error
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the submission relay over HTTP",
	Long: `Run an HTTP relay in front of the registry. Every POST /v1/documents
shares one rate limiter, so however many clients call the relay the registry
sees at most rate_limit.capacity submissions per interval.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown, queued submissions fail
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read the config file (limits apply after restart)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	addRegistryFlags(serveCmd)
	serveCmd.Flags().String("host", "", "server host (default: server.host)")
	serveCmd.Flags().IntP("port", "p", 0, "server port (default: server.port)")
}

func serveOverrides(cmd *cobra.Command) map[string]any {
	overrides := registryOverrides(cmd)
	if host, _ := cmd.Flags().GetString("host"); cmd.Flags().Changed("host") {
		overrides["server.host"] = host
	}
	if port, _ := cmd.Flags().GetInt("port"); cmd.Flags().Changed("port") {
		overrides["server.port"] = port
	}
	return overrides
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	cfg, err := loadConfig(cmd, serveOverrides(cmd))
	if err != nil {
		return err
	}

	identity := GetAppIdentity()
	namespace := identity.TelemetryNamespace()

	observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, namespace)
	logger := observability.ServerLogger

	metricsPort := cfg.Metrics.Port
	if metricsPort == 0 {
		metricsPort = 9090
	}
	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(identity.BinaryName, metricsPort, namespace); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return apperrors.WrapInternal(ctx, err, "metrics initialization failed")
		}
	}

	r, err := newRelay(ctx, cfg)
	if err != nil {
		return err
	}
	relayHandler := handlers.NewDocumentsHandler(r.submitter, r.limiter)

	logger.Info("Initializing relay",
		zap.String("service", identity.BinaryName),
		zap.String("namespace", namespace),
		zap.String("version", versionInfo.Version),
		zap.String("registry", cfg.Registry.URL),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Int("metrics_port", metricsPort))

	hm := handlers.InitHealthManager(versionInfo.Version)
	hm.RegisterChecker("limiter", relayHandler)
	if cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})
	}
	hm.RegisterChecker("app_identity", identityHealthChecker{
		binaryName: identity.BinaryName,
		envPrefix:  identity.EnvPrefix,
		configName: identity.ConfigName,
	})
	if p, ok := r.stats.(pinger); ok {
		hm.RegisterChecker("stats_backend", handlers.HealthCheckerFunc(p.Ping))
	}

	handlers.SetAppIdentity(identity)

	srv := server.New(server.Options{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		Relay:        relayHandler,
	})

	listener, err := net.Listen("tcp", net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)))
	if err != nil {
		_ = r.Close()
		return apperrors.WrapServiceUnavailable(ctx, err, "cannot listen on "+srv.Addr())
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	// Shutdown handlers run last registered first.
	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Flushing logger...")
		if err := logger.Sync(); err != nil {
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Closing submission limiter")
		if err := r.Close(); err != nil {
			logger.Warn("Relay close reported errors", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return apperrors.WrapInternal(ctx, err, "server shutdown failed")
		}
		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: re-reading configuration")

		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				logger.Info("No config file found - using defaults and environment variables")
				return nil
			}
			logger.Error("Failed to reload config file",
				zap.String("file", viper.ConfigFileUsed()),
				zap.Error(err))
			return apperrors.WrapConfigInvalid(ctx, err, "config reload failed")
		}
		if _, err := loadConfig(cmd, serveOverrides(cmd)); err != nil {
			logger.Error("Reloaded configuration is invalid", zap.Error(err))
			return err
		}

		logger.Info("Configuration reloaded; rate limits take effect on restart",
			zap.String("file", viper.ConfigFileUsed()))
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	errChan := make(chan error, 2)
	go func() {
		errChan <- srv.Serve(listener)
	}()

	go func() {
		if err := signals.Listen(ctx); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	if err := <-errChan; err != nil {
		_ = r.Close()
		return apperrors.WrapInternal(ctx, err, "server error")
	}
	return nil
}

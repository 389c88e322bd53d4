package cmd

import (
	"context"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docgate/docgate/internal/core/ratelimit"
	"github.com/docgate/docgate/internal/core/stats"
	apperrors "github.com/docgate/docgate/internal/errors"
	"github.com/docgate/docgate/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify that configuration, rate limiter, and stats backend are usable before submitting.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		if logger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", apperrors.NewConfigInvalidError("Logger not initialized"))
			return
		}
		logger.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing", apperrors.NewConfigInvalidError("Version information missing"))
			return
		}
		logger.Info("✅ Version information available", zap.String("version", versionInfo.Version))

		cfg, err := loadConfig(cmd, nil)
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration invalid", err)
			return
		}
		logger.Info("✅ Configuration valid", zap.String("registry", cfg.Registry.URL))

		limiterCfg, _ := cfg.RateLimit.LimiterConfig()
		limiter, err := ratelimit.New(limiterCfg)
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Rate limiter cannot be built", err)
			return
		}
		limiter.Shutdown()
		logger.Info("✅ Rate limiter ready",
			zap.String("policy", string(limiterCfg.Policy)),
			zap.Int("capacity", limiterCfg.Capacity),
			zap.Duration("interval", limiterCfg.Interval))

		if strings.EqualFold(strings.TrimSpace(cfg.Stats.Backend), "redis") {
			ctx, cancel := context.WithTimeout(commandContext(cmd), 5*time.Second)
			defer cancel()
			store, closeFn := openStatsStore(ctx, cfg.Stats)
			if closeFn != nil {
				defer func() { _ = closeFn() }()
			}
			if _, ok := store.(*stats.RedisStore); !ok {
				ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Redis stats backend unreachable",
					apperrors.NewServiceUnavailableError("redis unreachable at "+cfg.Stats.Redis.Addr))
				return
			}
			logger.Info("✅ Redis stats backend reachable", zap.String("addr", cfg.Stats.Redis.Addr))
		}

		logger.Info("")
		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

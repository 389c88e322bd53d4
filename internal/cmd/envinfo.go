package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/docgate/docgate/internal/config"
	"github.com/docgate/docgate/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display the resolved configuration, version, and runtime environment.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.CLILogger
		version := crucible.GetVersion()
		identity := GetAppIdentity()

		logger.Info("=== docgate Environment Information ===")
		logger.Info("")

		logger.Info("Application:")
		logger.Info("  Name:       " + identity.BinaryName)
		logger.Info("  Version:    " + versionInfo.Version)
		logger.Info("  Commit:     " + versionInfo.Commit)
		logger.Info("  Built:      " + versionInfo.BuildDate)
		logger.Info("  Env Prefix: " + identity.EnvPrefix)
		logger.Info("")

		logger.Info("SSOT:")
		logger.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		logger.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		logger.Info("")

		logger.Info("Runtime:")
		logger.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		logger.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		logger.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		logger.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		logger.Info("")

		cfg, err := loadConfig(cmd, nil)
		if err != nil {
			return err
		}

		configFile := viper.ConfigFileUsed()
		if configFile == "" {
			configFile = config.DefaultConfigPath(identity.ConfigName) + " (not found)"
		}

		logger.Info("Configuration:")
		logger.Info("  Config File:    " + configFile)
		logger.Info("  Registry URL:   "+cfg.Registry.URL, zap.String("registry_url", cfg.Registry.URL))
		logger.Info("  Registry Timeout: "+cfg.Registry.Timeout.String())
		logger.Info("  Signature Mode: "+cfg.Registry.SignatureMode, zap.String("signature_mode", cfg.Registry.SignatureMode))
		logger.Info("  Stats Backend:  "+cfg.Stats.Backend, zap.String("stats_backend", cfg.Stats.Backend))
		if cfg.Stats.Backend == "redis" {
			logger.Info("  Redis Addr:     "+cfg.Stats.Redis.Addr, zap.String("redis_addr", cfg.Stats.Redis.Addr))
		}
		logger.Info(fmt.Sprintf("  Workers:        %d", cfg.Workers), zap.Int("workers", cfg.Workers))
		logger.Info("  Server:         "+fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
		logger.Info(fmt.Sprintf("  Metrics Port:   %d", cfg.Metrics.Port), zap.Int("metrics_port", cfg.Metrics.Port))
		logger.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		logger.Info("")

		limiterCfg, err := cfg.RateLimit.LimiterConfig()
		if err != nil {
			return err
		}
		logger.Info("Rate Limit:")
		logger.Info("  Policy:     "+string(limiterCfg.Policy), zap.String("policy", string(limiterCfg.Policy)))
		logger.Info(fmt.Sprintf("  Capacity:   %d per %s", limiterCfg.Capacity, limiterCfg.Interval),
			zap.Int("capacity", limiterCfg.Capacity),
			zap.Duration("interval", limiterCfg.Interval))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}

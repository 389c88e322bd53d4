package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/docgate/docgate/internal/appid"
	"github.com/docgate/docgate/internal/config"
	"github.com/docgate/docgate/internal/core"
	"github.com/docgate/docgate/internal/core/codec"
	"github.com/docgate/docgate/internal/core/ratelimit"
	"github.com/docgate/docgate/internal/core/stats"
	"github.com/docgate/docgate/internal/core/submitter"
	"github.com/docgate/docgate/internal/core/transport"
	"github.com/docgate/docgate/internal/metrics"
	"github.com/docgate/docgate/internal/observability"
)

// relay holds the components one process shares across all submissions.
type relay struct {
	limiter   ratelimit.Limiter
	submitter *submitter.Submitter
	stats     stats.Store
	closeFns  []func() error
}

func newRelay(ctx context.Context, cfg *config.Config) (*relay, error) {
	limiterCfg, err := cfg.RateLimit.LimiterConfig()
	if err != nil {
		return nil, err
	}
	signature, err := cfg.Registry.SignaturePolicy()
	if err != nil {
		return nil, err
	}

	limiter, err := ratelimit.New(limiterCfg)
	if err != nil {
		return nil, err
	}

	r := &relay{limiter: limiter}
	store, closeFn := openStatsStore(ctx, cfg.Stats)
	if closeFn != nil {
		r.closeFns = append(r.closeFns, closeFn)
	}
	r.stats = store

	userAgent := strings.TrimSpace(cfg.Registry.UserAgent)
	if userAgent == "" {
		userAgent = fmt.Sprintf("%s/%s", appid.BinaryName(ctx), versionInfo.Version)
	}

	r.submitter = &submitter.Submitter{
		Limiter: limiter,
		Transport: &transport.HTTP{
			Client:    &http.Client{Timeout: cfg.Registry.Timeout},
			UserAgent: userAgent,
		},
		Serializer:  codec.JSON{},
		Target:      cfg.Registry.URL,
		Signature:   signature,
		ToolVersion: versionInfo.Version,
	}
	if store != nil {
		r.submitter.Stats = store
	}

	if logger := observability.Logger(); logger != nil {
		logger.Debug("Submission relay ready",
			zap.String("target", cfg.Registry.URL),
			zap.String("policy", string(limiterCfg.Policy)),
			zap.Int("capacity", limiterCfg.Capacity),
			zap.Duration("interval", limiterCfg.Interval),
			zap.String("signature_mode", string(signature.Mode)),
			zap.String("stats_backend", cfg.Stats.Backend))
	}
	return r, nil
}

// submitFile loads one document and submits it. Load failures become
// invalid outcomes without touching the limiter.
func (r *relay) submitFile(ctx context.Context, source, signature string) (core.Outcome, error) {
	doc, err := codec.LoadDocument(source)
	if err != nil {
		return core.Outcome{
			Source:      source,
			Status:      core.OutcomeInvalid,
			Message:     err.Error(),
			CompletedAt: time.Now().UTC(),
			Err:         err,
		}, err
	}

	started := time.Now()
	receipt, err := r.submitter.Submit(ctx, doc, signature)
	r.observe(receipt, err, time.Since(started))
	return r.submitter.Outcome(source, doc, receipt, err), err
}

func (r *relay) observe(receipt *core.Receipt, err error, elapsed time.Duration) {
	metrics.RecordSubmission(string(submitter.Classify(err)), elapsed)
	snapshot := r.limiter.Stats()
	metrics.SetLimiterState(snapshot.Available, snapshot.Waiting)
	if receipt != nil {
		metrics.RecordAcquireWait(string(snapshot.Policy), receipt.Waited())
	}
}

// Close shuts the limiter down, failing any waiter, then releases the stats backend.
func (r *relay) Close() error {
	r.limiter.Shutdown()
	var errs []error
	for _, fn := range r.closeFns {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openStatsStore returns the configured stats backend. An unreachable redis
// falls back to memory so counters never block submissions.
func openStatsStore(ctx context.Context, cfg config.StatsConfig) (stats.Store, func() error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "none":
		return nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := stats.NewRedisStore(client,
			stats.WithPrefix(cfg.Prefix),
			stats.WithTTL(cfg.TTL),
			stats.WithBucket(cfg.Bucket),
		)

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			_ = store.Close()
			if logger := observability.Logger(); logger != nil {
				logger.Warn("Redis stats backend unavailable, counting in memory",
					zap.String("addr", cfg.Redis.Addr),
					zap.Error(err))
			}
			return stats.NewMemoryStore(), nil
		}
		return store, store.Close
	default:
		return stats.NewMemoryStore(), nil
	}
}

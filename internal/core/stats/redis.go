package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	totalField   = "total"
	statusPrefix = "status:"
)

// RedisStore aggregates counters in Redis hashes so several docgate
// processes can share one view.
type RedisStore struct {
	rdb *redis.Client

	prefix string
	// ttl applies to per-minute buckets only; totals never expire.
	ttl    time.Duration
	bucket string
}

type RedisOption func(*RedisStore)

func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if trimmed := strings.Trim(prefix, ": "); trimmed != "" {
			s.prefix = trimmed
		}
	}
}

func WithTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = d }
}

// WithBucket selects per-minute buckets ("minute", default) or totals only ("none").
func WithBucket(bucket string) RedisOption {
	return func(s *RedisStore) {
		if trimmed := strings.ToLower(strings.TrimSpace(bucket)); trimmed != "" {
			s.bucket = trimmed
		}
	}
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:    rdb,
		prefix: "docgate:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) totalKey() string {
	return s.prefix + ":total"
}

// BucketKey names the per-minute hash for t.
func (s *RedisStore) BucketKey(t time.Time) string {
	return fmt.Sprintf("%s:minute:%s", s.prefix, t.UTC().Format("200601021504"))
}

func (s *RedisStore) Record(ctx context.Context, ev Event) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := outcomeField(ev)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.totalKey(), totalField, 1)
	pipe.HIncrBy(ctx, s.totalKey(), field, 1)
	if ev.StatusCode > 0 {
		pipe.HIncrBy(ctx, s.totalKey(), statusPrefix+strconv.Itoa(ev.StatusCode), 1)
	}

	if s.bucket == "minute" {
		bucketKey := s.BucketKey(at)
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Summary(ctx context.Context) (Summary, error) {
	summary := Summary{
		ByOutcome: map[string]int64{},
		ByStatus:  map[string]int64{},
	}
	if s == nil || s.rdb == nil {
		return summary, nil
	}

	values, err := s.rdb.HGetAll(ctx, s.totalKey()).Result()
	if err != nil {
		return summary, err
	}

	for key, raw := range values {
		count, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return summary, fmt.Errorf("stats field %s: %w", key, err)
		}
		switch {
		case key == totalField:
			summary.Total = count
		case strings.HasPrefix(key, statusPrefix):
			summary.ByStatus[strings.TrimPrefix(key, statusPrefix)] = count
		default:
			summary.ByOutcome[key] = count
		}
	}
	return summary, nil
}

// Ping verifies connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.rdb == nil {
		return fmt.Errorf("redis client not configured")
	}
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

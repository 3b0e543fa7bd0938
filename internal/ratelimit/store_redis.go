package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindows keeps the sliding windows in a Redis sorted set per key,
// scored by unix nanoseconds. Useful when the engine process is restarted
// often and losing windows would reset abusers; the engine itself stays
// single-instance.
type RedisWindows struct {
	client *redis.Client
}

func NewRedisWindows(client *redis.Client) *RedisWindows {
	return &RedisWindows{client: client}
}

func (s *RedisWindows) Tap(ctx context.Context, key string, cfg Config, now time.Time) (Result, error) {
	cutoff := now.Add(-cfg.Window).UnixNano()

	pipe := s.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff, 10))
	lastCmd := pipe.ZRangeWithScores(ctx, key, -1, -1)
	countCmd := pipe.ZCard(ctx, key)
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	if last := lastCmd.Val(); len(last) > 0 {
		lastAt := time.Unix(0, int64(last[0].Score))
		if since := now.Sub(lastAt); since < cfg.MinInterval {
			return Result{Allowed: false, RetryAfter: cfg.MinInterval - since}, nil
		}
	}
	if countCmd.Val() >= int64(cfg.Limit) {
		retry := cfg.Window
		if oldest := oldestCmd.Val(); len(oldest) > 0 {
			retry = cfg.Window - now.Sub(time.Unix(0, int64(oldest[0].Score)))
		}
		return Result{Allowed: false, RetryAfter: retry}, nil
	}

	ts := now.UnixNano()
	admit := s.client.Pipeline()
	admit.ZAdd(ctx, key, redis.Z{Score: float64(ts), Member: strconv.FormatInt(ts, 10)})
	admit.PExpire(ctx, key, cfg.Window)
	if _, err := admit.Exec(ctx); err != nil {
		return Result{}, err
	}
	return Result{Allowed: true}, nil
}

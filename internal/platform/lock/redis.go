package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
)

// RedisOptions tunes the distributed locker.
type RedisOptions struct {
	Prefix     string
	TTL        time.Duration
	RetryCount int
	Backoff    time.Duration
}

// Redis is a Locker shared by every API instance pointed at the same Redis.
type Redis struct {
	client *redislock.Client
	opts   RedisOptions
	logger *slog.Logger
}

// NewRedis builds a Redis locker.
func NewRedis(client redislock.RedisClient, opts RedisOptions, logger *slog.Logger) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = "cargo:lock:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.RetryCount <= 0 {
		opts.RetryCount = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 50 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: redislock.New(client), opts: opts, logger: logger}
}

// Acquire obtains every key in order, giving back what it holds on failure.
func (r *Redis) Acquire(ctx context.Context, keys ...Key) (Release, error) {
	ordered := Ordered(keys)
	held := make([]*redislock.Lock, 0, len(ordered))
	retry := redislock.LimitRetry(redislock.ExponentialBackoff(r.opts.Backoff, 8*r.opts.Backoff), r.opts.RetryCount)
	for _, k := range ordered {
		l, err := r.client.Obtain(ctx, r.opts.Prefix+k.String(), r.opts.TTL, &redislock.Options{RetryStrategy: retry})
		if err != nil {
			r.releaseAll(held)
			if errors.Is(err, redislock.ErrNotObtained) {
				return nil, fmt.Errorf("%w: %s", ErrNotObtained, k)
			}
			return nil, fmt.Errorf("lock: obtain %s: %w", k, err)
		}
		held = append(held, l)
	}
	return func() { r.releaseAll(held) }, nil
}

func (r *Redis) releaseAll(held []*redislock.Lock) {
	for i := len(held) - 1; i >= 0; i-- {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := held[i].Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			r.logger.Warn("release lock", slog.String("key", held[i].Key()), slog.Any("error", err))
		}
		cancel()
	}
}

// Package redislock implements store.Locker on Redis so learner writes are
// serialized across server instances.
package redislock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/medscry/internal/platform/logger"
	"github.com/phrazzld/medscry/internal/store"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token, so a lock
// that expired and was re-acquired by another instance is left alone.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// extendScript resets the TTL only while the key still holds our token.
const extendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`

// Client is the subset of the go-redis API the lock needs.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Options configures a Locker. Zero values keep the defaults.
type Options struct {
	// TTL bounds how long a crashed holder can block the learner.
	TTL time.Duration
	// RetryInterval is the pause between acquisition attempts.
	RetryInterval time.Duration
	// RenewInterval is how often a held lock's TTL is extended. Defaults to
	// a third of TTL so a holder that is still working never loses the key.
	RenewInterval time.Duration
	// Prefix namespaces the lock keys.
	Prefix string
}

// Locker is a Redis SET NX PX lock.
type Locker struct {
	client Client
	opts   Options
}

var _ store.Locker = (*Locker)(nil)

// New creates a Locker on client.
func New(client Client, opts Options) *Locker {
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 25 * time.Millisecond
	}
	if opts.RenewInterval <= 0 || opts.RenewInterval >= opts.TTL {
		opts.RenewInterval = opts.TTL / 3
	}
	if opts.Prefix == "" {
		opts.Prefix = "medscry:lock:"
	}
	return &Locker{client: client, opts: opts}
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Lock implements store.Locker.Lock. It polls until the key is free or ctx
// is done. While held, the lock's TTL is renewed in the background until the
// returned unlock is called; TTL only bounds how long a crashed holder blocks
// the learner.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.opts.Prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.opts.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.opts.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", store.ErrLockNotAcquired, key, err)
		}
		if ok {
			return l.unlocker(ctx, redisKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", store.ErrLockNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Locker) unlocker(ctx context.Context, redisKey, token string) func() {
	log := logger.FromContext(ctx)
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(log, redisKey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// The caller's context may already be cancelled; release on a fresh one.
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := l.client.Eval(rctx, releaseScript, []string{redisKey}, token).Err(); err != nil {
				log.Warn("failed to release learner lock; it will expire",
					slog.String("key", redisKey),
					slog.String("error", err.Error()))
			}
		})
	}
}

// renew extends the key's TTL every RenewInterval until stop is closed or
// the key no longer holds token.
func (l *Locker) renew(log *slog.Logger, redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.opts.RenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		rctx, cancel := context.WithTimeout(context.Background(), l.opts.RenewInterval)
		n, err := l.client.Eval(rctx, extendScript, []string{redisKey}, token, l.opts.TTL.Milliseconds()).Int64()
		cancel()
		switch {
		case err != nil:
			// Transient; the next tick retries before the TTL runs out.
			log.Warn("failed to renew learner lock",
				slog.String("key", redisKey),
				slog.String("error", err.Error()))
		case n == 0:
			log.Error("learner lock lost before release", slog.String("key", redisKey))
			return
		}
	}
}

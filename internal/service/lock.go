package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another ingest run holds the run lock.
var ErrLocked = errors.New("another ingest run is in progress")

// RunLock serializes pipeline runs. The returned release func must be called on every exit
// path.
type RunLock interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// NoopLock assumes a single ingest process.
type NoopLock struct{}

func (NoopLock) Acquire(context.Context) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

// RedisLock is a RunLock shared by every process that points at the same redis.
type RedisLock struct {
	locker *redislock.Client
	key    string
	ttl    time.Duration
}

// NewRedisLock wraps a redis client. ttl bounds how long a crashed run can block others.
func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLock{locker: redislock.New(rdb), key: key, ttl: ttl}
}

// DialRedisLock connects to addr and returns the lock together with the client to close.
func DialRedisLock(ctx context.Context, addr, password string, db int, key string, ttl time.Duration) (*RedisLock, *redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return NewRedisLock(rdb, key, ttl), rdb, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (func(context.Context) error, error) {
	lock, err := l.locker.Obtain(ctx, l.key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w (lock %s)", ErrLocked, l.key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain run lock: %w", err)
	}
	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return err
		}
		return nil
	}, nil
}

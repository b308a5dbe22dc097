package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultLockTTL       = 10 * time.Second
	defaultRetryInterval = 20 * time.Millisecond
	defaultLockPrefix    = "bifrost:lock:"
)

// unlockScript deletes the key only if it still holds our token.
var unlockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker implements Locker with a single-node Redis lock.
// Processes sharing one Redis serialize operations on the same session key.
type RedisLocker struct {
	client        *redis.Client
	prefix        string
	ttl           time.Duration
	retryInterval time.Duration
	logger        *zap.Logger
}

// RedisConfig contains configuration options for Redis.
type RedisConfig struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string

	// Password is the Redis password (empty for no auth)
	Password string

	// DB is the Redis database number (0-15)
	DB int

	// KeyPrefix is prepended to all lock keys (default: "bifrost:lock:")
	// typically ends with a colon.
	KeyPrefix string

	// LockTTL bounds how long a crashed holder can block a key. The lock is
	// not extended while held, so LockTTL must exceed the longest Save, Touch
	// or Delete (at least the store's QueryTimeout times two).
	// Default: 10 seconds.
	LockTTL time.Duration

	// RetryInterval is the wait between acquisition attempts.
	// Default: 20 milliseconds.
	RetryInterval time.Duration

	// Logger receives unlock failures. Default: no-op logger.
	Logger *zap.Logger
}

// NewRedisLocker creates a locker from a Redis client and a key prefix.
// An empty prefix uses "bifrost:lock:".
func NewRedisLocker(client *redis.Client, keyPrefix string) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = defaultLockPrefix
	}
	return &RedisLocker{
		client:        client,
		prefix:        keyPrefix,
		ttl:           defaultLockTTL,
		retryInterval: defaultRetryInterval,
		logger:        zap.NewNop(),
	}
}

// NewRedisLockerFromConfig connects to Redis and creates a locker.
func NewRedisLockerFromConfig(cfg RedisConfig) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to connect: %w", err)
	}

	l := NewRedisLocker(client, cfg.KeyPrefix)
	if cfg.LockTTL > 0 {
		l.ttl = cfg.LockTTL
	}
	if cfg.RetryInterval > 0 {
		l.retryInterval = cfg.RetryInterval
	}
	if cfg.Logger != nil {
		l.logger = cfg.Logger
	}
	return l, nil
}

// Lock retries SET NX PX until the key is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("redis: failed to acquire lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(redisKey, token) })
	}, nil
}

// release deletes redisKey if it still holds token. A failed release leaves
// the key blocked until the lock TTL runs out, so it is logged.
func (l *RedisLocker) release(redisKey, token string) {
	// The caller's ctx may already be done; releasing must still happen.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := unlockScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
		l.logger.Warn("redis: failed to release lock",
			l.keyField(redisKey),
			zap.Duration("expires_in", l.ttl),
			zap.Error(err),
		)
	}
}

// keyField logs a lock key with the session id cut to a prefix.
func (l *RedisLocker) keyField(redisKey string) zap.Field {
	const keep = 8
	if id := strings.TrimPrefix(redisKey, l.prefix); len(id) > keep {
		redisKey = l.prefix + id[:keep] + "..."
	}
	return zap.String("key", redisKey)
}

// Close closes the Redis connection.
func (l *RedisLocker) Close() error {
	if err := l.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("redis: failed to close client: %w", err)
	}
	return nil
}

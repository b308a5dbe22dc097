package store

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// runLockerContract checks mutual exclusion per key and independence across keys.
func runLockerContract(t *testing.T, l Locker) {
	ctx := context.Background()
	key := "key-" + uuid.NewString()

	t.Run("mutual exclusion", func(t *testing.T) {
		var (
			wg      sync.WaitGroup
			holders atomic.Int32
			maxSeen atomic.Int32
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := l.Lock(ctx, key)
				if !assert.NoError(t, err) {
					return
				}
				n := holders.Add(1)
				for {
					seen := maxSeen.Load()
					if n <= seen || maxSeen.CompareAndSwap(seen, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				holders.Add(-1)
				unlock()
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), maxSeen.Load())
	})

	t.Run("different keys do not block", func(t *testing.T) {
		unlockA, err := l.Lock(ctx, key+"-a")
		require.NoError(t, err)
		defer unlockA()

		ctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		unlockB, err := l.Lock(ctx, key+"-b")
		require.NoError(t, err)
		unlockB()
	})

	t.Run("context cancels waiting", func(t *testing.T) {
		unlock, err := l.Lock(ctx, key)
		require.NoError(t, err)
		defer unlock()

		ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err = l.Lock(ctx, key)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("unlock releases", func(t *testing.T) {
		unlock, err := l.Lock(ctx, key)
		require.NoError(t, err)
		unlock()

		ctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		unlock, err = l.Lock(ctx, key)
		require.NoError(t, err)
		unlock()
	})
}

func TestKeyMutex(t *testing.T) {
	runLockerContract(t, NewKeyMutex())
}

func TestKeyMutexDropsIdleKeys(t *testing.T) {
	k := NewKeyMutex()
	ctx := context.Background()

	unlock, err := k.Lock(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, k.held())

	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, k.held())

	unlock, err = k.Lock(ctx, "a")
	require.NoError(t, err)
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = k.Lock(cctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
	unlock()
	assert.Equal(t, 0, k.held())
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("BIFROST_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BIFROST_TEST_REDIS_ADDR not set")
	}

	l, err := NewRedisLockerFromConfig(RedisConfig{
		Addr:          addr,
		KeyPrefix:     "bifrost-test:lock:",
		RetryInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	defer l.Close()

	runLockerContract(t, l)
}

func TestRedisLockerLogsFailedRelease(t *testing.T) {
	// Nothing listens on port 1, so the unlock script cannot run.
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	l := NewRedisLocker(client, "")
	defer l.Close()

	core, logs := observer.New(zap.WarnLevel)
	l.logger = zap.New(core)

	l.release(defaultLockPrefix+"abc", uuid.NewString())

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "redis: failed to release lock", entry.Message)
	assert.Equal(t, defaultLockPrefix+"abc", entry.ContextMap()["key"])

	l.release(defaultLockPrefix+"0123456789abcdef", uuid.NewString())
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, defaultLockPrefix+"01234567...", logs.All()[1].ContextMap()["key"])
}

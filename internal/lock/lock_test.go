package lock

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	got := normalize([]string{"resource:b", "provider:a", "", "resource:b"})
	assert.Equal(t, []string{"provider:a", "resource:b"}, got)
}

func TestKeys(t *testing.T) {
	id := uuid.MustParse("6f1c1f7a-4c7e-4b36-9a8f-0a8d0c1f0b11")
	assert.Equal(t, "provider:6f1c1f7a-4c7e-4b36-9a8f-0a8d0c1f0b11", ProviderKey(id))
	assert.Equal(t, "resource:6f1c1f7a-4c7e-4b36-9a8f-0a8d0c1f0b11", ResourceKey(id))
}

func TestLocalLocker_Serializes(t *testing.T) {
	l := NewLocalLocker(5 * time.Second)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), []string{"provider:x", "resource:y"}, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, l.locks)
}

func TestLocalLocker_WaitExhausted(t *testing.T) {
	l := NewLocalLocker(20 * time.Millisecond)

	hold := make(chan struct{})
	acquired := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), []string{"provider:x"}, func(ctx context.Context) error {
			close(acquired)
			<-hold
			return nil
		})
	}()
	<-acquired

	err := l.WithLock(context.Background(), []string{"provider:x"}, func(ctx context.Context) error {
		t.Fatal("must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	close(hold)
}

func TestLocalLocker_DisjointKeysDoNotBlock(t *testing.T) {
	l := NewLocalLocker(20 * time.Millisecond)

	err := l.WithLock(context.Background(), []string{"provider:a"}, func(ctx context.Context) error {
		return l.WithLock(ctx, []string{"provider:b"}, func(ctx context.Context) error {
			return nil
		})
	})
	assert.NoError(t, err)
}

func TestLocalLocker_PropagatesError(t *testing.T) {
	l := NewLocalLocker(time.Second)
	boom := errors.New("boom")

	err := l.WithLock(context.Background(), []string{"provider:a"}, func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = l.WithLock(context.Background(), []string{"provider:a"}, func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	key := "provider:" + uuid.NewString()
	l := NewRedisLocker(client, 5*time.Second, 50*time.Millisecond)

	err := l.WithLock(ctx, []string{key}, func(ctx context.Context) error {
		exists, err := client.Exists(ctx, "lock:"+key).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), exists)

		inner := l.WithLock(ctx, []string{key}, func(ctx context.Context) error { return nil })
		assert.ErrorIs(t, inner, ErrLockNotAcquired)
		return nil
	})
	require.NoError(t, err)

	exists, err := client.Exists(ctx, "lock:"+key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)
}

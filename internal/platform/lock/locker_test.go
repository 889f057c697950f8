package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cargo-ledger/internal/location"
)

func TestOrderedDedupsAndSorts(t *testing.T) {
	loc, _ := LocationKey(location.Vessel(3))
	keys := Ordered([]Key{ProductKey(10), InvoiceKey(2), ProductKey(9), ProductKey(10), loc})
	require.Equal(t, []Key{InvoiceKey(2), loc, ProductKey(9), ProductKey(10)}, keys)

	_, ok := LocationKey(location.Nowhere)
	require.False(t, ok)
}

func TestCovers(t *testing.T) {
	held := []Key{InvoiceKey(1), ProductKey(3), ProductKey(4)}
	require.True(t, Covers(held, ProductKey(4), InvoiceKey(1)))
	require.True(t, Covers(held))
	require.False(t, Covers(held, ProductKey(5)))
	require.False(t, Covers(nil, ProductKey(3)))
}

func TestLocalSerialisesSameKey(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys := []Key{ProductKey(1), ProductKey(2)}
			if i%2 == 0 {
				keys = []Key{ProductKey(2), ProductKey(1)}
			}
			release, err := l.Acquire(ctx, keys...)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			release()
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)
	require.Empty(t, l.slots)
}

func TestLocalHonoursContext(t *testing.T) {
	l := NewLocal()
	release, err := l.Acquire(context.Background(), ProductKey(1))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, ProductKey(2), ProductKey(1))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release2, err := l.Acquire(context.Background(), ProductKey(2))
	require.NoError(t, err)
	release2()
}

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedis(client, RedisOptions{TTL: time.Second, RetryCount: 2, Backoff: 5 * time.Millisecond}, nil)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, ProductKey(7), InvoiceKey(1))
	require.NoError(t, err)
	require.True(t, mr.Exists("cargo:lock:product:7"))

	_, err = locker.Acquire(ctx, ProductKey(7))
	require.ErrorIs(t, err, ErrNotObtained)

	release()
	require.False(t, mr.Exists("cargo:lock:product:7"))

	release, err = locker.Acquire(ctx, ProductKey(7))
	require.NoError(t, err)
	release()
}

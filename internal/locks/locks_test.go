package locks

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smartdevs17/ticket-gateway/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseGuard(t *testing.T, guard Guard, key string) {
	ctx := context.Background()

	release, err := guard.TryAcquire(ctx, key)
	require.NoError(t, err)

	_, err = guard.TryAcquire(ctx, key)
	assert.ErrorIs(t, err, ErrHeld)

	other, err := guard.TryAcquire(ctx, key+"-other")
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := guard.TryAcquire(ctx, key)
	require.NoError(t, err)
	again()
}

func TestMemoryGuard(t *testing.T) {
	guard := NewMemoryGuard()
	exerciseGuard(t, guard, "0xabc-1")
	assert.False(t, guard.Held("0xabc-1"))
}

func TestMemoryGuardSingleHolder(t *testing.T) {
	guard := NewMemoryGuard()
	var acquired atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := guard.TryAcquire(context.Background(), "0xabc-7"); err == nil {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), acquired.Load())
}

func TestNewGuard(t *testing.T) {
	guard, err := NewGuard(config.LocksConfig{Type: "memory"})
	require.NoError(t, err)
	_, ok := guard.(*MemoryGuard)
	assert.True(t, ok)

	_, err = NewGuard(config.LocksConfig{Type: "etcd"})
	assert.Error(t, err)

	_, err = NewGuard(config.LocksConfig{Type: "redis"})
	assert.Error(t, err)
}

func TestRedisGuard(t *testing.T) {
	address := os.Getenv("TEST_REDIS_ADDR")
	if address == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	guard, err := NewRedisGuard(RedisConfig{Address: address, TTL: time.Minute})
	require.NoError(t, err)
	defer guard.Close()

	exerciseGuard(t, guard, "test-"+time.Now().Format("150405.000000"))
}

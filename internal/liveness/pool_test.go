package liveness

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcProber func(ctx context.Context, username string) (bool, error)

func (f funcProber) Probe(ctx context.Context, username string) (bool, error) {
	return f(ctx, username)
}

func TestPool_ReturnsProbeResult(t *testing.T) {
	pool := NewPool(funcProber(func(ctx context.Context, username string) (bool, error) {
		return username == "live", nil
	}), 1)

	live, err := pool.Probe(context.Background(), "live")
	require.NoError(t, err)
	assert.True(t, live)

	live, err = pool.Probe(context.Background(), "offline")
	require.NoError(t, err)
	assert.False(t, live)
}

func TestPool_HungProbeDoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	pool := NewPool(funcProber(func(ctx context.Context, username string) (bool, error) {
		<-release
		return true, nil
	}), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := pool.Probe(ctx, "someone")

	var probeErr *ProbeError
	require.True(t, errors.As(err, &probeErr))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	var running, peak int32
	pool := NewPool(funcProber(func(ctx context.Context, username string) (bool, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return false, nil
	}), 2)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = pool.Probe(context.Background(), "someone")
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

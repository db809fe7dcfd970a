package workpool

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

func TestNew(t *testing.T) {
	t.Run("explicit size", func(t *testing.T) {
		p, err := New(3)
		require.NoError(t, err)
		defer p.Release()

		assert.Equal(t, 3, p.Stats().Capacity)
	})

	t.Run("zero selects default", func(t *testing.T) {
		p, err := New(0)
		require.NoError(t, err)
		defer p.Release()

		assert.Equal(t, DefaultSize(), p.Stats().Capacity)
		assert.GreaterOrEqual(t, DefaultSize(), 1)
	})
}

func TestRun(t *testing.T) {
	p, err := New(2)
	require.NoError(t, err)
	defer p.Release()

	ctx := context.Background()

	t.Run("returns task error", func(t *testing.T) {
		boom := errors.New("boom")
		assert.ErrorIs(t, p.Run(ctx, func() error { return boom }), boom)
	})

	t.Run("do returns value", func(t *testing.T) {
		v, err := Do(ctx, p, func() (int, error) { return 42, nil })
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		called := false
		err := p.Run(cctx, func() error { called = true; return nil })
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})

	t.Run("does not wait past deadline", func(t *testing.T) {
		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		release := make(chan struct{})
		defer close(release)
		err := p.Run(cctx, func() error { <-release; return nil })
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestRun_BoundsConcurrency(t *testing.T) {
	p, err := New(2)
	require.NoError(t, err)
	defer p.Release()

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Run(context.Background(), func() error {
				n := current.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				current.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

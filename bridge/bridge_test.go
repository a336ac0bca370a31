package bridge

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

func TestRunReturnsValue(t *testing.T) {
	e := New(Config{Workers: 2})
	defer e.Close()

	got, err := Run(e, context.Background(), func(ctx context.Context) (int, error) {
		return 41 + 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestRunPropagatesError(t *testing.T) {
	e := New(Config{Workers: 1})
	defer e.Close()

	cause := errors.New("boom")
	got, err := Run(e, context.Background(), func(ctx context.Context) (*int, error) {
		return nil, cause
	})
	assert.Nil(t, got)
	assert.ErrorIs(t, err, cause)
}

func TestRunRecoversPanic(t *testing.T) {
	e := New(Config{Workers: 1})

	_, err := Run(e, context.Background(), func(ctx context.Context) (string, error) {
		panic("bad state")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad state")

	// the worker survives the panic
	got, err := Run(e, context.Background(), func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	// Close reports the recovered panic
	err = e.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad state")
}

func TestRunIgnoresCallerCancellation(t *testing.T) {
	e := New(Config{Workers: 1})
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := Run(e, ctx, func(ctx context.Context) (bool, error) {
		return ctx.Err() == nil, nil
	})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestRunUsesPoolConcurrently(t *testing.T) {
	e := New(Config{Workers: 4})
	defer e.Close()

	var running, peak atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Run(e, context.Background(), func(ctx context.Context) (struct{}, error) {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				<-release
				running.Add(-1)
				return struct{}{}, nil
			})
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return peak.Load() == 4 }, 2*time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()
}

func TestCloseRejectsNewWork(t *testing.T) {
	e := New(Config{Workers: 1})
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err := Run(e, context.Background(), func(ctx context.Context) (int, error) {
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrClosed)
}

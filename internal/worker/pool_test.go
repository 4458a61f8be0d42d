package worker

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

func startPool(t *testing.T, size int, timeout time.Duration) *Pool {
	t.Helper()
	p := NewPool(size, timeout)
	p.Start(context.Background())
	t.Cleanup(p.Stop)
	return p
}

func TestPoolRunsEveryTask(t *testing.T) {
	p := startPool(t, 4, time.Second)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		err := p.Submit(context.Background(), Task{
			Name: "count",
			Run:  func(ctx context.Context) error { ran.Add(1); return nil },
			Done: func(err error) { assert.NoError(t, err); wg.Done() },
		})
		require.NoError(t, err)
	}
	wg.Wait()
	assert.EqualValues(t, 50, ran.Load())
}

func TestPoolIsolatesFailures(t *testing.T) {
	p := startPool(t, 2, 50*time.Millisecond)

	tasks := map[string]func(ctx context.Context) error{
		"ok":    func(ctx context.Context) error { return nil },
		"error": func(ctx context.Context) error { return errors.New("boom") },
		"panic": func(ctx context.Context) error { panic("kaboom") },
		"hang":  func(ctx context.Context) error { time.Sleep(time.Second); return nil },
	}

	var mu sync.Mutex
	got := map[string]error{}
	var wg sync.WaitGroup
	for name, run := range tasks {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), Task{
			Name: name,
			Run:  run,
			Done: func(err error) {
				mu.Lock()
				got[name] = err
				mu.Unlock()
				wg.Done()
			},
		}))
	}
	wg.Wait()

	assert.NoError(t, got["ok"])
	assert.EqualError(t, got["error"], "boom")
	assert.ErrorContains(t, got["panic"], "kaboom")
	assert.ErrorIs(t, got["hang"], ErrTimeout)
}

func TestSubmitAfterStop(t *testing.T) {
	p := NewPool(1, 0)
	assert.ErrorIs(t, p.Submit(context.Background(), Task{}), ErrStopped)

	p.Start(context.Background())
	p.Stop()
	assert.ErrorIs(t, p.Submit(context.Background(), Task{Run: func(context.Context) error { return nil }}), ErrStopped)
}

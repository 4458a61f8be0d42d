package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

var ErrStopped = errors.New("worker pool stopped")

// ErrTimeout is reported when a task outlives the per-item deadline. The
// task's goroutine is abandoned, not killed.
var ErrTimeout = errors.New("task timed out")

// Task is one unit of work. Done is always called exactly once with the
// outcome, including timeouts and panics.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
	Done func(err error)
}

type Pool struct {
	size    int
	timeout time.Duration
	jobs    chan Task

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(size int, timeout time.Duration) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{size: size, timeout: timeout, jobs: make(chan Task)}
}

func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	p.ctx, p.cancel = context.WithCancel(ctx)
	runCtx := p.ctx
	p.mu.Unlock()

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(runCtx, i)
	}
	slog.Info("worker pool started", "workers", p.size, "item_timeout", p.timeout)
}

func (p *Pool) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
	slog.Info("worker pool stopped")
}

// Submit hands t to the next free worker. It blocks until a worker takes
// it, ctx ends, or the pool stops; in the last two cases t.Done is not
// called and the error is returned instead.
func (p *Pool) Submit(ctx context.Context, t Task) error {
	p.mu.RLock()
	poolCtx := p.ctx
	p.mu.RUnlock()
	if poolCtx == nil {
		return ErrStopped
	}

	select {
	case p.jobs <- t:
		return nil
	case <-poolCtx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.jobs:
			err := p.execute(ctx, t)
			if err != nil {
				slog.Warn("task failed", "worker", id, "task", t.Name, "error", err)
			}
			if t.Done != nil {
				t.Done(err)
			}
		}
	}
}

func (p *Pool) execute(ctx context.Context, t Task) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("task panicked", "task", t.Name, "panic", r, "stack", string(debug.Stack()))
				result <- fmt.Errorf("panic: %v", r)
			}
		}()
		result <- t.Run(ctx)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrTimeout, p.timeout)
		}
		return ctx.Err()
	}
}

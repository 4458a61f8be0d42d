package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/YannKr/countersignal/internal/metrics"
)

// retrySchedule is the wait before each retry; a callback is dead-lettered
// once it runs out.
var retrySchedule = []time.Duration{
	250 * time.Millisecond,
	time.Second,
	5 * time.Second,
	30 * time.Second,
	2 * time.Minute,
}

func nextRetryIn(attempts int) (time.Duration, bool) {
	idx := attempts - 1
	if idx < 0 || idx >= len(retrySchedule) {
		return 0, false
	}
	return retrySchedule[idx], true
}

// Retrier drains the spool, replaying callbacks whose first write failed.
type Retrier struct {
	Listener   *Listener
	Spool      Spool
	DeadLetter *DeadLetter
	Interval   time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func (r *Retrier) Start(ctx context.Context) {
	if r.Interval == 0 {
		r.Interval = retrySchedule[0]
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx)
	slog.Info("callback retrier started", "interval", r.Interval)
}

func (r *Retrier) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
	slog.Info("callback retrier stopped")
}

func (r *Retrier) loop(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

// runOnce looks at each item queued when it started, at most once.
func (r *Retrier) runOnce(ctx context.Context) {
	n, err := r.Spool.Len(ctx)
	if err != nil {
		slog.Error("callback retrier: spool length", "error", err)
		return
	}
	defer r.refreshDepth(ctx)

	for i := int64(0); i < n; i++ {
		p, err := r.Spool.Pop(ctx)
		if err != nil {
			slog.Error("callback retrier: pop", "error", err)
			return
		}
		if p == nil {
			return
		}
		if now := r.Listener.now(); now.Before(p.NextAttempt) {
			r.requeue(ctx, p)
			continue
		}
		r.retry(ctx, p)
	}
}

func (r *Retrier) retry(ctx context.Context, p *Pending) {
	rctx, cancel := context.WithTimeout(ctx, r.Listener.timeout)
	hit, err := r.Listener.Record(rctx, p.Observation)
	cancel()
	if err == nil {
		metrics.SpoolOutcomes.WithLabelValues("recovered").Inc()
		slog.Info("spooled callback recorded", "token", p.Observation.Token, "attempts", p.Attempts+1,
			"known_token", hit != nil)
		return
	}

	p.LastError = err.Error()
	wait, ok := nextRetryIn(p.Attempts + 1)
	p.Attempts++
	if !ok {
		r.deadLetter(p)
		return
	}
	p.NextAttempt = r.Listener.now().Add(wait)
	slog.Warn("spooled callback failed, will retry", "token", p.Observation.Token, "attempt", p.Attempts,
		"next_retry", wait, "error", err)
	r.requeue(ctx, p)
}

func (r *Retrier) requeue(ctx context.Context, p *Pending) {
	if err := r.Spool.Push(ctx, p); err != nil {
		slog.Error("callback retrier: requeue failed", "token", p.Observation.Token, "error", err)
		r.deadLetter(p)
	}
}

func (r *Retrier) deadLetter(p *Pending) {
	metrics.SpoolOutcomes.WithLabelValues("dead_lettered").Inc()
	slog.Error("callback retries exhausted, writing dead letter", "token", p.Observation.Token,
		"attempts", p.Attempts, "error", p.LastError)
	if r.DeadLetter == nil {
		return
	}
	if err := r.DeadLetter.Append(p); err != nil {
		slog.Error("dead letter write failed, evidence lost", "token", p.Observation.Token, "error", err)
	}
}

func (r *Retrier) refreshDepth(ctx context.Context) {
	if n, err := r.Spool.Len(ctx); err == nil {
		metrics.SpoolDepth.Set(float64(n))
	}
}

// DeadLetter appends exhausted callbacks to a JSON-lines file.
type DeadLetter struct {
	Path string
	mu   sync.Mutex
}

func (d *DeadLetter) Append(p *Pending) error {
	line, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(d.Path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(d.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Count returns how many dead letters the file holds.
func (d *DeadLetter) Count() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, err := os.ReadFile(d.Path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n, nil
}

// Depth is the number of callbacks waiting in the spool.
func (r *Retrier) Depth(ctx context.Context) (int64, error) {
	return r.Spool.Len(ctx)
}

func (r *Retrier) DeadLetters() (int, error) {
	if r.DeadLetter == nil {
		return 0, nil
	}
	return r.DeadLetter.Count()
}

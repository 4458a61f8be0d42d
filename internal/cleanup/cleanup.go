package cleanup

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/YannKr/countersignal/internal/db"
)

// Cleaner prunes rejected lookups past their retention and removes artifact
// directories whose campaign no longer exists.
type Cleaner struct {
	DB        *sql.DB
	DataDir   string
	Interval  time.Duration
	Retention time.Duration
	Now       func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func (c *Cleaner) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.loop(ctx)
	slog.Info("cleanup scheduler started", "interval", c.Interval, "retention", c.Retention)
}

func (c *Cleaner) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	slog.Info("cleanup scheduler stopped")
}

func (c *Cleaner) loop(ctx context.Context) {
	defer close(c.done)

	c.runOnce()

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runOnce()
		}
	}
}

func (c *Cleaner) runOnce() {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	if c.Retention > 0 {
		cutoff := now().Add(-c.Retention)
		if n, err := db.PruneRejectedLookups(c.DB, cutoff); err != nil {
			slog.Error("cleanup: prune rejected lookups", "error", err)
		} else if n > 0 {
			slog.Info("cleanup: pruned rejected lookups", "count", n, "before", cutoff)
		}
	}

	root := filepath.Join(c.DataDir, "artifacts")
	dirs, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("cleanup: read artifacts dir", "dir", root, "error", err)
		}
		return
	}
	live, err := db.ListCampaignIDs(c.DB)
	if err != nil {
		slog.Error("cleanup: list campaigns", "error", err)
		return
	}
	for _, d := range dirs {
		if !d.IsDir() || live[d.Name()] {
			continue
		}
		dir := filepath.Join(root, d.Name())
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("cleanup: remove orphaned artifacts", "dir", dir, "error", err)
		} else {
			slog.Info("cleanup: removed orphaned artifacts", "campaign", d.Name())
		}
	}
}

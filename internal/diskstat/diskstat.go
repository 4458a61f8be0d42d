// Package diskstat caches how much space the data directory and its
// filesystem are using.
package diskstat

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/YannKr/countersignal/internal/metrics"
)

// Stats is a point-in-time snapshot of disk usage.
type Stats struct {
	TotalBytes     uint64    `json:"total_bytes"`
	FreeBytes      uint64    `json:"free_bytes"`
	DataBytes      uint64    `json:"data_bytes"`
	ArtifactsBytes uint64    `json:"artifacts_bytes"`
	DatabaseBytes  uint64    `json:"database_bytes"`
	CapturedAt     time.Time `json:"captured_at"`
}

// PctFree returns the percentage of the filesystem that is free (0-100).
// An unknown total counts as entirely free.
func (s Stats) PctFree() float64 {
	if s.TotalBytes == 0 {
		return 100
	}
	return float64(s.FreeBytes) / float64(s.TotalBytes) * 100
}

// Low reports whether free space is at or below minPct.
func (s Stats) Low(minPct float64) bool {
	return minPct > 0 && s.PctFree() <= minPct
}

// Cache is a goroutine-safe disk snapshot refreshed in the background.
type Cache struct {
	mu       sync.RWMutex
	stats    Stats
	dataDir  string
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

func New(dataDir string, ttl time.Duration) *Cache {
	return &Cache{
		dataDir: dataDir,
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
}

// Start takes a first snapshot and begins polling.
func (c *Cache) Start() {
	c.Refresh()
	go func() {
		t := time.NewTicker(c.ttl)
		defer t.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-t.C:
				c.Refresh()
			}
		}
	}()
}

func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Get returns the latest snapshot. A nil Cache returns the zero Stats.
func (c *Cache) Get() Stats {
	if c == nil {
		return Stats{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *Cache) Refresh() {
	total, free, err := statFS(c.dataDir)
	if err != nil {
		// leave previous values in place
		return
	}
	data, artifacts, database := walkDirSizes(c.dataDir)
	s := Stats{
		TotalBytes:     total,
		FreeBytes:      free,
		DataBytes:      data,
		ArtifactsBytes: artifacts,
		DatabaseBytes:  database,
		CapturedAt:     time.Now(),
	}
	c.mu.Lock()
	c.stats = s
	c.mu.Unlock()

	metrics.DiskFreeBytes.Set(float64(free))
	metrics.ArtifactBytes.Set(float64(artifacts))
}

func statFS(path string) (total, free uint64, err error) {
	var stat syscall.Statfs_t
	if err = syscall.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	bsize := uint64(stat.Bsize)
	return bsize * stat.Blocks, bsize * stat.Bavail, nil
}

func walkDirSizes(dataDir string) (total, artifacts, database uint64) {
	filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		size := uint64(info.Size())
		total += size
		rel, err := filepath.Rel(dataDir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		switch {
		case strings.HasPrefix(rel, "artifacts/"):
			artifacts += size
		case strings.HasPrefix(rel, "db/"):
			database += size
		}
		return nil
	})
	return
}

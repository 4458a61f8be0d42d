package diskstat

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPctFreeAndLow(t *testing.T) {
	s := Stats{TotalBytes: 1000, FreeBytes: 15}
	assert.InDelta(t, 1.5, s.PctFree(), 1e-9)
	assert.True(t, s.Low(2))
	assert.False(t, s.Low(1))
	assert.False(t, s.Low(0))

	assert.Equal(t, 100.0, Stats{}.PctFree())
}

func TestRefreshSplitsUsage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "artifacts", "c1"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "db"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "artifacts", "c1", "a.pdf"), make([]byte, 300), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "db", "countersignal.db"), make([]byte, 200), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deadletter.jsonl"), make([]byte, 50), 0644))

	c := New(dir, time.Hour)
	c.Start()
	defer c.Stop()

	s := c.Get()
	assert.EqualValues(t, 550, s.DataBytes)
	assert.EqualValues(t, 300, s.ArtifactsBytes)
	assert.EqualValues(t, 200, s.DatabaseBytes)
	assert.NotZero(t, s.TotalBytes)
	assert.False(t, s.CapturedAt.IsZero())

	c.Stop()
}

func TestNilCache(t *testing.T) {
	var c *Cache
	assert.Equal(t, Stats{}, c.Get())
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", "/tmp/cs")
	cfg := Load()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "/tmp/cs/deadletter.jsonl", cfg.DeadLetterPath)
	assert.Equal(t, time.Second, cfg.Scoring.MinElapsed)
	assert.Equal(t, 24*time.Hour, cfg.Scoring.MaxElapsed)
	assert.Equal(t, []string{"User-Agent"}, cfg.Scoring.RequiredHeaders)
	assert.False(t, cfg.AllowReset)
	assert.Equal(t, 2.0, cfg.MinFreeDiskPct)
	assert.Empty(t, cfg.AlertEmailTo)
	assert.Equal(t, 587, cfg.SMTPPort)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WORKER_COUNT", "9")
	t.Setenv("ITEM_TIMEOUT", "750ms")
	t.Setenv("ALLOW_RESET", "true")
	t.Setenv("SCORE_MIN_ELAPSED", "3s")
	t.Setenv("SCORE_AGENT_UA", " ^mybot/ , ^other ")
	t.Setenv("MIN_FREE_DISK_PCT", "7.5")
	t.Setenv("ALERT_EMAIL_TO", "soc@example.test,ir@example.test")

	cfg := Load()
	assert.Equal(t, 9, cfg.WorkerCount)
	assert.Equal(t, 750*time.Millisecond, cfg.ItemTimeout)
	assert.True(t, cfg.AllowReset)
	assert.Equal(t, 3*time.Second, cfg.Scoring.MinElapsed)
	assert.Equal(t, []string{"^mybot/", "^other"}, cfg.Scoring.AgentUA)
	assert.Equal(t, 7.5, cfg.MinFreeDiskPct)
	assert.Equal(t, []string{"soc@example.test", "ir@example.test"}, cfg.AlertEmailTo)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("WORKER_COUNT", "many")
	t.Setenv("CALLBACK_TIMEOUT", "soon")
	cfg := Load()
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 2*time.Second, cfg.CallbackTimeout)
}

package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YannKr/countersignal/internal/model"
)

func sampleHit(conf model.Confidence) *model.Hit {
	return &model.Hit{
		ID:         "hit-1",
		Token:      "Zq3xV0bK9wLmP2sT7uYc1A",
		CampaignID: "c1",
		ReceivedAt: time.Date(2026, 3, 14, 9, 0, 2, 0, time.UTC),
		Method:     http.MethodGet,
		UserAgent:  "python-requests/2.31.0",
		Confidence: conf,
		Signals:    []string{"timing_plausible", "ua_agent"},
	}
}

func TestNotifySignsAndRetries(t *testing.T) {
	var calls atomic.Int32
	got := make(chan Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, Sign("s3cret", body), r.Header.Get(SignatureHeader))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var ev Event
		assert.NoError(t, json.Unmarshal(body, &ev))
		got <- ev
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "s3cret", model.ConfidenceMedium)
	n.Schedule = []time.Duration{10 * time.Millisecond}
	defer n.Close()

	n.Notify(sampleHit(model.ConfidenceHigh))

	select {
	case ev := <-got:
		assert.Equal(t, "hit_recorded", ev.EventType)
		data := ev.Data.(map[string]any)
		assert.Equal(t, "HIGH", data["confidence"])
		assert.Equal(t, "hit-1", data["hit_id"])
	case <-time.After(5 * time.Second):
		t.Fatal("webhook never delivered")
	}
	assert.EqualValues(t, 2, calls.Load())
}

func TestNotifyBelowThresholdIsSkipped(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "", "high")
	n.Notify(sampleHit(model.ConfidenceMedium))
	n.Notify(sampleHit(model.ConfidenceLow))
	n.Close()
	assert.Zero(t, calls.Load())
}

func TestDisabledNotifier(t *testing.T) {
	var n *Notifier
	require.False(t, n.Enabled())
	n.Notify(sampleHit(model.ConfidenceHigh))
	n.Close()
}

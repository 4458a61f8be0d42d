package email

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YannKr/countersignal/internal/model"
)

func sampleHit(c model.Confidence) *model.Hit {
	return &model.Hit{
		ID:          "hit-1",
		Token:       "tok-abc",
		CampaignID:  "camp-1",
		ReceivedAt:  time.Date(2026, 3, 14, 9, 1, 0, 0, time.UTC),
		Method:      "GET",
		SourceIP:    "203.0.113.9",
		UserAgent:   "python-requests/2.31",
		Confidence:  c,
		Signals:     []string{"timing_plausible", "ua_agent"},
		Rationale:   "Programmatic client fetched the canary 60s after generation.",
		RawMetadata: model.HitMetadata{Path: "/c/tok-abc"},
	}
}

type capture struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *capture) send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func TestNotifyComposesAlert(t *testing.T) {
	var got capture
	m := &Mailer{Host: "smtp.example.test", Port: 587, From: "CounterSignal <alerts@example.test>",
		To: []string{"soc@example.test"}, send: got.send}

	m.Notify(sampleHit(model.ConfidenceHigh))
	m.Close()

	require.Len(t, got.msgs, 1)
	r, err := mail.CreateReader(bytes.NewReader(got.msgs[0]))
	require.NoError(t, err)
	subject, err := r.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "[HIGH] canary hit on tok-abc", subject)

	var bodies []string
	for {
		p, err := r.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		b, err := io.ReadAll(p.Body)
		require.NoError(t, err)
		bodies = append(bodies, string(b))
	}
	require.Len(t, bodies, 2)
	assert.Contains(t, bodies[0], "Source IP:  203.0.113.9")
	assert.Contains(t, bodies[1], "<code>tok-abc</code>")
}

func TestNotifyRespectsThreshold(t *testing.T) {
	var got capture
	m := &Mailer{Host: "smtp.example.test", From: "alerts@example.test", To: []string{"soc@example.test"},
		MinConfidence: "medium", send: got.send}

	m.Notify(sampleHit(model.ConfidenceLow))
	m.Notify(sampleHit(model.ConfidenceMedium))
	m.Close()
	assert.Len(t, got.msgs, 1)
}

func TestDisabledMailer(t *testing.T) {
	var m *Mailer
	assert.False(t, m.Enabled())
	m.Notify(sampleHit(model.ConfidenceHigh))
	m.Close()

	assert.False(t, (&Mailer{Host: "smtp.example.test"}).Enabled())
}

package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YannKr/countersignal/internal/metrics"
	"github.com/YannKr/countersignal/internal/model"
)

const SignatureHeader = "X-CounterSignal-Signature"

var backoffSchedule = []time.Duration{
	time.Second,
	10 * time.Second,
	time.Minute,
	5 * time.Minute,
}

func nextRetryIn(schedule []time.Duration, attemptNumber int) (time.Duration, bool) {
	idx := attemptNumber - 1
	if idx >= len(schedule) {
		return 0, false
	}
	return schedule[idx], true
}

type Event struct {
	EventType string      `json:"event_type"`
	EventID   string      `json:"event_id"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type HitData struct {
	HitID      string   `json:"hit_id"`
	CampaignID string   `json:"campaign_id"`
	Token      string   `json:"token"`
	ReceivedAt string   `json:"received_at"`
	Method     string   `json:"method"`
	SourceIP   string   `json:"source_ip"`
	UserAgent  string   `json:"user_agent"`
	Confidence string   `json:"confidence"`
	Signals    []string `json:"signals"`
	Rationale  string   `json:"rationale"`
}

// Notifier posts signed hit events to one endpoint. Deliveries run in the
// background and retry on the backoff schedule until Close.
type Notifier struct {
	URL           string
	Secret        string
	MinConfidence model.Confidence
	Client        *http.Client
	Schedule      []time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewNotifier(url, secret string, minConfidence model.Confidence) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		URL:           url,
		Secret:        secret,
		MinConfidence: model.Confidence(strings.ToUpper(string(minConfidence))),
		Client:        &http.Client{Timeout: 10 * time.Second},
		Schedule:      backoffSchedule,
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.URL != ""
}

// Notify queues a delivery for h when it meets the confidence threshold.
func (n *Notifier) Notify(h *model.Hit) {
	if !n.Enabled() || !h.Confidence.AtLeast(n.MinConfidence) {
		return
	}

	event := Event{
		EventType: "hit_recorded",
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data: HitData{
			HitID:      h.ID,
			CampaignID: h.CampaignID,
			Token:      h.Token,
			ReceivedAt: h.ReceivedAt.UTC().Format(time.RFC3339Nano),
			Method:     h.Method,
			SourceIP:   h.SourceIP,
			UserAgent:  h.UserAgent,
			Confidence: string(h.Confidence),
			Signals:    h.Signals,
			Rationale:  h.Rationale,
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("webhook marshal", "error", err)
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(event.EventID, payload)
	}()
}

func (n *Notifier) deliver(eventID string, payload []byte) {
	for attempt := 1; ; attempt++ {
		status, err := postWebhook(n.ctx, n.Client, n.URL, n.Secret, payload)
		if err == nil {
			metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()
			slog.Info("webhook delivered", "event", eventID, "status", status, "attempt", attempt)
			return
		}
		wait, ok := nextRetryIn(n.Schedule, attempt)
		if !ok {
			metrics.WebhookDeliveries.WithLabelValues("exhausted").Inc()
			slog.Warn("webhook exhausted", "event", eventID, "attempts", attempt, "error", err)
			return
		}
		slog.Warn("webhook failed, will retry", "event", eventID, "attempt", attempt, "next_retry", wait, "error", err)
		select {
		case <-n.ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Close abandons pending retries and waits for in-flight posts.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.cancel()
	n.wg.Wait()
}

// Sign returns the signature header value for payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(ctx context.Context, client *http.Client, url, secret string, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(secret, payload))

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 500))

	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// Package listener receives token-bearing callbacks, records them as hits
// and keeps answering even when storage does not.
package listener

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/YannKr/countersignal/internal/metrics"
	"github.com/YannKr/countersignal/internal/model"
	"github.com/YannKr/countersignal/internal/scoring"
	"github.com/YannKr/countersignal/internal/sse"
	"github.com/YannKr/countersignal/internal/token"
)

// MaxBodyPreview bounds the request body kept with a hit.
const MaxBodyPreview = 4 << 10

// maxDiscard caps how much of an oversized body is read just to count it.
const maxDiscard = 1 << 20

const (
	okBody       = "ok\n"
	notFoundBody = "404 page not found\n"
)

// AllowedHeaders are the request headers stored with a hit.
var AllowedHeaders = []string{
	"Accept", "Accept-Language", "Accept-Encoding", "Referer", "X-Forwarded-For",
	"X-Real-IP", "Via", "From", "Content-Type", "Content-Length",
}

type Store interface {
	ResolveToken(ctx context.Context, value string) (*model.TokenContext, error)
	InsertHit(ctx context.Context, h *model.Hit) error
	InsertRejectedLookup(ctx context.Context, r *model.RejectedLookup) error
}

type Notifier interface {
	Notify(h *model.Hit)
}

// Notifiers fans a hit out to each notifier in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(h *model.Hit) {
	for _, n := range ns {
		n.Notify(h)
	}
}

// Observation is what the listener captured from one callback request.
type Observation struct {
	Token       string            `json:"token"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Query       string            `json:"query,omitempty"`
	SourceIP    string            `json:"source_ip"`
	UserAgent   string            `json:"user_agent"`
	Headers     map[string]string `json:"headers,omitempty"`
	BodyPreview string            `json:"body_preview,omitempty"`
	BodyBytes   int64             `json:"body_bytes"`
	ReceivedAt  time.Time         `json:"received_at"`
}

type Options struct {
	Timeout  time.Duration
	Hub      *sse.Hub
	Notifier Notifier
	Now      func() time.Time
	// RequiredHeaders are captured for scoring even when not stored.
	RequiredHeaders []string
}

type Listener struct {
	store    Store
	scorer   *scoring.Scorer
	spool    Spool
	hub      *sse.Hub
	notifier Notifier
	timeout  time.Duration
	now      func() time.Time
	capture  []string
}

func New(store Store, scorer *scoring.Scorer, spool Spool, opts Options) *Listener {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	capture := append([]string{}, AllowedHeaders...)
	capture = append(capture, opts.RequiredHeaders...)
	return &Listener{
		store:    store,
		scorer:   scorer,
		spool:    spool,
		hub:      opts.Hub,
		notifier: opts.Notifier,
		timeout:  opts.Timeout,
		now:      opts.Now,
		capture:  capture,
	}
}

// Routes mounts the callback endpoint. Trailing segments after the token
// are accepted so payloads can append exfiltrated data to the path.
func (l *Listener) Routes(r chi.Router) {
	for _, pattern := range []string{"/c/{token}", "/c/{token}/*"} {
		r.Get(pattern, l.ServeCallback)
		r.Post(pattern, l.ServeCallback)
		r.Put(pattern, l.ServeCallback)
	}
}

func (l *Listener) ServeCallback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { metrics.CallbackDuration.Observe(time.Since(start).Seconds()) }()

	ctx, cancel := context.WithTimeout(r.Context(), l.timeout)
	defer cancel()

	obs := l.observe(r)
	if !token.Valid(obs.Token) {
		l.reject(ctx, obs)
		notFound(w)
		return
	}

	hit, err := l.Record(ctx, obs)
	switch {
	case err != nil:
		// While the store is down a well-formed token cannot be resolved,
		// so known and unknown tokens both get 200. The retrier settles it:
		// unknown tokens end up as rejected lookups once storage is back.
		l.spoolObservation(ctx, obs, err)
	case hit == nil:
		notFound(w)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, okBody)
}

// Record resolves the token, scores the observation and stores a hit. It
// returns nil, nil for a token that was never minted, after logging the
// rejected lookup. A non-nil error is a storage fault.
func (l *Listener) Record(ctx context.Context, obs Observation) (*model.Hit, error) {
	tc, err := l.store.ResolveToken(ctx, obs.Token)
	if err != nil {
		return nil, err
	}
	if tc == nil {
		l.reject(ctx, obs)
		return nil, nil
	}

	headers := http.Header{}
	for k, v := range obs.Headers {
		headers.Set(k, v)
	}
	if obs.UserAgent != "" {
		headers.Set("User-Agent", obs.UserAgent)
	}
	verdict := l.scorer.Score(scoring.Request{
		Method:     obs.Method,
		UserAgent:  obs.UserAgent,
		Headers:    headers,
		BodyBytes:  obs.BodyBytes,
		ReceivedAt: obs.ReceivedAt,
	}, *tc)

	stored := map[string]string{}
	for _, h := range AllowedHeaders {
		if v := headers.Get(h); v != "" {
			stored[h] = v
		}
	}
	hit := &model.Hit{
		ID:         uuid.New().String(),
		Token:      tc.Token,
		CampaignID: tc.CampaignID,
		ReceivedAt: obs.ReceivedAt,
		Method:     obs.Method,
		SourceIP:   obs.SourceIP,
		UserAgent:  obs.UserAgent,
		Confidence: verdict.Confidence,
		Signals:    verdict.Signals,
		Rationale:  verdict.Rationale,
		RawMetadata: model.HitMetadata{
			Path:        obs.Path,
			Query:       obs.Query,
			Headers:     stored,
			BodyPreview: obs.BodyPreview,
			BodyBytes:   obs.BodyBytes,
		},
	}
	if err := l.store.InsertHit(ctx, hit); err != nil {
		return nil, err
	}

	metrics.HitsTotal.WithLabelValues(string(hit.Confidence)).Inc()
	slog.Info("hit recorded", "campaign", hit.CampaignID, "token", hit.Token, "confidence", hit.Confidence,
		"source_ip", hit.SourceIP, "user_agent", hit.UserAgent)
	l.publish(hit)
	if l.notifier != nil {
		l.notifier.Notify(hit)
	}
	return hit, nil
}

func (l *Listener) observe(r *http.Request) Observation {
	obs := Observation{
		Token:      chi.URLParam(r, "token"),
		Method:     r.Method,
		Path:       r.URL.Path,
		Query:      r.URL.RawQuery,
		SourceIP:   remoteIP(r),
		UserAgent:  r.UserAgent(),
		Headers:    map[string]string{},
		ReceivedAt: l.now().UTC(),
	}
	for _, h := range l.capture {
		if v := r.Header.Get(h); v != "" {
			obs.Headers[http.CanonicalHeaderKey(h)] = v
		}
	}
	if r.Body != nil {
		preview, _ := io.ReadAll(io.LimitReader(r.Body, MaxBodyPreview))
		rest, _ := io.Copy(io.Discard, io.LimitReader(r.Body, maxDiscard))
		obs.BodyPreview = strings.ToValidUTF8(string(preview), "\uFFFD")
		obs.BodyBytes = int64(len(preview)) + rest
	}
	return obs
}

// reject records an unknown or malformed token. Failures are only logged;
// the caller sees the same 404 either way.
func (l *Listener) reject(ctx context.Context, obs Observation) {
	metrics.RejectedTotal.Inc()
	tok := obs.Token
	if len(tok) > 128 {
		tok = tok[:128]
	}
	err := l.store.InsertRejectedLookup(ctx, &model.RejectedLookup{
		Token:      tok,
		SourceIP:   obs.SourceIP,
		UserAgent:  obs.UserAgent,
		Method:     obs.Method,
		ReceivedAt: obs.ReceivedAt,
	})
	if err != nil {
		slog.Warn("record rejected lookup", "error", err)
	}
}

func (l *Listener) spoolObservation(ctx context.Context, obs Observation, cause error) {
	p := &Pending{
		Observation: obs,
		Attempts:    1,
		NextAttempt: l.now().Add(retrySchedule[0]),
		LastError:   cause.Error(),
	}
	// the request deadline may be what failed; the spool write must not share it
	if err := l.spool.Push(context.WithoutCancel(ctx), p); err != nil {
		slog.Error("spool callback, evidence lost", "token", obs.Token, "cause", cause, "error", err)
		return
	}
	metrics.SpoolOutcomes.WithLabelValues("spooled").Inc()
	metrics.SpoolDepth.Inc()
	slog.Warn("storage fault, callback spooled", "token", obs.Token, "error", cause)
}

type hitEvent struct {
	ID         string   `json:"id"`
	CampaignID string   `json:"campaign_id"`
	Token      string   `json:"token"`
	ReceivedAt string   `json:"received_at"`
	Method     string   `json:"method"`
	SourceIP   string   `json:"source_ip"`
	UserAgent  string   `json:"user_agent"`
	Confidence string   `json:"confidence"`
	Signals    []string `json:"signals"`
}

func (l *Listener) publish(h *model.Hit) {
	if l.hub == nil {
		return
	}
	data, err := json.Marshal(hitEvent{
		ID:         h.ID,
		CampaignID: h.CampaignID,
		Token:      h.Token,
		ReceivedAt: h.ReceivedAt.Format(time.RFC3339Nano),
		Method:     h.Method,
		SourceIP:   h.SourceIP,
		UserAgent:  h.UserAgent,
		Confidence: string(h.Confidence),
		Signals:    h.Signals,
	})
	if err != nil {
		return
	}
	evt := sse.Event{Type: "hit", Data: string(data)}
	l.hub.Publish(sse.TopicHits, evt)
	l.hub.Publish(sse.CampaignTopic(h.CampaignID), evt)
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusNotFound)
	io.WriteString(w, notFoundBody)
}

// remoteIP strips the port chi's RealIP middleware may have left in place.
func remoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

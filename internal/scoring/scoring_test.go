package scoring

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YannKr/countersignal/internal/config"
	"github.com/YannKr/countersignal/internal/model"
)

var generated = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func defaultScorer(t *testing.T) *Scorer {
	t.Helper()
	p, err := NewPolicy(config.LoadScoring())
	require.NoError(t, err)
	return New(p)
}

func tokenCtx() model.TokenContext {
	return model.TokenContext{
		Token:             "Zq3xV0bK9wLmP2sT7uYc1A",
		CampaignID:        "c1",
		CampaignCreatedAt: generated,
		Format:            model.FormatPDF,
		Technique:         "white_ink",
		PayloadType:       model.TypeCallback,
	}
}

func get(ua string, after time.Duration) Request {
	h := http.Header{}
	if ua != "" {
		h.Set("User-Agent", ua)
	}
	return Request{Method: http.MethodGet, UserAgent: ua, Headers: h, ReceivedAt: generated.Add(after)}
}

func TestScore(t *testing.T) {
	s := defaultScorer(t)

	tests := []struct {
		name    string
		req     Request
		want    model.Confidence
		signals []string
	}{
		{
			name:    "library client two seconds later",
			req:     get("python-requests/2.31.0", 2*time.Second),
			want:    model.ConfidenceHigh,
			signals: []string{SignalTimingPlausible, SignalUAAgent, "expected:pdf/white_ink"},
		},
		{
			name:    "scanner five milliseconds later",
			req:     get("Mozilla/5.0 zgrab/0.x", 5*time.Millisecond),
			want:    model.ConfidenceLow,
			signals: []string{SignalTimingTooFast, SignalUAScanner, "expected:pdf/white_ink"},
		},
		{
			name:    "scanner with plausible timing",
			req:     get("Nuclei - Open-source project", time.Minute),
			want:    model.ConfidenceLow,
			signals: []string{SignalTimingPlausible, SignalUAScanner, "expected:pdf/white_ink"},
		},
		{
			name:    "library client too late",
			req:     get("curl/8.4.0", 25*time.Hour),
			want:    model.ConfidenceLow,
			signals: []string{SignalTimingTooLate, SignalUAAgent, "expected:pdf/white_ink"},
		},
		{
			name:    "exactly at the lower bound",
			req:     get("curl/8.4.0", time.Second),
			want:    model.ConfidenceLow,
			signals: []string{SignalTimingTooFast, SignalUAAgent, "expected:pdf/white_ink"},
		},
		{
			name: "browser",
			req: get("Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 Version/17.0 Safari/605.1.15",
				10*time.Minute),
			want:    model.ConfidenceMedium,
			signals: []string{SignalTimingPlausible, SignalUABrowser, "expected:pdf/white_ink"},
		},
		{
			name:    "unrecognised client",
			req:     get("ResearchFetcher 1.0", 10*time.Minute),
			want:    model.ConfidenceMedium,
			signals: []string{SignalTimingPlausible, SignalUAUnknown, "expected:pdf/white_ink"},
		},
		{
			name:    "missing user-agent",
			req:     get("", 10*time.Minute),
			want:    model.ConfidenceLow,
			signals: []string{SignalTimingPlausible, SignalUAUnknown, "missing_header:User-Agent", "expected:pdf/white_ink"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := s.Score(tt.req, tokenCtx())
			assert.Equal(t, tt.want, v.Confidence)
			assert.Equal(t, tt.signals, v.Signals)
			assert.NotEmpty(t, v.Rationale)
		})
	}
}

func TestDataCarryingRequest(t *testing.T) {
	s := defaultScorer(t)
	req := get("python-httpx/0.27", 30*time.Second)
	req.Method = http.MethodPost
	req.BodyBytes = 512

	v := s.Score(req, tokenCtx())
	assert.Equal(t, model.ConfidenceHigh, v.Confidence)
	assert.Contains(t, v.Signals, SignalDataCarrying)
}

func TestScoreIsDeterministic(t *testing.T) {
	s := defaultScorer(t)
	req := get("go-http-client/1.1", 3*time.Second)
	first := s.Score(req, tokenCtx())
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, s.Score(req, tokenCtx()))
	}
}

func TestNewPolicyRejectsBadConfig(t *testing.T) {
	cfg := config.LoadScoring()
	cfg.AgentUA = []string{"("}
	_, err := NewPolicy(cfg)
	assert.Error(t, err)

	cfg = config.LoadScoring()
	cfg.MaxElapsed = cfg.MinElapsed
	_, err = NewPolicy(cfg)
	assert.Error(t, err)
}

// Package scoring labels a callback with how credible it is as evidence
// that an agent acted on an embedded instruction.
package scoring

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/YannKr/countersignal/internal/config"
	"github.com/YannKr/countersignal/internal/model"
)

const (
	SignalTimingPlausible = "timing_plausible"
	SignalTimingTooFast   = "timing_too_fast"
	SignalTimingTooLate   = "timing_too_late"
	SignalUAAgent         = "ua_agent"
	SignalUABrowser       = "ua_browser"
	SignalUAScanner       = "ua_scanner"
	SignalUAUnknown       = "ua_unknown"
	SignalDataCarrying    = "data_carrying_request"
	signalMissingHeader   = "missing_header:"
	signalExpected        = "expected:"
)

// Policy is the compiled form of config.Scoring.
type Policy struct {
	MinElapsed        time.Duration
	MaxElapsed        time.Duration
	AgentUserAgents   []*regexp.Regexp
	ScannerUserAgents []*regexp.Regexp
	BrowserUserAgents []*regexp.Regexp
	RequiredHeaders   []string
}

func NewPolicy(cfg config.Scoring) (*Policy, error) {
	p := &Policy{
		MinElapsed:      cfg.MinElapsed,
		MaxElapsed:      cfg.MaxElapsed,
		RequiredHeaders: cfg.RequiredHeaders,
	}
	if p.MaxElapsed <= p.MinElapsed {
		return nil, fmt.Errorf("scoring window is empty: min %s, max %s", p.MinElapsed, p.MaxElapsed)
	}
	var err error
	if p.AgentUserAgents, err = compile(cfg.AgentUA); err != nil {
		return nil, fmt.Errorf("agent user-agent patterns: %w", err)
	}
	if p.ScannerUserAgents, err = compile(cfg.ScannerUA); err != nil {
		return nil, fmt.Errorf("scanner user-agent patterns: %w", err)
	}
	if p.BrowserUserAgents, err = compile(cfg.BrowserUA); err != nil {
		return nil, fmt.Errorf("browser user-agent patterns: %w", err)
	}
	return p, nil
}

func compile(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// Request is the callback metadata the scorer looks at.
type Request struct {
	Method     string
	UserAgent  string
	Headers    http.Header
	BodyBytes  int64
	ReceivedAt time.Time
}

type Verdict struct {
	Confidence model.Confidence
	Signals    []string
	Rationale  string
}

// Scorer holds only its policy; Score is a pure function of its arguments.
type Scorer struct {
	policy *Policy
}

func New(p *Policy) *Scorer {
	return &Scorer{policy: p}
}

type uaClass int

const (
	uaUnknown uaClass = iota
	uaAgent
	uaBrowser
	uaScanner
)

func (s *Scorer) classify(ua string) uaClass {
	if ua == "" {
		return uaUnknown
	}
	// scanners often carry a browser or library prefix, so they win
	if matchAny(s.policy.ScannerUserAgents, ua) {
		return uaScanner
	}
	if matchAny(s.policy.AgentUserAgents, ua) {
		return uaAgent
	}
	if matchAny(s.policy.BrowserUserAgents, ua) {
		return uaBrowser
	}
	return uaUnknown
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func (s *Scorer) Score(req Request, tc model.TokenContext) Verdict {
	var (
		signals []string
		reasons []string
	)
	low := false

	elapsed := req.ReceivedAt.Sub(tc.CampaignCreatedAt)
	timingOK := false
	switch {
	case elapsed <= s.policy.MinElapsed:
		signals = append(signals, SignalTimingTooFast)
		reasons = append(reasons, fmt.Sprintf("arrived %s after generation, faster than any agent round trip", round(elapsed)))
		low = true
	case elapsed >= s.policy.MaxElapsed:
		signals = append(signals, SignalTimingTooLate)
		reasons = append(reasons, fmt.Sprintf("arrived %s after generation, outside the agent window", round(elapsed)))
		low = true
	default:
		signals = append(signals, SignalTimingPlausible)
		timingOK = true
	}

	class := s.classify(req.UserAgent)
	switch class {
	case uaScanner:
		signals = append(signals, SignalUAScanner)
		reasons = append(reasons, "user-agent matches a known scanner")
		low = true
	case uaAgent:
		signals = append(signals, SignalUAAgent)
	case uaBrowser:
		signals = append(signals, SignalUABrowser)
	default:
		signals = append(signals, SignalUAUnknown)
	}

	for _, h := range s.policy.RequiredHeaders {
		if strings.TrimSpace(req.Headers.Get(h)) == "" {
			signals = append(signals, signalMissingHeader+h)
			reasons = append(reasons, "request is missing the "+h+" header")
			low = true
		}
	}

	if req.BodyBytes > 0 || req.Method == http.MethodPost || req.Method == http.MethodPut {
		signals = append(signals, SignalDataCarrying)
	}
	signals = append(signals, signalExpected+string(tc.Format)+"/"+string(tc.Technique))

	v := Verdict{Signals: signals}
	switch {
	case low:
		v.Confidence = model.ConfidenceLow
		v.Rationale = "Low confidence: " + strings.Join(reasons, "; ") + "."
	case class == uaAgent && timingOK:
		v.Confidence = model.ConfidenceHigh
		v.Rationale = fmt.Sprintf("High confidence: library-style client called back %s after generation.", round(elapsed))
	case class == uaBrowser:
		v.Confidence = model.ConfidenceMedium
		v.Rationale = "Medium confidence: plausible timing, but the user-agent looks like a browser, which may be a human preview."
	default:
		v.Confidence = model.ConfidenceMedium
		v.Rationale = "Medium confidence: plausible timing, but the user-agent is not recognised."
	}
	return v
}

func round(d time.Duration) time.Duration {
	if d < time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(time.Second)
}

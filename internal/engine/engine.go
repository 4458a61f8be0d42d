// Package engine runs a generate request: it validates the selection, mints
// one token per combination, stores the campaign and fans artifact
// generation out over a worker pool.
package engine

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YannKr/countersignal/internal/extract"
	"github.com/YannKr/countersignal/internal/metrics"
	"github.com/YannKr/countersignal/internal/model"
	"github.com/YannKr/countersignal/internal/technique"
	"github.com/YannKr/countersignal/internal/token"
	"github.com/YannKr/countersignal/internal/worker"
)

type Store interface {
	CreateCampaign(ctx context.Context, c *model.Campaign, tokens []model.Token) error
	UpdateTokenOutcome(ctx context.Context, t *model.Token) error
}

// Options tune an Engine. Entropy and Now exist for tests.
type Options struct {
	DataDir string
	Verify  bool
	Entropy io.Reader
	Now     func() time.Time
}

type Engine struct {
	registry *technique.Registry
	store    Store
	pool     *worker.Pool
	opts     Options
}

func New(registry *technique.Registry, store Store, pool *worker.Pool, opts Options) *Engine {
	if opts.Entropy == nil {
		opts.Entropy = rand.Reader
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{registry: registry, store: store, pool: pool, opts: opts}
}

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Entry is one generated document in a manifest.
type Entry struct {
	Format       model.Format       `json:"format"`
	Technique    model.Technique    `json:"technique"`
	PayloadStyle model.PayloadStyle `json:"payload_style"`
	PayloadType  model.PayloadType  `json:"payload_type"`
	Token        string             `json:"token"`
	CallbackURL  string             `json:"callback_url"`
	Artifact     string             `json:"artifact,omitempty"`
	SHA256       string             `json:"sha256,omitempty"`
	SizeBytes    int64              `json:"size_bytes,omitempty"`
	Status       string             `json:"status"`
	Error        string             `json:"error,omitempty"`
}

type Manifest struct {
	Campaign  model.Campaign `json:"campaign"`
	Entries   []Entry        `json:"entries"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
}

// Generate validates req, stores a campaign with one token per registered
// combination, and builds every artifact. Validation failures and token
// collisions reject the whole request before anything is stored; failures
// of single combinations are recorded in the manifest and never abort the
// batch.
func (e *Engine) Generate(ctx context.Context, req Request) (*Manifest, error) {
	req.normalize(e.registry)
	if err := req.validate(e.registry); err != nil {
		return nil, err
	}

	now := e.opts.Now().UTC()
	campaign := model.Campaign{
		ID:        uuid.New().String(),
		Name:      req.Name,
		CreatedAt: now,
		Config: model.CampaignConfig{
			Formats:       req.Formats,
			Techniques:    req.Techniques,
			PayloadStyles: req.Styles,
			PayloadTypes:  req.Types,
			CallbackURL:   req.CallbackURL,
			Dangerous:     req.Dangerous,
			Seed:          req.Seed,
		},
	}
	if campaign.Name == "" {
		campaign.Name = "campaign-" + campaign.ID[:8]
	}

	tokens, err := e.mint(campaign, combinations(e.registry, req), now)
	if err != nil {
		return nil, fmt.Errorf("mint tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil, &ValidationError{Problems: []string{"selection matches no registered format/technique pair"}}
	}
	if err := e.store.CreateCampaign(ctx, &campaign, tokens); err != nil {
		return nil, fmt.Errorf("store campaign: %w", err)
	}
	slog.Info("campaign created", "campaign", campaign.ID, "tokens", len(tokens), "dangerous", req.Dangerous)

	results := make([]error, len(tokens))
	var wg sync.WaitGroup
	for i := range tokens {
		t := &tokens[i]
		snapshot := *t
		var out builtArtifact
		wg.Add(1)
		err := e.pool.Submit(ctx, worker.Task{
			Name: fmt.Sprintf("%s/%s/%s/%s", t.Format, t.Technique, t.PayloadStyle, t.PayloadType),
			Run: func(ctx context.Context) error {
				var err error
				out, err = e.build(ctx, &campaign, &snapshot)
				return err
			},
			Done: func(err error) {
				defer wg.Done()
				if err == nil {
					t.State = model.TokenReady
					t.ArtifactPath, t.SHA256, t.SizeBytes = out.path, out.sha256, out.size
				} else {
					t.State = model.TokenFailed
					t.Error = err.Error()
				}
				results[i] = err
			},
		})
		if err != nil {
			wg.Done()
			t.State = model.TokenFailed
			t.Error = err.Error()
			results[i] = err
		}
	}
	wg.Wait()

	m := &Manifest{Campaign: campaign, Entries: make([]Entry, 0, len(tokens))}
	for i := range tokens {
		t := &tokens[i]
		// the request context may already be gone; the outcome still has to land
		if err := e.store.UpdateTokenOutcome(context.WithoutCancel(ctx), t); err != nil {
			slog.Error("record token outcome", "token", t.Value, "error", err)
		}
		entry := Entry{
			Format:       t.Format,
			Technique:    t.Technique,
			PayloadStyle: t.PayloadStyle,
			PayloadType:  t.PayloadType,
			Token:        t.Value,
			CallbackURL:  t.CallbackURL,
			Artifact:     t.ArtifactPath,
			SHA256:       t.SHA256,
			SizeBytes:    t.SizeBytes,
			Status:       StatusOK,
		}
		if results[i] != nil {
			entry.Status = StatusFailed
			entry.Error = t.Error
			m.Failed++
		} else {
			m.Succeeded++
		}
		metrics.GeneratedTotal.WithLabelValues(string(t.Format), entry.Status).Inc()
		m.Entries = append(m.Entries, entry)
	}
	slog.Info("campaign generated", "campaign", campaign.ID, "succeeded", m.Succeeded, "failed", m.Failed)
	return m, nil
}

type combo struct {
	format    model.Format
	technique model.Technique
	style     model.PayloadStyle
	ptype     model.PayloadType
}

// combinations walks formats × techniques × styles × types in request
// order, keeping only registered pairs.
func combinations(reg *technique.Registry, req Request) []combo {
	var out []combo
	for _, f := range req.Formats {
		for _, tech := range req.Techniques {
			if _, ok := reg.Lookup(f, tech); !ok {
				continue
			}
			for _, s := range req.Styles {
				for _, pt := range req.Types {
					out = append(out, combo{f, tech, s, pt})
				}
			}
		}
	}
	return out
}

func (e *Engine) mint(c model.Campaign, combos []combo, now time.Time) ([]model.Token, error) {
	alloc := token.NewAllocatorFrom(e.opts.Entropy)
	tokens := make([]model.Token, 0, len(combos))
	for _, cb := range combos {
		value, err := alloc.Next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, model.Token{
			Value:        value,
			CampaignID:   c.ID,
			Format:       cb.format,
			Technique:    cb.technique,
			PayloadStyle: cb.style,
			PayloadType:  cb.ptype,
			CallbackURL:  technique.CallbackURL(c.Config.CallbackURL, value),
			State:        model.TokenPending,
			CreatedAt:    now,
		})
	}
	return tokens, nil
}

type builtArtifact struct {
	path   string
	sha256 string
	size   int64
}

var errNotCarried = errors.New("payload not recoverable from artifact")

func (e *Engine) build(ctx context.Context, c *model.Campaign, t *model.Token) (builtArtifact, error) {
	payload, err := technique.BuildPayload(t.PayloadStyle, t.PayloadType, t.CallbackURL)
	if err != nil {
		return builtArtifact{}, err
	}
	art, err := e.registry.Generate(ctx, t.Format, t.Technique, technique.Input{
		Payload:     payload,
		Token:       t.Value,
		CallbackURL: t.CallbackURL,
		Style:       t.PayloadStyle,
		Type:        t.PayloadType,
		Seed:        c.Config.Seed,
		Timestamp:   c.CreatedAt,
	})
	if err != nil {
		return builtArtifact{}, fmt.Errorf("generate: %w", err)
	}
	if art == nil || len(art.Data) == 0 {
		return builtArtifact{}, errors.New("generator returned an empty artifact")
	}

	if e.opts.Verify {
		text, err := extract.Extract(t.Format, art.Data)
		if err != nil {
			return builtArtifact{}, fmt.Errorf("verify: %w", err)
		}
		if !extract.Carries(text, payload, t.Value) {
			return builtArtifact{}, errNotCarried
		}
	}

	if err := ctx.Err(); err != nil {
		return builtArtifact{}, err
	}

	name := fmt.Sprintf("%s_%s_%s_%s_%s%s", t.Format, t.Technique, t.PayloadStyle, t.PayloadType, t.Value[:8], art.Ext)
	rel := filepath.Join("artifacts", c.ID, name)
	full := filepath.Join(e.opts.DataDir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return builtArtifact{}, fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(full, art.Data, 0644); err != nil {
		return builtArtifact{}, fmt.Errorf("write artifact: %w", err)
	}

	sum := sha256.Sum256(art.Data)
	return builtArtifact{path: rel, sha256: hex.EncodeToString(sum[:]), size: int64(len(art.Data))}, nil
}

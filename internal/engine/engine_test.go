package engine_test

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	countersignal "github.com/YannKr/countersignal"
	"github.com/YannKr/countersignal/internal/db"
	"github.com/YannKr/countersignal/internal/engine"
	"github.com/YannKr/countersignal/internal/extract"
	"github.com/YannKr/countersignal/internal/generator"
	"github.com/YannKr/countersignal/internal/model"
	"github.com/YannKr/countersignal/internal/technique"
	"github.com/YannKr/countersignal/internal/token"
	"github.com/YannKr/countersignal/internal/worker"
)

var specFormats = []model.Format{
	model.FormatPDF, model.FormatImage, model.FormatMarkdown, model.FormatHTML,
	model.FormatDOCX, model.FormatICS, model.FormatEML,
}

type fixture struct {
	engine   *engine.Engine
	store    *db.Store
	registry *technique.Registry
	dataDir  string
}

func newFixture(t *testing.T, opts engine.Options, timeout time.Duration) *fixture {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database, countersignal.MigrationFS))

	reg, err := generator.NewRegistry()
	require.NoError(t, err)

	pool := worker.NewPool(4, timeout)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	if opts.DataDir == "" {
		opts.DataDir = t.TempDir()
	}
	store := db.NewStore(database)
	return &fixture{
		engine:   engine.New(reg, store, pool, opts),
		store:    store,
		registry: reg,
		dataDir:  opts.DataDir,
	}
}

func (f *fixture) counts(t *testing.T) *db.Counts {
	t.Helper()
	c, err := db.GetCounts(context.Background(), f.store.DB, "")
	require.NoError(t, err)
	return c
}

func TestScenarioSingleWhiteInkPDF(t *testing.T) {
	f := newFixture(t, engine.Options{Verify: true}, 10*time.Second)

	m, err := f.engine.Generate(context.Background(), engine.Request{
		Name:        "scenario-a",
		Formats:     []model.Format{model.FormatPDF},
		Techniques:  []model.Technique{"white_ink"},
		CallbackURL: "https://cb.example.test",
	})
	require.NoError(t, err)
	require.Len(t, m.Entries, 1)
	assert.Equal(t, 1, m.Succeeded)

	e := m.Entries[0]
	assert.Equal(t, engine.StatusOK, e.Status)
	assert.True(t, token.Valid(e.Token))
	assert.Equal(t, "https://cb.example.test/c/"+e.Token, e.CallbackURL)

	data, err := os.ReadFile(filepath.Join(f.dataDir, e.Artifact))
	require.NoError(t, err)
	assert.EqualValues(t, len(data), e.SizeBytes)
	text, err := extract.Extract(model.FormatPDF, data)
	require.NoError(t, err)
	assert.True(t, extract.Carries(text, e.Token))

	stored, err := db.GetToken(context.Background(), f.store.DB, e.Token)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.TokenReady, stored.State)
	assert.Equal(t, e.SHA256, stored.SHA256)
}

// A fault only fires for one payload type so each override costs exactly
// one combination.
func faulty(t *testing.T, reg *technique.Registry, format model.Format, tech model.Technique, fault func(ctx context.Context) error) {
	t.Helper()
	orig, ok := reg.Lookup(format, tech)
	require.True(t, ok)
	require.NoError(t, reg.Override(format, tech, func(ctx context.Context, in technique.Input) (*technique.Artifact, error) {
		if in.Type == model.TypeToolAbuse {
			if err := fault(ctx); err != nil {
				return nil, err
			}
		}
		return orig.Generate(ctx, in)
	}))
}

func TestScenarioFullMatrixWithFaults(t *testing.T) {
	f := newFixture(t, engine.Options{Entropy: rand.New(rand.NewSource(7))}, 5*time.Second)

	faulty(t, f.registry, model.FormatPDF, "annotation", func(ctx context.Context) error {
		return errors.New("synthetic failure")
	})
	faulty(t, f.registry, model.FormatDOCX, "comment", func(ctx context.Context) error {
		panic("synthetic panic")
	})
	faulty(t, f.registry, model.FormatICS, "alarm", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})

	m, err := f.engine.Generate(context.Background(), engine.Request{
		Formats:     specFormats,
		Types:       model.PayloadTypes,
		CallbackURL: "http://127.0.0.1:9000",
		Dangerous:   true,
		Seed:        7,
	})
	require.NoError(t, err)
	assert.Len(t, m.Entries, 238)
	assert.Equal(t, 235, m.Succeeded)
	assert.Equal(t, 3, m.Failed)

	failed := map[string]string{}
	seen := map[string]bool{}
	for _, e := range m.Entries {
		assert.False(t, seen[e.Token], "duplicate token %s", e.Token)
		seen[e.Token] = true
		if e.Status == engine.StatusFailed {
			failed[string(e.Format)+"/"+string(e.Technique)] = e.Error
			assert.Equal(t, model.TypeToolAbuse, e.PayloadType)
		}
	}
	assert.Contains(t, failed["pdf/annotation"], "synthetic failure")
	assert.Contains(t, failed["docx/comment"], "synthetic panic")
	assert.Contains(t, failed["ics/alarm"], "timed out")

	c := f.counts(t)
	assert.Equal(t, 238, c.Tokens)
	assert.Equal(t, 235, c.TokensReady)
	assert.Equal(t, 3, c.TokensFailed)
}

// punctuated yields tokens of the form "-_-_..-_XY": every token carries
// both URL-safe punctuation characters and none repeats.
type punctuated struct{ n byte }

func (p *punctuated) Read(b []byte) (int, error) {
	for i := range b {
		if i%token.Size == token.Size-1 {
			b[i] = p.n
			p.n++
			continue
		}
		b[i] = []byte{0xfb, 0xff, 0xbf}[i%token.Size%3]
	}
	return len(b), nil
}

func TestPunctuatedTokensSurviveEveryContainer(t *testing.T) {
	f := newFixture(t, engine.Options{Verify: true, Entropy: &punctuated{}}, 10*time.Second)

	m, err := f.engine.Generate(context.Background(), engine.Request{
		Formats:     f.registry.Formats(),
		CallbackURL: "https://cb.example.test",
	})
	require.NoError(t, err)
	require.Equal(t, f.registry.Len(), len(m.Entries))
	assert.Zero(t, m.Failed)

	for _, e := range m.Entries {
		assert.Equal(t, engine.StatusOK, e.Status, "%s/%s: %s", e.Format, e.Technique, e.Error)
		assert.Contains(t, e.Token, "-_")
		assert.NotContains(t, e.Token, "--")
		assert.True(t, token.Valid(e.Token))
	}
}

func TestDangerousGateMintsNothing(t *testing.T) {
	f := newFixture(t, engine.Options{}, time.Second)

	_, err := f.engine.Generate(context.Background(), engine.Request{
		Formats:     []model.Format{model.FormatPDF},
		Techniques:  []model.Technique{"white_ink"},
		Types:       []model.PayloadType{model.TypeExfilSummary},
		CallbackURL: "http://cb.example.test",
	})
	require.ErrorIs(t, err, engine.ErrValidation)
	var verr *engine.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 1)
	assert.Contains(t, verr.Problems[0], "dangerous")

	c := f.counts(t)
	assert.Zero(t, c.Campaigns)
	assert.Zero(t, c.Tokens)
}

func TestValidationProblems(t *testing.T) {
	f := newFixture(t, engine.Options{}, time.Second)

	tests := []struct {
		name string
		req  engine.Request
		want string
	}{
		{
			name: "no formats",
			req:  engine.Request{CallbackURL: "http://cb.example.test"},
			want: "Formats",
		},
		{
			name: "unknown format",
			req:  engine.Request{Formats: []model.Format{"pptx"}, CallbackURL: "http://cb.example.test"},
			want: `unknown format "pptx"`,
		},
		{
			name: "technique from another format",
			req: engine.Request{Formats: []model.Format{model.FormatHTML},
				Techniques: []model.Technique{"white_ink"}, CallbackURL: "http://cb.example.test"},
			want: `technique "white_ink"`,
		},
		{
			name: "unknown style",
			req: engine.Request{Formats: []model.Format{model.FormatHTML},
				Styles: []model.PayloadStyle{"shouty"}, CallbackURL: "http://cb.example.test"},
			want: `unknown payload style "shouty"`,
		},
		{
			name: "callback with query",
			req:  engine.Request{Formats: []model.Format{model.FormatHTML}, CallbackURL: "http://cb.example.test/?a=b"},
			want: "query",
		},
		{
			name: "callback wrong scheme",
			req:  engine.Request{Formats: []model.Format{model.FormatHTML}, CallbackURL: "ftp://cb.example.test"},
			want: "http or https",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Generate(context.Background(), tt.req)
			require.ErrorIs(t, err, engine.ErrValidation)
			assert.ErrorContains(t, err, tt.want)
		})
	}
	assert.Zero(t, f.counts(t).Tokens)
}

func TestCollisionIsFatal(t *testing.T) {
	f := newFixture(t, engine.Options{Entropy: bytes.NewReader(make([]byte, 1024))}, time.Second)

	_, err := f.engine.Generate(context.Background(), engine.Request{
		Formats:     []model.Format{model.FormatMarkdown},
		CallbackURL: "http://cb.example.test",
	})
	require.ErrorIs(t, err, token.ErrCollision)
	assert.Zero(t, f.counts(t).Campaigns)
}

func TestDefaultsCoverSelectedFormats(t *testing.T) {
	f := newFixture(t, engine.Options{}, 5*time.Second)

	m, err := f.engine.Generate(context.Background(), engine.Request{
		Formats:     []model.Format{model.FormatHTML, model.FormatMarkdown},
		CallbackURL: "http://cb.example.test/",
	})
	require.NoError(t, err)
	assert.Len(t, m.Entries, 8)
	assert.Equal(t, []model.PayloadStyle{model.StyleObvious}, m.Campaign.Config.PayloadStyles)
	assert.Equal(t, []model.PayloadType{model.TypeCallback}, m.Campaign.Config.PayloadTypes)
	for _, e := range m.Entries {
		assert.Equal(t, "http://cb.example.test/c/"+e.Token, e.CallbackURL)
	}
}

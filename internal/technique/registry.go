// Package technique holds the catalog of (format, hiding technique) pairs
// and the payload text they carry.
package technique

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/YannKr/countersignal/internal/model"
)

var ErrUnknown = errors.New("unknown format/technique")

type Key struct {
	Format    model.Format
	Technique model.Technique
}

func (k Key) String() string {
	return string(k.Format) + "/" + string(k.Technique)
}

// Input is everything a generator needs to build one artifact. Generators
// must be deterministic for equal inputs.
type Input struct {
	Payload     string
	Token       string
	CallbackURL string
	Style       model.PayloadStyle
	Type        model.PayloadType
	Seed        int64
	Timestamp   time.Time
}

type Artifact struct {
	Data      []byte
	Ext       string
	MediaType string
}

type Generator func(ctx context.Context, in Input) (*Artifact, error)

type Entry struct {
	Key
	Description string
	Generate    Generator
}

// Registry is a lookup table keyed by (format, technique). It has no
// package-level instance; callers build and pass their own.
type Registry struct {
	mu      sync.RWMutex
	entries map[Key]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[Key]Entry)}
}

func (r *Registry) Register(format model.Format, tech model.Technique, description string, gen Generator) error {
	if gen == nil {
		return fmt.Errorf("register %s/%s: nil generator", format, tech)
	}
	k := Key{format, tech}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[k]; dup {
		return fmt.Errorf("register %s: already registered", k)
	}
	r.entries[k] = Entry{Key: k, Description: description, Generate: gen}
	return nil
}

// Override swaps the generator of an existing pair.
func (r *Registry) Override(format model.Format, tech model.Technique, gen Generator) error {
	k := Key{format, tech}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[k]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, k)
	}
	e.Generate = gen
	r.entries[k] = e
	return nil
}

func (r *Registry) Lookup(format model.Format, tech model.Technique) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[Key{format, tech}]
	return e, ok
}

func (r *Registry) Generate(ctx context.Context, format model.Format, tech model.Technique, in Input) (*Artifact, error) {
	e, ok := r.Lookup(format, tech)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknown, format, tech)
	}
	return e.Generate(ctx, in)
}

func (r *Registry) HasFormat(format model.Format) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k := range r.entries {
		if k.Format == format {
			return true
		}
	}
	return false
}

func (r *Registry) Formats() []model.Format {
	r.mu.RLock()
	seen := map[model.Format]bool{}
	for k := range r.entries {
		seen[k.Format] = true
	}
	r.mu.RUnlock()

	out := make([]model.Format, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Techniques(format model.Format) []model.Technique {
	r.mu.RLock()
	var out []model.Technique
	for k := range r.entries {
		if k.Format == format {
			out = append(out, k.Technique)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Entries lists every pair ordered by format then technique.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Format != out[j].Format {
			return out[i].Format < out[j].Format
		}
		return out[i].Technique < out[j].Technique
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

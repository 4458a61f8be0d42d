// Package stats assembles the status surface: campaign and hit counts, the
// confidence breakdown and callback latency quantiles.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/YannKr/countersignal/internal/db"
	"github.com/YannKr/countersignal/internal/model"
)

// Latency summarises how long after generation hits arrived, in seconds.
type Latency struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean_seconds"`
	P50   float64 `json:"p50_seconds"`
	P90   float64 `json:"p90_seconds"`
	P99   float64 `json:"p99_seconds"`
	Max   float64 `json:"max_seconds"`
}

type Snapshot struct {
	CampaignID   string         `json:"campaign_id,omitempty"`
	Campaigns    int            `json:"campaigns"`
	Tokens       int            `json:"tokens"`
	TokensReady  int            `json:"tokens_ready"`
	TokensFailed int            `json:"tokens_failed"`
	Hits         int            `json:"hits"`
	Rejected     int            `json:"rejected_lookups"`
	ByConfidence map[string]int `json:"by_confidence"`
	Latency      Latency        `json:"latency"`
	SpoolDepth   int64          `json:"spool_depth"`
	DeadLetters  int            `json:"dead_letters"`
}

// Backlog reports write-retry state that lives outside the database.
type Backlog interface {
	Depth(ctx context.Context) (int64, error)
	DeadLetters() (int, error)
}

// Collect reads a snapshot. An empty campaignID covers every campaign.
func Collect(ctx context.Context, database *sql.DB, campaignID string, backlog Backlog) (*Snapshot, error) {
	counts, err := db.GetCounts(ctx, database, campaignID)
	if err != nil {
		return nil, fmt.Errorf("read counts: %w", err)
	}
	latencies, err := db.HitLatencies(ctx, database, campaignID)
	if err != nil {
		return nil, fmt.Errorf("read latencies: %w", err)
	}

	s := &Snapshot{
		CampaignID:   campaignID,
		Campaigns:    counts.Campaigns,
		Tokens:       counts.Tokens,
		TokensReady:  counts.TokensReady,
		TokensFailed: counts.TokensFailed,
		Hits:         counts.Hits,
		Rejected:     counts.Rejected,
		ByConfidence: map[string]int{},
		Latency:      Summarise(latencies),
	}
	for _, c := range []model.Confidence{model.ConfidenceHigh, model.ConfidenceMedium, model.ConfidenceLow} {
		s.ByConfidence[string(c)] = counts.ByConfidence[c]
	}

	if backlog != nil {
		if s.SpoolDepth, err = backlog.Depth(ctx); err != nil {
			return nil, fmt.Errorf("read spool depth: %w", err)
		}
		if s.DeadLetters, err = backlog.DeadLetters(); err != nil {
			return nil, fmt.Errorf("read dead letters: %w", err)
		}
	}
	return s, nil
}

// Summarise computes empirical quantiles of xs. xs is not modified.
func Summarise(xs []float64) Latency {
	if len(xs) == 0 {
		return Latency{}
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return Latency{
		Count: len(sorted),
		Mean:  stat.Mean(sorted, nil),
		P50:   stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P90:   stat.Quantile(0.9, stat.Empirical, sorted, nil),
		P99:   stat.Quantile(0.99, stat.Empirical, sorted, nil),
		Max:   sorted[len(sorted)-1],
	}
}

package db

import (
	"context"
	"database/sql"

	"github.com/YannKr/countersignal/internal/model"
)

type Counts struct {
	Campaigns    int
	Tokens       int
	TokensReady  int
	TokensFailed int
	Hits         int
	Rejected     int
	ByConfidence map[model.Confidence]int
}

// GetCounts reads the status surface totals. Each figure is a single
// read so it never blocks generation or listening for long.
func GetCounts(ctx context.Context, database *sql.DB, campaignID string) (*Counts, error) {
	c := &Counts{ByConfidence: map[model.Confidence]int{
		model.ConfidenceHigh:   0,
		model.ConfidenceMedium: 0,
		model.ConfidenceLow:    0,
	}}

	filter, args := "", []any{}
	if campaignID != "" {
		filter, args = " WHERE campaign_id = ?", []any{campaignID}
	}

	if campaignID == "" {
		if err := database.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`).Scan(&c.Campaigns); err != nil {
			return nil, err
		}
		if err := database.QueryRowContext(ctx, `SELECT COUNT(*) FROM rejected_lookups`).Scan(&c.Rejected); err != nil {
			return nil, err
		}
	} else {
		c.Campaigns = 1
	}

	err := database.QueryRowContext(ctx,
		`SELECT COUNT(*),
		  COALESCE(SUM(CASE WHEN state = 'READY' THEN 1 ELSE 0 END), 0),
		  COALESCE(SUM(CASE WHEN state = 'FAILED' THEN 1 ELSE 0 END), 0)
		 FROM tokens`+filter, args...,
	).Scan(&c.Tokens, &c.TokensReady, &c.TokensFailed)
	if err != nil {
		return nil, err
	}

	rows, err := database.QueryContext(ctx,
		`SELECT confidence, COUNT(*) FROM hits`+filter+` GROUP BY confidence`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var conf string
		var n int
		if err := rows.Scan(&conf, &n); err != nil {
			return nil, err
		}
		c.ByConfidence[model.Confidence(conf)] = n
		c.Hits += n
	}
	return c, rows.Err()
}

// HitLatencies returns, in seconds, how long after campaign creation each
// hit arrived.
func HitLatencies(ctx context.Context, database *sql.DB, campaignID string) ([]float64, error) {
	query := `SELECT h.received_at, c.created_at FROM hits h JOIN campaigns c ON c.id = h.campaign_id`
	var args []any
	if campaignID != "" {
		query += ` WHERE h.campaign_id = ?`
		args = append(args, campaignID)
	}
	rows, err := database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var received, created SQLiteTime
		if err := rows.Scan(&received, &created); err != nil {
			return nil, err
		}
		out = append(out, received.Time.Sub(created.Time).Seconds())
	}
	return out, rows.Err()
}

func ListCampaignIDs(database *sql.DB) (map[string]bool, error) {
	rows, err := database.Query(`SELECT id FROM campaigns`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/YannKr/countersignal/internal/model"
)

func InsertHit(ctx context.Context, database *sql.DB, h *model.Hit) error {
	signals, err := json.Marshal(h.Signals)
	if err != nil {
		return fmt.Errorf("marshal signals: %w", err)
	}
	meta, err := json.Marshal(h.RawMetadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = database.ExecContext(ctx,
		`INSERT INTO hits (id, token, campaign_id, received_at, method, source_ip, user_agent,
		  confidence, signals, rationale, raw_metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.Token, h.CampaignID, formatTime(h.ReceivedAt), h.Method, h.SourceIP, h.UserAgent,
		string(h.Confidence), string(signals), h.Rationale, string(meta),
	)
	return err
}

// ListHits returns hits newest first. An empty campaignID lists across all
// campaigns; limit <= 0 means no limit.
func ListHits(ctx context.Context, database *sql.DB, campaignID string, limit int) ([]model.Hit, error) {
	query := `SELECT id, token, campaign_id, received_at, method, source_ip, user_agent,
	  confidence, signals, rationale, raw_metadata FROM hits`
	var args []any
	if campaignID != "" {
		query += ` WHERE campaign_id = ?`
		args = append(args, campaignID)
	}
	query += ` ORDER BY received_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Hit
	for rows.Next() {
		var h model.Hit
		var receivedAt SQLiteTime
		var confidence, signals, meta string
		if err := rows.Scan(&h.ID, &h.Token, &h.CampaignID, &receivedAt, &h.Method, &h.SourceIP,
			&h.UserAgent, &confidence, &signals, &h.Rationale, &meta); err != nil {
			return nil, err
		}
		h.ReceivedAt = receivedAt.Time
		h.Confidence = model.Confidence(confidence)
		if err := json.Unmarshal([]byte(signals), &h.Signals); err != nil {
			return nil, fmt.Errorf("decode signals: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &h.RawMetadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func CountHitsByToken(ctx context.Context, database *sql.DB, token string) (int, error) {
	var n int
	err := database.QueryRowContext(ctx, `SELECT COUNT(*) FROM hits WHERE token = ?`, token).Scan(&n)
	return n, err
}

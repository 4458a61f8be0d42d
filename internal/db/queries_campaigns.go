package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/YannKr/countersignal/internal/model"
)

// CreateCampaign stores a campaign together with every token minted for it.
// Either all rows land or none do.
func CreateCampaign(ctx context.Context, database *sql.DB, c *model.Campaign, tokens []model.Token) error {
	cfg, err := json.Marshal(c.Config)
	if err != nil {
		return fmt.Errorf("marshal campaign config: %w", err)
	}

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO campaigns (id, name, config, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, string(cfg), formatTime(c.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tokens (token, campaign_id, format, technique, payload_style, payload_type,
		  callback_url, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare token insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tokens {
		state := t.State
		if state == "" {
			state = model.TokenPending
		}
		_, err := stmt.ExecContext(ctx, t.Value, c.ID, string(t.Format), string(t.Technique),
			string(t.PayloadStyle), string(t.PayloadType), t.CallbackURL, state, formatTime(t.CreatedAt))
		if err != nil {
			if isTokenCollision(err) {
				return fmt.Errorf("%w: %s", ErrTokenCollision, t.Value)
			}
			return fmt.Errorf("insert token: %w", err)
		}
	}

	return tx.Commit()
}

func isTokenCollision(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed: tokens.token") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}

func GetCampaign(ctx context.Context, database *sql.DB, id string) (*model.Campaign, error) {
	c := &model.Campaign{}
	var cfg string
	var createdAt SQLiteTime
	err := database.QueryRowContext(ctx,
		`SELECT id, name, config, created_at FROM campaigns WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &cfg, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = createdAt.Time
	if err := json.Unmarshal([]byte(cfg), &c.Config); err != nil {
		return nil, fmt.Errorf("decode campaign config: %w", err)
	}
	return c, nil
}

func ListCampaigns(ctx context.Context, database *sql.DB) ([]model.CampaignSummary, error) {
	rows, err := database.QueryContext(ctx, `
		SELECT c.id, c.name, c.config, c.created_at,
		  (SELECT COUNT(*) FROM tokens WHERE campaign_id = c.id),
		  (SELECT COUNT(*) FROM tokens WHERE campaign_id = c.id AND state = 'READY'),
		  (SELECT COUNT(*) FROM tokens WHERE campaign_id = c.id AND state = 'FAILED'),
		  (SELECT COUNT(*) FROM hits WHERE campaign_id = c.id),
		  (SELECT MAX(received_at) FROM hits WHERE campaign_id = c.id)
		FROM campaigns c
		ORDER BY c.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CampaignSummary
	for rows.Next() {
		var s model.CampaignSummary
		var cfg string
		var createdAt, lastHit SQLiteTime
		if err := rows.Scan(&s.ID, &s.Name, &cfg, &createdAt,
			&s.TokenCount, &s.ReadyCount, &s.FailedCount, &s.HitCount, &lastHit); err != nil {
			return nil, err
		}
		s.CreatedAt = createdAt.Time
		if !lastHit.Time.IsZero() {
			t := lastHit.Time
			s.LastHitAt = &t
		}
		if err := json.Unmarshal([]byte(cfg), &s.Config); err != nil {
			return nil, fmt.Errorf("decode campaign config: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteCampaign removes a campaign; tokens and hits go with it.
func DeleteCampaign(ctx context.Context, database *sql.DB, id string) (bool, error) {
	res, err := database.ExecContext(ctx, `DELETE FROM campaigns WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Reset clears all campaign, token, hit and rejected-lookup state.
func Reset(ctx context.Context, database *sql.DB) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	for _, table := range []string{"hits", "rejected_lookups", "tokens", "campaigns"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

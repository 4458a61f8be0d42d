package db

import (
	"context"
	"database/sql"

	"github.com/YannKr/countersignal/internal/model"
)

const tokenColumns = `token, campaign_id, format, technique, payload_style, payload_type,
  callback_url, state, artifact_path, sha256, size_bytes, error_message, created_at`

func scanToken(sc interface{ Scan(...any) error }) (*model.Token, error) {
	t := &model.Token{}
	var format, technique, style, ptype string
	var createdAt SQLiteTime
	if err := sc.Scan(&t.Value, &t.CampaignID, &format, &technique, &style, &ptype,
		&t.CallbackURL, &t.State, &t.ArtifactPath, &t.SHA256, &t.SizeBytes, &t.Error, &createdAt); err != nil {
		return nil, err
	}
	t.Format = model.Format(format)
	t.Technique = model.Technique(technique)
	t.PayloadStyle = model.PayloadStyle(style)
	t.PayloadType = model.PayloadType(ptype)
	t.CreatedAt = createdAt.Time
	return t, nil
}

func GetToken(ctx context.Context, database *sql.DB, value string) (*model.Token, error) {
	row := database.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE token = ?`, value)
	t, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func ListTokensByCampaign(ctx context.Context, database *sql.DB, campaignID string) ([]model.Token, error) {
	rows, err := database.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE campaign_id = ?
		 ORDER BY format, technique, payload_style, payload_type`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// UpdateTokenOutcome records the generation result for one token.
func UpdateTokenOutcome(ctx context.Context, database *sql.DB, t *model.Token) error {
	_, err := database.ExecContext(ctx,
		`UPDATE tokens SET state = ?, artifact_path = ?, sha256 = ?, size_bytes = ?, error_message = ?
		 WHERE token = ?`,
		t.State, t.ArtifactPath, t.SHA256, t.SizeBytes, t.Error, t.Value,
	)
	return err
}

// ResolveToken returns the scoring context for a token, or nil if the token
// was never minted.
func ResolveToken(ctx context.Context, database *sql.DB, value string) (*model.TokenContext, error) {
	tc := &model.TokenContext{}
	var format, technique, ptype string
	var createdAt SQLiteTime
	err := database.QueryRowContext(ctx,
		`SELECT t.token, t.campaign_id, c.created_at, t.format, t.technique, t.payload_type
		 FROM tokens t JOIN campaigns c ON c.id = t.campaign_id
		 WHERE t.token = ?`, value,
	).Scan(&tc.Token, &tc.CampaignID, &createdAt, &format, &technique, &ptype)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tc.CampaignCreatedAt = createdAt.Time
	tc.Format = model.Format(format)
	tc.Technique = model.Technique(technique)
	tc.PayloadType = model.PayloadType(ptype)
	return tc, nil
}

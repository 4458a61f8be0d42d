package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/YannKr/countersignal/internal/model"
)

func InsertRejectedLookup(ctx context.Context, database *sql.DB, r *model.RejectedLookup) error {
	_, err := database.ExecContext(ctx,
		`INSERT INTO rejected_lookups (token, source_ip, user_agent, method, received_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.Token, r.SourceIP, r.UserAgent, r.Method, formatTime(r.ReceivedAt),
	)
	return err
}

func ListRejectedLookups(ctx context.Context, database *sql.DB, limit int) ([]model.RejectedLookup, error) {
	rows, err := database.QueryContext(ctx,
		`SELECT id, token, source_ip, user_agent, method, received_at
		 FROM rejected_lookups ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RejectedLookup
	for rows.Next() {
		var r model.RejectedLookup
		var receivedAt SQLiteTime
		if err := rows.Scan(&r.ID, &r.Token, &r.SourceIP, &r.UserAgent, &r.Method, &receivedAt); err != nil {
			return nil, err
		}
		r.ReceivedAt = receivedAt.Time
		out = append(out, r)
	}
	return out, rows.Err()
}

func PruneRejectedLookups(database *sql.DB, before time.Time) (int64, error) {
	res, err := database.Exec(`DELETE FROM rejected_lookups WHERE received_at < ?`, formatTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

package chat

import (
	"context"
	"database/sql"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Append(ctx context.Context, msg Message) error {
	const query = `
INSERT INTO chat_messages (id, analysis_id, sender, text, is_error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)`
	_, err := r.DB.ExecContext(ctx, query,
		msg.ID,
		msg.AnalysisID,
		msg.Sender,
		msg.Text,
		msg.IsError,
		msg.CreatedAt,
	)
	return err
}

func (r *PGRepo) UpdateText(ctx context.Context, id, text string, isError bool) error {
	const query = `
UPDATE chat_messages
SET text = $1,
    is_error = $2,
    updated_at = now()
WHERE id = $3`
	res, err := r.DB.ExecContext(ctx, query, text, isError, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) ListByAnalysis(ctx context.Context, analysisID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}
	const query = `
SELECT id, analysis_id, sender, text, is_error, created_at, updated_at
FROM chat_messages
WHERE analysis_id = $1
ORDER BY created_at
LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, query, analysisID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(
			&msg.ID,
			&msg.AnalysisID,
			&msg.Sender,
			&msg.Text,
			&msg.IsError,
			&msg.CreatedAt,
			&msg.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

var _ Repo = (*PGRepo)(nil)

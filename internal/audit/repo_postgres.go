package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo appends to webhook_events. The table has no UPDATE/DELETE grants.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO webhook_events (id, direction, kind, message_id, phone, payload, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6::jsonb, $7)`,
		e.ID, string(e.Direction), string(e.Kind), e.MessageID, e.Phone, e.Payload, e.CreatedAt)
	return err
}

// ByMessageID returns every event for one provider message, oldest first.
func (r *PostgresRepo) ByMessageID(ctx context.Context, messageID string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, direction, kind, COALESCE(message_id, ''), COALESCE(phone, ''), payload::text, created_at
FROM webhook_events
WHERE message_id = $1
ORDER BY created_at, id`, messageID)
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Direction, &e.Kind, &e.MessageID, &e.Phone, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

package whatsapp

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/georgysavva/scany/v2/sqlscan"
)

// PostgresLog stores outbound messages in whatsapp_messages.
type PostgresLog struct {
	db *sql.DB
}

func NewPostgresLog(db *sql.DB) *PostgresLog { return &PostgresLog{db: db} }

func (l *PostgresLog) Record(ctx context.Context, m OutboundMessage) error {
	_, err := l.db.ExecContext(ctx, `
INSERT INTO whatsapp_messages (
  id, provider_message_id, trial_id, recipient, kind, template_name, status, error_code, error_message, created_at, updated_at
) VALUES ($1, NULLIF($2, ''), NULLIF($3, '')::uuid, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), NULLIF($9, ''), $10, $10)`,
		m.ID, m.ProviderMessageID, m.TrialID, m.Recipient, string(m.Kind), m.TemplateName, string(m.Status),
		m.ErrorCode, m.ErrorMessage, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("whatsapp: record message: %w", err)
	}
	return nil
}

func (l *PostgresLog) UpdateStatus(ctx context.Context, u StatusUpdate) (bool, error) {
	if u.ProviderMessageID == "" {
		return false, nil
	}
	res, err := l.db.ExecContext(ctx, `
UPDATE whatsapp_messages
SET status = $2,
    error_code = COALESCE(NULLIF($3, ''), error_code),
    error_message = COALESCE(NULLIF($4, ''), error_message),
    updated_at = now()
WHERE provider_message_id = $1`,
		u.ProviderMessageID, string(u.Status), u.ErrorCode, u.ErrorMessage)
	if err != nil {
		return false, fmt.Errorf("whatsapp: update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListByTrial returns a trial's outbound messages, oldest first.
func (l *PostgresLog) ListByTrial(ctx context.Context, trialID string) ([]OutboundMessage, error) {
	var out []OutboundMessage
	err := sqlscan.Select(ctx, l.db, &out, `
SELECT id, COALESCE(provider_message_id, '') AS provider_message_id, COALESCE(trial_id::text, '') AS trial_id,
       recipient, kind, COALESCE(template_name, '') AS template_name, status,
       COALESCE(error_code, '') AS error_code, COALESCE(error_message, '') AS error_message,
       created_at, updated_at
FROM whatsapp_messages
WHERE trial_id = $1
ORDER BY created_at ASC`, trialID)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: list messages: %w", err)
	}
	return out, nil
}

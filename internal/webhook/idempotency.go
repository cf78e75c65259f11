package webhook

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// ClaimTimeout is how long an unfinished claim blocks redeliveries. A worker
// that dies mid-handling leaves its key claimed; after this long the next
// delivery may take it over.
const ClaimTimeout = 5 * time.Minute

// Store reserves webhook keys so each one is handled at most once at a time.
//
// Claim is atomic: of two concurrent deliveries only one gets true. The claim
// holder either completes the key or releases it so a redelivery is retried
// in full.
type Store interface {
	Claim(ctx context.Context, key string) (bool, error)
	Complete(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

func messageKey(id string) string { return "msg:" + id }

func statusKey(id, status string) string { return "status:" + id + ":" + status }

type claim struct {
	done bool
	at   time.Time
}

type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]claim
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: map[string]claim{}, now: time.Now}
}

func (s *MemoryStore) Claim(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if c, ok := s.keys[key]; ok && (c.done || now.Sub(c.at) < ClaimTimeout) {
		return false, nil
	}
	s.keys[key] = claim{at: now}
	return true, nil
}

func (s *MemoryStore) Complete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = claim{done: true, at: s.now()}
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.keys[key]; ok && !c.done {
		delete(s.keys, key)
	}
	return nil
}

// Done reports whether key was completed.
func (s *MemoryStore) Done(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key].done
}

// PostgresStore keeps keys in processed_webhooks.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

// Claim inserts the key, or takes over a claim that was never finished.
func (s *PostgresStore) Claim(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_webhooks (key, done, claimed_at) VALUES ($1, false, now())
		ON CONFLICT (key) DO UPDATE SET claimed_at = now()
		WHERE NOT processed_webhooks.done AND processed_webhooks.claimed_at < now() - make_interval(secs => $2)`,
		key, ClaimTimeout.Seconds())
	if err != nil {
		return false, fmt.Errorf("webhook: claim key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("webhook: claim key: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) Complete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE processed_webhooks SET done = true WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("webhook: complete key: %w", err)
	}
	return nil
}

func (s *PostgresStore) Release(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM processed_webhooks WHERE key = $1 AND NOT done`, key)
	if err != nil {
		return fmt.Errorf("webhook: release key: %w", err)
	}
	return nil
}

package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists the per-user shown-today flag. The flag is a calendar date,
// not a timestamp, since suppression works in whole days.
type Store interface {
	LastShown(ctx context.Context, userID string) (time.Time, bool, error)
	MarkShown(ctx context.Context, userID string, day time.Time) error
}

// PGStore keeps reminder flags in Postgres so suppression survives sessions
// and devices.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) LastShown(ctx context.Context, userID string) (time.Time, bool, error) {
	const query = `SELECT last_shown_on FROM reminder_flags WHERE user_id = $1`

	var day time.Time
	err := s.pool.QueryRow(ctx, query, userID).Scan(&day)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("reminder: last shown: %w", err)
	}
	return day, true, nil
}

func (s *PGStore) MarkShown(ctx context.Context, userID string, day time.Time) error {
	const query = `
		INSERT INTO reminder_flags (user_id, last_shown_on)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET last_shown_on = EXCLUDED.last_shown_on, updated_at = now()
	`

	if _, err := s.pool.Exec(ctx, query, userID, day); err != nil {
		return fmt.Errorf("reminder: mark shown: %w", err)
	}
	return nil
}

// MemStore is an in-memory Store for tests and single-process setups.
type MemStore struct {
	mu   sync.Mutex
	days map[string]time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{days: make(map[string]time.Time)}
}

func (s *MemStore) LastShown(_ context.Context, userID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day, ok := s.days[userID]
	return day, ok, nil
}

func (s *MemStore) MarkShown(_ context.Context, userID string, day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.days[userID] = day
	return nil
}

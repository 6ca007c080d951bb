package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Opener tries to create competing open liquidations for the same fund request
// concurrently. The partial unique index must let exactly one through.
func Opener(ctx context.Context, pool *pgxpool.Pool, requestID, schoolID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `INSERT INTO liquidations (request_id, school_id, status, requested_amount)
                                   VALUES ($1,$2,'draft',1000)`, requestID, schoolID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique constraint
				// expected under contention
			} else {
				return fmt.Errorf("opener insert: %w", err)
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Reviewer advances open liquidations one stage at a time under FOR UPDATE,
// stamping the acting reviewer and settling the fund request on finalize.
func Reviewer(ctx context.Context, pool *pgxpool.Pool, requestID, reviewerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var (
			id     string
			status string
		)
		err = tx.QueryRow(ctx, `SELECT id, status FROM liquidations
                                 WHERE request_id=$1 AND status NOT IN ('liquidated','rejected')
                                 LIMIT 1 FOR UPDATE`, requestID).Scan(&id, &status)
		if err == nil {
			err = advance(ctx, tx, id, status, requestID, reviewerID)
		}
		if err == nil {
			if err := tx.Commit(ctx); err != nil {
				return fmt.Errorf("reviewer commit: %w", err)
			}
		} else {
			_ = tx.Rollback(ctx)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

func advance(ctx context.Context, tx pgx.Tx, id, status, requestID, reviewerID string) error {
	var err error
	switch status {
	case "draft", "resubmit":
		_, err = tx.Exec(ctx, `UPDATE liquidations SET status='submitted', updated_at=now() WHERE id=$1`, id)
	case "submitted":
		_, err = tx.Exec(ctx, `UPDATE liquidations SET status='under_review_district', updated_at=now() WHERE id=$1`, id)
	case "under_review_district":
		_, err = tx.Exec(ctx, `UPDATE liquidations
                               SET status='approved_district', district_reviewer=$2, district_reviewed_at=now(), updated_at=now()
                               WHERE id=$1`, id, reviewerID)
	case "approved_district":
		_, err = tx.Exec(ctx, `UPDATE liquidations SET status='under_review_liquidator', updated_at=now() WHERE id=$1`, id)
	case "under_review_liquidator":
		// occasionally bounce back instead of approving, clearing this stage onward
		if rand.Intn(5) == 0 {
			_, err = tx.Exec(ctx, `UPDATE liquidations
                                   SET status='resubmit', liquidator_reviewer=NULL, liquidator_reviewed_at=NULL,
                                       division_reviewer=NULL, division_reviewed_at=NULL, updated_at=now()
                                   WHERE id=$1`, id)
			break
		}
		_, err = tx.Exec(ctx, `UPDATE liquidations
                               SET status='approved_liquidator', liquidator_reviewer=$2, liquidator_reviewed_at=now(), updated_at=now()
                               WHERE id=$1`, id, reviewerID)
	case "approved_liquidator":
		_, err = tx.Exec(ctx, `UPDATE liquidations SET status='under_review_division', updated_at=now() WHERE id=$1`, id)
	case "under_review_division":
		_, err = tx.Exec(ctx, `UPDATE liquidations
                               SET status='liquidated', division_reviewer=$2, division_reviewed_at=now(),
                                   liquidated_amount=requested_amount, refund=0,
                                   date_liquidated=now(), updated_at=now()
                               WHERE id=$1`, id, reviewerID)
		if err == nil {
			_, err = tx.Exec(ctx, `UPDATE fund_requests SET status='liquidated', updated_at=now()
                                   WHERE id=$1 AND status='approved'`, requestID)
		}
	}
	return err
}

// Archiver flips the archive flag on closed cases, each flip standing alone.
func Archiver(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		archived := rand.Intn(2) == 0
		_, _ = pool.Exec(ctx, `UPDATE liquidations SET archived=$1, updated_at=now()
                               WHERE id IN (SELECT id FROM liquidations
                                            WHERE status IN ('liquidated','rejected') AND archived=$2
                                            ORDER BY random() LIMIT 3)`, archived, !archived)
		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
	}
}

// ReminderPoller upserts the shown-today flag the way concurrent dashboard
// sessions would, always writing the current calendar date.
func ReminderPoller(ctx context.Context, pool *pgxpool.Pool, userID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, _ = pool.Exec(ctx, `INSERT INTO reminder_flags (user_id, last_shown_on)
                               VALUES ($1, now()::date)
                               ON CONFLICT (user_id) DO UPDATE SET last_shown_on = EXCLUDED.last_shown_on, updated_at = now()`, userID)
		time.Sleep(time.Duration(80+rand.Intn(80)) * time.Millisecond)
	}
}

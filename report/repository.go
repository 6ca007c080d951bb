package report

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads the raw material the aggregator works over.
type Repository interface {
	UnresolvedSources(ctx context.Context) ([]Source, error)
	MonthStatuses(ctx context.Context, month string) ([]MonthStatus, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// UnresolvedSources returns every non-terminal, non-archived liquidation
// joined with its request and school. Date math happens in the aggregator,
// not in SQL, so the report uses the same clock as the rest of the system.
func (r *PGRepository) UnresolvedSources(ctx context.Context) ([]Source, error) {
	const query = `
		SELECT l.id, l.request_id, s.id, s.name, s.district, fr.month, l.created_at, l.requested_amount
		FROM liquidations l
		JOIN fund_requests fr ON fr.id = l.request_id
		JOIN schools s ON s.id = l.school_id
		WHERE l.status NOT IN ('liquidated', 'rejected')
		  AND NOT l.archived
		ORDER BY l.created_at ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("report: query unresolved: %w", err)
	}
	defer rows.Close()

	sources := []Source{}
	for rows.Next() {
		var src Source
		if err := rows.Scan(
			&src.LiquidationID,
			&src.RequestID,
			&src.SchoolID,
			&src.SchoolName,
			&src.District,
			&src.Month,
			&src.Anchor,
			&src.Amount,
		); err != nil {
			return nil, fmt.Errorf("report: scan source: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("report: iterate sources: %w", err)
	}

	return sources, nil
}

// MonthStatuses backs the legacy per-month listing: one line per school that
// requested funds that month, flagged when any of those requests is still
// unliquidated.
func (r *PGRepository) MonthStatuses(ctx context.Context, month string) ([]MonthStatus, error) {
	const query = `
		SELECT s.id, s.name, s.district,
		       BOOL_OR(fr.status <> 'liquidated') AS has_unliquidated
		FROM schools s
		JOIN fund_requests fr ON fr.school_id = s.id
		WHERE fr.month = $1 AND fr.status <> 'rejected'
		GROUP BY s.id, s.name, s.district
		ORDER BY s.name ASC
	`

	rows, err := r.pool.Query(ctx, query, month)
	if err != nil {
		return nil, fmt.Errorf("report: query month statuses: %w", err)
	}
	defer rows.Close()

	statuses := []MonthStatus{}
	for rows.Next() {
		var st MonthStatus
		if err := rows.Scan(&st.SchoolID, &st.SchoolName, &st.District, &st.HasUnliquidated); err != nil {
			return nil, fmt.Errorf("report: scan month status: %w", err)
		}
		statuses = append(statuses, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("report: iterate month statuses: %w", err)
	}

	return statuses, nil
}

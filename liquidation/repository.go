package liquidation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the liquidation does not exist.
	ErrNotFound = errors.New("liquidation: not found")
	// ErrStaleRead signals the record's status moved since the caller fetched
	// it. The caller must re-fetch and retry deliberately; it is never retried
	// automatically.
	ErrStaleRead = errors.New("liquidation: record changed since last read")
	// ErrOpenLiquidationExists guards the one-open-case-per-request invariant.
	ErrOpenLiquidationExists = errors.New("liquidation: an open liquidation already exists for this fund request")
)

// Repository defines the data access required by the service.
type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, rec Record) (Record, error)
	GetByID(ctx context.Context, id string) (Record, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Record, error)
	Update(ctx context.Context, tx pgx.Tx, rec Record) (Record, error)
	List(ctx context.Context, filters Filters) ([]Record, int, error)
	SetArchived(ctx context.Context, id string, archived bool) error
}

const recordColumns = `id, request_id, school_id, status, requested_amount, liquidated_amount, refund, remarks,
       district_reviewer, district_reviewed_at, liquidator_reviewer, liquidator_reviewed_at,
       division_reviewer, division_reviewed_at, archived, date_liquidated, created_at, updated_at`

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, rec Record) (Record, error) {
	const query = `
        INSERT INTO liquidations (id, request_id, school_id, status, requested_amount, liquidated_amount, refund, remarks)
        VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8)
        RETURNING ` + recordColumns

	row := tx.QueryRow(ctx, query,
		rec.ID,
		rec.RequestID,
		rec.SchoolID,
		rec.Status,
		rec.RequestedAmount,
		rec.LiquidatedAmount,
		rec.Refund,
		rec.Remarks,
	)

	created, err := scanRecord(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrOpenLiquidationExists
		}
		return Record{}, fmt.Errorf("liquidation: insert: %w", err)
	}
	return created, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Record, error) {
	query := `SELECT ` + recordColumns + ` FROM liquidations WHERE id = $1`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("liquidation: get by id: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Record, error) {
	query := `SELECT ` + recordColumns + ` FROM liquidations WHERE id = $1 FOR UPDATE`

	rec, err := scanRecord(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("liquidation: get for update: %w", err)
	}
	return rec, nil
}

// Update persists the full mutable column set produced by Apply.
func (r *PGRepository) Update(ctx context.Context, tx pgx.Tx, rec Record) (Record, error) {
	query := `
        UPDATE liquidations
        SET status = $2,
            liquidated_amount = $3,
            refund = $4,
            remarks = $5,
            district_reviewer = $6,
            district_reviewed_at = $7,
            liquidator_reviewer = $8,
            liquidator_reviewed_at = $9,
            division_reviewer = $10,
            division_reviewed_at = $11,
            date_liquidated = $12,
            updated_at = now()
        WHERE id = $1
        RETURNING ` + recordColumns

	row := tx.QueryRow(ctx, query,
		rec.ID,
		rec.Status,
		rec.LiquidatedAmount,
		rec.Refund,
		rec.Remarks,
		rec.DistrictReviewer,
		rec.DistrictReviewedAt,
		rec.LiquidatorReviewer,
		rec.LiquidatorReviewedAt,
		rec.DivisionReviewer,
		rec.DivisionReviewedAt,
		rec.DateLiquidated,
	)

	updated, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("liquidation: update: %w", err)
	}
	return updated, nil
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Record, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}
	if filters.SortKey == "" {
		filters.SortKey = "created_at"
	}
	if filters.SortOrder == "" {
		filters.SortOrder = "desc"
	}

	base := `SELECT ` + recordColumns + ` FROM liquidations`
	where := []string{"1=1"}
	args := []any{}

	if filters.SchoolID != "" {
		where = append(where, fmt.Sprintf("school_id=$%d", len(args)+1))
		args = append(args, filters.SchoolID)
	}
	if filters.RequestID != "" {
		where = append(where, fmt.Sprintf("request_id=$%d", len(args)+1))
		args = append(args, filters.RequestID)
	}
	if len(filters.Statuses) > 0 {
		placeholders := make([]string, len(filters.Statuses))
		for i, st := range filters.Statuses {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, st)
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ",")+")")
	}
	if !filters.IncludeArchived {
		where = append(where, "archived = FALSE")
	}

	whereClause := " WHERE " + strings.Join(where, " AND ")

	sortKey := mapSortKey(filters.SortKey)
	sortOrder := strings.ToUpper(filters.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	limit := filters.PageSize
	offset := (filters.Page - 1) * filters.PageSize

	query := fmt.Sprintf(`%s%s ORDER BY %s %s, id ASC LIMIT %d OFFSET %d`, base, whereClause, sortKey, sortOrder, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("liquidation: query list: %w", err)
	}
	defer rows.Close()

	list := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("liquidation: scan list: %w", err)
		}
		list = append(list, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("liquidation: iterate list: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM liquidations" + whereClause
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("liquidation: count list: %w", err)
	}

	return list, total, nil
}

// SetArchived flips the archive flag for a single record. Bulk operations call
// this once per id with no shared transaction: each flip stands alone.
func (r *PGRepository) SetArchived(ctx context.Context, id string, archived bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE liquidations SET archived = $2, updated_at = now() WHERE id = $1`, id, archived)
	if err != nil {
		return fmt.Errorf("liquidation: set archived: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	return rec, row.Scan(
		&rec.ID,
		&rec.RequestID,
		&rec.SchoolID,
		&rec.Status,
		&rec.RequestedAmount,
		&rec.LiquidatedAmount,
		&rec.Refund,
		&rec.Remarks,
		&rec.DistrictReviewer,
		&rec.DistrictReviewedAt,
		&rec.LiquidatorReviewer,
		&rec.LiquidatorReviewedAt,
		&rec.DivisionReviewer,
		&rec.DivisionReviewedAt,
		&rec.Archived,
		&rec.DateLiquidated,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
}

func mapSortKey(key string) string {
	switch key {
	case "updatedAt":
		return "updated_at"
	case "status":
		return "status"
	case "requestedAmount":
		return "requested_amount"
	case "dateLiquidated":
		return "date_liquidated"
	case "createdAt":
		fallthrough
	default:
		return "created_at"
	}
}

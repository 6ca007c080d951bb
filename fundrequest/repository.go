package fundrequest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("fundrequest: not found")
)

type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, req Request) (Request, error)
	GetByID(ctx context.Context, id string) (Request, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Request, error)
	List(ctx context.Context, filters Filters) ([]Request, int, error)
	Update(ctx context.Context, tx pgx.Tx, req Request) (Request, error)
}

const requestColumns = `id, school_id, created_by_user_id, month, purpose, amount, status, reject_reason, reviewed_by, reviewed_at, created_at, updated_at`

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, req Request) (Request, error) {
	const query = `
        INSERT INTO fund_requests (id, school_id, created_by_user_id, month, purpose, amount, status)
        VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7)
        RETURNING ` + requestColumns

	row := tx.QueryRow(ctx, query,
		req.ID,
		req.SchoolID,
		req.CreatedByUserID,
		req.Month,
		req.Purpose,
		req.Amount,
		req.Status,
	)

	return scanRequest(row)
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Request, error) {
	const query = `SELECT ` + requestColumns + ` FROM fund_requests WHERE id = $1`

	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, fmt.Errorf("fundrequest: get by id: %w", err)
	}
	return req, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Request, error) {
	const query = `SELECT ` + requestColumns + ` FROM fund_requests WHERE id = $1 FOR UPDATE`

	req, err := scanRequest(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, fmt.Errorf("fundrequest: get for update: %w", err)
	}
	return req, nil
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Request, int, error) {
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

	base := `SELECT ` + requestColumns + ` FROM fund_requests`
	where := []string{"1=1"}
	args := []any{}

	if filters.SchoolID != "" {
		where = append(where, fmt.Sprintf("school_id=$%d", len(args)+1))
		args = append(args, filters.SchoolID)
	}
	if filters.CreatedByUserID != "" {
		where = append(where, fmt.Sprintf("created_by_user_id=$%d", len(args)+1))
		args = append(args, filters.CreatedByUserID)
	}
	if filters.Status != "" {
		where = append(where, fmt.Sprintf("status=$%d", len(args)+1))
		args = append(args, filters.Status)
	}
	if filters.Month != "" {
		where = append(where, fmt.Sprintf("month=$%d", len(args)+1))
		args = append(args, filters.Month)
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
		return nil, 0, fmt.Errorf("fundrequest: query list: %w", err)
	}
	defer rows.Close()

	list := []Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, req)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM fund_requests%s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("fundrequest: count list: %w", err)
	}

	return list, total, nil
}

func (r *PGRepository) Update(ctx context.Context, tx pgx.Tx, req Request) (Request, error) {
	const query = `
		UPDATE fund_requests
		SET status = $2,
		    reject_reason = $3,
		    reviewed_by = $4,
		    reviewed_at = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + requestColumns

	row := tx.QueryRow(ctx, query, req.ID, req.Status, req.RejectReason, req.ReviewedBy, req.ReviewedAt)
	updated, err := scanRequest(row)
	if err != nil {
		return Request{}, fmt.Errorf("fundrequest: update: %w", err)
	}
	return updated, nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	return req, row.Scan(
		&req.ID,
		&req.SchoolID,
		&req.CreatedByUserID,
		&req.Month,
		&req.Purpose,
		&req.Amount,
		&req.Status,
		&req.RejectReason,
		&req.ReviewedBy,
		&req.ReviewedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
}

func mapSortKey(key string) string {
	switch key {
	case "amount":
		return "amount"
	case "month":
		return "month"
	case "status":
		return "status"
	case "updatedAt":
		return "updated_at"
	case "createdAt":
		fallthrough
	default:
		return "created_at"
	}
}

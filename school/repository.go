package school

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested school does not exist.
var ErrNotFound = errors.New("school: not found")

// Repository provides read access to the school registry.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches a school by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (School, error) {
	const query = `
		SELECT id, name, code, district, created_at
		FROM schools
		WHERE id = $1
	`

	var sch School
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&sch.ID,
		&sch.Name,
		&sch.Code,
		&sch.District,
		&sch.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return School{}, ErrNotFound
		}
		return School{}, fmt.Errorf("school: query by id: %w", err)
	}

	return sch, nil
}

// List fetches up to limit schools ordered by name, optionally filtered by
// district.
func (r *Repository) List(ctx context.Context, district string, limit int) ([]School, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	query := `
		SELECT id, name, code, district, created_at
		FROM schools
	`
	args := []any{}
	if district != "" {
		query += ` WHERE district = $1`
		args = append(args, district)
	}
	query += fmt.Sprintf(` ORDER BY name ASC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("school: list: %w", err)
	}
	defer rows.Close()

	schools := make([]School, 0, limit)
	for rows.Next() {
		var sch School
		if err := rows.Scan(&sch.ID, &sch.Name, &sch.Code, &sch.District, &sch.CreatedAt); err != nil {
			return nil, fmt.Errorf("school: scan row: %w", err)
		}
		schools = append(schools, sch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("school: iterate rows: %w", err)
	}

	return schools, nil
}

package fundrequest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrReviewInvalidState = errors.New("fundrequest: request is not pending review")
	ErrNotApproved        = errors.New("fundrequest: request is not approved")
)

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Service struct {
	pool  TxBeginner
	repo  Repository
	idGen func() string
	now   func() time.Time
}

func NewService(pool *pgxpool.Pool, repo Repository) *Service {
	if repo == nil {
		repo = NewRepository(pool)
	}
	return &Service{
		pool:  pool,
		repo:  repo,
		idGen: func() string { return uuid.NewString() },
		now:   time.Now,
	}
}

// NewServiceWith wires explicit dependencies; used by tests that fake the pool.
func NewServiceWith(pool TxBeginner, repo Repository) *Service {
	return &Service{
		pool:  pool,
		repo:  repo,
		idGen: func() string { return uuid.NewString() },
		now:   time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateParams struct {
	SchoolID        string
	CreatedByUserID string
	Month           string
	Purpose         string
	Amount          decimal.Decimal
}

func (s *Service) Create(ctx context.Context, params CreateParams) (Request, error) {
	if params.SchoolID == "" {
		return Request{}, fmt.Errorf("fundrequest: missing school id")
	}
	if params.CreatedByUserID == "" {
		return Request{}, fmt.Errorf("fundrequest: missing creator user id")
	}
	if !monthPattern.MatchString(params.Month) {
		return Request{}, fmt.Errorf("fundrequest: month must be YYYY-MM, got %q", params.Month)
	}
	if strings.TrimSpace(params.Purpose) == "" {
		return Request{}, fmt.Errorf("fundrequest: purpose required")
	}
	if !params.Amount.IsPositive() {
		return Request{}, fmt.Errorf("fundrequest: amount must be positive")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Request{}, fmt.Errorf("fundrequest: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	req := Request{
		ID:              s.idGen(),
		SchoolID:        params.SchoolID,
		CreatedByUserID: params.CreatedByUserID,
		Month:           params.Month,
		Purpose:         strings.TrimSpace(params.Purpose),
		Amount:          params.Amount,
		Status:          StatusPending,
	}

	created, err := s.repo.Create(ctx, tx, req)
	if err != nil {
		return Request{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, fmt.Errorf("fundrequest: commit tx: %w", err)
	}

	return created, nil
}

type ListResult struct {
	Items []Request
	Total int
}

func (s *Service) List(ctx context.Context, filters Filters) (ListResult, error) {
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Total: total}, nil
}

func (s *Service) Get(ctx context.Context, id string) (Request, error) {
	return s.repo.GetByID(ctx, id)
}

type ReviewParams struct {
	RequestID  string
	ReviewerID string
	Approve    bool
	Reason     *string
}

// Review settles a pending request as approved or rejected. Only pending
// requests accept a verdict; the reviewer and time are stamped either way.
func (s *Service) Review(ctx context.Context, params ReviewParams) (Request, error) {
	if params.RequestID == "" {
		return Request{}, fmt.Errorf("fundrequest: review missing request id")
	}
	if params.ReviewerID == "" {
		return Request{}, fmt.Errorf("fundrequest: review missing reviewer id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Request{}, fmt.Errorf("fundrequest: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := s.repo.GetForUpdate(ctx, tx, params.RequestID)
	if err != nil {
		return Request{}, err
	}
	if req.Status != StatusPending {
		return Request{}, ErrReviewInvalidState
	}

	when := s.now().UTC()
	req.ReviewedBy = &params.ReviewerID
	req.ReviewedAt = &when
	if params.Approve {
		req.Status = StatusApproved
		req.RejectReason = nil
	} else {
		req.Status = StatusRejected
		var reason *string
		if params.Reason != nil {
			trimmed := strings.TrimSpace(*params.Reason)
			if trimmed != "" {
				reason = &trimmed
			}
		}
		req.RejectReason = reason
	}

	updated, err := s.repo.Update(ctx, tx, req)
	if err != nil {
		return Request{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Request{}, fmt.Errorf("fundrequest: review commit: %w", err)
	}

	return updated, nil
}

// MarkLiquidated flips an approved request to liquidated inside the caller's
// transaction. The liquidation service calls this when a case finalizes so the
// request and its case settle atomically.
func (s *Service) MarkLiquidated(ctx context.Context, tx pgx.Tx, requestID string) error {
	req, err := s.repo.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		return err
	}
	if req.Status != StatusApproved {
		return ErrNotApproved
	}
	req.Status = StatusLiquidated
	if _, err := s.repo.Update(ctx, tx, req); err != nil {
		return err
	}
	return nil
}

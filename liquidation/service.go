package liquidation

import (
	"context"
	"fmt"
	"time"

	"liquiflow/auth"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RequestMarker settles the originating fund request inside the same
// transaction as the finalizing transition.
type RequestMarker interface {
	MarkLiquidated(ctx context.Context, tx pgx.Tx, requestID string) error
}

// Service drives the liquidation lifecycle. All date math takes the injected
// clock so aging is deterministic under test.
type Service struct {
	pool   TxBeginner
	repo   Repository
	marker RequestMarker
	idGen  func() string
	now    func() time.Time
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

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

// WithRequestMarker attaches the fund request settlement hook. A nil marker
// leaves finalized requests untouched.
func (s *Service) WithRequestMarker(marker RequestMarker) *Service {
	s.marker = marker
	return s
}

// OpenParams describes the conversion of an approved fund request into a
// liquidation case.
type OpenParams struct {
	RequestID       string
	SchoolID        string
	RequestedAmount decimal.Decimal
}

// Open creates a new draft case for an approved fund request. The partial
// unique index on open cases enforces the one-open-liquidation-per-request
// invariant; a violation surfaces as ErrOpenLiquidationExists.
func (s *Service) Open(ctx context.Context, params OpenParams) (Record, error) {
	if params.RequestID == "" {
		return Record{}, fmt.Errorf("liquidation: missing fund request id")
	}
	if params.SchoolID == "" {
		return Record{}, fmt.Errorf("liquidation: missing school id")
	}
	if !params.RequestedAmount.IsPositive() {
		return Record{}, fmt.Errorf("liquidation: requested amount must be positive")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("liquidation: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec := Record{
		ID:               s.idGen(),
		RequestID:        params.RequestID,
		SchoolID:         params.SchoolID,
		Status:           StatusDraft,
		RequestedAmount:  params.RequestedAmount,
		LiquidatedAmount: decimal.Zero,
		Refund:           decimal.Zero,
	}

	created, err := s.repo.Create(ctx, tx, rec)
	if err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("liquidation: commit: %w", err)
	}
	return created, nil
}

// ApplyParams carries one lifecycle mutation request.
type ApplyParams struct {
	ID     string
	Action Action
	Actor  Actor
	// ExpectedStatus is the status the caller last observed. A mismatch under
	// lock is a stale read and is rejected, never silently coerced.
	ExpectedStatus   Status
	LiquidatedAmount decimal.Decimal
	Remarks          *string
}

// ApplyAction runs one state transition under a row lock and persists the
// result. Transition legality itself is decided by the pure Apply function.
func (s *Service) ApplyAction(ctx context.Context, params ApplyParams) (Record, error) {
	if params.ID == "" {
		return Record{}, fmt.Errorf("liquidation: missing record id")
	}
	if params.Actor.ID == "" {
		return Record{}, fmt.Errorf("liquidation: missing actor id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("liquidation: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := s.repo.GetForUpdate(ctx, tx, params.ID)
	if err != nil {
		return Record{}, err
	}

	if params.ExpectedStatus != "" && rec.Status != params.ExpectedStatus {
		return Record{}, ErrStaleRead
	}

	next, err := Apply(rec, params.Action, params.Actor, s.now(), ApplyInput{
		LiquidatedAmount: params.LiquidatedAmount,
		Remarks:          params.Remarks,
	})
	if err != nil {
		return Record{}, err
	}

	updated, err := s.repo.Update(ctx, tx, next)
	if err != nil {
		return Record{}, err
	}

	if params.Action == ActionFinalize && s.marker != nil {
		if err := s.marker.MarkLiquidated(ctx, tx, updated.RequestID); err != nil {
			return Record{}, fmt.Errorf("liquidation: mark request liquidated: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("liquidation: commit transition: %w", err)
	}
	return updated, nil
}

// Get returns a single record enriched with derived aging.
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return View{}, err
	}
	return s.enrich(rec), nil
}

// ListResult bundles a page of enriched records with the unpaged total.
type ListResult struct {
	Items []View
	Total int
}

func (s *Service) List(ctx context.Context, filters Filters) (ListResult, error) {
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return ListResult{}, err
	}
	views := make([]View, len(items))
	for i, rec := range items {
		views[i] = s.enrich(rec)
	}
	return ListResult{Items: views, Total: total}, nil
}

// ListForActor scopes the list to the pipeline stage the role acts on, the way
// the console's server-side pre-filtering works.
func (s *Service) ListForActor(ctx context.Context, actor Actor, filters Filters) (ListResult, error) {
	switch actor.Role {
	case auth.RoleDistrictAdmin:
		filters.Statuses = []Status{StatusSubmitted, StatusUnderReviewDistrict}
	case auth.RoleLiquidator:
		filters.Statuses = []Status{StatusApprovedDistrict, StatusUnderReviewLiquidator}
	case auth.RoleDivisionAccountant:
		filters.Statuses = []Status{StatusApprovedLiquidator, StatusUnderReviewDivision}
	case auth.RoleSchoolHead, auth.RoleAdmin:
		// school heads see their own school's full pipeline; admins see all
	default:
		return ListResult{}, fmt.Errorf("liquidation: unknown role %q", actor.Role)
	}
	return s.List(ctx, filters)
}

// enrich attaches the derived aging pair and tier. Aging fields stay nil once
// the submission clock has stopped for this record.
func (s *Service) enrich(rec Record) View {
	view := View{Record: rec, Tier: TierNormal}
	aging := ComputeAging(rec.CreatedAt, s.now())
	view.Tier = Classify(aging.DaysElapsed)
	if rec.Status.ClockRunning() {
		view.DaysElapsed = &aging.DaysElapsed
		view.RemainingDays = &aging.RemainingDays
	}
	return view
}

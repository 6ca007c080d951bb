package liquidation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record mirrors the liquidations table. CreatedAt doubles as the anchor for
// the statutory 30-day window and survives request-changes round trips.
type Record struct {
	ID               string
	RequestID        string
	SchoolID         string
	Status           Status
	RequestedAmount  decimal.Decimal
	LiquidatedAmount decimal.Decimal
	Refund           decimal.Decimal
	Remarks          *string

	DistrictReviewer     *string
	DistrictReviewedAt   *time.Time
	LiquidatorReviewer   *string
	LiquidatorReviewedAt *time.Time
	DivisionReviewer     *string
	DivisionReviewedAt   *time.Time

	Archived       bool
	DateLiquidated *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ReviewStamp is the per-stage reviewer attribution written on a forward pass.
type ReviewStamp struct {
	Reviewer   string
	ReviewedAt time.Time
}

// Stamp returns the review stamp for the given stage, if written.
func (r *Record) Stamp(stage Stage) (ReviewStamp, bool) {
	switch stage {
	case StageDistrict:
		if r.DistrictReviewer != nil && r.DistrictReviewedAt != nil {
			return ReviewStamp{Reviewer: *r.DistrictReviewer, ReviewedAt: *r.DistrictReviewedAt}, true
		}
	case StageLiquidator:
		if r.LiquidatorReviewer != nil && r.LiquidatorReviewedAt != nil {
			return ReviewStamp{Reviewer: *r.LiquidatorReviewer, ReviewedAt: *r.LiquidatorReviewedAt}, true
		}
	case StageDivision:
		if r.DivisionReviewer != nil && r.DivisionReviewedAt != nil {
			return ReviewStamp{Reviewer: *r.DivisionReviewer, ReviewedAt: *r.DivisionReviewedAt}, true
		}
	}
	return ReviewStamp{}, false
}

// Outcome classifies the sign of the final refund.
type Outcome string

const (
	OutcomeRefundDue       Outcome = "refund_due"
	OutcomeOverExpenditure Outcome = "over_expenditure"
	OutcomeExact           Outcome = "exact"
)

// OutcomeFor maps a refund figure to its outcome class.
func OutcomeFor(refund decimal.Decimal) Outcome {
	switch {
	case refund.IsPositive():
		return OutcomeRefundDue
	case refund.IsNegative():
		return OutcomeOverExpenditure
	default:
		return OutcomeExact
	}
}

// View is a Record enriched with derived aging fields. DaysElapsed and
// RemainingDays are recomputed per read and never persisted; they are nil once
// the clock stops running against the submitting school, which is the case for
// every status other than draft and resubmit.
type View struct {
	Record
	DaysElapsed   *int
	RemainingDays *int
	Tier          Tier
}

// Filters narrows List queries.
type Filters struct {
	SchoolID        string
	RequestID       string
	Statuses        []Status
	IncludeArchived bool
	Page            int
	PageSize        int
	SortKey         string
	SortOrder       string
}

package fundrequest

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusLiquidated Status = "liquidated"
)

// Request is an originating request for funds. An approved request is the
// anchor a liquidation case is opened against.
type Request struct {
	ID              string
	SchoolID        string
	CreatedByUserID string
	// Month is the funding period in YYYY-MM form.
	Month        string
	Purpose      string
	Amount       decimal.Decimal
	Status       Status
	RejectReason *string
	ReviewedBy   *string
	ReviewedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Filters struct {
	SchoolID        string
	CreatedByUserID string
	Status          Status
	Month           string
	Page            int
	PageSize        int
	SortKey         string
	SortOrder       string
}

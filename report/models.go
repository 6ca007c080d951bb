package report

import (
	"fmt"
	"strconv"
	"time"

	"liquiflow/liquidation"

	"github.com/shopspring/decimal"
)

// Source is one unresolved liquidation joined with its request and school,
// before any date math. The aggregator derives everything else from it.
type Source struct {
	LiquidationID string
	RequestID     string
	SchoolID      string
	SchoolName    string
	District      string
	Month         string
	Anchor        time.Time
	Amount        decimal.Decimal
}

// Row is one line of the aging report.
type Row struct {
	LiquidationID     string
	RequestID         string
	SchoolID          string
	SchoolName        string
	District          string
	Month             string
	Anchor            time.Time
	DaysElapsed       int
	Bucket            liquidation.Bucket
	Amount            decimal.Decimal
	DemandLetterReady bool
}

// Summary is computed over the full filtered set, not the returned page.
type Summary struct {
	Total             int
	DemandLetterReady int
	Bucket31To60      int
	Bucket61To90      int
	Bucket91Plus      int
}

// Page bundles one page of rows with the full-set summary.
type Page struct {
	Rows     []Row
	Summary  Summary
	Page     int
	PageSize int
}

// FilterKind selects how the threshold filter is interpreted.
type FilterKind string

const (
	FilterAll          FilterKind = "all"
	FilterThreshold    FilterKind = "threshold"
	FilterDemandLetter FilterKind = "demand_letter"
)

// Filter selects the subset of unresolved records the report covers.
type Filter struct {
	Kind      FilterKind
	Threshold int
}

// ParseFilter maps the days query parameter onto a Filter. Empty and "all"
// select everything; "demand_letter" selects the one-day letter window; any
// integer is a minimum elapsed-days threshold.
func ParseFilter(raw string) (Filter, error) {
	switch raw {
	case "", string(FilterAll):
		return Filter{Kind: FilterAll}, nil
	case string(FilterDemandLetter):
		return Filter{Kind: FilterDemandLetter}, nil
	}
	threshold, err := strconv.Atoi(raw)
	if err != nil || threshold < 0 {
		return Filter{}, fmt.Errorf("report: invalid days filter %q", raw)
	}
	return Filter{Kind: FilterThreshold, Threshold: threshold}, nil
}

func (f Filter) matches(daysElapsed int) bool {
	switch f.Kind {
	case FilterDemandLetter:
		return liquidation.DemandLetterReady(daysElapsed)
	case FilterThreshold:
		return daysElapsed >= f.Threshold
	default:
		return true
	}
}

// MonthStatus is one line of the legacy per-month listing: does the school
// still owe a liquidation for that month.
type MonthStatus struct {
	SchoolID        string
	SchoolName      string
	District        string
	HasUnliquidated bool
}

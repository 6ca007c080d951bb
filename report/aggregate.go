package report

import (
	"sort"
	"time"

	"liquiflow/liquidation"
)

// Aggregate derives the aging report from unresolved sources. It is a pure
// function of its inputs so the same sources and clock always produce the
// same pages and summary.
func Aggregate(sources []Source, now time.Time, filter Filter, page, pageSize int) Page {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	rows := buildRows(sources, now, filter)

	summary := Summary{Total: len(rows)}
	for _, row := range rows {
		if row.DemandLetterReady {
			summary.DemandLetterReady++
		}
		switch row.Bucket {
		case liquidation.Bucket31To60:
			summary.Bucket31To60++
		case liquidation.Bucket61To90:
			summary.Bucket61To90++
		case liquidation.Bucket91Plus:
			summary.Bucket91Plus++
		}
	}

	start := (page - 1) * pageSize
	if start > len(rows) {
		start = len(rows)
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}

	return Page{
		Rows:     rows[start:end],
		Summary:  summary,
		Page:     page,
		PageSize: pageSize,
	}
}

// buildRows filters, derives, and orders the full row set. Export and the
// paginated view both go through here so their ordering is identical.
func buildRows(sources []Source, now time.Time, filter Filter) []Row {
	rows := make([]Row, 0, len(sources))
	for _, src := range sources {
		aging := liquidation.ComputeAging(src.Anchor, now)
		if !filter.matches(aging.DaysElapsed) {
			continue
		}
		rows = append(rows, Row{
			LiquidationID:     src.LiquidationID,
			RequestID:         src.RequestID,
			SchoolID:          src.SchoolID,
			SchoolName:        src.SchoolName,
			District:          src.District,
			Month:             src.Month,
			Anchor:            src.Anchor,
			DaysElapsed:       aging.DaysElapsed,
			Bucket:            liquidation.BucketFor(aging.DaysElapsed),
			Amount:            src.Amount,
			DemandLetterReady: liquidation.DemandLetterReady(aging.DaysElapsed),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].DaysElapsed != rows[j].DaysElapsed {
			return rows[i].DaysElapsed > rows[j].DaysElapsed
		}
		return rows[i].LiquidationID < rows[j].LiquidationID
	})

	return rows
}

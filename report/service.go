package report

import (
	"context"
	"fmt"
	"io"
	"time"
)

// ExportFormat selects the spreadsheet encoding for report downloads.
type ExportFormat string

const (
	ExportCSV   ExportFormat = "csv"
	ExportExcel ExportFormat = "excel"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Aging produces one page of the unliquidated-schools report plus the
// full-set summary.
func (s *Service) Aging(ctx context.Context, filter Filter, page, pageSize int) (Page, error) {
	sources, err := s.repo.UnresolvedSources(ctx)
	if err != nil {
		return Page{}, err
	}
	return Aggregate(sources, s.now(), filter, page, pageSize), nil
}

// Export writes the full filtered report to w. Row ordering matches the
// paginated view exactly.
func (s *Service) Export(ctx context.Context, filter Filter, format ExportFormat, w io.Writer) error {
	sources, err := s.repo.UnresolvedSources(ctx)
	if err != nil {
		return err
	}
	rows := buildRows(sources, s.now(), filter)

	switch format {
	case ExportCSV:
		return WriteCSV(w, rows)
	case ExportExcel:
		return WriteXLSX(w, rows)
	default:
		return fmt.Errorf("report: unknown export format %q", format)
	}
}

// MonthStatuses serves the legacy per-month listing.
func (s *Service) MonthStatuses(ctx context.Context, month string) ([]MonthStatus, error) {
	if month == "" {
		return nil, fmt.Errorf("report: month required")
	}
	return s.repo.MonthStatuses(ctx, month)
}

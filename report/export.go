package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

var exportHeader = []string{
	"school_id", "school_name", "district", "request_id", "month",
	"anchor_date", "days_elapsed", "aging_bucket", "amount", "demand_letter_ready",
}

func rowCells(row Row) []string {
	return []string{
		row.SchoolID,
		row.SchoolName,
		row.District,
		row.RequestID,
		row.Month,
		row.Anchor.UTC().Format("2006-01-02"),
		strconv.Itoa(row.DaysElapsed),
		string(row.Bucket),
		row.Amount.StringFixed(2),
		strconv.FormatBool(row.DemandLetterReady),
	}
}

// WriteCSV streams the report rows as CSV in the given order.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("report: write csv header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(rowCells(row)); err != nil {
			return fmt.Errorf("report: write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("report: flush csv: %w", err)
	}
	return nil
}

const xlsxSheet = "Unliquidated Schools"

// WriteXLSX writes the same rows, in the same order, as a spreadsheet.
func WriteXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(xlsxSheet)
	if err != nil {
		return fmt.Errorf("report: create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("report: drop default sheet: %w", err)
	}

	header := make([]any, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return fmt.Errorf("report: write xlsx header: %w", err)
	}

	for i, row := range rows {
		cells := rowCells(row)
		line := make([]any, len(cells))
		for j, c := range cells {
			line[j] = c
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(xlsxSheet, cell, &line); err != nil {
			return fmt.Errorf("report: write xlsx row %d: %w", i, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("report: write xlsx: %w", err)
	}
	return nil
}

// Package report renders daily roster reports as spreadsheets.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/example/shift-roster/internal/application"
)

// ContentType is the media type of the workbooks written by XLSXWriter.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var headers = []string{"ID", "Name", "Location", "Status", "Start", "End", "Message", "Justification"}

// XLSXWriter implements application.ReportWriter with one sheet per report.
type XLSXWriter struct{}

// NewXLSXWriter returns a workbook writer.
func NewXLSXWriter() *XLSXWriter {
	return &XLSXWriter{}
}

// WriteReport writes report as an .xlsx workbook whose sheet is named after the day.
func (XLSXWriter) WriteReport(w io.Writer, report application.Report) (err error) {
	f := excelize.NewFile()
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close workbook: %w", closeErr)
		}
	}()

	sheet := report.Day
	if sheet == "" {
		sheet = "report"
	}
	if err = f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	for i, h := range headers {
		if err = setCell(f, sheet, i+1, 1, h); err != nil {
			return err
		}
	}

	for r, row := range report.Rows {
		values := []any{
			row.PersonID,
			row.Name,
			row.Location,
			string(row.Status),
			row.StartTime,
			row.EndTime,
			row.Message,
			row.Justification,
		}
		for c, val := range values {
			if err = setCell(f, sheet, c+1, r+2, val); err != nil {
				return err
			}
		}
	}

	if err = f.SetDocProps(&excelize.DocProperties{
		Title:       "Roster " + report.Day,
		Description: "source: " + string(report.Source),
	}); err != nil {
		return fmt.Errorf("failed to set document properties: %w", err)
	}

	if _, err = f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, val any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, cell, val); err != nil {
		return fmt.Errorf("failed to set cell value: %w", err)
	}
	return nil
}

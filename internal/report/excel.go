package report

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"adsched/internal/models"
)

// ExportXLSX renders an occupancy report plus the underlying reservations as
// an xlsx workbook and returns the encoded bytes.
func (r *Reporter) ExportXLSX(ctx context.Context, location string, rangeStart, rangeEnd time.Time) ([]byte, error) {
	occ, err := r.LocationOccupancy(ctx, location, rangeStart, rangeEnd)
	if err != nil {
		return nil, err
	}
	reservations, err := r.source.FindOverlapping(ctx, location, rangeStart, rangeEnd,
		models.BlockingStatuses(), "")
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	const summary = "Summary"
	f.SetSheetName("Sheet1", summary)

	rows := [][]any{
		{"Location", occ.LocationName},
		{"Range start", occ.RangeStart.Format(time.RFC3339)},
		{"Range end", occ.RangeEnd.Format(time.RFC3339)},
		{"Total reservations", occ.TotalReservations},
		{"Booked hours", occ.BookedHours},
		{"Average occupancy rate, %", occ.AverageOccupancyRate},
		{},
		{"Peak days", "Reservations"},
	}
	for _, d := range occ.PeakDays {
		rows = append(rows, []any{d.Date, d.Count})
	}
	if err := writeRows(f, summary, 1, rows); err != nil {
		return nil, err
	}

	const detail = "Reservations"
	if _, err := f.NewSheet(detail); err != nil {
		return nil, fmt.Errorf("create sheet %s: %w", detail, err)
	}
	detailRows := [][]any{
		{"ID", "Owner", "Start", "End", "Status"},
	}
	for _, res := range reservations {
		detailRows = append(detailRows, []any{
			res.ID, res.OwnerID,
			res.StartTime.Format(time.RFC3339), res.EndTime.Format(time.RFC3339),
			string(res.Status),
		})
	}
	if err := writeRows(f, detail, 1, detailRows); err != nil {
		return nil, err
	}

	// Bold header rows, Excel style.
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(detail, "A1", "E1", style)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, startRow int, rows [][]any) error {
	for i, row := range rows {
		for j, val := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, startRow+i)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return fmt.Errorf("write cell %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}

package httpapi

import (
	"bytes"
	"fmt"

	"residence-data/internal/domain"

	"github.com/xuri/excelize/v2"
)

const occupancySheet = "Occupations"

// OccupancyExportHeader 导出表头
var OccupancyExportHeader = []string{
	"Occupancy ID",
	"Student ID",
	"Student Name",
	"Room",
	"Bed",
	"Start Date",
	"End Date",
	"Actual End Date",
	"Status",
	"Monthly Rent",
	"Rent Paid",
	"Cancellation Reason",
}

var occupancyColumnWidths = []float64{38, 20, 28, 12, 8, 14, 14, 16, 14, 14, 10, 40}

// GenerateOccupancyExport 每条占用记录一行；rows 为空时只输出表头
func GenerateOccupancyExport(rows []*domain.Occupancy) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := writeOccupancySheet(f, rows); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeOccupancySheet(f *excelize.File, rows []*domain.Occupancy) error {
	if _, err := f.NewSheet(occupancySheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}
	if index, err := f.GetSheetIndex(occupancySheet); err == nil {
		f.SetActiveSheet(index)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border:    []excelize.Border{{Type: "bottom", Color: "000000", Style: 1}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetSheetRow(occupancySheet, "A1", &OccupancyExportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(OccupancyExportHeader))
	if err := f.SetCellStyle(occupancySheet, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	for i, width := range occupancyColumnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(occupancySheet, col, col, width); err != nil {
			return fmt.Errorf("set width of %s: %w", col, err)
		}
	}

	// 租金列两位小数
	rentStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return err
	}
	for i, o := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := occupancyRow(o)
		if err := f.SetSheetRow(occupancySheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if len(rows) > 0 {
		if err := f.SetCellStyle(occupancySheet, "J2", fmt.Sprintf("J%d", len(rows)+1), rentStyle); err != nil {
			return err
		}
	}

	return f.SetPanes(occupancySheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func occupancyRow(o *domain.Occupancy) []any {
	actualEnd, reason, paid := "", "", "No"
	if o.ActualEndDate.Valid {
		actualEnd = o.ActualEndDate.Time.Format("2006-01-02")
	}
	if o.CancellationReason.Valid {
		reason = o.CancellationReason.String
	}
	if o.IsRentPaid {
		paid = "Yes"
	}
	rent, _ := o.MonthlyRent.Round(2).Float64()
	return []any{
		o.OccupancyID,
		o.StudentID,
		o.StudentName,
		o.RoomLabel,
		o.BedNumber,
		o.StartDate.Format("2006-01-02"),
		o.EndDate.Format("2006-01-02"),
		actualEnd,
		o.Status.Label(),
		rent,
		paid,
		reason,
	}
}

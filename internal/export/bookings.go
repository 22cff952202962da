// Package export renders booking lists as spreadsheets for landlords.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/iliyamo/parking-lot-reservation/internal/model"
)

const sheetName = "Bookings"

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var headers = []string{
	"Booking ID", "Status", "Slot", "Floor", "Vehicle", "License plate",
	"Start (UTC)", "End (UTC)", "Billable hours", "Services",
	"Base", "Service fees", "Discount", "Tax", "Total", "Currency",
	"Payment", "Payment status", "Refunded", "Overtime", "Rating",
}

// Filename builds the attachment name for a lot export.
func Filename(lotID uint64, at time.Time) string {
	return fmt.Sprintf("lot_%d_bookings_%s.xlsx", lotID, at.UTC().Format("20060102_150405"))
}

// WriteBookings writes one sheet titled with lotName and one row per
// booking to w.
func WriteBookings(w io.Writer, lotName string, bookings []*model.Booking) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("error removing default sheet: %w", err)
	}

	_ = f.SetCellValue(sheetName, "A1", lotName)
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	_ = f.SetCellStyle(sheetName, "A2", lastCol+"2", headerStyle)

	for i, b := range bookings {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		if err := f.SetSheetRow(sheetName, cell, ptr(row(b))); err != nil {
			return fmt.Errorf("error writing row %d: %w", i+3, err)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", lastCol, 16)
	_ = f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 2, TopLeftCell: "A3", ActivePane: "bottomLeft"})

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func row(b *model.Booking) []any {
	var method, payStatus string
	var refunded int64
	if p := b.Payment; p != nil {
		method, payStatus, refunded = string(p.Method), string(p.Status), p.RefundAmount
	}
	var overtime int64
	if b.Exit != nil {
		overtime = b.Exit.OvertimeCharge
	}
	var rating any = ""
	if b.Rating != nil {
		rating = b.Rating.Score
	}
	names := make([]string, 0, len(b.Services))
	for _, s := range b.Services {
		names = append(names, fmt.Sprintf("%s x%d", s.Name, s.Quantity))
	}
	return []any{
		b.ID, string(b.Status), b.SlotCode, b.Floor, string(b.Vehicle.Type), b.Vehicle.LicensePlate,
		b.StartTime.UTC().Format("2006-01-02 15:04"), b.EndTime.UTC().Format("2006-01-02 15:04"),
		b.Pricing.BillableHours, strings.Join(names, ", "),
		b.Pricing.BasePrice, b.Pricing.ServiceFees, b.Pricing.Discounts, b.Pricing.Taxes,
		b.Pricing.TotalAmount, b.Pricing.Currency,
		method, payStatus, refunded, overtime, rating,
	}
}

func ptr(v []any) *[]any { return &v }

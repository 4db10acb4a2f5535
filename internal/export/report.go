// Package export renders bill history as downloadable reports.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"bollette/internal/core"
	"bollette/internal/services"
)

var columns = []string{
	"Date",
	"Gas Cost",
	"Electricity Delivery Cost",
	"Electricity Generation Cost",
	"Other Cost",
	"Total Cost",
	"Gas Therms",
	"On-Peak kWh",
	"Off-Peak kWh",
	"Super Off-Peak kWh",
	"Total kWh",
}

func rowValues(r services.BillRecord) []string {
	return []string{
		r.Date.String(),
		amount(r.GasCost),
		amount(r.ElectricityDeliveryCost),
		amount(r.ElectricityGenerationCost),
		amount(r.OtherCost),
		amount(r.TotalCost),
		quantity(r.GasTherms),
		quantity(r.ElectricityOnPeakKWh),
		quantity(r.ElectricityOffPeakKWh),
		quantity(r.ElectricitySuperOffPeakKWh),
		quantity(r.TotalKWh),
	}
}

func amount(m core.Money) string {
	return fmt.Sprintf("%.2f", m.Units())
}

func quantity(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

// BuildBillsCSV renders the bill history as CSV, one row per bill.
func BuildBillsCSV(records []services.BillRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		if err := w.Write(rowValues(r)); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildBillsXLSX renders the bill history as a single-sheet workbook.
func BuildBillsXLSX(records []services.BillRecord) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "Bills"
	f.SetSheetName("Sheet1", sheet)

	for col, name := range columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(sheet, cell, name)
	}

	for i, r := range records {
		row := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), r.Date.String())
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), r.GasCost.Units())
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), r.ElectricityDeliveryCost.Units())
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), r.ElectricityGenerationCost.Units())
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), r.OtherCost.Units())
		_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", row), r.TotalCost.Units())
		_ = f.SetCellValue(sheet, fmt.Sprintf("G%d", row), r.GasTherms)
		_ = f.SetCellValue(sheet, fmt.Sprintf("H%d", row), r.ElectricityOnPeakKWh)
		_ = f.SetCellValue(sheet, fmt.Sprintf("I%d", row), r.ElectricityOffPeakKWh)
		_ = f.SetCellValue(sheet, fmt.Sprintf("J%d", row), r.ElectricitySuperOffPeakKWh)
		_ = f.SetCellValue(sheet, fmt.Sprintf("K%d", row), r.TotalKWh)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildBillsPDF renders the bill history as a landscape A4 table.
func BuildBillsPDF(records []services.BillRecord) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Utility Bill History")
	pdf.Ln(6)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Bills: %d", len(records)))
	pdf.Ln(8)

	widths := []float64{22, 24, 26, 28, 22, 24, 24, 26, 26, 28, 24}

	pdf.SetFont("Arial", "B", 8)
	for i, name := range columns {
		pdf.CellFormat(widths[i], 6, name, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, r := range records {
		values := rowValues(r)
		pdf.CellFormat(widths[0], 6, values[0], "1", 0, "C", false, 0, "")
		for i := 1; i < len(values); i++ {
			pdf.CellFormat(widths[i], 6, values[i], "1", 0, "R", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

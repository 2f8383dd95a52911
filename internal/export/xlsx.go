package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"invoicechat/internal/logger"
	"invoicechat/pkg/models"
)

const (
	InvoiceSheet = "Invoices"
	LineSheet    = "Lines"
)

// WriteXLSX writes records to a workbook with an invoice sheet and a
// line-item sheet. An existing file at path is replaced.
func WriteXLSX(path string, records []*models.InvoiceRecord) error {
	const op = "WriteXLSX"

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", InvoiceSheet); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := f.NewSheet(LineSheet); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E6E6E6"}},
	})
	if err != nil {
		return fmt.Errorf("%s: failed to create header style: %w", op, err)
	}

	invoiceRows := make([][]any, 0, len(records))
	var lineRows [][]any
	for _, rec := range records {
		if rec == nil {
			continue
		}
		invoiceRows = append(invoiceRows, InvoiceRow(rec))
		lineRows = append(lineRows, LineRows(rec)...)
	}

	if err := writeSheet(f, InvoiceSheet, InvoiceHeaders, invoiceRows, header); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := writeSheet(f, LineSheet, LineHeaders, lineRows, header); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("%s: failed to save %s: %w", op, path, err)
	}

	log := logger.WithComponent("export")
	log.Info().
		Str("path", path).
		Int("invoices", len(invoiceRows)).
		Int("lines", len(lineRows)).
		Msg("Wrote invoice workbook")
	return nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any, headerStyle int) error {
	head := make([]any, len(headers))
	for i, h := range headers {
		head[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return err
	}

	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", lastCol, 16)
}

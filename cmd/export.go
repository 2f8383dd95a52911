package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"invoicechat/internal/export"
	"invoicechat/internal/invoice"
	"invoicechat/internal/logger"
	"invoicechat/pkg/models"
)

var exportCmd = &cobra.Command{
	Use:   "export <record.json>...",
	Short: "Export invoice records to an XLSX workbook or a Google Sheet",
	Long: `Write one ledger row per invoice record, plus one row per product line
in the workbook. Exactly one of --xlsx or --sheets is required.

For --sheets, set GOOGLE_SHEET_URL and one of GOOGLE_APPLICATION_CREDENTIALS
or GOOGLE_CREDENTIALS. Rows are appended to GOOGLE_SHEET_WORKSHEET.`,
	Example: `  invoicechat export inv-42.json inv-43.json --xlsx fatture.xlsx
  invoicechat export inv-42.json --sheets`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("xlsx", "", "Write an XLSX workbook to this path")
	exportCmd.Flags().Bool("sheets", false, "Append to the Google Sheet in GOOGLE_SHEET_URL")
	exportCmd.Flags().String("source", string(invoice.ProducerCreate), "Endpoint that produced the JSON: create, edit or draft")
}

func runExport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("export-cmd")

	xlsxPath, _ := cmd.Flags().GetString("xlsx")
	toSheets, _ := cmd.Flags().GetBool("sheets")
	source, _ := cmd.Flags().GetString("source")

	if (xlsxPath == "") == !toSheets {
		return fmt.Errorf("pass exactly one of --xlsx or --sheets")
	}

	now := time.Now()
	records := make([]*models.InvoiceRecord, 0, len(args))
	for _, path := range args {
		rec, err := loadRecord(path, invoice.Producer(source), now, log)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}

	if xlsxPath != "" {
		if err := export.WriteXLSX(xlsxPath, records); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d invoices to %s\n", len(records), xlsxPath)
		return nil
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	n, err := appendToSheet(ctx, records)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Appended %d invoices to %s\n", n, appConfig.GoogleSheetWorksheet)
	return nil
}

// appendToSheet is shared with the chat /export command.
func appendToSheet(ctx context.Context, records []*models.InvoiceRecord) (int, error) {
	if err := appConfig.RequireSheets(); err != nil {
		return 0, err
	}
	exporter, err := export.NewSheetsExporter(ctx, appConfig.GoogleSheetURL, appConfig.GoogleSheetWorksheet)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to Google Sheets: %w", err)
	}
	return exporter.Append(ctx, records)
}

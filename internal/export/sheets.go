package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"invoicechat/internal/logger"
	"invoicechat/pkg/models"
)

var (
	// ErrInvalidSheetURL is returned for URLs without a spreadsheet id.
	ErrInvalidSheetURL = errors.New("invalid Google Sheets URL format")

	// ErrMissingCredentials is returned when no service account is configured.
	ErrMissingCredentials = errors.New("neither GOOGLE_APPLICATION_CREDENTIALS nor GOOGLE_CREDENTIALS is set")
)

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// SheetsExporter appends invoices to a worksheet of a Google Sheet.
type SheetsExporter struct {
	service       *sheets.Service
	spreadsheetID string
	worksheet     string
	log           zerolog.Logger
}

// NewSheetsExporter authenticates with the service account found in
// GOOGLE_APPLICATION_CREDENTIALS (file) or GOOGLE_CREDENTIALS (inline JSON).
func NewSheetsExporter(ctx context.Context, sheetURL, worksheet string) (*SheetsExporter, error) {
	const op = "NewSheetsExporter"

	creds, err := credentials()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	config, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse credentials: %w", op, err)
	}

	return NewSheetsExporterWithOptions(ctx, sheetURL, worksheet, option.WithHTTPClient(config.Client(ctx)))
}

// NewSheetsExporterWithOptions builds an exporter on explicit client options.
func NewSheetsExporterWithOptions(ctx context.Context, sheetURL, worksheet string, opts ...option.ClientOption) (*SheetsExporter, error) {
	const op = "NewSheetsExporterWithOptions"

	log := logger.WithComponent("sheets")

	spreadsheetID, err := ExtractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Debug().Str("spreadsheet_id", spreadsheetID).Msg("Extracted spreadsheet ID")

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheets service: %w", op, err)
	}

	return &SheetsExporter{
		service:       service,
		spreadsheetID: spreadsheetID,
		worksheet:     worksheet,
		log:           log,
	}, nil
}

func credentials() ([]byte, error) {
	if file := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); file != "" {
		creds, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		return creds, nil
	}
	if inline := os.Getenv("GOOGLE_CREDENTIALS"); inline != "" {
		return []byte(inline), nil
	}
	return nil, ErrMissingCredentials
}

// ExtractSpreadsheetID returns the id segment of a Google Sheets URL.
func ExtractSpreadsheetID(url string) (string, error) {
	matches := spreadsheetIDPattern.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", ErrInvalidSheetURL
	}
	return matches[1], nil
}

// Append adds one ledger row per invoice, creating the worksheet and its
// header row first when needed.
func (e *SheetsExporter) Append(ctx context.Context, records []*models.InvoiceRecord) (int, error) {
	const op = "Append"

	var values [][]any
	for _, rec := range records {
		if rec != nil {
			values = append(values, InvoiceRow(rec))
		}
	}
	if len(values) == 0 {
		return 0, nil
	}

	if err := e.ensureSheetWithHeaders(ctx); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	e.log.Info().
		Str("sheet", e.worksheet).
		Int("rows", len(values)).
		Msg("Appending invoices to Google Sheet")

	_, err := e.service.Spreadsheets.Values.Append(
		e.spreadsheetID,
		e.worksheet+"!"+columnSpan(),
		&sheets.ValueRange{Values: values},
	).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to append values to sheet: %w", op, err)
	}

	return len(values), nil
}

func (e *SheetsExporter) ensureSheetWithHeaders(ctx context.Context) error {
	const op = "ensureSheetWithHeaders"

	spreadsheet, err := e.service.Spreadsheets.Get(e.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get spreadsheet: %w", op, err)
	}

	var (
		sheetID int64
		exists  bool
	)
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == e.worksheet {
			sheetID = sheet.Properties.SheetId
			exists = true
			break
		}
	}

	if !exists {
		e.log.Info().Str("sheet", e.worksheet).Msg("Creating new sheet")
		resp, err := e.service.Spreadsheets.BatchUpdate(e.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{{
				AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: e.worksheet}},
			}},
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("%s: failed to create sheet: %w", op, err)
		}
		if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil {
			sheetID = resp.Replies[0].AddSheet.Properties.SheetId
		}
	}

	headerRange := e.worksheet + "!" + headerSpan()
	resp, err := e.service.Spreadsheets.Values.Get(e.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get headers: %w", op, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	e.log.Info().Str("sheet", e.worksheet).Msg("Adding headers to sheet")
	head := make([]any, len(InvoiceHeaders))
	for i, h := range InvoiceHeaders {
		head[i] = h
	}
	_, err = e.service.Spreadsheets.Values.Update(
		e.spreadsheetID,
		headerRange,
		&sheets.ValueRange{Values: [][]any{head}},
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to add headers: %w", op, err)
	}

	if err := e.formatHeaders(ctx, sheetID); err != nil {
		e.log.Warn().Err(err).Msg("Failed to format headers, continuing anyway")
	}
	return nil
}

// formatHeaders makes the header row bold and sizes the columns.
func (e *SheetsExporter) formatHeaders(ctx context.Context, sheetID int64) error {
	const op = "formatHeaders"

	columns := int64(len(InvoiceHeaders))
	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   columns,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat:      &sheets.TextFormat{Bold: true},
						BackgroundColor: &sheets.Color{Red: 0.9, Green: 0.9, Blue: 0.9},
					},
				},
				Fields: "userEnteredFormat(textFormat,backgroundColor)",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   columns,
				},
			},
		},
	}

	_, err := e.service.Spreadsheets.BatchUpdate(e.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// columnSpan is the A:<last> range covering every ledger column.
func columnSpan() string {
	last, _ := excelize.ColumnNumberToName(len(InvoiceHeaders))
	return "A:" + last
}

func headerSpan() string {
	last, _ := excelize.ColumnNumberToName(len(InvoiceHeaders))
	return "A1:" + last + "1"
}

package export

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"google.golang.org/api/option"

	"invoicechat/internal/logger"
	"invoicechat/pkg/models"
)

func TestMain(m *testing.M) {
	logger.Disable()
	os.Exit(m.Run())
}

func sampleRecords() []*models.InvoiceRecord {
	return []*models.InvoiceRecord{
		{
			ID:           "42",
			Number:       "INV-42",
			Recipient:    "Mario Bianchi",
			BuildingSite: models.BuildingSite{Address: "Via Po 3", City: "Torino", PostalCode: "10121", Country: "Italia"},
			Products: []models.LineItem{
				{Code: "ARGO16", Name: "Pompa di calore", Quantity: 1, UnitOfMeasure: "pz", UnitPrice: decimal.NewFromInt(7450), TotalPrice: decimal.NewFromInt(7450)},
				{Code: "INST-PDC", Name: "Installazione", Quantity: 2, UnitOfMeasure: "h", UnitPrice: decimal.NewFromInt(60), TotalPrice: decimal.NewFromInt(120)},
			},
			Subtotal:    decimal.NewNullDecimal(decimal.NewFromInt(7570)),
			TaxRate:     decimal.NewNullDecimal(decimal.NewFromInt(22)),
			TotalAmount: decimal.NewNullDecimal(decimal.RequireFromString("9235.40")),
			CreatedAt:   time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC),
			Status:      "created",
		},
		nil,
		{ID: "43", Recipient: "Anna Verdi", Offline: true},
	}
}

func TestInvoiceRow(t *testing.T) {
	recs := sampleRecords()

	row := InvoiceRow(recs[0])
	require.Len(t, row, len(InvoiceHeaders))
	assert.Equal(t, "INV-42", row[0])
	assert.Equal(t, "12/03/2024", row[1])
	assert.Equal(t, "Torino", row[4])
	assert.Equal(t, 7570.0, row[7])
	assert.Equal(t, "", row[9])
	assert.Equal(t, 9235.4, row[10])

	row = InvoiceRow(recs[2])
	assert.Equal(t, "INV-43", row[0])
	assert.Equal(t, "", row[1])
	assert.Equal(t, "sì", row[13])

	lines := LineRows(recs[0])
	require.Len(t, lines, 2)
	assert.Equal(t, []any{"INV-42", "INST-PDC", "Installazione", "", 2, "h", 60.0, 120.0, 0.0, 0.0}, lines[1])
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fatture.xlsx")
	require.NoError(t, WriteXLSX(path, sampleRecords()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{InvoiceSheet, LineSheet}, f.GetSheetList())

	rows, err := f.GetRows(InvoiceSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, InvoiceHeaders, rows[0])
	assert.Equal(t, "INV-42", rows[1][0])
	assert.Equal(t, "Mario Bianchi", rows[1][2])
	assert.Equal(t, "Anna Verdi", rows[2][2])

	total, err := f.GetCellValue(InvoiceSheet, "K2")
	require.NoError(t, err)
	assert.Equal(t, "9235.4", total)

	lines, err := f.GetRows(LineSheet)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "ARGO16", lines[1][1])
	assert.Equal(t, "2", lines[2][4])
}

func TestExtractSpreadsheetID(t *testing.T) {
	id, err := ExtractSpreadsheetID("https://docs.google.com/spreadsheets/d/1AbC-d_9/edit#gid=0")
	require.NoError(t, err)
	assert.Equal(t, "1AbC-d_9", id)

	_, err = ExtractSpreadsheetID("https://example.com/nope")
	assert.ErrorIs(t, err, ErrInvalidSheetURL)
}

type fakeSheets struct {
	mu       sync.Mutex
	calls    []string
	added    bool
	header   []any
	appended [][]any
	appendTo string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	var body map[string]any
	if r.Body != nil && r.Method != http.MethodGet {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/v4/spreadsheets/sheet123"):
		f.calls = append(f.calls, "get")
		_, _ = w.Write([]byte(`{"spreadsheetId":"sheet123","sheets":[{"properties":{"sheetId":1,"title":"Other"}}]}`))
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		reqs, _ := body["requests"].([]any)
		if len(reqs) > 0 {
			if first, _ := reqs[0].(map[string]any); first["addSheet"] != nil {
				f.added = true
				f.calls = append(f.calls, "addSheet")
				_, _ = w.Write([]byte(`{"replies":[{"addSheet":{"properties":{"sheetId":5,"title":"Fatture"}}}]}`))
				return
			}
		}
		f.calls = append(f.calls, "format")
		_, _ = w.Write([]byte(`{"replies":[]}`))
	case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
		f.calls = append(f.calls, "getHeader")
		if f.header != nil {
			b, _ := json.Marshal(map[string]any{"values": [][]any{f.header}})
			_, _ = w.Write(b)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		f.calls = append(f.calls, "putHeader")
		values, _ := body["values"].([]any)
		if len(values) > 0 {
			f.header, _ = values[0].([]any)
		}
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		f.calls = append(f.calls, "append")
		f.appendTo = path
		values, _ := body["values"].([]any)
		for _, v := range values {
			row, _ := v.([]any)
			f.appended = append(f.appended, row)
		}
		_, _ = w.Write([]byte(`{}`))
	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
	}
}

func TestSheetsExporterAppend(t *testing.T) {
	fake := &fakeSheets{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	exp, err := NewSheetsExporterWithOptions(context.Background(),
		"https://docs.google.com/spreadsheets/d/sheet123/edit", "Fatture",
		option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	n, err := exp.Append(context.Background(), sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, []string{"get", "addSheet", "getHeader", "putHeader", "format", "append"}, fake.calls)
	assert.True(t, fake.added)
	require.Len(t, fake.header, len(InvoiceHeaders))
	assert.Equal(t, "Numero", fake.header[0])
	require.Len(t, fake.appended, 2)
	assert.Equal(t, "INV-42", fake.appended[0][0])
	assert.Contains(t, fake.appendTo, "Fatture!A:O")

	// second export finds the header and only appends
	fake.calls = nil
	_, err = exp.Append(context.Background(), sampleRecords()[:1])
	require.NoError(t, err)
	assert.Equal(t, []string{"get", "addSheet", "getHeader", "append"}, fake.calls)
}

func TestSheetsExporterNothingToAppend(t *testing.T) {
	exp, err := NewSheetsExporterWithOptions(context.Background(),
		"https://docs.google.com/spreadsheets/d/sheet123/edit", "Fatture",
		option.WithEndpoint("http://127.0.0.1:1/"), option.WithHTTPClient(http.DefaultClient))
	require.NoError(t, err)

	n, err := exp.Append(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewSheetsExporterNeedsCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	t.Setenv("GOOGLE_CREDENTIALS", "")

	_, err := NewSheetsExporter(context.Background(), "https://docs.google.com/spreadsheets/d/x/edit", "Fatture")
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

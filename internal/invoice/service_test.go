package invoice

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicechat/pkg/models"
)

var fixedNow = time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

func TestNormalizeCreate(t *testing.T) {
	raw, err := Decode(ProducerCreate, []byte(`{
		"id": 42,
		"recipient": "Mario Bianchi",
		"building_site": {"address": "Via Po 3", "City": "Torino", "postal_code": "10123"},
		"products": [
			{"code": "ARGO16", "name": "Pompa di calore", "quantity": 2, "unit_price": "7450.00", "total_price": 14900},
			{"type": "Installazione", "quantity": 0}
		],
		"subtotal": 16700.5,
		"tax_rate": 22,
		"total_amount": 0,
		"totalAmount": 20374.61,
		"notes": "",
		"created_at": "2024-05-09T18:00:00Z",
		"status": "created"
	}`))
	require.NoError(t, err)

	rec, err := Normalize(ProducerCreate, raw, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, "42", rec.ID)
	assert.Equal(t, "INV-42", rec.Number)
	assert.Equal(t, "Mario Bianchi", rec.Recipient)
	assert.Equal(t, models.BuildingSite{Address: "Via Po 3", City: "Torino", PostalCode: "10123"}, rec.BuildingSite)
	assert.Equal(t, "created", rec.Status)
	assert.Equal(t, time.Date(2024, 5, 9, 18, 0, 0, 0, time.UTC), rec.CreatedAt)

	require.True(t, rec.Subtotal.Valid)
	assert.True(t, decimal.RequireFromString("16700.5").Equal(rec.Subtotal.Decimal))

	// 0 is falsy for amounts, so the next alias wins
	require.True(t, rec.TotalAmount.Valid)
	assert.True(t, decimal.RequireFromString("20374.61").Equal(rec.TotalAmount.Decimal))
	assert.False(t, rec.TaxAmount.Valid)

	require.Len(t, rec.Products, 2)
	first := rec.Products[0]
	assert.Equal(t, "ARGO16", first.Code)
	assert.Equal(t, 2, first.Quantity)
	assert.Equal(t, models.DefaultUnitOfMeasure, first.UnitOfMeasure)
	assert.True(t, decimal.RequireFromString("7450").Equal(first.UnitPrice))
	assert.True(t, decimal.NewFromInt(14900).Equal(first.TotalPrice))

	second := rec.Products[1]
	assert.Equal(t, "Installazione", second.Name)
	assert.Equal(t, 1, second.Quantity)
	assert.True(t, second.UnitPrice.IsZero())
}

func TestNormalizeEditKeyCasing(t *testing.T) {
	raw := map[string]any{
		"invoice_id":   "INV-42",
		"recipient":    "John Smith",
		"buildingSite": map[string]any{"Address": "Via Roma 9", "City": "Roma", "PostalCode": "00100", "Country": "Italia"},
		"totalAmount":  1000.0,
	}

	rec, err := Normalize(ProducerEdit, raw, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, "42", rec.ID)
	assert.Equal(t, "INV-42", rec.Number)
	assert.Equal(t, "John Smith", rec.Recipient)
	assert.Equal(t, "Roma", rec.BuildingSite.City)
	assert.Equal(t, "00100", rec.BuildingSite.PostalCode)
	assert.Equal(t, fixedNow, rec.CreatedAt)
	assert.Empty(t, rec.Products)
}

func TestNormalizeDraftHasNoInvoiceID(t *testing.T) {
	rec, err := Normalize(ProducerDraft, map[string]any{"draft_id": "d-1", "totale": "1.234,50"}, fixedNow)
	require.NoError(t, err)

	assert.Empty(t, rec.ID)
	require.True(t, rec.TotalAmount.Valid)
	assert.True(t, decimal.RequireFromString("1234.50").Equal(rec.TotalAmount.Decimal))
}

func TestNormalizeErrors(t *testing.T) {
	_, err := Normalize(ProducerCreate, nil, fixedNow)
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = Normalize(Producer("fax"), map[string]any{}, fixedNow)
	assert.ErrorIs(t, err, ErrUnknownProducer)

	var nerr *NormalizeError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, Producer("fax"), nerr.Producer)
	assert.Equal(t, "Normalize", nerr.Op)
}

func TestDecode(t *testing.T) {
	raw, err := Decode(ProducerEdit, []byte(`{"total": 10.10}`))
	require.NoError(t, err)
	assert.Equal(t, "10.10", raw["total"].(interface{ String() string }).String())

	_, err = Decode(ProducerEdit, []byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = Decode(ProducerEdit, []byte(`null`))
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestSplitInvoiceID(t *testing.T) {
	tests := []struct {
		id, number     string
		wantID, wantNo string
	}{
		{"INV-42", "", "42", "INV-42"},
		{"42", "", "42", "INV-42"},
		{"42", "FT-2024-7", "42", "FT-2024-7"},
		{"", "", "", ""},
	}
	for _, tt := range tests {
		id, no := splitInvoiceID(tt.id, tt.number)
		assert.Equal(t, tt.wantID, id, tt.id)
		assert.Equal(t, tt.wantNo, no, tt.id)
	}
}

func TestParseTimestamp(t *testing.T) {
	assert.Equal(t, fixedNow, parseTimestamp("", fixedNow))
	assert.Equal(t, fixedNow, parseTimestamp("yesterday", fixedNow))
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 123456000, time.UTC), parseTimestamp("2024-01-02T03:04:05.123456", fixedNow))
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), parseTimestamp("2024-01-02", fixedNow))
}

func TestSampleInvoice(t *testing.T) {
	rec := SampleInvoice([]string{"sample-1", "missing"}, "", models.BuildingSite{City: "Bari"}, "n", fixedNow)

	assert.True(t, rec.Offline)
	assert.Equal(t, "Cliente di esempio", rec.Recipient)
	assert.Equal(t, "Bari", rec.BuildingSite.City)
	require.Len(t, rec.Products, 1)
	assert.True(t, decimal.RequireFromString("7450").Equal(rec.Subtotal.Decimal))
	assert.True(t, decimal.RequireFromString("1639").Equal(rec.TaxAmount.Decimal))
	assert.True(t, decimal.RequireFromString("9089").Equal(rec.TotalAmount.Decimal))

	all := SampleInvoice(nil, "Acme", models.BuildingSite{}, "", fixedNow)
	assert.Len(t, all.Products, len(SampleProducts("")))
}

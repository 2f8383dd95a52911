package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultUnitOfMeasure is used for line items that arrive without one.
const DefaultUnitOfMeasure = "pz"

type InvoiceRecord struct {
	// Identifiers
	ID     string `json:"id,omitempty"`     // Backend invoice id ("42")
	Number string `json:"number,omitempty"` // Display number ("INV-42")

	// Parties
	Recipient    string       `json:"recipient,omitempty"`     // Bill-to party
	BuildingSite BuildingSite `json:"building_site,omitempty"` // Installation/delivery address

	Products []LineItem `json:"products"`

	// Amounts. Each one is independently optional; an invalid NullDecimal means
	// the producer did not send a usable value.
	Subtotal             decimal.NullDecimal `json:"subtotal"`
	TotalAmount          decimal.NullDecimal `json:"total_amount"`
	TaxRate              decimal.NullDecimal `json:"tax_rate"`
	TaxAmount            decimal.NullDecimal `json:"tax_amount"`
	ContoTermicoDiscount decimal.NullDecimal `json:"conto_termico_discount"`
	CreditoImposta       decimal.NullDecimal `json:"credito_imposta"`
	QuotaCliente         decimal.NullDecimal `json:"quota_cliente"`

	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status,omitempty"` // pending, created, ... (free-form)

	// Offline marks sample data produced while the backend was unreachable.
	Offline bool `json:"offline,omitempty"`
}

type BuildingSite struct {
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// IsZero reports whether no address component is set.
func (b BuildingSite) IsZero() bool {
	return b.Address == "" && b.City == "" && b.PostalCode == "" && b.Country == ""
}

type LineItem struct {
	Code              string          `json:"code,omitempty"`
	Name              string          `json:"name,omitempty"`
	Description       string          `json:"description,omitempty"`
	DetailDescription string          `json:"detail_description,omitempty"`
	Quantity          int             `json:"quantity"`
	UnitOfMeasure     string          `json:"unit_of_measure"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	IncentiveAmount   decimal.Decimal `json:"incentive_amount"`
	ClientShare       decimal.Decimal `json:"client_share"`
}

// Product is a catalogue match returned by the backend for a free-text query.
type Product struct {
	ID          string          `json:"id"`
	Code        string          `json:"code,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Score       float64         `json:"score,omitempty"`
}

// ExtractedItem is an item the backend recognised in the user's request.
type ExtractedItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity,omitempty"`
}

// DisplayNumber returns Number, falling back to an INV- prefixed ID.
func (r *InvoiceRecord) DisplayNumber() string {
	if r.Number != "" {
		return r.Number
	}
	if r.ID == "" {
		return ""
	}
	return "INV-" + r.ID
}

// Package export writes the invoices of a chat to a spreadsheet: a local
// XLSX workbook or a Google Sheet.
package export

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"invoicechat/internal/render"
	"invoicechat/pkg/models"
)

// InvoiceHeaders are the columns of the invoice ledger.
var InvoiceHeaders = []string{
	"Numero", "Data", "Destinatario", "Indirizzo", "Città", "CAP", "Paese",
	"Imponibile", "IVA %", "IVA", "Totale", "Quota cliente", "Stato", "Offline", "Note",
}

// LineHeaders are the columns of the line-item sheet.
var LineHeaders = []string{
	"Numero", "Codice", "Prodotto", "Descrizione", "Quantità", "UM",
	"Prezzo unitario", "Totale riga", "Incentivo", "Quota cliente",
}

// InvoiceRow flattens one invoice into ledger cells. Amounts stay numeric
// so spreadsheets can sum them; absent amounts are empty cells.
func InvoiceRow(rec *models.InvoiceRecord) []any {
	date := ""
	if !rec.CreatedAt.IsZero() {
		date = rec.CreatedAt.Format(render.DateLayout)
	}
	return []any{
		rec.DisplayNumber(),
		date,
		rec.Recipient,
		rec.BuildingSite.Address,
		rec.BuildingSite.City,
		rec.BuildingSite.PostalCode,
		rec.BuildingSite.Country,
		amount(rec.Subtotal),
		amount(rec.TaxRate),
		amount(rec.TaxAmount),
		amount(rec.TotalAmount),
		amount(rec.QuotaCliente),
		rec.Status,
		lo.Ternary(rec.Offline, "sì", ""),
		rec.Notes,
	}
}

// LineRows flattens the products of one invoice.
func LineRows(rec *models.InvoiceRecord) [][]any {
	return lo.Map(rec.Products, func(it models.LineItem, _ int) []any {
		return []any{
			rec.DisplayNumber(),
			it.Code,
			it.Name,
			it.Description,
			it.Quantity,
			it.UnitOfMeasure,
			it.UnitPrice.InexactFloat64(),
			it.TotalPrice.InexactFloat64(),
			it.IncentiveAmount.InexactFloat64(),
			it.ClientShare.InexactFloat64(),
		}
	})
}

func amount(d decimal.NullDecimal) any {
	if !d.Valid {
		return ""
	}
	return d.Decimal.InexactFloat64()
}

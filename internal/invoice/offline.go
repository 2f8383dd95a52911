package invoice

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"invoicechat/pkg/models"
)

// OfflineNotice labels every bubble produced while the backend is unreachable.
const OfflineNotice = "Offline mode: sample data, not saved"

var sampleCatalogue = []models.Product{
	{
		ID:          "sample-1",
		Code:        "ARGO16",
		Name:        "Pompa di calore ARGO 16 kW",
		Description: "Pompa di calore aria-acqua monoblocco",
		Price:       decimal.RequireFromString("7450.00"),
		Score:       0.92,
	},
	{
		ID:          "sample-2",
		Code:        "BOLL200",
		Name:        "Bollitore ACS 200 l",
		Description: "Bollitore acciaio inox per acqua calda sanitaria",
		Price:       decimal.RequireFromString("1320.00"),
		Score:       0.71,
	},
	{
		ID:          "sample-3",
		Code:        "INST-PDC",
		Name:        "Installazione pompa di calore",
		Description: "Posa in opera e collaudo",
		Price:       decimal.RequireFromString("1800.00"),
		Score:       0.64,
	},
}

// SampleProducts returns canned matches for a query. Results are copies.
func SampleProducts(query string) []models.Product {
	return append([]models.Product(nil), sampleCatalogue...)
}

// SampleInvoice builds an offline invoice from the chosen sample products.
// Unknown ids are skipped; with no match the full catalogue is used.
func SampleInvoice(productIDs []string, recipient string, site models.BuildingSite, notes string, now time.Time) *models.InvoiceRecord {
	chosen := lo.Filter(sampleCatalogue, func(p models.Product, _ int) bool {
		return lo.Contains(productIDs, p.ID)
	})
	if len(chosen) == 0 {
		chosen = sampleCatalogue
	}

	items := lo.Map(chosen, func(p models.Product, _ int) models.LineItem {
		return models.LineItem{
			Code:          p.Code,
			Name:          p.Name,
			Description:   p.Description,
			Quantity:      1,
			UnitOfMeasure: models.DefaultUnitOfMeasure,
			UnitPrice:     p.Price,
			TotalPrice:    p.Price,
			ClientShare:   p.Price,
		}
	})

	subtotal := lo.Reduce(items, func(acc decimal.Decimal, it models.LineItem, _ int) decimal.Decimal {
		return acc.Add(it.TotalPrice)
	}, decimal.Zero)
	rate := decimal.NewFromInt(22)
	tax := subtotal.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)
	total := subtotal.Add(tax)

	if recipient == "" {
		recipient = "Cliente di esempio"
	}

	return &models.InvoiceRecord{
		Number:       fmt.Sprintf("OFFLINE-%s", now.Format("20060102-150405")),
		Recipient:    recipient,
		BuildingSite: site,
		Products:     items,
		Subtotal:     decimal.NewNullDecimal(subtotal),
		TaxRate:      decimal.NewNullDecimal(rate),
		TaxAmount:    decimal.NewNullDecimal(tax),
		TotalAmount:  decimal.NewNullDecimal(total),
		QuotaCliente: decimal.NewNullDecimal(total),
		Notes:        notes,
		CreatedAt:    now,
		Status:       "offline",
		Offline:      true,
	}
}

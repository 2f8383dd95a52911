// Package invoice turns backend invoice payloads into the canonical
// models.InvoiceRecord.
//
// Each backend endpoint that produces invoice data has its own adapter:
//
//   - ProducerCreate: the body returned by POST /invoices
//   - ProducerEdit:   updated_invoice_data returned by POST /edit_invoice
//   - ProducerDraft:  invoice_data returned by POST /select
//
// The producers disagree on key casing (city vs City, totalAmount vs
// total_amount). Alias chains live here and only here; the renderer works on
// the canonical record.
//
// Fallback conventions:
//   - Currency amounts, quantities and address parts use truthy (||) fallback,
//     so a literal 0 amount is treated as missing.
//   - Identifiers and free text use existence (??) fallback.
package invoice

import (
	"time"

	"invoicechat/internal/fields"
	"invoicechat/pkg/models"
)

// Producer identifies which backend endpoint produced a payload.
type Producer string

const (
	ProducerCreate Producer = "create"
	ProducerEdit   Producer = "edit"
	ProducerDraft  Producer = "draft"
)

// schema is the alias table for one producer.
type schema struct {
	id, number, recipient, site, products []string
	notes, createdAt, status              []string

	subtotal, total, taxRate, taxAmount []string
	contoTermico, creditoImposta, quota []string

	siteAddress, siteCity, sitePostal, siteCountry []string

	item itemSchema
}

type itemSchema struct {
	code, name, description, detail []string
	quantity, unit                  []string
	unitPrice, totalPrice           []string
	incentive, clientShare          []string
}

var defaultItemSchema = itemSchema{
	code:        []string{"code", "product_code", "productCode", "codice"},
	name:        []string{"name", "type", "product_name", "productName", "nome"},
	description: []string{"description", "descrizione"},
	detail:      []string{"detail_description", "detailDescription", "dettaglio"},
	quantity:    []string{"quantity", "qty", "quantita"},
	unit:        []string{"unit_of_measure", "unitOfMeasure", "um", "unit"},
	unitPrice:   []string{"unit_price", "unitPrice", "prezzo_unitario", "price"},
	totalPrice:  []string{"total_price", "totalPrice", "totale", "total"},
	incentive:   []string{"incentive_amount", "incentiveAmount", "incentivo"},
	clientShare: []string{"client_share", "clientShare", "quota_cliente"},
}

var siteAliases = struct{ address, city, postal, country []string }{
	address: []string{"address", "Address", "indirizzo"},
	city:    []string{"city", "City", "citta"},
	postal:  []string{"postal_code", "postalCode", "PostalCode", "cap", "CAP"},
	country: []string{"country", "Country", "nazione"},
}

var schemas = map[Producer]schema{
	ProducerCreate: {
		id:             []string{"id", "invoice_id"},
		number:         []string{"invoice_number", "number"},
		recipient:      []string{"recipient", "recipient_name"},
		site:           []string{"building_site", "buildingSite"},
		products:       []string{"products", "line_items", "items"},
		notes:          []string{"notes"},
		createdAt:      []string{"created_at", "createdAt"},
		status:         []string{"status"},
		subtotal:       []string{"subtotal", "sub_total"},
		total:          []string{"total_amount", "totalAmount", "total"},
		taxRate:        []string{"tax_rate", "taxRate", "vat_rate"},
		taxAmount:      []string{"tax_amount", "taxAmount", "vat_amount"},
		contoTermico:   []string{"conto_termico_discount", "contoTermicoDiscount"},
		creditoImposta: []string{"credito_imposta", "creditoImposta"},
		quota:          []string{"quota_cliente", "quotaCliente"},
		siteAddress:    siteAliases.address,
		siteCity:       siteAliases.city,
		sitePostal:     siteAliases.postal,
		siteCountry:    siteAliases.country,
		item:           defaultItemSchema,
	},
	ProducerEdit: {
		id:             []string{"id", "invoice_id", "invoiceId"},
		number:         []string{"invoice_number", "invoiceNumber", "number"},
		recipient:      []string{"recipient", "recipientName"},
		site:           []string{"buildingSite", "building_site"},
		products:       []string{"products", "items"},
		notes:          []string{"notes", "note"},
		createdAt:      []string{"createdAt", "created_at", "updated_at"},
		status:         []string{"status"},
		subtotal:       []string{"subtotal"},
		total:          []string{"totalAmount", "total_amount", "total"},
		taxRate:        []string{"taxRate", "tax_rate"},
		taxAmount:      []string{"taxAmount", "tax_amount"},
		contoTermico:   []string{"contoTermicoDiscount", "conto_termico_discount"},
		creditoImposta: []string{"creditoImposta", "credito_imposta"},
		quota:          []string{"quotaCliente", "quota_cliente"},
		siteAddress:    siteAliases.address,
		siteCity:       siteAliases.city,
		sitePostal:     siteAliases.postal,
		siteCountry:    siteAliases.country,
		item:           defaultItemSchema,
	},
	ProducerDraft: {
		id:             []string{"draft_id", "id"},
		number:         []string{"invoice_number"},
		recipient:      []string{"recipient"},
		site:           []string{"building_site", "buildingSite"},
		products:       []string{"products", "selected_products", "items"},
		notes:          []string{"notes"},
		createdAt:      []string{"created_at"},
		status:         []string{"status"},
		subtotal:       []string{"subtotal", "totale_imponibile"},
		total:          []string{"total_amount", "total", "totale"},
		taxRate:        []string{"tax_rate", "iva_percentuale"},
		taxAmount:      []string{"tax_amount", "iva"},
		contoTermico:   []string{"conto_termico_discount", "conto_termico"},
		creditoImposta: []string{"credito_imposta"},
		quota:          []string{"quota_cliente"},
		siteAddress:    siteAliases.address,
		siteCity:       siteAliases.city,
		sitePostal:     siteAliases.postal,
		siteCountry:    siteAliases.country,
		item:           defaultItemSchema,
	},
}

// Normalize converts one producer's payload into a canonical record.
// now is used when the payload carries no creation timestamp.
func Normalize(producer Producer, raw map[string]any, now time.Time) (*models.InvoiceRecord, error) {
	const op = "Normalize"

	if raw == nil {
		return nil, NewNormalizeError(op, producer, ErrEmptyPayload)
	}
	s, ok := schemas[producer]
	if !ok {
		return nil, NewNormalizeError(op, producer, ErrUnknownProducer)
	}

	rec := &models.InvoiceRecord{
		Recipient: fields.String(raw, s.recipient, "", fields.Truthy),
		Notes:     fields.String(raw, s.notes, "", fields.Nullish),
		Status:    fields.String(raw, s.status, "", fields.Nullish),

		Subtotal:             fields.NullDecimal(raw, s.subtotal, fields.Truthy),
		TotalAmount:          fields.NullDecimal(raw, s.total, fields.Truthy),
		TaxRate:              fields.NullDecimal(raw, s.taxRate, fields.Truthy),
		TaxAmount:            fields.NullDecimal(raw, s.taxAmount, fields.Truthy),
		ContoTermicoDiscount: fields.NullDecimal(raw, s.contoTermico, fields.Truthy),
		CreditoImposta:       fields.NullDecimal(raw, s.creditoImposta, fields.Truthy),
		QuotaCliente:         fields.NullDecimal(raw, s.quota, fields.Truthy),
	}

	rec.ID, rec.Number = splitInvoiceID(
		fields.String(raw, s.id, "", fields.Nullish),
		fields.String(raw, s.number, "", fields.Nullish),
	)
	if producer == ProducerDraft {
		// draft ids are not invoice ids
		rec.ID = ""
	}

	rec.CreatedAt = parseTimestamp(fields.String(raw, s.createdAt, "", fields.Nullish), now)

	if site := fields.Map(raw, s.site); site != nil {
		rec.BuildingSite = models.BuildingSite{
			Address:    fields.String(site, s.siteAddress, "", fields.Truthy),
			City:       fields.String(site, s.siteCity, "", fields.Truthy),
			PostalCode: fields.String(site, s.sitePostal, "", fields.Truthy),
			Country:    fields.String(site, s.siteCountry, "", fields.Truthy),
		}
	}

	for _, item := range fields.Slice(raw, s.products) {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rec.Products = append(rec.Products, normalizeItem(s.item, m))
	}

	return rec, nil
}

func normalizeItem(s itemSchema, m map[string]any) models.LineItem {
	item := models.LineItem{
		Code:              fields.String(m, s.code, "", fields.Nullish),
		Name:              fields.String(m, s.name, "", fields.Truthy),
		Description:       fields.String(m, s.description, "", fields.Nullish),
		DetailDescription: fields.String(m, s.detail, "", fields.Nullish),
		Quantity:          fields.Int(m, s.quantity, 1, fields.Truthy),
		UnitOfMeasure:     fields.String(m, s.unit, models.DefaultUnitOfMeasure, fields.Truthy),
		UnitPrice:         fields.Decimal(m, s.unitPrice, zero, fields.Truthy),
		TotalPrice:        fields.Decimal(m, s.totalPrice, zero, fields.Truthy),
		IncentiveAmount:   fields.Decimal(m, s.incentive, zero, fields.Truthy),
		ClientShare:       fields.Decimal(m, s.clientShare, zero, fields.Truthy),
	}
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	return item
}

var productAliases = struct{ id, code, name, description, price, score []string }{
	id:          []string{"id", "product_id", "productId"},
	code:        []string{"code", "product_code", "codice"},
	name:        []string{"name", "product_name", "nome", "type"},
	description: []string{"description", "descrizione"},
	price:       []string{"price", "unit_price", "prezzo"},
	score:       []string{"score", "similarity", "match_score"},
}

// NormalizeProduct converts one matched product from /parse.
func NormalizeProduct(raw map[string]any) models.Product {
	return models.Product{
		ID:          fields.String(raw, productAliases.id, "", fields.Nullish),
		Code:        fields.String(raw, productAliases.code, "", fields.Nullish),
		Name:        fields.String(raw, productAliases.name, "", fields.Truthy),
		Description: fields.String(raw, productAliases.description, "", fields.Nullish),
		Price:       fields.Decimal(raw, productAliases.price, zero, fields.Truthy),
		Score:       fields.Decimal(raw, productAliases.score, zero, fields.Nullish).InexactFloat64(),
	}
}

// NormalizeExtractedItem converts one item the backend recognised in a query.
func NormalizeExtractedItem(raw map[string]any) models.ExtractedItem {
	return models.ExtractedItem{
		Name:     fields.String(raw, []string{"name", "product", "type", "description"}, "", fields.Truthy),
		Quantity: fields.Int(raw, []string{"quantity", "qty"}, 1, fields.Truthy),
	}
}

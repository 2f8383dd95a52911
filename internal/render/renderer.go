// Package render fills the invoice HTML template with a canonical record.
//
// The template is a finished sample document. Rendering swaps its literal
// sample values for the record's values and regenerates two bounded regions
// (product rows and summary). When a prior version of the record is given,
// every value that differs from the prior one is wrapped in a highlight span.
package render

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"invoicechat/internal/diff"
	"invoicechat/internal/logger"
	"invoicechat/pkg/models"
)

// HighlightClass marks a changed value in rendered output.
const HighlightClass = "field-changed"

const highlightOpen = `<span class="` + HighlightClass + `" style="background-color:#fff3a0;border-bottom:2px solid #f5c400;padding:0 2px;">`

// Region delimiters in the template.
const (
	ProductRowsStart = `<tbody id="product-rows">`
	ProductRowsEnd   = `</tbody>`
	SummaryStart     = `<table id="invoice-summary">`
	SummaryEnd       = `</table>`

	headEnd = `</head>`
)

// DefaultTaxRate applies when a record carries no usable tax rate.
var DefaultTaxRate = decimal.NewFromInt(22)

// placeholder is one literal sample value in the template.
type placeholder struct {
	name    string
	literal string
	all     bool
	resolve func(r *models.InvoiceRecord) any
}

// Order matters: earlier literals are claimed first.
var placeholders = []placeholder{
	{name: "number", literal: "INV-0000", all: true, resolve: func(r *models.InvoiceRecord) any {
		return orDefault(r.DisplayNumber(), "INV-0000")
	}},
	{name: "date", literal: "01/01/2024", resolve: func(r *models.InvoiceRecord) any {
		if r.CreatedAt.IsZero() {
			return "01/01/2024"
		}
		return FormatDate(r.CreatedAt)
	}},
	{name: "recipient", literal: "Mario Rossi", all: true, resolve: func(r *models.InvoiceRecord) any {
		return orDefault(r.Recipient, "Mario Rossi")
	}},
	{name: "address", literal: "Via Roma 1", resolve: func(r *models.InvoiceRecord) any {
		return orDefault(r.BuildingSite.Address, "Via Roma 1")
	}},
	{name: "postal_code", literal: "20121", resolve: func(r *models.InvoiceRecord) any {
		return orDefault(r.BuildingSite.PostalCode, "20121")
	}},
	{name: "city", literal: "Milano", resolve: func(r *models.InvoiceRecord) any {
		return orDefault(r.BuildingSite.City, "Milano")
	}},
	{name: "country", literal: "Italia", resolve: func(r *models.InvoiceRecord) any {
		return orDefault(r.BuildingSite.Country, "Italia")
	}},
	{name: "notes", literal: "Nessuna nota.", resolve: func(r *models.InvoiceRecord) any {
		return orDefault(r.Notes, "Nessuna nota.")
	}},
	{name: "amount_due", literal: "€ 12.345,67", all: true, resolve: func(r *models.InvoiceRecord) any {
		return summarize(r).total
	}},
}

// Renderer renders records with a template loaded from a TemplateSource.
type Renderer struct {
	source TemplateSource
	log    zerolog.Logger
}

// NewRenderer creates a renderer. A nil source uses the embedded template.
func NewRenderer(source TemplateSource) *Renderer {
	if source == nil {
		source = EmbeddedSource{}
	}
	return &Renderer{
		source: source,
		log:    logger.WithComponent("render"),
	}
}

// Render returns the finished document. It never fails: when the template
// cannot be loaded the result is a small error document.
func (r *Renderer) Render(ctx context.Context, rec, prior *models.InvoiceRecord) string {
	tpl, err := r.source.Load(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to load invoice template")
		return ErrorDocument(err)
	}
	return renderTemplate(tpl, rec, prior, r.log)
}

// RenderTemplate substitutes rec into tpl, highlighting values that differ
// from prior when prior is non-nil.
func RenderTemplate(tpl string, rec, prior *models.InvoiceRecord) string {
	return renderTemplate(tpl, rec, prior, logger.WithComponent("render"))
}

func renderTemplate(tpl string, rec, prior *models.InvoiceRecord, log zerolog.Logger) string {
	if rec == nil {
		rec = &models.InvoiceRecord{}
	}

	// Every replaced span becomes a slot token first, so inserted values are
	// never rescanned for later placeholders.
	slots := newSlotTable()

	doc, ok := replaceRegion(tpl, ProductRowsStart, ProductRowsEnd, slots.add("\n"+productRows(rec, prior)))
	if !ok {
		log.Warn().Str("region", "product-rows").Msg("Region delimiters not found, leaving template content")
	}
	doc, ok = replaceRegion(doc, SummaryStart, SummaryEnd, slots.add("\n"+summaryRows(rec, prior)))
	if !ok {
		log.Warn().Str("region", "invoice-summary").Msg("Region delimiters not found, leaving template content")
	}

	for _, p := range placeholders {
		if !strings.Contains(doc, p.literal) {
			continue
		}
		cur := p.resolve(rec)
		changed := prior != nil && diff.Changed(cur, p.resolve(prior))
		plain := slots.add(cell(display(cur), false))
		marked := plain
		if changed {
			marked = slots.add(cell(display(cur), true))
		}

		// Only the first occurrence in the body carries the highlight; the
		// head is shown as plain text by browsers.
		head, body := splitHead(doc)
		switch {
		case p.all:
			head = strings.ReplaceAll(head, p.literal, plain)
			body = strings.Replace(body, p.literal, marked, 1)
			body = strings.ReplaceAll(body, p.literal, plain)
		case strings.Contains(head, p.literal):
			head = strings.Replace(head, p.literal, plain, 1)
		default:
			body = strings.Replace(body, p.literal, marked, 1)
		}
		doc = head + body
	}

	return slots.expand(doc)
}

// splitHead cuts doc after the closing head tag. Without one the whole
// document is body.
func splitHead(doc string) (string, string) {
	i := strings.Index(doc, headEnd)
	if i < 0 {
		return "", doc
	}
	return doc[:i+len(headEnd)], doc[i+len(headEnd):]
}

// replaceRegion swaps the content between start and the first end after it.
func replaceRegion(doc, start, end, content string) (string, bool) {
	i := strings.Index(doc, start)
	if i < 0 {
		return doc, false
	}
	bodyStart := i + len(start)
	j := strings.Index(doc[bodyStart:], end)
	if j < 0 {
		return doc, false
	}
	bodyEnd := bodyStart + j
	return doc[:bodyStart] + content + doc[bodyEnd:], true
}

func productRows(rec, prior *models.InvoiceRecord) string {
	var b strings.Builder
	for i, item := range rec.Products {
		var old *models.LineItem
		if prior != nil && i < len(prior.Products) {
			old = &prior.Products[i]
		}
		changed := func(get func(models.LineItem) any) bool {
			if prior == nil {
				return false
			}
			if old == nil {
				return true
			}
			return diff.Changed(get(item), get(*old))
		}

		b.WriteString("    <tr>\n")
		writeCell(&b, "", cell(item.Code, changed(func(it models.LineItem) any { return it.Code })))
		writeCell(&b, "", describe(item, changed))
		writeCell(&b, "num", cell(FormatQuantity(item.Quantity, item.UnitOfMeasure),
			changed(func(it models.LineItem) any { return FormatQuantity(it.Quantity, it.UnitOfMeasure) })))
		writeCell(&b, "num", cell(FormatEUR(item.UnitPrice), changed(func(it models.LineItem) any { return it.UnitPrice })))
		writeCell(&b, "num", cell(FormatEUR(item.TotalPrice), changed(func(it models.LineItem) any { return it.TotalPrice })))
		writeCell(&b, "num", cell(FormatEUR(item.IncentiveAmount), changed(func(it models.LineItem) any { return it.IncentiveAmount })))
		writeCell(&b, "num", cell(FormatEUR(item.ClientShare), changed(func(it models.LineItem) any { return it.ClientShare })))
		b.WriteString("    </tr>\n")
	}
	b.WriteString("  ")
	return b.String()
}

func describe(item models.LineItem, changed func(func(models.LineItem) any) bool) string {
	out := cell(item.Name, changed(func(it models.LineItem) any { return it.Name }))
	if item.Description != "" {
		out += "<br><small>" + cell(item.Description, changed(func(it models.LineItem) any { return it.Description })) + "</small>"
	}
	if item.DetailDescription != "" {
		out += "<br><small>" + cell(item.DetailDescription, changed(func(it models.LineItem) any { return it.DetailDescription })) + "</small>"
	}
	return out
}

func writeCell(b *strings.Builder, class, content string) {
	if class != "" {
		fmt.Fprintf(b, "      <td class=\"%s\">%s</td>\n", class, content)
		return
	}
	fmt.Fprintf(b, "      <td>%s</td>\n", content)
}

// summary holds the computed totals shown in the summary region.
type summary struct {
	subtotal, taxRate, taxAmount, total decimal.Decimal
	contoTermico, credito, quota        decimal.NullDecimal
}

func summarize(r *models.InvoiceRecord) summary {
	s := summary{
		contoTermico: r.ContoTermicoDiscount,
		credito:      r.CreditoImposta,
		quota:        r.QuotaCliente,
	}

	if r.Subtotal.Valid {
		s.subtotal = r.Subtotal.Decimal
	} else {
		for _, it := range r.Products {
			s.subtotal = s.subtotal.Add(it.TotalPrice)
		}
	}

	s.taxRate = DefaultTaxRate
	if r.TaxRate.Valid {
		s.taxRate = r.TaxRate.Decimal
	}

	if r.TaxAmount.Valid {
		s.taxAmount = r.TaxAmount.Decimal
	} else {
		s.taxAmount = s.subtotal.Mul(s.taxRate).Div(decimal.NewFromInt(100)).Round(2)
	}

	if r.TotalAmount.Valid {
		s.total = r.TotalAmount.Decimal
	} else {
		s.total = s.subtotal.Add(s.taxAmount)
	}
	return s
}

type summaryLine struct {
	label string
	class string
	value func(s summary) any
	show  func(s summary) bool
}

var summaryLines = []summaryLine{
	{label: "Imponibile", value: func(s summary) any { return s.subtotal }},
	{label: "IVA", value: func(s summary) any { return s.taxAmount }},
	{label: "Totale", class: "total", value: func(s summary) any { return s.total }},
	{
		label: "Sconto Conto Termico",
		value: func(s summary) any { return s.contoTermico.Decimal },
		show:  func(s summary) bool { return s.contoTermico.Valid },
	},
	{
		label: "Credito d'imposta",
		value: func(s summary) any { return s.credito.Decimal },
		show:  func(s summary) bool { return s.credito.Valid },
	},
	{
		label: "Quota a carico del cliente",
		value: func(s summary) any { return s.quota.Decimal },
		show:  func(s summary) bool { return s.quota.Valid },
	},
}

func summaryRows(rec, prior *models.InvoiceRecord) string {
	cur := summarize(rec)
	var old summary
	if prior != nil {
		old = summarize(prior)
	}

	var b strings.Builder
	for _, line := range summaryLines {
		if line.show != nil && !line.show(cur) {
			continue
		}

		label := html.EscapeString(line.label)
		if line.label == "IVA" {
			rate := FormatPercent(cur.taxRate)
			rateChanged := prior != nil && diff.Changed(cur.taxRate, old.taxRate)
			label += " " + cell(rate, rateChanged)
		}

		v := line.value(cur)
		changed := prior != nil && (line.show != nil && !line.show(old) || diff.Changed(v, line.value(old)))

		if line.class != "" {
			fmt.Fprintf(&b, "  <tr class=\"%s\">", line.class)
		} else {
			b.WriteString("  <tr>")
		}
		fmt.Fprintf(&b, "<td>%s</td><td class=\"num\">%s</td></tr>\n", label, cell(display(v), changed))
	}
	return b.String()
}

// display formats a resolved value for insertion.
func display(v any) string {
	switch t := v.(type) {
	case decimal.Decimal:
		return FormatEUR(t)
	case time.Time:
		return FormatDate(t)
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// cell escapes a value and wraps it in the highlight span when changed.
func cell(value string, changed bool) string {
	escaped := html.EscapeString(value)
	if !changed {
		return escaped
	}
	return highlightOpen + escaped + "</span>"
}

// ErrorDocument is shown in place of an invoice when rendering cannot start.
func ErrorDocument(err error) string {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return `<!DOCTYPE html>
<html lang="it">
<head><meta charset="utf-8"><title>Fattura non disponibile</title></head>
<body style="font-family:Helvetica,Arial,sans-serif;margin:32px;color:#900;">
<h1>Impossibile caricare il modello della fattura</h1>
<p>` + html.EscapeString(msg) + `</p>
</body>
</html>
`
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

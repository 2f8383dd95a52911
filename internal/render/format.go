package render

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the Italian day/month/year layout used on invoices.
const DateLayout = "02/01/2006"

// FormatEUR renders an amount as "€ 1.234,56".
func FormatEUR(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	out := "€ " + b.String() + "," + frac
	if neg {
		out = "-" + out
	}
	return out
}

// FormatDate renders t as DD/MM/YYYY.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatPercent renders a rate without trailing zeros ("22%", "10,5%").
func FormatPercent(d decimal.Decimal) string {
	return strings.Replace(d.String(), ".", ",", 1) + "%"
}

// FormatQuantity renders "2 pz".
func FormatQuantity(qty int, unit string) string {
	return strings.TrimSpace(decimal.NewFromInt(int64(qty)).String() + " " + unit)
}

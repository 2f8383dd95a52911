package render

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatEUR(t *testing.T) {
	tests := map[string]string{
		"0":          "€ 0,00",
		"5":          "€ 5,00",
		"999.5":      "€ 999,50",
		"1000":       "€ 1.000,00",
		"1234.567":   "€ 1.234,57",
		"1234567.89": "€ 1.234.567,89",
		"-2500.1":    "-€ 2.500,10",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatEUR(decimal.RequireFromString(in)), in)
	}
}

func TestFormatOthers(t *testing.T) {
	assert.Equal(t, "09/11/2024", FormatDate(time.Date(2024, 11, 9, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "22%", FormatPercent(decimal.NewFromInt(22)))
	assert.Equal(t, "10,5%", FormatPercent(decimal.RequireFromString("10.50")))
	assert.Equal(t, "3 pz", FormatQuantity(3, "pz"))
	assert.Equal(t, "3", FormatQuantity(3, ""))
}

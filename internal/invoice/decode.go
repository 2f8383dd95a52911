package invoice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"invoicechat/pkg/models"
)

var zero = decimal.Zero

// timestampLayouts are tried in order; the backend emits both RFC3339 and
// naive ISO timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Decode parses a JSON object keeping numbers as json.Number so amounts
// survive without float rounding.
func Decode(producer Producer, body []byte) (map[string]any, error) {
	const op = "Decode"

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, NewNormalizeError(op, producer, fmt.Errorf("%w: %v", ErrMalformedPayload, err))
	}
	if raw == nil {
		return nil, NewNormalizeError(op, producer, ErrEmptyPayload)
	}
	return raw, nil
}

// NormalizeJSON decodes and normalizes in one step.
func NormalizeJSON(producer Producer, body []byte, now time.Time) (*models.InvoiceRecord, error) {
	raw, err := Decode(producer, body)
	if err != nil {
		return nil, err
	}
	return Normalize(producer, raw, now)
}

// splitInvoiceID separates the backend id from the display number.
// "INV-42" yields ("42", "INV-42"); "42" yields ("42", "INV-42").
func splitInvoiceID(id, number string) (string, string) {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(strings.ToUpper(id), "INV-") {
		if number == "" {
			number = id
		}
		id = id[len("INV-"):]
	}
	if number == "" && id != "" {
		number = "INV-" + id
	}
	return id, number
}

func parseTimestamp(s string, now time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return now
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return now
}

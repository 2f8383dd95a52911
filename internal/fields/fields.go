// Package fields resolves display values from loosely-typed records whose keys
// vary between producers (e.g. "city" vs "City").
//
// Two fallback conventions exist and both are kept on purpose:
//
//   - Nullish: the first alias whose key is present with a non-nil value wins.
//     0, "" and false are real values.
//   - Truthy: the first alias whose value is truthy wins, like JavaScript's ||.
//     0, "" and false fall through to the next alias and finally the default.
//
// Callers pick the mode per field; see the invoice adapters.
package fields

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Mode selects the fallback convention.
type Mode int

const (
	Nullish Mode = iota
	Truthy
)

func (m Mode) String() string {
	if m == Truthy {
		return "truthy"
	}
	return "nullish"
}

// Resolve returns the first alias present with a non-nil value, else def.
func Resolve(rec map[string]any, aliases []string, def any) any {
	if v, ok := Lookup(rec, aliases, Nullish); ok {
		return v
	}
	return def
}

// ResolveTruthy returns the first alias with a truthy value, else def.
func ResolveTruthy(rec map[string]any, aliases []string, def any) any {
	if v, ok := Lookup(rec, aliases, Truthy); ok {
		return v
	}
	return def
}

// Lookup walks aliases in order and reports the first acceptable value.
func Lookup(rec map[string]any, aliases []string, mode Mode) (any, bool) {
	if rec == nil {
		return nil, false
	}
	for _, key := range aliases {
		v, ok := rec[key]
		if !ok || v == nil {
			continue
		}
		if mode == Truthy && !IsTruthy(v) {
			continue
		}
		return v, true
	}
	return nil, false
}

// IsTruthy mirrors JavaScript truthiness for JSON-decoded values.
// Collections are always truthy, even when empty.
func IsTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0 && !math.IsNaN(t)
	case float32:
		return t != 0 && !math.IsNaN(float64(t))
	case int:
		return t != 0
	case int64:
		return t != 0
	case int32:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case decimal.Decimal:
		return !t.IsZero()
	default:
		return true
	}
}

// String resolves a text value. Numbers are rendered without trailing zeros.
func String(rec map[string]any, aliases []string, def string, mode Mode) string {
	v, ok := Lookup(rec, aliases, mode)
	if !ok {
		return def
	}
	s, ok := toString(v)
	if !ok {
		return def
	}
	return s
}

// Int resolves an integer value; fractional numbers are truncated.
func Int(rec map[string]any, aliases []string, def int, mode Mode) int {
	v, ok := Lookup(rec, aliases, mode)
	if !ok {
		return def
	}
	d, ok := toDecimal(v)
	if !ok {
		return def
	}
	return int(d.IntPart())
}

// Decimal resolves a currency or numeric value.
func Decimal(rec map[string]any, aliases []string, def decimal.Decimal, mode Mode) decimal.Decimal {
	v, ok := Lookup(rec, aliases, mode)
	if !ok {
		return def
	}
	d, ok := toDecimal(v)
	if !ok {
		return def
	}
	return d
}

// NullDecimal resolves an optional amount; Valid is false when nothing usable was found.
func NullDecimal(rec map[string]any, aliases []string, mode Mode) decimal.NullDecimal {
	v, ok := Lookup(rec, aliases, mode)
	if !ok {
		return decimal.NullDecimal{}
	}
	d, ok := toDecimal(v)
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// Map resolves a nested object.
func Map(rec map[string]any, aliases []string) map[string]any {
	for _, key := range aliases {
		if m, ok := rec[key].(map[string]any); ok {
			return m
		}
	}
	return nil
}

// Slice resolves a nested array.
func Slice(rec map[string]any, aliases []string) []any {
	for _, key := range aliases {
		if s, ok := rec[key].([]any); ok {
			return s
		}
	}
	return nil
}

func toString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	case decimal.Decimal:
		return t.String(), true
	default:
		return "", false
	}
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case float64:
		return decimal.NewFromFloat(t), true
	case float32:
		return decimal.NewFromFloat32(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		return ParseAmount(t)
	default:
		return decimal.Decimal{}, false
	}
}

// ParseAmount parses plain ("1234.56") and European ("€ 1.234,56") amounts.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(strings.NewReplacer("€", "", "EUR", "", " ", "", " ", "").Replace(s))
	if s == "" {
		return decimal.Decimal{}, false
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastComma > lastDot:
		// comma is the decimal separator, dots group thousands
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastComma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

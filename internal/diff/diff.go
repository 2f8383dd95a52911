// Package diff decides whether a rendered field changed between two versions
// of an invoice.
package diff

import (
	"bytes"

	jsoniter "github.com/json-iterator/go"
)

// canonical sorts map keys so object key order never counts as a change.
var canonical = jsoniter.ConfigCompatibleWithStandardLibrary

// Changed reports whether current and previous serialize differently.
//
// Comparison is exact: types matter (5 vs "5"), an absent value (nil) differs
// from any explicit value, and amounts get no rounding tolerance.
func Changed(current, previous any) bool {
	a, err := canonical.Marshal(current)
	if err != nil {
		return true
	}
	b, err := canonical.Marshal(previous)
	if err != nil {
		return true
	}
	return !bytes.Equal(a, b)
}

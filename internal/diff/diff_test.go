package diff

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestChanged(t *testing.T) {
	tests := []struct {
		name     string
		current  any
		previous any
		want     bool
	}{
		{
			name:     "key order is irrelevant",
			current:  map[string]any{"a": 1, "b": 2},
			previous: map[string]any{"b": 2, "a": 1},
			want:     false,
		},
		{
			name:     "type sensitive",
			current:  5,
			previous: "5",
			want:     true,
		},
		{
			name:     "absent differs from zero",
			current:  nil,
			previous: 0,
			want:     true,
		},
		{
			name:     "equal strings",
			current:  "Mario Rossi",
			previous: "Mario Rossi",
			want:     false,
		},
		{
			name:     "no float tolerance",
			current:  10.000001,
			previous: 10.0,
			want:     true,
		},
		{
			name:     "nested maps",
			current:  map[string]any{"site": map[string]any{"city": "Roma", "cap": "00100"}},
			previous: map[string]any{"site": map[string]any{"cap": "00100", "city": "Roma"}},
			want:     false,
		},
		{
			name:     "key presence counts",
			current:  map[string]any{"a": 1},
			previous: map[string]any{"a": 1, "b": nil},
			want:     true,
		},
		{
			name:     "equal decimals",
			current:  decimal.RequireFromString("10.50"),
			previous: decimal.RequireFromString("10.50"),
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Changed(tt.current, tt.previous))
		})
	}
}

func TestChangedUnserializable(t *testing.T) {
	assert.True(t, Changed(make(chan int), 1))
}

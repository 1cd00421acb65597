package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want *float64
	}{
		{"plain", "$5.99", f(5.99)},
		{"no symbol", "12.49", f(12.49)},
		{"range takes lower bound", "$5.99 - $9.99", f(5.99)},
		{"range without symbols", "5.99 - 9.99", f(5.99)},
		{"trailing qualifier", "$12.49 /each", f(12.49)},
		{"whitespace", "  $3.00  ", f(3.00)},
		{"empty", "", nil},
		{"garbage", "see price in cart", nil},
		{"symbol only", "$", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePrice(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			if assert.NotNil(t, got) {
				assert.InDelta(t, *tt.want, *got, 0.0001)
			}
		})
	}
}

func TestParsePriceIdempotent(t *testing.T) {
	for _, in := range []string{"$5.99", "$21.49", "$5.99 - $9.99", "$0.99 /each"} {
		first := ParsePrice(in)
		if first == nil {
			t.Fatalf("ParsePrice(%q) = nil", in)
		}
		second := ParsePrice(FormatPrice(first))
		if second == nil || *second != *first {
			t.Errorf("reparse of %q: got %v, want %v", in, second, *first)
		}
	}
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "$5.99", FormatPrice(f(5.99)))
	assert.Equal(t, "$21.50", FormatPrice(f(21.5)))
	assert.Equal(t, "Price not found", FormatPrice(nil))
}

func f(v float64) *float64 { return &v }

package resolver

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePrice extracts a numeric price from display text like "$5.99",
// "$5.99 - $9.99" or "$12.49 /each". Currency symbols are stripped, trailing
// qualifiers dropped and a low-high range collapses to its lower bound.
// Returns nil when no price can be parsed.
func ParsePrice(text string) *float64 {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.TrimSpace(s)

	// A range like "5.99 - 9.99" always yields the lower bound.
	if idx := strings.Index(s, "-"); idx >= 0 {
		s = s[:idx]
	}
	// Drop trailing qualifiers ("/each", "per lb").
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[0]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "/each")

	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &val
}

// FormatPrice renders a price for chat display.
func FormatPrice(price *float64) string {
	if price == nil {
		return "Price not found"
	}
	return fmt.Sprintf("$%.2f", *price)
}

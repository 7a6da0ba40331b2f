package shop

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCents converts a provider decimal string ("10.00") to minor units.
// Prices never travel as floats.
func ParseCents(s string) (int, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.Atoi(whole)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	cents := w * 100
	switch len(frac) {
	case 0:
	case 1:
		f, err := strconv.Atoi(frac)
		if err != nil {
			return 0, fmt.Errorf("parse amount %q: %w", s, err)
		}
		cents += f * 10
	case 2:
		f, err := strconv.Atoi(frac)
		if err != nil {
			return 0, fmt.Errorf("parse amount %q: %w", s, err)
		}
		cents += f
	default:
		return 0, fmt.Errorf("parse amount %q: too many decimal places", s)
	}
	if neg {
		cents = -cents
	}
	return cents, nil
}

// FormatCents renders minor units as the two-decimal string providers expect.
func FormatCents(cents int) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

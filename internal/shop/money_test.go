package shop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCents(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"10.00", 1000},
		{"0.50", 50},
		{"0.05", 5},
		{"7", 700},
		{"7.5", 750},
		{" 12.34 ", 1234},
		{"-3.25", -325},
		{"0", 0},
	}
	for _, tc := range cases {
		got, err := ParseCents(tc.in)
		assert.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestParseCentsRejectsGarbage(t *testing.T) {
	for _, in := range []string{"abc", "1.234", "1.2.3", "10,00"} {
		_, err := ParseCents(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "10.00", FormatCents(1000))
	assert.Equal(t, "0.05", FormatCents(5))
	assert.Equal(t, "0.00", FormatCents(0))
	assert.Equal(t, "-3.25", FormatCents(-325))
	assert.Equal(t, "123.45", FormatCents(12345))
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, cents := range []int{0, 1, 99, 100, 101, 12345, -50} {
		got, err := ParseCents(FormatCents(cents))
		assert.NoError(t, err)
		assert.Equal(t, cents, got)
	}
}

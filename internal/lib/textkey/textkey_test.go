package textkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "only spaces", in: "   \t ", want: ""},
		{name: "plain lower", in: "paris", want: "paris"},
		{name: "accents removed", in: "São Paulo", want: "sao paulo"},
		{name: "upper and double spaces", in: "SAO  PAULO", want: "sao paulo"},
		{name: "en dash", in: "New York – USA", want: "new york - usa"},
		{name: "em dash", in: "New York — USA", want: "new york - usa"},
		{name: "minus sign", in: "New York − USA", want: "new york - usa"},
		{name: "hyphen without spaces", in: "New York-USA", want: "new york - usa"},
		{name: "hyphen with many spaces", in: "New York   -    USA", want: "new york - usa"},
		{name: "non breaking spaces", in: "Roma\u00a0\u2013\u00a0It\u00e1lia", want: "roma - italia"},
		{name: "trim", in: "  Gastronomia  ", want: "gastronomia"},
		{name: "cedilla and tilde", in: "Açaí Côte", want: "acai cote"},
		{name: "decomposed input", in: "Sa\u0303o Paulo", want: "sao paulo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"São Paulo",
		"New York – USA",
		"  -Lisboa--Portugal- ",
		"Ελλάδα — Αθήνα",
		"İstanbul - Türkiye",
		"a  - b",
		"City Guide",
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalize_CollapsesVariants(t *testing.T) {
	assert.Equal(t, Normalize("São Paulo"), Normalize("Sao Paulo"))
	assert.Equal(t, Normalize("Sao Paulo"), Normalize("SAO  PAULO"))

	assert.Equal(t, Normalize("New York – USA"), Normalize("New York - USA"))
	assert.Equal(t, Normalize("New York - USA"), Normalize("New York — USA"))
}

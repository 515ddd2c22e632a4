package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/adsync/internal/model"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "Brand Campaign", "brand campaign"},
		{"trim", "  Brand Campaign  ", "brand campaign"},
		{"collapse whitespace", "Brand   Campaign \t Q3", "brand campaign q3"},
		{"fullwidth folds to ascii", "Ｂｒａｎｄ　Ｃａｍｐａｉｇｎ", "brand campaign"},
		{"empty", "", ""},
		{"already normal", "brand campaign", "brand campaign"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.in))
		})
	}
}

func TestNormalizeName_Idempotent(t *testing.T) {
	inputs := []string{"Brand  Campaign", "ＥＸＡＣＴ match", "  x  y  "}
	for _, in := range inputs {
		once := NormalizeName(in)
		assert.Equal(t, once, NormalizeName(once))
	}
}

func TestNormalizeMatchType(t *testing.T) {
	tests := []struct {
		in   string
		want model.MatchType
	}{
		{"exact", model.MatchExact},
		{"EXACT", model.MatchExact},
		{" Phrase ", model.MatchPhrase},
		{"broad", model.MatchBroad},
		{"auto", model.MatchAuto},
		{"-", model.MatchAuto},
		{"", model.MatchUnknown},
		{"targeting_expression_predefined", model.MatchUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeMatchType(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeExpression(t *testing.T) {
	categories := map[string]string{
		"home & kitchen": "cat-801",
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"keyword passes through", "Running Shoes", "running shoes"},
		{"known category name becomes ID", `category="Home & Kitchen"`, `category="cat-801"`},
		{"category with spacing", `category = "Home & Kitchen"`, `category="cat-801"`},
		{"unknown category left as-is", `category="Garden"`, `category="garden"`},
		{"already an ID left as-is", `category="cat-801"`, `category="cat-801"`},
		{"wildcard", "*", "*"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeExpression(tt.in, categories))
		})
	}
}

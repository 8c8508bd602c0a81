package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveType(t *testing.T) {
	tests := []struct {
		raw  string
		want PropertyType
	}{
		{"null", TypeNull},
		{"NULL", TypeNull},
		{"Null", TypeNull},
		{"", TypeNull},
		{"TRUE", TypeBoolean},
		{"false", TypeBoolean},
		{"tRuE", TypeBoolean},
		{"42", TypeInteger},
		{"-42", TypeInteger},
		{"0", TypeInteger},
		{"007", TypeInteger},
		{"9223372036854775807", TypeInteger},
		{"-9223372036854775808", TypeInteger},
		{"3.14", TypeDouble},
		{"-0.5", TypeDouble},
		{".5", TypeDouble},
		{"1e10", TypeDouble},
		{"1E-3", TypeDouble},
		{"2.5e+3", TypeDouble},
		{"9223372036854775808", TypeDouble},
		{"-9223372036854775809", TypeDouble},
		{"+42", TypeDouble},
		{"+1.5", TypeDouble},
		{"+1e3", TypeDouble},
		{"+", TypeString},
		{"+-1", TypeString},
		{"1e400", TypeString},
		{"Inf", TypeString},
		{"NaN", TypeString},
		{"0x1p-2", TypeString},
		{"1_000", TypeString},
		{"-", TypeString},
		{"1.2.3", TypeString},
		{" 42", TypeString},
		{"hello", TypeString},
		{"nullable", TypeString},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveType(tt.raw))
		})
	}
}

func TestResolveTypeDeterministic(t *testing.T) {
	inputs := []string{"", "null", "true", "42", "3.14", "9223372036854775808", "hello", "日本語"}
	for _, in := range inputs {
		assert.Equal(t, ResolveType(in), ResolveType(in), "input %q", in)
	}
}

func TestPropertyTypeString(t *testing.T) {
	assert.Equal(t, "null", TypeNull.String())
	assert.Equal(t, "boolean", TypeBoolean.String())
	assert.Equal(t, "integer", TypeInteger.String())
	assert.Equal(t, "double", TypeDouble.String())
	assert.Equal(t, "string", TypeString.String())
	assert.Equal(t, "unknown", PropertyType(99).String())
}

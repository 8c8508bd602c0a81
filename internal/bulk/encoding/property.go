package encoding

import (
	"strconv"
	"strings"
)

// PropertyType is the semantic type of a property value
type PropertyType uint8

const (
	TypeNull PropertyType = iota
	TypeBoolean
	TypeInteger
	TypeDouble
	TypeString
)

// String returns the lower-case name of the type
func (t PropertyType) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeInteger:
		return "integer"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	default:
		return "unknown"
	}
}

// MarshalText lets PropertyType appear by name in JSON output
func (t PropertyType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ResolveType classifies a raw string. It never fails: anything that is not
// null, a boolean or a plain decimal number is a String.
func ResolveType(raw string) PropertyType {
	if raw == "" || strings.EqualFold(raw, "null") {
		return TypeNull
	}
	if strings.EqualFold(raw, "true") || strings.EqualFold(raw, "false") {
		return TypeBoolean
	}
	if !isDecimalNumeral(raw) {
		return TypeString
	}
	if isIntegerNumeral(raw) {
		if _, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return TypeInteger
		}
		// out of int64 range, try it as a double
	}
	if _, err := strconv.ParseFloat(raw, 64); err == nil {
		return TypeDouble
	}
	return TypeString
}

// isDecimalNumeral reports whether s only uses the characters of a decimal
// numeral with optional sign, fraction and exponent. It rules out the inf, nan,
// hex and underscore forms strconv would otherwise accept.
func isDecimalNumeral(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c == '-', c == '+', c == '.', c == 'e', c == 'E':
		default:
			return false
		}
	}
	return true
}

// isIntegerNumeral rejects fractions, exponents and a leading '+', which
// leaves those forms to the double rule
func isIntegerNumeral(s string) bool {
	return !strings.ContainsAny(s, ".eE+")
}

package encoding

import (
	"strconv"
	"strings"
)

// Native converts the value to the Go type matching its PropertyType:
// nil, bool, int64, float64 or string. Raw text that does not parse as its
// type is returned unchanged as a string.
func (v PropertyValue) Native() any {
	switch v.typ {
	case TypeNull:
		return nil
	case TypeBoolean:
		switch {
		case strings.EqualFold(v.raw, "true"):
			return true
		case strings.EqualFold(v.raw, "false"):
			return false
		}
	case TypeInteger:
		if n, err := strconv.ParseInt(v.raw, 10, 64); err == nil {
			return n
		}
	case TypeDouble:
		if f, err := strconv.ParseFloat(v.raw, 64); err == nil {
			return f
		}
	}
	return v.raw
}

// ProjectJSON returns props as a map of typed values suitable for JSON
// encoding or graph driver parameters.
func ProjectJSON(props *PropertyMap) map[string]any {
	out := make(map[string]any, props.Len())
	for _, k := range props.Keys() {
		out[k] = props.values[k].Native()
	}
	return out
}

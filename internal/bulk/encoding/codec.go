package encoding

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Tag bytes written ahead of each property payload. Changing any of these is
// a breaking format change.
const (
	TagNull    byte = 0
	TagBoolean byte = 1
	TagInteger byte = 2
	TagDouble  byte = 3
	TagString  byte = 4
)

const (
	wordSize   = 8
	lengthSize = 4
)

// Tag returns the wire tag for t
func (t PropertyType) Tag() byte {
	switch t {
	case TypeBoolean:
		return TagBoolean
	case TypeInteger:
		return TagInteger
	case TypeDouble:
		return TagDouble
	case TypeString:
		return TagString
	default:
		return TagNull
	}
}

// EncodeProperty serializes one typed value as tag byte plus payload
func EncodeProperty(t PropertyType, raw string) ([]byte, error) {
	return AppendProperty(nil, t, raw)
}

// AppendProperty appends the encoding of (t, raw) to dst
func AppendProperty(dst []byte, t PropertyType, raw string) ([]byte, error) {
	switch t {
	case TypeNull:
		return append(dst, TagNull), nil

	case TypeBoolean:
		var b byte
		switch {
		case strings.EqualFold(raw, "true"):
			b = 1
		case strings.EqualFold(raw, "false"):
			b = 0
		default:
			return dst, fmt.Errorf("boolean %q: %w", raw, ErrTypeMismatch)
		}
		return append(dst, TagBoolean, b), nil

	case TypeInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return dst, fmt.Errorf("integer %q: %w", raw, ErrTypeMismatch)
		}
		dst = append(dst, TagInteger)
		return binary.LittleEndian.AppendUint64(dst, uint64(n)), nil

	case TypeDouble:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return dst, fmt.Errorf("double %q: %w", raw, ErrTypeMismatch)
		}
		dst = append(dst, TagDouble)
		return binary.LittleEndian.AppendUint64(dst, math.Float64bits(f)), nil

	case TypeString:
		if uint64(len(raw)) > math.MaxUint32 {
			return dst, fmt.Errorf("string of %d bytes exceeds length prefix", len(raw))
		}
		dst = append(dst, TagString)
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(raw)))
		return append(dst, raw...), nil

	default:
		return dst, fmt.Errorf("unknown property type %d: %w", t, ErrTypeMismatch)
	}
}

// DecodeProperty reads one encoded property from the front of b and returns it
// together with the number of bytes consumed. The raw text of the result is
// canonical: "null", "true"/"false", base-10 integers and the shortest
// round-tripping form of doubles.
func DecodeProperty(b []byte) (PropertyValue, int, error) {
	if len(b) == 0 {
		return PropertyValue{}, 0, fmt.Errorf("reading tag: %w", ErrMalformedRecord)
	}

	payload := b[1:]
	switch b[0] {
	case TagNull:
		return PropertyValue{raw: "null", typ: TypeNull}, 1, nil

	case TagBoolean:
		if len(payload) < 1 {
			return PropertyValue{}, 0, fmt.Errorf("reading boolean: %w", ErrMalformedRecord)
		}
		switch payload[0] {
		case 0:
			return PropertyValue{raw: "false", typ: TypeBoolean}, 2, nil
		case 1:
			return PropertyValue{raw: "true", typ: TypeBoolean}, 2, nil
		default:
			return PropertyValue{}, 0, fmt.Errorf("boolean byte 0x%02x: %w", payload[0], ErrMalformedRecord)
		}

	case TagInteger:
		if len(payload) < wordSize {
			return PropertyValue{}, 0, fmt.Errorf("reading integer: %w", ErrMalformedRecord)
		}
		n := int64(binary.LittleEndian.Uint64(payload))
		return PropertyValue{raw: strconv.FormatInt(n, 10), typ: TypeInteger}, 1 + wordSize, nil

	case TagDouble:
		if len(payload) < wordSize {
			return PropertyValue{}, 0, fmt.Errorf("reading double: %w", ErrMalformedRecord)
		}
		f := math.Float64frombits(binary.LittleEndian.Uint64(payload))
		return PropertyValue{raw: strconv.FormatFloat(f, 'g', -1, 64), typ: TypeDouble}, 1 + wordSize, nil

	case TagString:
		if len(payload) < lengthSize {
			return PropertyValue{}, 0, fmt.Errorf("reading string length: %w", ErrMalformedRecord)
		}
		n := binary.LittleEndian.Uint32(payload)
		payload = payload[lengthSize:]
		if uint64(len(payload)) < uint64(n) {
			return PropertyValue{}, 0, fmt.Errorf("reading string of %d bytes: %w", n, ErrMalformedRecord)
		}
		return PropertyValue{raw: string(payload[:n]), typ: TypeString}, 1 + lengthSize + int(n), nil

	default:
		return PropertyValue{}, 0, fmt.Errorf("unknown tag %d: %w", b[0], ErrMalformedRecord)
	}
}

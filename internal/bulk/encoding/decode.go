package encoding

import (
	"encoding/binary"
	"fmt"
)

// DecodeProperties reads a count-prefixed property blob that must span all of b
func DecodeProperties(b []byte) ([]PropertyValue, error) {
	if len(b) < lengthSize {
		return nil, fmt.Errorf("reading property count: %w", ErrMalformedRecord)
	}
	count := binary.LittleEndian.Uint32(b)
	b = b[lengthSize:]

	// every property takes at least its tag byte
	if uint64(count) > uint64(len(b)) {
		return nil, fmt.Errorf("%d properties in %d bytes: %w", count, len(b), ErrMalformedRecord)
	}

	values := make([]PropertyValue, 0, count)
	for i := uint32(0); i < count; i++ {
		v, n, err := DecodeProperty(b)
		if err != nil {
			return nil, fmt.Errorf("property %d: %w", i, err)
		}
		values = append(values, v)
		b = b[n:]
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("%d trailing bytes: %w", len(b), ErrMalformedRecord)
	}
	return values, nil
}

// DecodeNodeRecord is the inverse of encoding a Node
func DecodeNodeRecord(rec BinaryRecord) ([]PropertyValue, error) {
	return DecodeProperties(rec)
}

// DecodeEdgeRecord is the inverse of encoding an Edge
func DecodeEdgeRecord(rec BinaryRecord) (source, target int64, values []PropertyValue, err error) {
	if len(rec) < 2*OrdinalSize {
		return 0, 0, nil, fmt.Errorf("reading ordinals: %w", ErrMalformedRecord)
	}
	source = int64(binary.LittleEndian.Uint64(rec))
	target = int64(binary.LittleEndian.Uint64(rec[OrdinalSize:]))

	values, err = DecodeProperties(rec[2*OrdinalSize:])
	if err != nil {
		return 0, 0, nil, err
	}
	return source, target, values, nil
}

package encoding

import "errors"

var (
	// ErrMissingIdentifier is returned for a node whose property map yields no identifier
	ErrMissingIdentifier = errors.New("missing node identifier")

	// ErrUnresolvedReference is returned when an edge points at a node that has
	// not been registered in the session
	ErrUnresolvedReference = errors.New("unresolved node reference")

	// ErrTypeMismatch is returned when a value's raw text cannot be encoded as
	// its declared type. Only hand-built values can trigger it.
	ErrTypeMismatch = errors.New("property value does not match its type")

	// ErrMalformedRecord is returned when decoding truncated or corrupt bytes
	ErrMalformedRecord = errors.New("malformed record")
)

// Package encoding converts graph entities into the binary records consumed by
// a graph engine's bulk-import channel.
//
// Property values arrive as untyped strings. ResolveType classifies each one as
// Null, Boolean, Integer, Double or String and EncodeProperty writes it as a tag
// byte followed by a type-specific payload:
//
//	Null     0  (no payload)
//	Boolean  1  1 byte, 0x00 or 0x01
//	Integer  2  8 bytes, little-endian two's complement
//	Double   3  8 bytes, IEEE-754 binary64, little-endian
//	String   4  4-byte little-endian length, then UTF-8 bytes
//
// A property blob is a 4-byte little-endian count followed by the encoded
// properties in insertion order. Names are not written; the order is the
// implicit schema the importer relies on.
//
// Node records are a bare property blob. Edge records prefix the blob with the
// source and target ordinals as 8-byte little-endian signed integers. Ordinals
// come from an OrdinalResolver, normally an import session.
//
// Encoding is pure: the same input always yields the same bytes and no state is
// kept between records, so independent records may be encoded concurrently.
package encoding

package encoding

import (
	"encoding/binary"
	"fmt"
	"math"
)

// IDKey is the reserved property holding a node's identifier
const IDKey = "id"

// OrdinalSize is the width of each ordinal at the head of an edge record
const OrdinalSize = 8

// BinaryRecord is one encoded node or edge as handed to the bulk-import channel
type BinaryRecord []byte

// EntityKind tags the two record variants
type EntityKind uint8

const (
	KindNode EntityKind = iota + 1
	KindEdge
)

// String returns "node" or "edge"
func (k EntityKind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindEdge:
		return "edge"
	default:
		return "unknown"
	}
}

// MarshalText lets EntityKind appear by name in JSON output
func (k EntityKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Entity is implemented by *Node and *Edge only
type Entity interface {
	Kind() EntityKind
	Properties() *PropertyMap

	// BinaryFormat encodes the entity as a bulk-import record
	BinaryFormat() (BinaryRecord, error)

	// Size is the length of BinaryFormat's output. It re-encodes every time.
	Size() (int, error)

	entity()
}

// OrdinalResolver maps a node identifier to the ordinal it was registered with
type OrdinalResolver interface {
	ResolveOrdinal(id string) (int64, error)
}

// Node is a graph vertex ready for encoding
type Node struct {
	id    string
	props *PropertyMap
}

// NewNode resolves the node identifier from props: the value under "id", or
// the first inserted value when there is no "id" key.
func NewNode(props *PropertyMap) (*Node, error) {
	if props.Len() == 0 {
		return nil, ErrMissingIdentifier
	}

	v, ok := props.Get(IDKey)
	if !ok {
		v = props.values[props.keys[0]]
	}
	if v.raw == "" {
		return nil, fmt.Errorf("empty identifier: %w", ErrMissingIdentifier)
	}

	return &Node{id: v.raw, props: props}, nil
}

// ID returns the identifier resolved at construction
func (n *Node) ID() string { return n.id }

func (n *Node) Kind() EntityKind                    { return KindNode }
func (n *Node) Properties() *PropertyMap            { return n.props }
func (n *Node) BinaryFormat() (BinaryRecord, error) { return Encode(n) }
func (n *Node) Size() (int, error)                  { return Size(n) }
func (n *Node) entity()                             {}

// Edge is a directed relationship between two registered nodes
type Edge struct {
	source        string
	target        string
	sourceOrdinal int64
	targetOrdinal int64
	props         *PropertyMap
}

// NewEdge resolves both endpoints through r. An endpoint that r does not know
// fails with ErrUnresolvedReference.
func NewEdge(source, target string, props *PropertyMap, r OrdinalResolver) (*Edge, error) {
	src, err := r.ResolveOrdinal(source)
	if err != nil {
		return nil, fmt.Errorf("resolving source %q: %w", source, err)
	}
	dst, err := r.ResolveOrdinal(target)
	if err != nil {
		return nil, fmt.Errorf("resolving target %q: %w", target, err)
	}
	if props == nil {
		props = NewPropertyMap()
	}

	return &Edge{
		source:        source,
		target:        target,
		sourceOrdinal: src,
		targetOrdinal: dst,
		props:         props,
	}, nil
}

// Source returns the source node identifier
func (e *Edge) Source() string { return e.source }

// Target returns the target node identifier
func (e *Edge) Target() string { return e.target }

// Ordinals returns the resolved source and target ordinals
func (e *Edge) Ordinals() (source, target int64) {
	return e.sourceOrdinal, e.targetOrdinal
}

func (e *Edge) Kind() EntityKind                    { return KindEdge }
func (e *Edge) Properties() *PropertyMap            { return e.props }
func (e *Edge) BinaryFormat() (BinaryRecord, error) { return Encode(e) }
func (e *Edge) Size() (int, error)                  { return Size(e) }
func (e *Edge) entity()                             {}

// Encode produces the bulk-import record for e
func Encode(e Entity) (BinaryRecord, error) {
	switch v := e.(type) {
	case *Node:
		return appendProperties(nil, v.props)
	case *Edge:
		buf := make([]byte, 0, 2*OrdinalSize+lengthSize)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(v.sourceOrdinal))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(v.targetOrdinal))
		return appendProperties(buf, v.props)
	default:
		return nil, fmt.Errorf("unsupported entity %T", e)
	}
}

// Size returns the encoded length of e by encoding it
func Size(e Entity) (int, error) {
	rec, err := Encode(e)
	if err != nil {
		return 0, err
	}
	return len(rec), nil
}

// EncodeProperties writes the count-prefixed property blob for props
func EncodeProperties(props *PropertyMap) ([]byte, error) {
	return appendProperties(nil, props)
}

func appendProperties(dst []byte, props *PropertyMap) ([]byte, error) {
	n := props.Len()
	if uint64(n) > math.MaxUint32 {
		return nil, fmt.Errorf("%d properties exceed count prefix", n)
	}
	dst = binary.LittleEndian.AppendUint32(dst, uint32(n))

	var err error
	for i := 0; i < n; i++ {
		name := props.keys[i]
		v := props.values[name]
		dst, err = AppendProperty(dst, v.typ, v.raw)
		if err != nil {
			return nil, fmt.Errorf("encoding property %q: %w", name, err)
		}
	}
	return dst, nil
}

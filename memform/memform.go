// Package memform provides an in-memory serialized representation for
// package objform: a tree of [Node] values that can be inspected
// directly, compared in tests, and written to a compact text syntax.
package memform

import (
	"fmt"
	"time"

	"github.com/objform/objform"
)

// Kind discriminates the shapes a [Node] can take.
type Kind int

const (
	KindNull Kind = iota
	KindScalar
	KindList
	KindMap
	KindRecord
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindRecord:
		return "record"
	case KindRef:
		return "ref"
	}
	return "invalid"
}

// A Node is one serialized value. Exactly one of the payload fields is
// meaningful, selected by Kind. Nodes are built by the engine through
// [Format]; tests and tools may also construct them directly.
type Node struct {
	Kind    Kind
	Scalar  any                        // KindScalar
	Elems   []*Node                    // KindList
	Entries []objform.MapEntry[*Node] // KindMap
	Members []objform.Member[*Node]   // KindRecord

	Tag          string // attached type tag, when HasTag
	TagQualified bool
	HasTag       bool

	ID  int // nonzero when the node is marked referable
	Ref int // referenced id, KindRef
}

// Format implements [objform.Format] over *Node.
type Format struct{}

// NewEngine returns an engine producing memform trees.
func NewEngine(opts ...objform.Option) *objform.Engine[*Node] {
	return objform.New[*Node](Format{}, opts...)
}

func (Format) Null() *Node         { return &Node{Kind: KindNull} }
func (Format) IsNull(n *Node) bool { return n.Kind == KindNull }

func (Format) Scalar(v any) (*Node, error) {
	switch v.(type) {
	case bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		string, []byte, time.Time:
		return &Node{Kind: KindScalar, Scalar: v}, nil
	}
	return nil, fmt.Errorf("memform: %T is not a scalar", v)
}

func (Format) ScalarValue(n *Node) (any, bool) {
	if n.Kind != KindScalar {
		return nil, false
	}
	return n.Scalar, true
}

func (Format) List(elems []*Node) *Node { return &Node{Kind: KindList, Elems: elems} }

func (Format) Elems(n *Node) ([]*Node, bool) {
	if n.Kind != KindList {
		return nil, false
	}
	return n.Elems, true
}

func (Format) Map(entries []objform.MapEntry[*Node]) *Node {
	return &Node{Kind: KindMap, Entries: entries}
}

func (Format) Entries(n *Node) ([]objform.MapEntry[*Node], bool) {
	if n.Kind != KindMap {
		return nil, false
	}
	return n.Entries, true
}

func (Format) Record(members []objform.Member[*Node]) *Node {
	return &Node{Kind: KindRecord, Members: members}
}

func (Format) Members(n *Node) ([]objform.Member[*Node], bool) {
	if n.Kind != KindRecord {
		return nil, false
	}
	return n.Members, true
}

func (Format) SetTag(n *Node, tag string, qualified bool) {
	n.Tag, n.TagQualified, n.HasTag = tag, qualified, true
}

func (Format) Tag(n *Node) (string, bool, bool) {
	return n.Tag, n.TagQualified, n.HasTag
}

func (Format) Ref(id int) *Node { return &Node{Kind: KindRef, Ref: id} }

func (Format) RefID(n *Node) (int, bool) {
	if n.Kind != KindRef {
		return 0, false
	}
	return n.Ref, true
}

func (Format) MarkID(n *Node, id int) { n.ID = id }

func (Format) MarkedID(n *Node) (int, bool) { return n.ID, n.ID != 0 }

// Referable reports whether n can carry a reference mark. Null and
// reference nodes cannot; everything else can.
func (Format) Referable(n *Node) bool {
	return n.Kind != KindNull && n.Kind != KindRef
}

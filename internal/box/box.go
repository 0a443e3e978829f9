// Package box implements the intermediate document tree shared by the
// encoder, the decoder, the parser and the formatter.
//
// A Tree is an arena of nodes. Nodes refer to each other by Ref, a stable
// index into the arena, so a container can insert a child slot into its
// parent before the child's content is known and keep writing to that slot
// afterwards. Once the traversal that built a tree returns, the tree is
// frozen and further mutation fails with ErrFrozen.
package box

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the variant of a node.
type Kind uint8

const (
	// Null is an explicit null marker, distinct from an absent key.
	Null Kind = iota
	// Scalar is leaf text. It is the only kind usable as an attribute value.
	Scalar
	// Keyed holds ordered child elements and a separate list of attributes.
	Keyed
	// Unkeyed is an ordered sequence of nodes.
	Unkeyed
	// Choice holds exactly one active key/node pair.
	Choice
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Scalar:
		return "scalar"
	case Keyed:
		return "keyed"
	case Unkeyed:
		return "unkeyed"
	case Choice:
		return "choice"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Ref addresses a node within a Tree.
type Ref int32

// NoRef is the zero reference. It never addresses a node.
const NoRef Ref = -1

// IntrinsicKey is the element key of content merged into its parent,
// e.g. the text of an element that also has attributes.
const IntrinsicKey = ""

// Pair is a keyed child of a node.
type Pair struct {
	Key string
	Ref Ref
}

// Attr is an attribute or namespace declaration of a keyed node.
type Attr struct {
	Key   string
	Value string
}

// Node is a single arena slot.
type Node struct {
	Kind Kind
	// Text is the content of a Scalar node.
	Text string
	// Elements holds the children of Keyed and Unkeyed nodes and the single
	// case of a Choice node. Items of an Unkeyed node have an empty key.
	Elements []Pair
	// Attrs holds the attributes of a Keyed node in insertion order.
	Attrs []Attr
	// Namespaces holds xmlns declarations read from a document.
	Namespaces []Attr
	// Space is the namespace URI the element name of a parsed node is
	// bound to, through its own declarations or those of an ancestor.
	Space string
	// Offset is the byte offset of the node's start tag in the source
	// document, or -1 for nodes that were not parsed.
	Offset int
}

var (
	// ErrFrozen is returned when a frozen tree is mutated.
	ErrFrozen = errors.New("box: tree is frozen")
	// ErrChoiceSet is returned when a second case is stored in a Choice node.
	ErrChoiceSet = errors.New("box: choice already holds a case")
)

// KindError reports an operation applied to a node of the wrong kind.
type KindError struct {
	Op   string
	Want Kind
	Got  Kind
}

func (e *KindError) Error() string {
	return fmt.Sprintf("box: %s on %s node, want %s", e.Op, e.Got, e.Want)
}

// Tree is an arena of nodes.
type Tree struct {
	nodes  []Node
	frozen bool
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{}
}

// Len returns the number of nodes allocated in the arena.
func (t *Tree) Len() int { return len(t.nodes) }

// Freeze marks the tree immutable.
func (t *Tree) Freeze() { t.frozen = true }

// Frozen reports whether the tree has been frozen.
func (t *Tree) Frozen() bool { return t.frozen }

// Valid reports whether r addresses a node of t.
func (t *Tree) Valid(r Ref) bool {
	return r >= 0 && int(r) < len(t.nodes)
}

// At returns a copy of the node addressed by r.
// The returned slices alias the arena and must not be modified.
func (t *Tree) At(r Ref) Node {
	return t.nodes[r]
}

// Kind returns the kind of the node addressed by r.
func (t *Tree) Kind(r Ref) Kind {
	return t.nodes[r].Kind
}

func (t *Tree) alloc(n Node) Ref {
	n.Offset = -1
	t.nodes = append(t.nodes, n)
	return Ref(len(t.nodes) - 1)
}

// NewNull allocates a Null node.
func (t *Tree) NewNull() Ref { return t.alloc(Node{Kind: Null}) }

// NewScalar allocates a Scalar node holding text.
func (t *Tree) NewScalar(text string) Ref { return t.alloc(Node{Kind: Scalar, Text: text}) }

// NewKeyed allocates an empty Keyed node.
func (t *Tree) NewKeyed() Ref { return t.alloc(Node{Kind: Keyed}) }

// NewUnkeyed allocates an empty Unkeyed node.
func (t *Tree) NewUnkeyed() Ref { return t.alloc(Node{Kind: Unkeyed}) }

// NewChoice allocates an empty Choice node.
func (t *Tree) NewChoice() Ref { return t.alloc(Node{Kind: Choice}) }

// NewList allocates an Unkeyed node holding items. Like the other
// allocators it succeeds on a frozen tree, since no existing node changes.
func (t *Tree) NewList(items []Ref) Ref {
	elems := make([]Pair, len(items))
	for i, r := range items {
		elems[i] = Pair{Ref: r}
	}
	return t.alloc(Node{Kind: Unkeyed, Elements: elems})
}

// SetOffset records the source offset of a parsed node.
func (t *Tree) SetOffset(r Ref, offset int) {
	t.nodes[r].Offset = offset
}

// SetSpace records the namespace URI of a parsed node's element name.
func (t *Tree) SetSpace(r Ref, uri string) {
	t.nodes[r].Space = uri
}

func (t *Tree) mutable(op string, r Ref, want Kind) (*Node, error) {
	if t.frozen {
		return nil, ErrFrozen
	}
	n := &t.nodes[r]
	if n.Kind != want {
		return nil, &KindError{Op: op, Want: want, Got: n.Kind}
	}
	return n, nil
}

// AppendElement appends child under key to the keyed node parent.
// Element order is preserved.
func (t *Tree) AppendElement(parent Ref, key string, child Ref) error {
	n, err := t.mutable("append element", parent, Keyed)
	if err != nil {
		return err
	}
	n.Elements = append(n.Elements, Pair{Key: key, Ref: child})
	return nil
}

// AppendAttr appends an attribute to the keyed node parent. Attribute keys
// live in a namespace separate from element keys.
func (t *Tree) AppendAttr(parent Ref, key, value string) error {
	n, err := t.mutable("append attribute", parent, Keyed)
	if err != nil {
		return err
	}
	n.Attrs = append(n.Attrs, Attr{Key: key, Value: value})
	return nil
}

// AddNamespace records an xmlns declaration on the keyed node parent.
// An empty prefix declares the default namespace.
func (t *Tree) AddNamespace(parent Ref, prefix, uri string) error {
	n, err := t.mutable("add namespace", parent, Keyed)
	if err != nil {
		return err
	}
	n.Namespaces = append(n.Namespaces, Attr{Key: prefix, Value: uri})
	return nil
}

// AppendItem appends child to the unkeyed node parent.
func (t *Tree) AppendItem(parent Ref, child Ref) error {
	n, err := t.mutable("append item", parent, Unkeyed)
	if err != nil {
		return err
	}
	n.Elements = append(n.Elements, Pair{Ref: child})
	return nil
}

// SetChoice stores the single case of the choice node parent.
func (t *Tree) SetChoice(parent Ref, key string, child Ref) error {
	n, err := t.mutable("set choice", parent, Choice)
	if err != nil {
		return err
	}
	if len(n.Elements) > 0 {
		return ErrChoiceSet
	}
	n.Elements = []Pair{{Key: key, Ref: child}}
	return nil
}

// Merge moves the attributes and elements of the keyed node src into the
// keyed node dst. src is left empty.
func (t *Tree) Merge(dst, src Ref) error {
	d, err := t.mutable("merge", dst, Keyed)
	if err != nil {
		return err
	}
	s := t.nodes[src]
	if s.Kind != Keyed {
		return &KindError{Op: "merge", Want: Keyed, Got: s.Kind}
	}
	d.Attrs = append(d.Attrs, s.Attrs...)
	d.Elements = append(d.Elements, s.Elements...)
	d.Namespaces = append(d.Namespaces, s.Namespaces...)
	t.nodes[src].Attrs = nil
	t.nodes[src].Elements = nil
	t.nodes[src].Namespaces = nil
	return nil
}

// Text returns the textual content of r. For a Scalar it is the node text;
// for a Keyed node it is the concatenation of its intrinsic scalar
// children. The boolean is false for any other shape.
func (t *Tree) Text(r Ref) (string, bool) {
	n := t.nodes[r]
	switch n.Kind {
	case Scalar:
		return n.Text, true
	case Keyed:
		var sb strings.Builder
		for _, e := range n.Elements {
			if e.Key != IntrinsicKey {
				if t.nodes[e.Ref].Kind == Null {
					continue
				}
				return "", false
			}
			c := t.nodes[e.Ref]
			if c.Kind == Scalar {
				sb.WriteString(c.Text)
			}
		}
		return sb.String(), true
	}
	return "", false
}

// Attr returns the value of the first attribute of r named key.
func (t *Tree) Attr(r Ref, key string) (string, bool) {
	for _, a := range t.nodes[r].Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

package xmlbox

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/KimNorgaard/go-xmlbox/internal/box"
)

// A ValueEncoder receives the encoding of a single value. A type that
// implements Marshaler stores its content through exactly one of Keyed,
// Unkeyed, Choice, Encode or EncodeNull. Requesting a container of a
// different kind than the one already in use fails the encoding with
// ErrInvalidContainer; the returned container is detached.
type ValueEncoder struct {
	s    *encodeState
	path []string
	ref  box.Ref
	// attach links the encoded value into its parent, if it has one.
	attach func(box.Ref) error
}

// CodingPath returns the keys leading to the value being encoded.
func (e *ValueEncoder) CodingPath() []string { return clonePath(e.path) }

func (e *ValueEncoder) set(ref box.Ref) error {
	e.ref = ref
	if e.attach != nil {
		return e.attach(ref)
	}
	return nil
}

func (e *ValueEncoder) container(kind box.Kind) box.Ref {
	if e.ref != box.NoRef {
		got := e.s.tree.Kind(e.ref)
		if got == kind {
			return e.ref
		}
		e.s.check(e.misuse(fmt.Sprintf("%s container requested for a value already encoded as %s", kind, got)))
		return e.s.alloc(kind)
	}
	ref := e.s.alloc(kind)
	e.s.check(e.set(ref))
	return ref
}

func (s *encodeState) alloc(kind box.Kind) box.Ref {
	switch kind {
	case box.Unkeyed:
		return s.tree.NewUnkeyed()
	case box.Choice:
		return s.tree.NewChoice()
	}
	return s.tree.NewKeyed()
}

func (e *ValueEncoder) misuse(detail string) error {
	return &CodingError{Kind: ErrInvalidContainer, Path: clonePath(e.path), Detail: detail}
}

// Keyed returns a container for key/value content.
func (e *ValueEncoder) Keyed() *KeyedEncoder {
	return &KeyedEncoder{s: e.s, ref: e.container(box.Keyed), path: e.path}
}

// Unkeyed returns a container for a sequence.
func (e *ValueEncoder) Unkeyed() *UnkeyedEncoder {
	return &UnkeyedEncoder{s: e.s, ref: e.container(box.Unkeyed), path: e.path}
}

// Choice returns a container for a single case.
func (e *ValueEncoder) Choice() *ChoiceEncoder {
	return &ChoiceEncoder{s: e.s, ref: e.container(box.Choice), path: e.path}
}

// Encode stores v as the value.
func (e *ValueEncoder) Encode(v any) error {
	if e.ref != box.NoRef {
		return e.misuse("value is already encoded")
	}
	ref, err := e.s.box(e.path, reflect.ValueOf(v))
	if err != nil {
		return err
	}
	return e.set(ref)
}

// EncodeNull stores an explicit null as the value.
func (e *ValueEncoder) EncodeNull() error {
	if e.ref != box.NoRef {
		return e.misuse("value is already encoded")
	}
	return e.set(e.s.tree.NewNull())
}

// A KeyedEncoder writes key/value content: child elements, attributes and
// intrinsic content of one element.
type KeyedEncoder struct {
	s    *encodeState
	ref  box.Ref
	path []string
}

// CodingPath returns the keys leading to the container.
func (k *KeyedEncoder) CodingPath() []string { return clonePath(k.path) }

// Encode stores v under key. Its placement is decided by the resolvers in
// scope and, failing those, by the marker type of v.
func (k *KeyedEncoder) Encode(key string, v any) error {
	rv := reflect.ValueOf(v)
	var hint *field
	if rv.IsValid() {
		if u := describe(rv.Type()); u.depth > 0 {
			hint = &field{placement: u.placement, nullable: u.nullable}
			rv = peel(rv, u.depth)
		}
	}
	return k.encode(key, rv, hint)
}

// EncodeNull stores an explicit null element under key.
func (k *KeyedEncoder) EncodeNull(key string) error {
	return k.s.tree.AppendElement(k.ref, k.s.opts.keyEncoding.apply(key), k.s.tree.NewNull())
}

func (k *KeyedEncoder) encode(key string, v reflect.Value, f *field) error {
	parent := k.s.top().res
	placement := parent.placement(key)
	if placement == PlacementDefault && f != nil {
		placement = f.placement
	}
	if placement == PlacementDefault {
		placement = PlacementElement
	}
	namespace := parent.namespace(key)
	if namespace == "" && f != nil {
		namespace = f.namespace
	}
	path := clonePath(k.path, key)
	k.s.opts.trace("encode", path, placement, namespace)

	ref, err := k.s.box(path, v)
	if err != nil {
		return err
	}
	name := k.s.opts.keyEncoding.apply(key)
	nullable := f != nil && f.nullable
	switch placement {
	case PlacementAttribute:
		return k.attribute(name, ref, path)
	case PlacementIntrinsic:
		return k.intrinsic(ref, path)
	case PlacementBoth:
		if err := k.attribute(name, ref, path); err != nil {
			return err
		}
	}
	return k.element(name, ref, namespace, nullable)
}

// element appends ref as a child element. A null value is dropped unless
// the key is nullable.
func (k *KeyedEncoder) element(name string, ref box.Ref, namespace string, nullable bool) error {
	t := k.s.tree
	if t.Kind(ref) == box.Null {
		if !nullable {
			return nil
		}
		return t.AppendElement(k.ref, name, ref)
	}
	if namespace != "" {
		prefix := k.s.prefixes.prefix(namespace)
		qualified, err := k.s.qualify(ref, prefix, namespace)
		if err != nil {
			return err
		}
		ref, name = qualified, prefix+":"+name
	}
	return t.AppendElement(k.ref, name, ref)
}

func (k *KeyedEncoder) attribute(name string, ref box.Ref, path []string) error {
	t := k.s.tree
	switch t.Kind(ref) {
	case box.Null:
		return nil
	case box.Scalar:
		return t.AppendAttr(k.ref, name, t.At(ref).Text)
	case box.Keyed:
		if text, ok := intrinsicText(t, ref); ok {
			return t.AppendAttr(k.ref, name, text)
		}
	}
	return &CodingError{
		Kind:   ErrInvalidAttributeValue,
		Path:   path,
		Detail: fmt.Sprintf("cannot encode %s value as an attribute", t.Kind(ref)),
	}
}

// intrinsicText returns the text of a keyed node whose only content is
// intrinsic scalar text, as encoded for a struct with a single Intrinsic
// field. Any other keyed node, an empty one included, has no text.
func intrinsicText(t *box.Tree, ref box.Ref) (string, bool) {
	n := t.At(ref)
	if len(n.Attrs) > 0 || len(n.Namespaces) > 0 || len(n.Elements) == 0 {
		return "", false
	}
	var sb strings.Builder
	for _, e := range n.Elements {
		if e.Key != box.IntrinsicKey || t.Kind(e.Ref) != box.Scalar {
			return "", false
		}
		sb.WriteString(t.At(e.Ref).Text)
	}
	return sb.String(), true
}

func (k *KeyedEncoder) intrinsic(ref box.Ref, path []string) error {
	t := k.s.tree
	switch t.Kind(ref) {
	case box.Null:
		return nil
	case box.Scalar:
		return t.AppendElement(k.ref, box.IntrinsicKey, ref)
	case box.Keyed:
		return t.Merge(k.ref, ref)
	}
	return &CodingError{
		Kind:   ErrInvalidAttributeValue,
		Path:   path,
		Detail: fmt.Sprintf("cannot encode %s value as intrinsic content", t.Kind(ref)),
	}
}

func (k *KeyedEncoder) nested(key string, ref box.Ref) []string {
	k.s.check(k.s.tree.AppendElement(k.ref, k.s.opts.keyEncoding.apply(key), ref))
	return clonePath(k.path, key)
}

// NestedKeyed returns a keyed container stored under key.
func (k *KeyedEncoder) NestedKeyed(key string) *KeyedEncoder {
	ref := k.s.tree.NewKeyed()
	return &KeyedEncoder{s: k.s, ref: ref, path: k.nested(key, ref)}
}

// NestedUnkeyed returns a sequence container stored under key.
func (k *KeyedEncoder) NestedUnkeyed(key string) *UnkeyedEncoder {
	ref := k.s.tree.NewUnkeyed()
	return &UnkeyedEncoder{s: k.s, ref: ref, path: k.nested(key, ref)}
}

// NestedChoice returns a choice container stored under key.
func (k *KeyedEncoder) NestedChoice(key string) *ChoiceEncoder {
	ref := k.s.tree.NewChoice()
	return &ChoiceEncoder{s: k.s, ref: ref, path: k.nested(key, ref)}
}

// SuperEncoder returns an encoder for embedded parent content, stored
// under the key "super".
func (k *KeyedEncoder) SuperEncoder() *ValueEncoder {
	return k.SuperEncoderForKey("super")
}

// SuperEncoderForKey returns an encoder whose value is stored under key
// once it is written.
func (k *KeyedEncoder) SuperEncoderForKey(key string) *ValueEncoder {
	name := k.s.opts.keyEncoding.apply(key)
	return &ValueEncoder{
		s:    k.s,
		path: clonePath(k.path, key),
		ref:  box.NoRef,
		attach: func(ref box.Ref) error {
			return k.s.tree.AppendElement(k.ref, name, ref)
		},
	}
}

// An UnkeyedEncoder writes a sequence. Items are written as repeated
// elements under the key of the sequence.
type UnkeyedEncoder struct {
	s    *encodeState
	ref  box.Ref
	path []string
}

// CodingPath returns the keys leading to the container.
func (u *UnkeyedEncoder) CodingPath() []string { return clonePath(u.path) }

// Len returns the number of items written so far.
func (u *UnkeyedEncoder) Len() int { return len(u.s.tree.At(u.ref).Elements) }

// Encode appends v.
func (u *UnkeyedEncoder) Encode(v any) error {
	return u.encode(reflect.ValueOf(v))
}

func (u *UnkeyedEncoder) encode(v reflect.Value) error {
	ref, err := u.s.boxItem(clonePath(u.path, strconv.Itoa(u.Len())), v)
	if err != nil {
		return err
	}
	return u.s.tree.AppendItem(u.ref, ref)
}

// EncodeNull appends an explicit null.
func (u *UnkeyedEncoder) EncodeNull() error {
	return u.s.tree.AppendItem(u.ref, u.s.tree.NewNull())
}

func (u *UnkeyedEncoder) nested(ref box.Ref) []string {
	path := clonePath(u.path, strconv.Itoa(u.Len()))
	u.s.check(u.s.tree.AppendItem(u.ref, ref))
	return path
}

// NestedKeyed appends a keyed item and returns its container.
func (u *UnkeyedEncoder) NestedKeyed() *KeyedEncoder {
	ref := u.s.tree.NewKeyed()
	return &KeyedEncoder{s: u.s, ref: ref, path: u.nested(ref)}
}

// NestedUnkeyed appends a sequence item and returns its container.
func (u *UnkeyedEncoder) NestedUnkeyed() *UnkeyedEncoder {
	ref := u.s.tree.NewUnkeyed()
	return &UnkeyedEncoder{s: u.s, ref: ref, path: u.nested(ref)}
}

// NestedChoice appends a choice item and returns its container.
func (u *UnkeyedEncoder) NestedChoice() *ChoiceEncoder {
	ref := u.s.tree.NewChoice()
	return &ChoiceEncoder{s: u.s, ref: ref, path: u.nested(ref)}
}

// A ChoiceEncoder writes the single case of a choice.
type ChoiceEncoder struct {
	s    *encodeState
	ref  box.Ref
	path []string
}

// CodingPath returns the keys leading to the container.
func (c *ChoiceEncoder) CodingPath() []string { return clonePath(c.path) }

// Encode stores v as the case named key. A choice holds one case; a second
// call fails with ErrInvalidChoice.
func (c *ChoiceEncoder) Encode(key string, v any) error {
	return c.encode(key, reflect.ValueOf(v))
}

func (c *ChoiceEncoder) encode(key string, v reflect.Value) error {
	path := clonePath(c.path, key)
	if c.hasCase() {
		return &CodingError{
			Kind:   ErrInvalidChoice,
			Path:   path,
			Detail: fmt.Sprintf("choice already holds the case %q", c.s.tree.At(c.ref).Elements[0].Key),
		}
	}
	ref, err := c.s.box(path, v)
	if err != nil {
		return err
	}
	return c.s.tree.SetChoice(c.ref, c.s.opts.keyEncoding.apply(key), ref)
}

func (c *ChoiceEncoder) hasCase() bool {
	return len(c.s.tree.At(c.ref).Elements) > 0
}

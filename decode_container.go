package xmlbox

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/KimNorgaard/go-xmlbox/internal/box"
)

// A ValueDecoder gives a type that implements Unmarshaler access to the
// content of one element.
type ValueDecoder struct {
	s    *decodeState
	ref  box.Ref
	path []string
}

// CodingPath returns the keys leading to the value being decoded.
func (d *ValueDecoder) CodingPath() []string { return clonePath(d.path) }

// IsNull reports whether the value is an explicit null.
func (d *ValueDecoder) IsNull() bool { return d.s.tree.Kind(d.ref) == box.Null }

// Text returns the text content of the value.
func (d *ValueDecoder) Text() (string, error) {
	s, ok := d.s.tree.Text(d.ref)
	if !ok {
		return "", d.s.fail(ErrDataCorrupted, d.ref, d.path,
			fmt.Sprintf("expected text, found %s content", d.s.tree.Kind(d.ref)))
	}
	return s, nil
}

// Keyed returns a container over the attributes and child elements of the
// value.
func (d *ValueDecoder) Keyed() (*KeyedDecoder, error) {
	return d.s.keyed(d.ref, d.path)
}

// Unkeyed returns a container over the child elements of the value, read
// as a sequence.
func (d *ValueDecoder) Unkeyed() (*UnkeyedDecoder, error) {
	return &UnkeyedDecoder{s: d.s, items: d.s.items(d.ref), path: d.path}, nil
}

// Choice returns a container over the single case held by the value.
func (d *ValueDecoder) Choice() (*ChoiceDecoder, error) {
	return d.s.choice(d.ref, d.path)
}

// Decode stores the value in v, which must be a non-nil pointer.
func (d *ValueDecoder) Decode(v any) error {
	rv, err := target(v)
	if err != nil {
		return err
	}
	return d.s.unbox(d.path, d.ref, rv)
}

func target(v any) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return reflect.Value{}, fmt.Errorf("xmlbox: Decode(non-pointer %T or nil)", v)
	}
	return rv.Elem(), nil
}

type entry struct {
	prefix string
	ref    box.Ref
}

// A KeyedDecoder reads the attributes and child elements of one element.
// Keys are matched after the key decoding strategy is applied, falling
// back to a case-insensitive match. Element and attribute keys are looked
// up separately.
type KeyedDecoder struct {
	s     *decodeState
	ref   box.Ref
	path  []string
	elems map[string][]entry
	attrs map[string]string
	keys  []string
	// lower maps lower-cased element and attribute keys to their spelling.
	lowerElems map[string]string
	lowerAttrs map[string]string
}

func (ds *decodeState) keyed(ref box.Ref, path []string) (*KeyedDecoder, error) {
	n := ds.tree.At(ref)
	k := &KeyedDecoder{
		s:          ds,
		ref:        ref,
		path:       clonePath(path),
		elems:      make(map[string][]entry),
		attrs:      make(map[string]string),
		lowerElems: make(map[string]string),
		lowerAttrs: make(map[string]string),
	}
	switch n.Kind {
	case box.Keyed:
	case box.Scalar, box.Null:
		return k, nil
	default:
		return nil, ds.fail(ErrDataCorrupted, ref, path, fmt.Sprintf("cannot decode %s content as keyed", n.Kind))
	}
	seen := make(map[string]bool)
	note := func(key string) {
		if !seen[key] {
			seen[key] = true
			k.keys = append(k.keys, key)
		}
	}
	for _, a := range n.Attrs {
		_, local := splitName(a.Key)
		key := ds.opts.keyDecoding.apply(local)
		if _, dup := k.attrs[key]; dup {
			continue
		}
		k.attrs[key] = a.Value
		if lower := strings.ToLower(key); k.lowerAttrs[lower] == "" {
			k.lowerAttrs[lower] = key
		}
		note(key)
	}
	for _, e := range n.Elements {
		if e.Key == box.IntrinsicKey {
			continue
		}
		prefix, local := splitName(e.Key)
		key := ds.opts.keyDecoding.apply(local)
		k.elems[key] = append(k.elems[key], entry{prefix: prefix, ref: e.Ref})
		if lower := strings.ToLower(key); k.lowerElems[lower] == "" {
			k.lowerElems[lower] = key
		}
		note(key)
	}
	return k, nil
}

func splitName(name string) (prefix, local string) {
	if p, l, ok := strings.Cut(name, ":"); ok {
		return p, l
	}
	return "", name
}

// inNamespace reports whether the element e is in the namespace uri.
// Parsed elements carry the URI their prefix is bound to; a prefix that is
// not declared anywhere matches only when it was synthesized for uri.
func (k *KeyedDecoder) inNamespace(e entry, uri string) bool {
	if space := k.s.tree.At(e.ref).Space; space != "" {
		return space == uri
	}
	return e.prefix != "" && synthesized(e.prefix, uri)
}

// unqualified reports whether the element e is in no namespace.
func (k *KeyedDecoder) unqualified(e entry) bool {
	return e.prefix == "" && k.s.tree.At(e.ref).Space == ""
}

// elements returns the child elements under key. When namespace is set,
// elements in that namespace are preferred and unqualified elements are
// accepted in their absence; elements of other namespaces never match.
func (k *KeyedDecoder) elements(key, namespace string) []box.Ref {
	es, ok := k.elems[key]
	if !ok {
		if alt, found := k.lowerElems[strings.ToLower(key)]; found {
			es = k.elems[alt]
		}
	}
	if namespace != "" {
		var matched, plain []entry
		for _, e := range es {
			switch {
			case k.inNamespace(e, namespace):
				matched = append(matched, e)
			case k.unqualified(e):
				plain = append(plain, e)
			}
		}
		es = matched
		if len(es) == 0 {
			es = plain
		}
	}
	refs := make([]box.Ref, len(es))
	for i, e := range es {
		refs[i] = e.ref
	}
	return refs
}

func (k *KeyedDecoder) attr(key string) (string, bool) {
	if v, ok := k.attrs[key]; ok {
		return v, true
	}
	if alt, ok := k.lowerAttrs[strings.ToLower(key)]; ok {
		return k.attrs[alt], true
	}
	return "", false
}

func (k *KeyedDecoder) attrRef(key string) box.Ref {
	v, ok := k.attr(key)
	if !ok {
		return box.NoRef
	}
	return k.s.scalar(v, k.ref)
}

// intrinsicRef returns the node holding the content of the element itself
// as seen by a value of type t. Structured targets read the whole element;
// everything else reads its text.
func (k *KeyedDecoder) intrinsicRef(t reflect.Type) box.Ref {
	if k.s.tree.Kind(k.ref) != box.Keyed || !wantsText(t) {
		return k.ref
	}
	var sb strings.Builder
	for _, e := range k.s.tree.At(k.ref).Elements {
		if e.Key == box.IntrinsicKey && k.s.tree.Kind(e.Ref) == box.Scalar {
			sb.WriteString(k.s.tree.At(e.Ref).Text)
		}
	}
	return k.s.scalar(sb.String(), k.ref)
}

func isUnmarshaler(t reflect.Type) bool {
	t = strategyType(t)
	return t.Implements(unmarshalerType) || reflect.PointerTo(t).Implements(unmarshalerType)
}

func wantsText(t reflect.Type) bool {
	t = strategyType(t)
	if t == timeType {
		return true
	}
	if isUnmarshaler(t) {
		return false
	}
	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		return true
	}
	switch t.Kind() {
	case reflect.Struct:
		return describe(t).depth > 0 && wantsText(describe(t).typ)
	case reflect.Map, reflect.Interface, reflect.Array:
		return false
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	}
	return true
}

// decodeField decodes the value of f into v. Attributes and elements are
// tried in the order given by the placement of f; an absent value is an
// error only when required is set.
func (k *KeyedDecoder) decodeField(f *field, v reflect.Value, required bool) error {
	v = peel(v, f.depth)
	parent := k.s.top().res
	placement := parent.placement(f.name)
	if placement == PlacementDefault {
		placement = f.placement
	}
	namespace := parent.namespace(f.name)
	if namespace == "" {
		namespace = f.namespace
	}
	path := clonePath(k.path, f.name)
	k.s.opts.trace("decode", path, placement, namespace)

	ref := box.NoRef
	var refs []box.Ref
	switch placement {
	case PlacementIntrinsic:
		return k.s.unbox(path, k.intrinsicRef(v.Type()), v)
	case PlacementAttribute:
		if ref = k.attrRef(f.name); ref == box.NoRef {
			refs = k.elements(f.name, namespace)
		}
	case PlacementElement:
		refs = k.elements(f.name, namespace)
	default:
		if refs = k.elements(f.name, namespace); len(refs) == 0 {
			ref = k.attrRef(f.name)
		}
	}

	if len(refs) == 0 && ref == box.NoRef {
		if required {
			return k.s.fail(ErrMissingRequiredValue, k.ref, path, fmt.Sprintf("no value for key %q", f.name))
		}
		return nil
	}
	if len(refs) > 0 {
		if isSequence(v.Type()) {
			return k.s.unboxSequence(path, refs, v)
		}
		ref = refs[0]
		if len(refs) > 1 && isUnmarshaler(v.Type()) {
			// Repeated elements reach a custom decoder as one sequence.
			ref = k.s.tree.NewList(refs)
		}
	}
	return k.s.unbox(path, ref, v)
}

// CodingPath returns the keys leading to the container.
func (k *KeyedDecoder) CodingPath() []string { return clonePath(k.path) }

// Keys returns the element and attribute keys present, in document order
// with attributes first.
func (k *KeyedDecoder) Keys() []string { return append([]string(nil), k.keys...) }

// Contains reports whether key is present as an element or an attribute.
func (k *KeyedDecoder) Contains(key string) bool {
	if len(k.elements(key, "")) > 0 {
		return true
	}
	_, ok := k.attr(key)
	return ok
}

// IsNull reports whether the element under key is an explicit null. An
// absent key fails with ErrMissingRequiredValue.
func (k *KeyedDecoder) IsNull(key string) (bool, error) {
	refs := k.elements(key, "")
	if len(refs) == 0 {
		if _, ok := k.attr(key); ok {
			return false, nil
		}
		return false, k.missing(key)
	}
	return k.s.tree.Kind(refs[0]) == box.Null, nil
}

func (k *KeyedDecoder) missing(key string) error {
	return k.s.fail(ErrMissingRequiredValue, k.ref, clonePath(k.path, key), fmt.Sprintf("no value for key %q", key))
}

// Decode stores the value under key in v, which must be a non-nil pointer.
// The marker type of v, if any, selects where the value is looked up.
func (k *KeyedDecoder) Decode(key string, v any) error {
	return k.decode(key, v, true)
}

// DecodeIfPresent is like Decode but leaves v untouched and returns false
// when key is absent.
func (k *KeyedDecoder) DecodeIfPresent(key string, v any) (bool, error) {
	if !k.Contains(key) {
		return false, nil
	}
	return true, k.decode(key, v, false)
}

func (k *KeyedDecoder) decode(key string, v any, required bool) error {
	rv, err := target(v)
	if err != nil {
		return err
	}
	u := describe(rv.Type())
	f := &field{name: key, typ: u.typ, depth: u.depth, placement: u.placement, nullable: u.nullable}
	return k.decodeField(f, rv, required)
}

func (k *KeyedDecoder) first(key string) (box.Ref, error) {
	refs := k.elements(key, "")
	if len(refs) == 0 {
		return box.NoRef, k.missing(key)
	}
	return refs[0], nil
}

// NestedKeyed returns a keyed container over the element under key.
func (k *KeyedDecoder) NestedKeyed(key string) (*KeyedDecoder, error) {
	ref, err := k.first(key)
	if err != nil {
		return nil, err
	}
	return k.s.keyed(ref, clonePath(k.path, key))
}

// NestedUnkeyed returns a sequence container over the repeated elements
// under key.
func (k *KeyedDecoder) NestedUnkeyed(key string) (*UnkeyedDecoder, error) {
	refs := k.elements(key, "")
	if len(refs) == 0 {
		return nil, k.missing(key)
	}
	return &UnkeyedDecoder{s: k.s, items: refs, path: clonePath(k.path, key)}, nil
}

// NestedChoice returns a choice container over the element under key.
func (k *KeyedDecoder) NestedChoice(key string) (*ChoiceDecoder, error) {
	ref, err := k.first(key)
	if err != nil {
		return nil, err
	}
	return k.s.choice(ref, clonePath(k.path, key))
}

// SuperDecoder returns a decoder for the element under the key "super".
func (k *KeyedDecoder) SuperDecoder() (*ValueDecoder, error) {
	return k.SuperDecoderForKey("super")
}

// SuperDecoderForKey returns a decoder for the element under key.
func (k *KeyedDecoder) SuperDecoderForKey(key string) (*ValueDecoder, error) {
	ref, err := k.first(key)
	if err != nil {
		return nil, err
	}
	return &ValueDecoder{s: k.s, ref: ref, path: clonePath(k.path, key)}, nil
}

// An UnkeyedDecoder reads a sequence item by item.
type UnkeyedDecoder struct {
	s     *decodeState
	items []box.Ref
	idx   int
	path  []string
}

// CodingPath returns the keys leading to the container.
func (u *UnkeyedDecoder) CodingPath() []string { return clonePath(u.path) }

// Len returns the number of items.
func (u *UnkeyedDecoder) Len() int { return len(u.items) }

// CurrentIndex returns the index of the next item.
func (u *UnkeyedDecoder) CurrentIndex() int { return u.idx }

// IsAtEnd reports whether every item has been read.
func (u *UnkeyedDecoder) IsAtEnd() bool { return u.idx >= len(u.items) }

func (u *UnkeyedDecoder) next() (box.Ref, []string, error) {
	path := clonePath(u.path, strconv.Itoa(u.idx))
	if u.IsAtEnd() {
		return box.NoRef, nil, &CodingError{Kind: ErrMissingRequiredValue, Path: path, Detail: "unkeyed container is at end"}
	}
	return u.items[u.idx], path, nil
}

// Decode stores the next item in v, which must be a non-nil pointer.
func (u *UnkeyedDecoder) Decode(v any) error {
	rv, err := target(v)
	if err != nil {
		return err
	}
	ref, path, err := u.next()
	if err != nil {
		return err
	}
	if err := u.s.unbox(path, ref, rv); err != nil {
		return err
	}
	u.idx++
	return nil
}

// DecodeNull consumes the next item and returns true if it is an explicit
// null. Otherwise the item is left in place.
func (u *UnkeyedDecoder) DecodeNull() bool {
	if u.IsAtEnd() || u.s.tree.Kind(u.items[u.idx]) != box.Null {
		return false
	}
	u.idx++
	return true
}

// NestedKeyed consumes the next item and returns a keyed container over it.
func (u *UnkeyedDecoder) NestedKeyed() (*KeyedDecoder, error) {
	ref, path, err := u.next()
	if err != nil {
		return nil, err
	}
	k, err := u.s.keyed(ref, path)
	if err != nil {
		return nil, err
	}
	u.idx++
	return k, nil
}

// NestedUnkeyed consumes the next item and returns a sequence container
// over its children.
func (u *UnkeyedDecoder) NestedUnkeyed() (*UnkeyedDecoder, error) {
	ref, path, err := u.next()
	if err != nil {
		return nil, err
	}
	u.idx++
	return &UnkeyedDecoder{s: u.s, items: u.s.items(ref), path: path}, nil
}

// NestedChoice consumes the next item and returns a choice container over
// it.
func (u *UnkeyedDecoder) NestedChoice() (*ChoiceDecoder, error) {
	ref, path, err := u.next()
	if err != nil {
		return nil, err
	}
	c, err := u.s.choice(ref, path)
	if err != nil {
		return nil, err
	}
	u.idx++
	return c, nil
}

// A ChoiceDecoder reads the single case of a choice.
type ChoiceDecoder struct {
	s    *decodeState
	key  string
	ref  box.Ref
	path []string
}

func (ds *decodeState) choice(ref box.Ref, path []string) (*ChoiceDecoder, error) {
	n := ds.tree.At(ref)
	var cases []box.Pair
	switch n.Kind {
	case box.Choice:
		cases = n.Elements
	case box.Keyed:
		for _, e := range n.Elements {
			if e.Key != box.IntrinsicKey {
				cases = append(cases, e)
			}
		}
	}
	switch {
	case len(cases) == 0:
		return nil, ds.fail(ErrMissingRequiredValue, ref, path, "no case is present")
	case len(cases) > 1:
		return nil, ds.fail(ErrInvalidChoice, ref, path, fmt.Sprintf("found %d cases, want one", len(cases)))
	}
	_, local := splitName(cases[0].Key)
	key := ds.opts.keyDecoding.apply(local)
	return &ChoiceDecoder{s: ds, key: key, ref: cases[0].Ref, path: clonePath(path)}, nil
}

// CodingPath returns the keys leading to the container.
func (c *ChoiceDecoder) CodingPath() []string { return clonePath(c.path) }

// Key returns the key of the case present.
func (c *ChoiceDecoder) Key() string { return c.key }

// Decode stores the value of the case in v, which must be a non-nil
// pointer.
func (c *ChoiceDecoder) Decode(v any) error {
	rv, err := target(v)
	if err != nil {
		return err
	}
	return c.s.unbox(clonePath(c.path, c.key), c.ref, rv)
}

package xmlbox

import (
	"encoding"
	"encoding/base64"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/KimNorgaard/go-xmlbox/internal/box"
	"github.com/KimNorgaard/go-xmlbox/internal/parser"
)

// A Decoder reads and decodes XML documents from an input stream.
type Decoder struct {
	r    io.Reader
	opts []Option
}

// NewDecoder returns a new decoder that reads from r.
//
// The decoder may buffer data from r as necessary. It is the caller's
// responsibility to call Close on r if required.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	return &Decoder{r: r, opts: opts}
}

// Decode reads the XML document from its input and stores it in the value
// pointed to by v. If v is nil or not a pointer, Decode returns an error.
//
// See the documentation for Unmarshal for details about the conversion of
// XML into a Go value.
//
// Note: This is a non-streaming implementation. It reads the entire
// reader into memory first before parsing.
func (d *Decoder) Decode(v any) error {
	if d.r == nil {
		return fmt.Errorf("xmlbox: Decode(nil reader)")
	}
	data, err := io.ReadAll(d.r)
	if err != nil {
		return err
	}
	return unmarshal(data, v, d.opts)
}

func unmarshal(data []byte, v any, opts []Option) error {
	o, err := newOptions(opts)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("xmlbox: Unmarshal(non-pointer %T or nil)", v)
	}
	doc, err := parse(data, o)
	if err != nil {
		return err
	}
	ds := &decodeState{opts: o, tree: doc.Tree, src: data, depth: o.maxDepth}
	return ds.unbox(nil, doc.Root, rv.Elem())
}

// parse builds the frozen tree of a document. Syntax errors are reported
// as ErrDataCorrupted.
func parse(data []byte, o *options) (*parser.Document, error) {
	p := parser.New(data, o.parserOptions())
	doc := p.Parse()
	if errs := p.Errors(); len(errs) > 0 {
		first := errs[0]
		return nil, &CodingError{
			Kind:    ErrDataCorrupted,
			Detail:  first.Message,
			Line:    first.Line,
			Column:  first.Column,
			Context: first.Context,
			Err:     errs,
		}
	}
	doc.Tree.Freeze()
	return doc, nil
}

type decodeState struct {
	opts   *options
	tree   *box.Tree
	src    []byte
	scopes []scope
	depth  int
}

func (ds *decodeState) top() scope {
	if len(ds.scopes) == 0 {
		return scope{}
	}
	return ds.scopes[len(ds.scopes)-1]
}

func (ds *decodeState) pop() {
	ds.scopes = ds.scopes[:len(ds.scopes)-1]
}

// unbox decodes ref into v with the resolvers of v's type in scope.
func (ds *decodeState) unbox(path []string, ref box.Ref, v reflect.Value) error {
	ds.scopes = append(ds.scopes, scope{path: path, res: ds.opts.decodingResolver(v.Type(), path)})
	defer ds.pop()
	return ds.unmarshalValue(ref, v)
}

// unboxItem decodes a sequence item. Items share the resolvers of their
// sequence.
func (ds *decodeState) unboxItem(path []string, ref box.Ref, v reflect.Value) error {
	ds.scopes = append(ds.scopes, scope{path: path, res: ds.top().res})
	defer ds.pop()
	return ds.unmarshalValue(ref, v)
}

// fail builds an error of the given kind located at ref.
func (ds *decodeState) fail(kind error, ref box.Ref, path []string, detail string) *CodingError {
	e := &CodingError{Kind: kind, Path: clonePath(path), Detail: detail}
	if ref == box.NoRef || !ds.tree.Valid(ref) {
		return e
	}
	offset := ds.tree.At(ref).Offset
	if offset < 0 {
		return e
	}
	e.Line, e.Column = parser.Position(ds.src, offset)
	if n := ds.opts.contextLength; n > 0 {
		e.Context = parser.Window(ds.src, offset, n)
	}
	return e
}

func (ds *decodeState) corrupted(ref box.Ref, format string, args ...any) error {
	return ds.fail(ErrDataCorrupted, ref, ds.top().path, fmt.Sprintf(format, args...))
}

func (ds *decodeState) text(ref box.Ref, t reflect.Type) (string, error) {
	s, ok := ds.tree.Text(ref)
	if !ok {
		return "", ds.corrupted(ref, "cannot decode %s content into Go value of type %s", ds.tree.Kind(ref), t)
	}
	return s, nil
}

func (ds *decodeState) unmarshalValue(ref box.Ref, v reflect.Value) error { //nolint:gocyclo,funlen
	ds.depth--
	if ds.depth <= 0 {
		return fmt.Errorf("xmlbox: reached max recursion depth")
	}
	defer func() { ds.depth++ }()

	isNull := ds.tree.Kind(ref) == box.Null
	for {
		if isNull {
			switch v.Kind() {
			case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice:
				v.Set(reflect.Zero(v.Type()))
				return nil
			}
		}
		if v.Type() == timeType {
			if isNull {
				v.Set(reflect.Zero(v.Type()))
				return nil
			}
			return ds.unmarshalTime(ref, v)
		}

		// Attempt to use a custom unmarshaler if available.
		handled, err := ds.tryCustomUnmarshal(ref, v)
		if err != nil || handled {
			return err
		}

		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
			continue
		}
		if v.Kind() == reflect.Struct {
			if u := describe(v.Type()); u.depth > 0 {
				v = peel(v, u.depth)
				continue
			}
		}
		break
	}

	if v.Kind() == reflect.Interface {
		return ds.unmarshalInterface(ref, v)
	}
	if !v.CanSet() {
		return fmt.Errorf("xmlbox: cannot set value of type %s", v.Type())
	}
	if isNull {
		v.Set(reflect.Zero(v.Type()))
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		s, err := ds.text(ref, v.Type())
		if err != nil {
			return err
		}
		v.SetString(s)
		return nil
	case reflect.Bool:
		s, err := ds.text(ref, v.Type())
		if err != nil {
			return err
		}
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return ds.corrupted(ref, "cannot decode %q into Go value of type %s", s, v.Type())
		}
		v.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		s, err := ds.text(ref, v.Type())
		if err != nil {
			return err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, v.Type().Bits())
		if err != nil {
			return ds.corrupted(ref, "cannot decode %q into Go value of type %s", s, v.Type())
		}
		v.SetInt(n)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		s, err := ds.text(ref, v.Type())
		if err != nil {
			return err
		}
		n, err := strconv.ParseUint(strings.TrimSpace(s), 10, v.Type().Bits())
		if err != nil {
			return ds.corrupted(ref, "cannot decode %q into Go value of type %s", s, v.Type())
		}
		v.SetUint(n)
		return nil
	case reflect.Float32, reflect.Float64:
		s, err := ds.text(ref, v.Type())
		if err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), v.Type().Bits())
		if err != nil {
			return ds.corrupted(ref, "cannot decode %q into Go value of type %s", s, v.Type())
		}
		v.SetFloat(f)
		return nil
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b, err := ds.bytes(ref, v.Type())
			if err != nil {
				return err
			}
			v.SetBytes(b)
			return nil
		}
		return ds.unmarshalSequence(ds.items(ref), v)
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b, err := ds.bytes(ref, v.Type())
			if err != nil {
				return err
			}
			if len(b) != v.Len() {
				return ds.corrupted(ref, "cannot decode %d bytes into Go array of length %d", len(b), v.Len())
			}
			reflect.Copy(v, reflect.ValueOf(b))
			return nil
		}
		return ds.unmarshalSequence(ds.items(ref), v)
	case reflect.Map:
		return ds.unmarshalMap(ref, v)
	case reflect.Struct:
		if isChoice(v.Type()) {
			return ds.unmarshalChoice(ref, v)
		}
		return ds.unmarshalStruct(ref, v)
	}
	return fmt.Errorf("xmlbox: cannot unmarshal into Go value of type %s", v.Type())
}

// tryCustomUnmarshal attempts to use a custom unmarshaler (xmlbox.Unmarshaler
// or encoding.TextUnmarshaler) on the given reflect.Value. It returns true if
// a custom unmarshaler was found and used, in which case the caller should
// not proceed with default unmarshaling.
func (ds *decodeState) tryCustomUnmarshal(ref box.Ref, v reflect.Value) (bool, error) {
	if !v.CanAddr() {
		return false, nil
	}
	pv := v.Addr()
	if !pv.CanInterface() {
		return false, nil
	}

	if u, ok := pv.Interface().(Unmarshaler); ok {
		d := &ValueDecoder{s: ds, ref: ref, path: ds.top().path}
		if err := u.UnmarshalXMLBox(d); err != nil {
			if passThrough(err) {
				return true, err
			}
			return true, &UnmarshalerError{Type: pv.Type(), Err: err}
		}
		return true, nil
	}

	if u, ok := pv.Interface().(encoding.TextUnmarshaler); ok {
		s, isText := ds.tree.Text(ref)
		if !isText {
			// TextUnmarshaler can only be used on text content.
			return false, nil
		}
		if err := u.UnmarshalText([]byte(s)); err != nil {
			return true, &UnmarshalerError{Type: pv.Type(), Err: err}
		}
		return true, nil
	}

	return false, nil
}

func (ds *decodeState) unmarshalTime(ref box.Ref, v reflect.Value) error {
	s, err := ds.text(ref, v.Type())
	if err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	var t time.Time
	if ds.opts.timeFormat == UnixSeconds {
		n, perr := strconv.ParseInt(s, 10, 64)
		if perr != nil {
			return ds.corrupted(ref, "cannot decode %q as Unix seconds", s)
		}
		t = time.Unix(n, 0).UTC()
	} else {
		t, err = time.Parse(ds.opts.timeFormat, s)
		if err != nil {
			return ds.corrupted(ref, "cannot decode %q as time in layout %q", s, ds.opts.timeFormat)
		}
	}
	v.Set(reflect.ValueOf(t))
	return nil
}

func (ds *decodeState) bytes(ref box.Ref, t reflect.Type) ([]byte, error) {
	s, err := ds.text(ref, t)
	if err != nil {
		return nil, err
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, ds.corrupted(ref, "cannot decode %s as base64: %v", t, err)
	}
	return b, nil
}

// items returns the nodes of ref read as a sequence. Element children of a
// keyed node are the items, in document order.
func (ds *decodeState) items(ref box.Ref) []box.Ref {
	n := ds.tree.At(ref)
	switch n.Kind {
	case box.Null:
		return nil
	case box.Scalar:
		if n.Text == "" {
			return nil
		}
		return []box.Ref{ref}
	case box.Unkeyed:
		refs := make([]box.Ref, len(n.Elements))
		for i, e := range n.Elements {
			refs[i] = e.Ref
		}
		return refs
	case box.Keyed:
		var refs []box.Ref
		for _, e := range n.Elements {
			if e.Key != box.IntrinsicKey {
				refs = append(refs, e.Ref)
			}
		}
		if len(refs) == 0 {
			if s, ok := ds.tree.Text(ref); ok && s != "" {
				return []box.Ref{ref}
			}
		}
		return refs
	}
	return []box.Ref{ref}
}

func (ds *decodeState) unmarshalSequence(refs []box.Ref, v reflect.Value) error {
	path := ds.top().path
	if v.Kind() == reflect.Array {
		if len(refs) != v.Len() {
			return ds.corrupted(box.NoRef, "cannot decode %d items into Go array of length %d", len(refs), v.Len())
		}
		for i, ref := range refs {
			if err := ds.unboxItem(clonePath(path, strconv.Itoa(i)), ref, v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	}
	slice := reflect.MakeSlice(v.Type(), len(refs), len(refs))
	for i, ref := range refs {
		if err := ds.unboxItem(clonePath(path, strconv.Itoa(i)), ref, slice.Index(i)); err != nil {
			return err
		}
	}
	v.Set(slice)
	return nil
}

// unboxSequence decodes the repeated elements of one key into the sequence
// v, which may be behind pointers.
func (ds *decodeState) unboxSequence(path []string, refs []box.Ref, v reflect.Value) error {
	ds.scopes = append(ds.scopes, scope{path: path, res: ds.opts.decodingResolver(v.Type(), path)})
	defer ds.pop()
	if len(refs) == 1 && ds.tree.Kind(refs[0]) == box.Null {
		v.Set(reflect.Zero(v.Type()))
		return nil
	}
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	return ds.unmarshalSequence(refs, v)
}

func isSequence(t reflect.Type) bool {
	t = strategyType(t)
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return false
		}
		return !isUnmarshaler(t)
	}
	return false
}

func (ds *decodeState) unmarshalMap(ref box.Ref, v reflect.Value) error {
	mapType := v.Type()
	if mapType.Key().Kind() != reflect.String {
		return fmt.Errorf("xmlbox: cannot unmarshal into map with non-string key type %s", mapType.Key())
	}
	n := ds.tree.At(ref)
	switch n.Kind {
	case box.Keyed:
	case box.Scalar:
		if n.Text != "" {
			return ds.corrupted(ref, "cannot decode text into Go value of type %s", mapType)
		}
	default:
		return ds.corrupted(ref, "cannot decode %s content into Go value of type %s", n.Kind, mapType)
	}
	if v.IsNil() {
		v.Set(reflect.MakeMap(mapType))
	} else {
		v.Clear()
	}

	path := ds.top().path
	set := func(key string, ref box.Ref) error {
		key = ds.opts.keyDecoding.apply(key)
		elem := reflect.New(mapType.Elem()).Elem()
		if err := ds.unbox(clonePath(path, key), ref, elem); err != nil {
			return err
		}
		v.SetMapIndex(reflect.ValueOf(key).Convert(mapType.Key()), elem)
		return nil
	}
	for _, a := range n.Attrs {
		if err := set(a.Key, ds.scalar(a.Value, ref)); err != nil {
			return err
		}
	}
	for _, e := range n.Elements {
		if e.Key == box.IntrinsicKey {
			continue
		}
		if err := set(e.Key, e.Ref); err != nil {
			return err
		}
	}
	return nil
}

// scalar allocates a detached node holding an attribute value of owner.
func (ds *decodeState) scalar(text string, owner box.Ref) box.Ref {
	r := ds.tree.NewScalar(text)
	ds.tree.SetOffset(r, ds.tree.At(owner).Offset)
	return r
}

func (ds *decodeState) unmarshalStruct(ref box.Ref, v reflect.Value) error {
	k, err := ds.keyed(ref, ds.top().path)
	if err != nil {
		return err
	}
	fields := cachedFields(v.Type())
	for i := range fields.list {
		f := &fields.list[i]
		fv, ok := fieldByIndexAlloc(v, f.idx)
		if !ok {
			continue
		}
		if err := k.decodeField(f, fv, f.required()); err != nil {
			return err
		}
	}
	return nil
}

// unmarshalChoice decodes the one case present in ref. Element keys that
// match no case are ignored.
func (ds *decodeState) unmarshalChoice(ref box.Ref, v reflect.Value) error {
	path := ds.top().path
	k, err := ds.keyed(ref, path)
	if err != nil {
		return err
	}
	fields := cachedFields(v.Type())
	var found *field
	count := 0
	for i := range fields.list {
		f := &fields.list[i]
		if n := len(k.elements(f.name, f.namespace)); n > 0 {
			if found == nil {
				found = f
			}
			count += n
		}
	}
	switch {
	case count == 0:
		return ds.fail(ErrMissingRequiredValue, ref, path, fmt.Sprintf("no case of %s is present", v.Type()))
	case count > 1:
		return ds.fail(ErrInvalidChoice, ref, path, fmt.Sprintf("found %d cases of %s, want one", count, v.Type()))
	}
	v.Set(reflect.Zero(v.Type()))
	fv, ok := fieldByIndexAlloc(v, found.idx)
	if !ok {
		return fmt.Errorf("xmlbox: cannot set case %q of %s", found.name, v.Type())
	}
	return k.decodeField(found, fv, true)
}

func (ds *decodeState) unmarshalInterface(ref box.Ref, v reflect.Value) error {
	if v.NumMethod() != 0 {
		return fmt.Errorf("xmlbox: cannot unmarshal into non-empty interface %s", v.Type())
	}
	val := ds.plain(ref)
	if val == nil {
		v.Set(reflect.Zero(v.Type()))
		return nil
	}
	v.Set(reflect.ValueOf(val))
	return nil
}

// plain converts ref into string, map[string]any, []any or nil. Repeated
// keys of a keyed node collect into a []any.
func (ds *decodeState) plain(ref box.Ref) any {
	n := ds.tree.At(ref)
	switch n.Kind {
	case box.Null:
		return nil
	case box.Scalar:
		return n.Text
	case box.Unkeyed:
		out := make([]any, len(n.Elements))
		for i, e := range n.Elements {
			out[i] = ds.plain(e.Ref)
		}
		return out
	}
	if len(n.Attrs) == 0 {
		if s, ok := ds.tree.Text(ref); ok {
			return s
		}
	}
	out := make(map[string]any)
	add := func(key string, val any) {
		switch prev := out[key].(type) {
		case nil:
			if _, ok := out[key]; !ok {
				out[key] = val
				return
			}
			out[key] = []any{prev, val}
		case []any:
			out[key] = append(prev, val)
		default:
			out[key] = []any{prev, val}
		}
	}
	for _, a := range n.Attrs {
		add(a.Key, a.Value)
	}
	for _, e := range n.Elements {
		add(e.Key, ds.plain(e.Ref))
	}
	return out
}

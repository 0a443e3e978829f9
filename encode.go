package xmlbox

import (
	"context"
	"encoding"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/KimNorgaard/go-xmlbox/internal/box"
	"github.com/KimNorgaard/go-xmlbox/internal/formatter"
)

// An Encoder writes XML documents to an output stream.
type Encoder struct {
	w    io.Writer
	opts []Option
}

// NewEncoder returns a new encoder that writes to w.
func NewEncoder(w io.Writer, opts ...Option) *Encoder {
	return &Encoder{w: w, opts: opts}
}

// Encode writes the XML encoding of v to the stream.
//
// See the documentation for Marshal for details about the conversion of Go
// values to XML.
func (e *Encoder) Encode(v any) error {
	o, err := newOptions(e.opts)
	if err != nil {
		return err
	}
	es := newEncodeState(o)
	root, err := es.encodeRoot(v)
	if err != nil {
		return err
	}
	name := o.rootKey
	if name == "" {
		name = rootName(reflect.TypeOf(v))
	}
	return formatter.New(e.w, es.tree, o.formatterOptions()).Format(name, root)
}

// rootName derives the document element name from the encoded type.
func rootName(t reflect.Type) string {
	t = strategyType(t)
	if t == nil || t.Name() == "" {
		return "root"
	}
	name := t.Name()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	return name
}

var (
	timeType            = reflect.TypeFor[time.Time]()
	marshalerType       = reflect.TypeFor[Marshaler]()
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	unmarshalerType     = reflect.TypeFor[Unmarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

type encodeState struct {
	opts     *options
	tree     *box.Tree
	scopes   []scope
	prefixes *prefixRegistry
	// err is the first failure of a container operation that has no
	// error result.
	err error
}

func newEncodeState(o *options) *encodeState {
	return &encodeState{
		opts:     o,
		tree:     box.New(),
		prefixes: newPrefixRegistry(o.logger),
	}
}

func (s *encodeState) encodeRoot(v any) (box.Ref, error) {
	defer s.tree.Freeze()
	ref, err := s.box(nil, reflect.ValueOf(v))
	if err != nil {
		return box.NoRef, err
	}
	if s.err != nil {
		return box.NoRef, s.err
	}
	return ref, nil
}

func (s *encodeState) check(err error) {
	if err != nil && s.err == nil {
		s.err = err
	}
}

func (s *encodeState) top() scope {
	if len(s.scopes) == 0 {
		return scope{}
	}
	return s.scopes[len(s.scopes)-1]
}

// box encodes v with the resolvers of its own type in scope.
func (s *encodeState) box(path []string, v reflect.Value) (box.Ref, error) {
	s.scopes = append(s.scopes, scope{path: path, res: s.opts.encodingResolver(typeOf(v), path)})
	defer s.pop()
	return s.marshalValue(v)
}

// boxItem encodes a sequence item. Items share the resolvers of their
// sequence.
func (s *encodeState) boxItem(path []string, v reflect.Value) (box.Ref, error) {
	s.scopes = append(s.scopes, scope{path: path, res: s.top().res})
	defer s.pop()
	return s.marshalValue(v)
}

func (s *encodeState) pop() {
	s.scopes = s.scopes[:len(s.scopes)-1]
}

func typeOf(v reflect.Value) reflect.Type {
	if !v.IsValid() {
		return nil
	}
	return v.Type()
}

// implementer returns v, or a pointer to v, as an I. Values that are not
// addressable are copied so pointer receivers can be used.
func implementer[I any](v reflect.Value, it reflect.Type) (I, bool) {
	var zero I
	if v.Kind() == reflect.Interface || !v.CanInterface() {
		return zero, false
	}
	if v.Type().Implements(it) {
		return v.Interface().(I), true
	}
	if !reflect.PointerTo(v.Type()).Implements(it) {
		return zero, false
	}
	if v.CanAddr() {
		return v.Addr().Interface().(I), true
	}
	p := reflect.New(v.Type())
	p.Elem().Set(v)
	return p.Interface().(I), true
}

func (s *encodeState) marshalValue(v reflect.Value) (box.Ref, error) { //nolint:gocyclo
	if len(s.scopes) > s.opts.maxDepth {
		return box.NoRef, fmt.Errorf("xmlbox: reached max recursion depth")
	}

	for {
		if !v.IsValid() {
			return s.tree.NewNull(), nil
		}
		if (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && v.IsNil() {
			return s.tree.NewNull(), nil
		}
		if v.Type() == timeType {
			return s.marshalTime(v), nil
		}
		if m, ok := implementer[Marshaler](v, marshalerType); ok {
			return s.marshalCustom(v, m)
		}
		if m, ok := implementer[encoding.TextMarshaler](v, textMarshalerType); ok {
			text, err := m.MarshalText()
			if err != nil {
				return box.NoRef, &MarshalerError{Type: v.Type(), Err: err}
			}
			return s.tree.NewScalar(string(text)), nil
		}
		if v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
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

	switch v.Kind() {
	case reflect.String:
		return s.tree.NewScalar(v.String()), nil
	case reflect.Bool:
		return s.tree.NewScalar(strconv.FormatBool(v.Bool())), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return s.tree.NewScalar(strconv.FormatInt(v.Int(), 10)), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return s.tree.NewScalar(strconv.FormatUint(v.Uint(), 10)), nil
	case reflect.Float32:
		return s.tree.NewScalar(strconv.FormatFloat(v.Float(), 'g', -1, 32)), nil
	case reflect.Float64:
		return s.tree.NewScalar(strconv.FormatFloat(v.Float(), 'g', -1, 64)), nil
	case reflect.Struct:
		if isChoice(v.Type()) {
			return s.marshalChoice(v)
		}
		return s.marshalStruct(v)
	case reflect.Map:
		return s.marshalMap(v)
	case reflect.Slice:
		if v.IsNil() {
			return s.tree.NewNull(), nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return s.tree.NewScalar(base64.StdEncoding.EncodeToString(v.Bytes())), nil
		}
		return s.marshalSequence(v)
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, v.Len())
			reflect.Copy(reflect.ValueOf(b), v)
			return s.tree.NewScalar(base64.StdEncoding.EncodeToString(b)), nil
		}
		return s.marshalSequence(v)
	}
	return box.NoRef, fmt.Errorf("xmlbox: unsupported type %s", v.Type())
}

func (s *encodeState) marshalTime(v reflect.Value) box.Ref {
	t := v.Interface().(time.Time)
	if s.opts.timeFormat == UnixSeconds {
		return s.tree.NewScalar(strconv.FormatInt(t.Unix(), 10))
	}
	return s.tree.NewScalar(t.Format(s.opts.timeFormat))
}

func (s *encodeState) marshalCustom(v reflect.Value, m Marshaler) (box.Ref, error) {
	e := &ValueEncoder{s: s, path: s.top().path, ref: box.NoRef}
	if err := m.MarshalXMLBox(e); err != nil {
		if passThrough(err) {
			return box.NoRef, err
		}
		return box.NoRef, &MarshalerError{Type: v.Type(), Err: err}
	}
	if e.ref == box.NoRef {
		return s.tree.NewNull(), nil
	}
	return e.ref, nil
}

func (s *encodeState) marshalStruct(v reflect.Value) (box.Ref, error) {
	k := &KeyedEncoder{s: s, ref: s.tree.NewKeyed(), path: s.top().path}
	fields := cachedFields(v.Type())
	for i := range fields.list {
		f := &fields.list[i]
		fv, ok := fieldByIndex(v, f.idx)
		if !ok || (f.omitEmpty && isEmptyValue(fv)) {
			continue
		}
		if err := k.encode(f.name, peel(fv, f.depth), f); err != nil {
			return box.NoRef, err
		}
	}
	return k.ref, nil
}

func (s *encodeState) marshalChoice(v reflect.Value) (box.Ref, error) {
	c := &ChoiceEncoder{s: s, ref: s.tree.NewChoice(), path: s.top().path}
	fields := cachedFields(v.Type())
	for i := range fields.list {
		f := &fields.list[i]
		fv, ok := fieldByIndex(v, f.idx)
		if !ok || !isSet(fv) {
			continue
		}
		if err := c.encode(f.name, peel(fv, f.depth)); err != nil {
			return box.NoRef, err
		}
	}
	if !c.hasCase() {
		return box.NoRef, &CodingError{
			Kind:   ErrMissingRequiredValue,
			Path:   clonePath(c.path),
			Detail: fmt.Sprintf("no case of %s is set", v.Type()),
		}
	}
	return c.ref, nil
}

func (s *encodeState) marshalMap(v reflect.Value) (box.Ref, error) {
	if v.IsNil() {
		return s.tree.NewNull(), nil
	}
	keys := v.MapKeys()
	names := make([]string, len(keys))
	for i, key := range keys {
		switch key.Kind() {
		case reflect.String:
			names[i] = key.String()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			names[i] = strconv.FormatInt(key.Int(), 10)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			names[i] = strconv.FormatUint(key.Uint(), 10)
		default:
			return box.NoRef, fmt.Errorf("xmlbox: unsupported map key type %s", key.Type())
		}
	}
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return names[order[i]] < names[order[j]] })

	u := describe(v.Type().Elem())
	hint := &field{placement: u.placement, nullable: u.nullable}
	k := &KeyedEncoder{s: s, ref: s.tree.NewKeyed(), path: s.top().path}
	for _, i := range order {
		if err := k.encode(names[i], peel(v.MapIndex(keys[i]), u.depth), hint); err != nil {
			return box.NoRef, err
		}
	}
	return k.ref, nil
}

func (s *encodeState) marshalSequence(v reflect.Value) (box.Ref, error) {
	u := &UnkeyedEncoder{s: s, ref: s.tree.NewUnkeyed(), path: s.top().path}
	for i := 0; i < v.Len(); i++ {
		if err := u.encode(v.Index(i)); err != nil {
			return box.NoRef, err
		}
	}
	return u.ref, nil
}

// qualify places ref in the namespace uri. Each item of a sequence is
// qualified on its own.
func (s *encodeState) qualify(ref box.Ref, prefix, uri string) (box.Ref, error) {
	if s.tree.Kind(ref) != box.Unkeyed {
		return s.wrapNamespace(ref, prefix, uri)
	}
	list := s.tree.NewUnkeyed()
	for _, item := range s.tree.At(ref).Elements {
		w, err := s.wrapNamespace(item.Ref, prefix, uri)
		if err != nil {
			return box.NoRef, err
		}
		if err := s.tree.AppendItem(list, w); err != nil {
			return box.NoRef, err
		}
	}
	return list, nil
}

// wrapNamespace returns a keyed node that declares the namespace and holds
// ref as its content.
func (s *encodeState) wrapNamespace(ref box.Ref, prefix, uri string) (box.Ref, error) {
	w := s.tree.NewKeyed()
	if err := s.tree.AddNamespace(w, prefix, uri); err != nil {
		return box.NoRef, err
	}
	if s.tree.Kind(ref) == box.Choice {
		for _, c := range s.tree.At(ref).Elements {
			if err := s.tree.AppendElement(w, c.Key, c.Ref); err != nil {
				return box.NoRef, err
			}
		}
		return w, nil
	}
	if err := s.tree.AppendElement(w, box.IntrinsicKey, ref); err != nil {
		return box.NoRef, err
	}
	return w, nil
}

// trace logs a placement decision.
func (o *options) trace(msg string, path []string, p Placement, namespace string) {
	if !o.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	o.logger.Debug(msg,
		slog.String("path", strings.Join(path, ".")),
		slog.String("placement", p.String()),
		slog.String("namespace", namespace),
	)
}

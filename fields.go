package xmlbox

import (
	"reflect"
	"strings"
	"sync"
)

// A field represents a single encodable field of a struct.
type field struct {
	name      string
	idx       []int
	typ       reflect.Type // type inside the marker wrappers
	depth     int          // number of marker wrappers around typ
	placement Placement
	nullable  bool
	omitEmpty bool
	namespace string
}

// required reports whether decoding fails when the field is absent.
func (f *field) required() bool {
	if f.omitEmpty || f.nullable || f.placement == PlacementIntrinsic {
		return false
	}
	switch f.typ.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return false
	}
	return true
}

// structFields holds the fields of a struct type in declaration order.
type structFields struct {
	list []field
}

var fieldCache sync.Map // map[reflect.Type]*structFields

// parseTag splits a struct tag into its name and options.
func parseTag(tag string) (string, map[string]string) {
	name, rest, _ := strings.Cut(tag, ",")
	opts := make(map[string]string)
	for rest != "" {
		var opt string
		opt, rest, _ = strings.Cut(rest, ",")
		k, v, _ := strings.Cut(strings.TrimSpace(opt), "=")
		opts[k] = v
	}
	return name, opts
}

var tagPlacements = map[string]Placement{
	"attr":      PlacementAttribute,
	"element":   PlacementElement,
	"intrinsic": PlacementIntrinsic,
	"both":      PlacementBoth,
}

// cachedFields returns the fields of the struct type t. Fields of embedded
// structs are flattened into the list; on a name clash the shallower field
// wins. The result is cached to avoid repeated reflection work.
func cachedFields(t reflect.Type) *structFields {
	if f, ok := fieldCache.Load(t); ok {
		return f.(*structFields)
	}

	var all []field
	var walk func(t reflect.Type, idx []int)
	walk = func(t reflect.Type, idx []int) {
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			tag := sf.Tag.Get("xmlbox")
			if tag == "-" {
				continue
			}
			name, opts := parseTag(tag)
			index := append(append([]int(nil), idx...), i)

			if sf.Anonymous && name == "" {
				et := sf.Type
				if et.Kind() == reflect.Pointer {
					et = et.Elem()
				}
				if et.Kind() == reflect.Struct && describe(et).depth == 0 {
					walk(et, index)
					continue
				}
			}
			if !sf.IsExported() {
				continue
			}

			u := describe(sf.Type)
			f := field{
				name:      name,
				idx:       index,
				typ:       u.typ,
				depth:     u.depth,
				placement: u.placement,
				nullable:  u.nullable,
				namespace: opts["ns"],
			}
			if f.name == "" {
				f.name = sf.Name
			}
			for opt := range opts {
				if p, ok := tagPlacements[opt]; ok && f.placement == PlacementDefault {
					f.placement = p
				}
			}
			_, f.omitEmpty = opts["omitempty"]
			if _, ok := opts["nullable"]; ok {
				f.nullable = true
			}
			all = append(all, f)
		}
	}
	walk(t, nil)

	fields := &structFields{}
	byName := make(map[string]int, len(all))
	for _, f := range all {
		if i, ok := byName[f.name]; ok {
			if len(fields.list[i].idx) > len(f.idx) {
				fields.list[i] = f
			}
			continue
		}
		byName[f.name] = len(fields.list)
		fields.list = append(fields.list, f)
	}

	fieldCache.Store(t, fields)
	return fields
}

// fieldByIndex returns the field of v at index. The boolean is false when
// the path runs through a nil embedded pointer.
func fieldByIndex(v reflect.Value, index []int) (reflect.Value, bool) {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v, true
}

// fieldByIndexAlloc is fieldByIndex for decoding: nil embedded pointers
// along the path are allocated.
func fieldByIndexAlloc(v reflect.Value, index []int) (reflect.Value, bool) {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				if !v.CanSet() {
					return reflect.Value{}, false
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v, true
}

// isEmptyValue reports whether the value v is empty.
func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Pointer:
		return v.IsNil()
	case reflect.Struct:
		if u := describe(v.Type()); u.depth > 0 {
			return isEmptyValue(peel(v, u.depth))
		}
	}
	return false
}

// isSet reports whether a choice case holds a value.
func isSet(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice:
		return !v.IsNil()
	case reflect.Struct:
		if u := describe(v.Type()); u.depth > 0 {
			return isSet(peel(v, u.depth))
		}
	}
	return !v.IsZero()
}

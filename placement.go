package xmlbox

import "reflect"

// Placement declares where a field appears in a document.
type Placement uint8

const (
	// PlacementDefault defers the decision to the next resolver in line.
	PlacementDefault Placement = iota
	// PlacementElement writes the value as a child element.
	PlacementElement
	// PlacementAttribute writes the value as an attribute. Only scalar
	// values can be attributes.
	PlacementAttribute
	// PlacementIntrinsic writes the value as the content of the parent
	// element itself.
	PlacementIntrinsic
	// PlacementBoth writes the value as an attribute and as a child element
	// under the same key. Decoding accepts either, preferring the element.
	PlacementBoth
)

func (p Placement) String() string {
	switch p {
	case PlacementDefault:
		return "default"
	case PlacementElement:
		return "element"
	case PlacementAttribute:
		return "attribute"
	case PlacementIntrinsic:
		return "intrinsic"
	case PlacementBoth:
		return "both"
	}
	return "unknown"
}

// marker is implemented by the field wrappers below.
type marker interface {
	xmlboxPlacement() Placement
}

// nullableMarker is implemented by Nullable.
type nullableMarker interface {
	xmlboxNullable()
}

// Attribute places its value in an attribute of the enclosing element.
//
//	type Book struct {
//		ID xmlbox.Attribute[int] `xmlbox:"id"`
//	}
//
// encodes Book{ID: xmlbox.Attribute[int]{Value: 42}} as <Book id="42" />.
type Attribute[T any] struct {
	Value T
}

func (Attribute[T]) xmlboxPlacement() Placement { return PlacementAttribute }

// Element places its value in a child element of the enclosing element.
// Combined with Nullable, an absent value still produces an element that
// carries the null marker.
type Element[T any] struct {
	Value T
}

func (Element[T]) xmlboxPlacement() Placement { return PlacementElement }

// Intrinsic places its value as the content of the enclosing element, e.g.
// Book{Value: xmlbox.Intrinsic[int]{Value: 42}} encodes as <Book>42</Book>.
type Intrinsic[T any] struct {
	Value T
}

func (Intrinsic[T]) xmlboxPlacement() Placement { return PlacementIntrinsic }

// ElementAndAttribute places its value both in an attribute and in a child
// element under the same key. Decoding accepts a document carrying either
// or both; the element wins when both are present.
type ElementAndAttribute[T any] struct {
	Value T
}

func (ElementAndAttribute[T]) xmlboxPlacement() Placement { return PlacementBoth }

// Nullable marks an optional value whose absence is written as an explicit
// null element rather than omitted:
//
//	type Book struct {
//		Title xmlbox.Element[xmlbox.Nullable[string]] `xmlbox:"title"`
//	}
//
// encodes a nil Value as <Book><title null="true"></title></Book>.
type Nullable[T any] struct {
	Value *T
}

func (Nullable[T]) xmlboxNullable() {}

// Some returns a Nullable holding v.
func Some[T any](v T) Nullable[T] {
	return Nullable[T]{Value: &v}
}

// Choice is implemented by struct types that hold exactly one of several
// alternatives. Each field is a case keyed by its name; exactly one field
// must be set when encoding, and decoding requires exactly one recognized
// key in the document.
type Choice interface {
	XMLBoxChoice()
}

var (
	markerType         = reflect.TypeFor[marker]()
	nullableMarkerType = reflect.TypeFor[nullableMarker]()
	choiceType         = reflect.TypeFor[Choice]()
)

// unwrapped describes the marker layers around a type.
type unwrapped struct {
	typ       reflect.Type
	placement Placement
	nullable  bool
	depth     int
}

// describe peels marker wrappers off t. Each wrapper stores its value in
// its first field.
func describe(t reflect.Type) unwrapped {
	u := unwrapped{typ: t}
	for u.typ != nil && u.typ.Kind() == reflect.Struct {
		switch {
		case u.typ.Implements(markerType):
			if u.placement == PlacementDefault {
				u.placement = reflect.Zero(u.typ).Interface().(marker).xmlboxPlacement()
			}
		case u.typ.Implements(nullableMarkerType):
			u.nullable = true
		default:
			return u
		}
		u.typ = u.typ.Field(0).Type
		u.depth++
	}
	return u
}

// peel follows depth marker layers of v.
func peel(v reflect.Value, depth int) reflect.Value {
	for i := 0; i < depth; i++ {
		v = v.Field(0)
	}
	return v
}

func isChoice(t reflect.Type) bool {
	return t.Implements(choiceType) || reflect.PointerTo(t).Implements(choiceType)
}

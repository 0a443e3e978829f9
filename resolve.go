package xmlbox

import (
	"reflect"
	"sync"
)

// DynamicNodeEncoding is implemented by types that declare the placement
// of their keys when encoding. It is called on the zero value.
type DynamicNodeEncoding interface {
	NodeEncoding(key string) Placement
}

// DynamicNodeDecoding is implemented by types that declare where their keys
// are found when decoding. It is called on the zero value.
type DynamicNodeDecoding interface {
	NodeDecoding(key string) Placement
}

// DynamicNamespaceEncoding is implemented by types that qualify some of
// their keys with a namespace URI. An empty URI leaves the key unqualified.
type DynamicNamespaceEncoding interface {
	NamespaceURI(key string) string
}

// PlacementStrategy is a per-document placement resolver. It is consulted
// each time a value enters scope at path and returns the resolver for that
// value's keys, or nil to defer to the type. As with the static resolvers,
// t is the item type: pointers, sequences, maps and markers are removed.
type PlacementStrategy func(t reflect.Type, path []string) func(key string) Placement

// NamespaceStrategy is a per-document namespace resolver. It returns the
// resolver for the keys of type t, or nil to defer to the type. t is
// unwrapped the same way as for PlacementStrategy.
type NamespaceStrategy func(t reflect.Type) func(key string) string

// resolver answers placement and namespace questions for the keys of one
// value in scope.
type resolver struct {
	dynamic   func(string) Placement
	static    func(string) Placement
	dynamicNS func(string) string
	staticNS  func(string) string
}

// placement applies the dynamic override first and the type's own
// declaration second. PlacementDefault means neither decided.
func (r resolver) placement(key string) Placement {
	if r.dynamic != nil {
		if p := r.dynamic(key); p != PlacementDefault {
			return p
		}
	}
	if r.static != nil {
		return r.static(key)
	}
	return PlacementDefault
}

func (r resolver) namespace(key string) string {
	if r.dynamicNS != nil {
		if ns := r.dynamicNS(key); ns != "" {
			return ns
		}
	}
	if r.staticNS != nil {
		return r.staticNS(key)
	}
	return ""
}

// scope is one entry of the resolver stack.
type scope struct {
	path []string
	res  resolver
}

type staticResolvers struct {
	encoding  func(string) Placement
	decoding  func(string) Placement
	namespace func(string) string
}

var staticCache sync.Map // map[reflect.Type]*staticResolvers

// elementType follows pointers, sequences, maps and markers to the type
// whose declarations apply. A sequence of namespace-aware items uses the
// item type's rules.
func elementType(t reflect.Type) reflect.Type {
	for t != nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Map:
			t = t.Elem()
			continue
		case reflect.Struct:
			if u := describe(t); u.depth > 0 {
				t = u.typ
				continue
			}
		}
		return t
	}
	return nil
}

// instance returns a value of t that carries the methods of t or *t.
func instance[I any](t reflect.Type) (I, bool) {
	var zero I
	if v, ok := reflect.Zero(t).Interface().(I); ok {
		return v, true
	}
	if v, ok := reflect.New(t).Interface().(I); ok {
		return v, true
	}
	return zero, false
}

func staticFor(t reflect.Type) *staticResolvers {
	t = elementType(t)
	if t == nil {
		return &staticResolvers{}
	}
	if s, ok := staticCache.Load(t); ok {
		return s.(*staticResolvers)
	}
	s := &staticResolvers{}
	if v, ok := instance[DynamicNodeEncoding](t); ok {
		s.encoding = v.NodeEncoding
	}
	if v, ok := instance[DynamicNodeDecoding](t); ok {
		s.decoding = v.NodeDecoding
	}
	if v, ok := instance[DynamicNamespaceEncoding](t); ok {
		s.namespace = v.NamespaceURI
	}
	staticCache.Store(t, s)
	return s
}

// strategyType is the type handed to user strategies. Pointers carry no
// meaning in a document and are removed.
func strategyType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func (o *options) encodingResolver(t reflect.Type, path []string) resolver {
	return o.resolver(t, path, o.nodeEncoding, func(s *staticResolvers) func(string) Placement { return s.encoding })
}

func (o *options) decodingResolver(t reflect.Type, path []string) resolver {
	return o.resolver(t, path, o.nodeDecoding, func(s *staticResolvers) func(string) Placement { return s.decoding })
}

func (o *options) resolver(t reflect.Type, path []string, strategy PlacementStrategy, pick func(*staticResolvers) func(string) Placement) resolver {
	if t == nil {
		return resolver{}
	}
	s := staticFor(t)
	r := resolver{static: pick(s), staticNS: s.namespace}
	st := elementType(t)
	if strategy != nil {
		r.dynamic = strategy(st, path)
	}
	if o.namespaces != nil {
		r.dynamicNS = o.namespaces(st)
	}
	return r
}

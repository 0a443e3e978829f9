package xmlbox

import "bytes"

// Marshaler is the interface implemented by types that encode themselves
// through the container API.
type Marshaler interface {
	MarshalXMLBox(e *ValueEncoder) error
}

// Unmarshaler is the interface implemented by types that decode
// themselves through the container API.
type Unmarshaler interface {
	UnmarshalXMLBox(d *ValueDecoder) error
}

// Marshal returns the XML encoding of v.
//
// Structs encode as elements whose fields become child elements, attributes
// or content according to the markers, struct tags and resolvers in scope.
// Slices and arrays encode as repeated elements under their key, maps as
// child elements in key order, and nil pointers are omitted unless the
// field is nullable. The document element is named by the RootKey option,
// or after the type of v.
func Marshal(v any, opts ...Option) ([]byte, error) {
	var buf bytes.Buffer
	e := NewEncoder(&buf, opts...)
	if err := e.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal parses the XML-encoded data and stores the result in the value
// pointed to by v.
//
// Child elements and attributes are matched to struct fields by key, exactly
// first and then case-insensitively. Unless a field declares otherwise, an
// element is preferred and an attribute of the same key is the fallback.
// Fields that are not pointers, slices, maps, interfaces or nullable and
// carry no omitempty option are required.
func Unmarshal(data []byte, v any, opts ...Option) error {
	return unmarshal(data, v, opts)
}

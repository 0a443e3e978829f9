package xmlbox

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Error kinds. Use errors.Is to test a returned error against them.
var (
	// ErrInvalidAttributeValue reports a non-scalar value placed in an
	// attribute or as intrinsic content.
	ErrInvalidAttributeValue = errors.New("invalid attribute value")
	// ErrMissingRequiredValue reports a required key absent from a
	// document, or a choice without a case.
	ErrMissingRequiredValue = errors.New("missing required value")
	// ErrInvalidChoice reports a choice with more than one case.
	ErrInvalidChoice = errors.New("invalid choice")
	// ErrDataCorrupted reports malformed input or a value that does not
	// fit its target type.
	ErrDataCorrupted = errors.New("data corrupted")
	// ErrInvalidContainer reports a Marshaler that stores its value twice
	// or asks for containers of different kinds.
	ErrInvalidContainer = errors.New("invalid container use")
)

// A CodingError describes a failure at a position in the value being
// encoded or decoded.
type CodingError struct {
	// Kind is one of the Err* sentinels.
	Kind error
	// Path is the chain of keys from the root to the failing value.
	Path []string
	// Detail describes the failure.
	Detail string
	// Line and Column locate the failure in the input, when known.
	Line, Column int
	// Context is a window of input around the failure point.
	Context string
	// Err is the underlying error, if any.
	Err error
}

func (e *CodingError) Error() string {
	var sb strings.Builder
	sb.WriteString("xmlbox: ")
	sb.WriteString(e.Kind.Error())
	if len(e.Path) > 0 {
		sb.WriteString(" at ")
		sb.WriteString(strings.Join(e.Path, "."))
	}
	if e.Line > 0 {
		fmt.Fprintf(&sb, " (line %d, column %d)", e.Line, e.Column)
	}
	switch {
	case e.Detail != "":
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	case e.Err != nil:
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	if e.Context != "" {
		sb.WriteString(":\n`")
		sb.WriteString(e.Context)
		sb.WriteString("`")
	}
	return sb.String()
}

// Is reports whether target is the kind of e.
func (e *CodingError) Is(target error) bool { return target == e.Kind }

func (e *CodingError) Unwrap() error { return e.Err }

// A MarshalerError represents an error from calling a MarshalXMLBox or
// MarshalText method.
type MarshalerError struct {
	Type reflect.Type
	Err  error
}

func (e *MarshalerError) Error() string {
	return "xmlbox: error calling MarshalXMLBox for type " + e.Type.String() + ": " + e.Err.Error()
}

func (e *MarshalerError) Unwrap() error { return e.Err }

// An UnmarshalerError represents an error from calling an UnmarshalXMLBox
// or UnmarshalText method.
type UnmarshalerError struct {
	Type reflect.Type
	Err  error
}

func (e *UnmarshalerError) Error() string {
	return "xmlbox: error calling UnmarshalXMLBox for type " + e.Type.String() + ": " + e.Err.Error()
}

func (e *UnmarshalerError) Unwrap() error { return e.Err }

// passThrough reports whether err already carries position or type
// information and needs no further wrapping.
func passThrough(err error) bool {
	var ce *CodingError
	var me *MarshalerError
	var ue *UnmarshalerError
	return errors.As(err, &ce) || errors.As(err, &me) || errors.As(err, &ue)
}

func clonePath(path []string, key ...string) []string {
	out := make([]string, 0, len(path)+len(key))
	out = append(out, path...)
	return append(out, key...)
}

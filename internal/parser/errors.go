package parser

import (
	"fmt"
	"unicode/utf8"
)

// ParseError represents a single error that occurred during parsing.
// It includes the position of the error and, when requested, a window of
// the surrounding input.
type ParseError struct {
	Message string
	Line    int
	Column  int
	Offset  int
	Context string
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("xmlbox: parsing error at line %d, column %d: %s", e.Line, e.Column, e.Message)
	if e.Context != "" {
		msg += ":\n`" + e.Context + "`"
	}
	return msg
}

// ParseErrors is a slice of ParseError that implements the error interface.
type ParseErrors []*ParseError

func (p ParseErrors) Error() string {
	if len(p) == 0 {
		return ""
	}
	// The first error is the one that stopped the parser.
	return p[0].Error()
}

// Position converts a byte offset into a 1-based line and column. Columns
// count codepoints.
func Position(src []byte, offset int) (line, column int) {
	offset = clamp(offset, 0, len(src))
	line, column = 1, 1
	for i := 0; i < offset; {
		r, size := utf8.DecodeRune(src[i:])
		i += size
		if r == '\n' {
			line++
			column = 1
			continue
		}
		column++
	}
	return line, column
}

// Window returns up to n codepoints of src before and after offset,
// clamped to the bounds of the document.
func Window(src []byte, offset, n int) string {
	if n <= 0 || len(src) == 0 {
		return ""
	}
	offset = clamp(offset, 0, len(src))
	// Do not start in the middle of a codepoint.
	for offset > 0 && offset < len(src) && !utf8.RuneStart(src[offset]) {
		offset--
	}

	start := offset
	for i := 0; i < n && start > 0; i++ {
		_, size := utf8.DecodeLastRune(src[:start])
		start -= size
	}
	end := offset
	for i := 0; i < n && end < len(src); i++ {
		_, size := utf8.DecodeRune(src[end:])
		end += size
	}
	return string(src[start:end])
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Package parser turns XML documents into box trees.
package parser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"

	"github.com/KimNorgaard/go-xmlbox/internal/box"
)

// DefaultNullMarker is the attribute that marks an element as explicitly null.
const DefaultNullMarker = "null"

// Options configures a Parser.
type Options struct {
	// TrimValueWhitespaces trims leading and trailing whitespace of text.
	TrimValueWhitespaces bool
	// NullMarker is the attribute name whose value "true" marks a null
	// element. DefaultNullMarker is used when empty.
	NullMarker string
	// ContextLength is the number of codepoints of input attached to errors
	// on each side of the failure point. Zero disables the window.
	ContextLength int
}

// Document is the result of a parse.
type Document struct {
	Tree     *box.Tree
	Root     box.Ref
	RootName string
}

// Parser holds the state of the parser.
type Parser struct {
	src    []byte
	opts   Options
	tree   *box.Tree
	errors ParseErrors
}

// New creates a new parser over src.
func New(src []byte, opts Options) *Parser {
	if opts.NullMarker == "" {
		opts.NullMarker = DefaultNullMarker
	}
	return &Parser{src: src, opts: opts, tree: box.New()}
}

// Errors returns the errors encountered during parsing.
func (p *Parser) Errors() ParseErrors {
	return p.errors
}

// content is one piece of an element body, either text or a child element.
type content struct {
	text   string
	isText bool
	key    string
	ref    box.Ref
}

type frame struct {
	name   string
	offset int
	attrs  []xml.Attr
	body   []content
	// scope maps the prefixes in scope to their URIs; "" is the default
	// namespace. It is shared with the parent unless the element declares.
	scope map[string]string
	space string
}

// rootScope binds the prefix "xml", which every document has in scope.
var rootScope = map[string]string{"xml": "http://www.w3.org/XML/1998/namespace"}

// enter returns the prefix scope of an element with attrs inside parent.
func enter(parent map[string]string, attrs []xml.Attr) map[string]string {
	scope, cloned := parent, false
	for _, a := range attrs {
		var prefix string
		switch {
		case a.Name.Space == "" && a.Name.Local == "xmlns":
		case a.Name.Space == "xmlns":
			prefix = a.Name.Local
		default:
			continue
		}
		if !cloned {
			scope, cloned = maps.Clone(parent), true
		}
		scope[prefix] = a.Value
	}
	return scope
}

// Parse parses the document. On failure the returned document is nil and
// Errors reports why.
func (p *Parser) Parse() *Document {
	d := xml.NewDecoder(bytes.NewReader(p.src))
	d.Strict = true

	var (
		stack    []*frame
		doc      *Document
		offset   int64
		rootSeen bool
	)
	for {
		offset = d.InputOffset()
		tok, err := d.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.addError(syntaxMessage(err), int(d.InputOffset()))
			return nil
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) == 0 && rootSeen {
				p.addError("multiple root elements", int(offset))
				return nil
			}
			rootSeen = true
			f := &frame{
				name:   qualified(t.Name),
				offset: int(offset),
				attrs:  t.Copy().Attr,
				scope:  rootScope,
			}
			if len(stack) > 0 {
				f.scope = stack[len(stack)-1].scope
			}
			f.scope = enter(f.scope, f.attrs)
			f.space = f.scope[t.Name.Space]
			stack = append(stack, f)
		case xml.EndElement:
			name := qualified(t.Name)
			if len(stack) == 0 {
				p.addError(fmt.Sprintf("unexpected end element </%s>", name), int(offset))
				return nil
			}
			top := stack[len(stack)-1]
			if top.name != name {
				p.addError(fmt.Sprintf("element <%s> closed by </%s>", top.name, name), int(offset))
				return nil
			}
			stack = stack[:len(stack)-1]
			ref, err := p.build(top)
			if err != nil {
				p.addError(err.Error(), top.offset)
				return nil
			}
			if len(stack) == 0 {
				doc = &Document{Tree: p.tree, Root: ref, RootName: top.name}
				continue
			}
			parent := stack[len(stack)-1]
			parent.body = append(parent.body, content{key: top.name, ref: ref})
		case xml.CharData:
			if len(stack) == 0 {
				if len(bytes.TrimSpace(t)) > 0 {
					p.addError("text outside of the root element", int(offset))
					return nil
				}
				continue
			}
			top := stack[len(stack)-1]
			top.body = append(top.body, content{text: string(t), isText: true})
		default:
			// Comments, processing instructions and directives carry no data.
		}
	}

	if len(stack) > 0 {
		p.addError(fmt.Sprintf("unexpected end of input inside <%s>", stack[len(stack)-1].name), len(p.src))
		return nil
	}
	if doc == nil {
		p.addError("document has no root element", len(p.src))
		return nil
	}
	return doc
}

// build allocates the node for a closed element.
func (p *Parser) build(f *frame) (box.Ref, error) {
	var (
		attrs       []box.Attr
		namespaces  []box.Attr
		hasElements bool
	)
	seen := make(map[string]bool, len(f.attrs))
	for _, a := range f.attrs {
		switch {
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			namespaces = append(namespaces, box.Attr{Key: "", Value: a.Value})
		case a.Name.Space == "xmlns":
			namespaces = append(namespaces, box.Attr{Key: a.Name.Local, Value: a.Value})
		default:
			key := qualified(a.Name)
			if seen[key] {
				return box.NoRef, fmt.Errorf("duplicate attribute %q", key)
			}
			seen[key] = true
			attrs = append(attrs, box.Attr{Key: key, Value: a.Value})
		}
	}
	for _, c := range f.body {
		if !c.isText {
			hasElements = true
			break
		}
	}

	var ref box.Ref
	switch {
	case !hasElements && len(attrs) == 1 && attrs[0].Key == p.opts.NullMarker &&
		attrs[0].Value == "true" && strings.TrimSpace(p.joinText(f.body)) == "":
		ref = p.tree.NewNull()
	case !hasElements && len(attrs) == 0 && len(namespaces) == 0:
		ref = p.tree.NewScalar(p.trim(p.joinText(f.body)))
	default:
		ref = p.tree.NewKeyed()
		for _, ns := range namespaces {
			if err := p.tree.AddNamespace(ref, ns.Key, ns.Value); err != nil {
				return box.NoRef, err
			}
		}
		for _, a := range attrs {
			if err := p.tree.AppendAttr(ref, a.Key, a.Value); err != nil {
				return box.NoRef, err
			}
		}
		if err := p.appendBody(ref, f.body, hasElements); err != nil {
			return box.NoRef, err
		}
	}
	p.tree.SetOffset(ref, f.offset)
	p.tree.SetSpace(ref, f.space)
	return ref, nil
}

// appendBody copies child elements and text into a keyed node, preserving
// their order. Text becomes intrinsic content.
func (p *Parser) appendBody(ref box.Ref, body []content, hasElements bool) error {
	if !hasElements {
		text := p.trim(p.joinText(body))
		if text == "" {
			return nil
		}
		return p.tree.AppendElement(ref, box.IntrinsicKey, p.tree.NewScalar(text))
	}

	var pending strings.Builder
	flush := func() error {
		text := pending.String()
		pending.Reset()
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return p.tree.AppendElement(ref, box.IntrinsicKey, p.tree.NewScalar(p.trim(text)))
	}
	for _, c := range body {
		if c.isText {
			pending.WriteString(c.text)
			continue
		}
		if err := flush(); err != nil {
			return err
		}
		if err := p.tree.AppendElement(ref, c.key, c.ref); err != nil {
			return err
		}
	}
	return flush()
}

func (p *Parser) joinText(body []content) string {
	var sb strings.Builder
	for _, c := range body {
		if c.isText {
			sb.WriteString(c.text)
		}
	}
	return sb.String()
}

func (p *Parser) trim(s string) string {
	if p.opts.TrimValueWhitespaces {
		return strings.TrimSpace(s)
	}
	return s
}

func (p *Parser) addError(msg string, offset int) {
	line, col := Position(p.src, offset)
	p.errors = append(p.errors, &ParseError{
		Message: msg,
		Line:    line,
		Column:  col,
		Offset:  offset,
		Context: Window(p.src, offset, p.opts.ContextLength),
	})
}

func syntaxMessage(err error) string {
	var serr *xml.SyntaxError
	if errors.As(err, &serr) {
		return serr.Msg
	}
	return err.Error()
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// Package formatter writes box trees as XML.
package formatter

import (
	"io"
	"sort"
	"strings"

	"github.com/KimNorgaard/go-xmlbox/internal/box"
)

// Header is the XML declaration written when Options.Header is set.
const Header = `<?xml version="1.0" encoding="UTF-8"?>`

// Options configures the output of a Formatter.
type Options struct {
	// Indent is the number of spaces per nesting level. Zero writes the
	// document on a single line.
	Indent int
	// SortedKeys orders attributes and child elements by key.
	SortedKeys bool
	// NoEmptyElements writes empty elements as an open and close tag pair
	// instead of a self-closing tag.
	NoEmptyElements bool
	// Header prefixes the document with the XML declaration.
	Header bool
	// NullMarker is the attribute written on null elements.
	NullMarker string
}

// Formatter writes a box tree to an output stream.
type Formatter struct {
	w      io.Writer
	tree   *box.Tree
	indent string
	opts   Options
}

var (
	attrEscaper = strings.NewReplacer(
		"&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;",
		"\n", "&#10;", "\r", "&#13;", "\t", "&#9;",
	)
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\r", "&#13;")
)

// New returns a new formatter that writes tree to w.
func New(w io.Writer, tree *box.Tree, opts Options) *Formatter {
	if opts.NullMarker == "" {
		opts.NullMarker = "null"
	}
	var indent string
	if opts.Indent > 0 {
		indent = strings.Repeat(" ", opts.Indent)
	}
	return &Formatter{w: w, tree: tree, indent: indent, opts: opts}
}

// Format writes the node root as the document element called name.
func (f *Formatter) Format(name string, root box.Ref) error {
	if f.opts.Header {
		if err := f.write(Header + "\n"); err != nil {
			return err
		}
	}
	return f.writeElement(name, root, 0, f.indent == "")
}

func (f *Formatter) write(s string) error {
	_, err := io.WriteString(f.w, s)
	return err
}

func (f *Formatter) writeIndent(depth int) error {
	if f.indent == "" {
		return nil
	}
	for i := 0; i < depth; i++ {
		if err := f.write(f.indent); err != nil {
			return err
		}
	}
	return nil
}

// body is the flattened content of an element.
type body struct {
	namespaces []box.Attr
	attrs      []box.Attr
	children   []box.Pair
	hasText    bool
}

// flatten collects the content of ref, merging intrinsic keyed children into
// the element and expanding unkeyed children into one element per item.
func (f *Formatter) flatten(ref box.Ref, b *body) {
	n := f.tree.At(ref)
	b.namespaces = append(b.namespaces, n.Namespaces...)
	b.attrs = append(b.attrs, n.Attrs...)
	for _, e := range n.Elements {
		child := f.tree.At(e.Ref)
		switch {
		case e.Key == box.IntrinsicKey && child.Kind == box.Keyed:
			f.flatten(e.Ref, b)
		case e.Key == box.IntrinsicKey && child.Kind == box.Scalar:
			b.children = append(b.children, e)
			b.hasText = true
		case e.Key == box.IntrinsicKey:
			// Null or sequence content has no inline form.
		case child.Kind == box.Unkeyed:
			for _, item := range child.Elements {
				b.children = append(b.children, box.Pair{Key: e.Key, Ref: item.Ref})
			}
		default:
			b.children = append(b.children, e)
		}
	}
}

func (f *Formatter) writeElement(name string, ref box.Ref, depth int, inline bool) error {
	n := f.tree.At(ref)
	var b body
	switch n.Kind {
	case box.Null:
		b.attrs = []box.Attr{{Key: f.opts.NullMarker, Value: "true"}}
		if err := f.writeOpen(name, &b); err != nil {
			return err
		}
		return f.write("></" + name + ">")
	case box.Scalar:
		if n.Text != "" {
			return f.write("<" + name + ">" + textEscaper.Replace(n.Text) + "</" + name + ">")
		}
	case box.Keyed:
		f.flatten(ref, &b)
	case box.Unkeyed:
		for _, item := range n.Elements {
			b.children = append(b.children, box.Pair{Key: name, Ref: item.Ref})
		}
	case box.Choice:
		b.children = append(b.children, n.Elements...)
	}

	if f.opts.SortedKeys {
		sort.SliceStable(b.attrs, func(i, j int) bool { return b.attrs[i].Key < b.attrs[j].Key })
		if !b.hasText {
			sort.SliceStable(b.children, func(i, j int) bool { return b.children[i].Key < b.children[j].Key })
		}
	}

	if err := f.writeOpen(name, &b); err != nil {
		return err
	}
	if len(b.children) == 0 {
		if f.opts.NoEmptyElements {
			return f.write("></" + name + ">")
		}
		return f.write(" />")
	}
	if err := f.write(">"); err != nil {
		return err
	}

	// Text content pins the layout of the whole element.
	inline = inline || b.hasText
	for _, c := range b.children {
		if c.Key == box.IntrinsicKey {
			if err := f.write(textEscaper.Replace(f.tree.At(c.Ref).Text)); err != nil {
				return err
			}
			continue
		}
		if !inline {
			if err := f.write("\n"); err != nil {
				return err
			}
			if err := f.writeIndent(depth + 1); err != nil {
				return err
			}
		}
		if err := f.writeElement(c.Key, c.Ref, depth+1, inline); err != nil {
			return err
		}
	}
	if !inline {
		if err := f.write("\n"); err != nil {
			return err
		}
		if err := f.writeIndent(depth); err != nil {
			return err
		}
	}
	return f.write("</" + name + ">")
}

func (f *Formatter) writeOpen(name string, b *body) error {
	if err := f.write("<" + name); err != nil {
		return err
	}
	for _, ns := range b.namespaces {
		key := "xmlns"
		if ns.Key != "" {
			key += ":" + ns.Key
		}
		if err := f.write(" " + key + `="` + attrEscaper.Replace(ns.Value) + `"`); err != nil {
			return err
		}
	}
	for _, a := range b.attrs {
		if err := f.write(" " + a.Key + `="` + attrEscaper.Replace(a.Value) + `"`); err != nil {
			return err
		}
	}
	return nil
}

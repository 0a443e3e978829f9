package xmlbox

import (
	"bytes"

	"github.com/KimNorgaard/go-xmlbox/internal/formatter"
)

// Format parses data and writes it back with the output options in opts.
// Attribute and element order, text and null markers are preserved unless
// SortedKeys is given. Comments and processing instructions are dropped.
func Format(data []byte, opts ...Option) ([]byte, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	doc, err := parse(data, o)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := formatter.New(&buf, doc.Tree, o.formatterOptions()).Format(doc.RootName, doc.Root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KimNorgaard/go-xmlbox/internal/box"
)

func parse(t *testing.T, input string, opts Options) *Document {
	t.Helper()
	p := New([]byte(input), opts)
	doc := p.Parse()
	require.Empty(t, p.Errors())
	require.NotNil(t, doc)
	return doc
}

func TestParse_Shapes(t *testing.T) {
	opts := Options{TrimValueWhitespaces: true}

	t.Run("Text-only element is a scalar", func(t *testing.T) {
		doc := parse(t, `<name> The Book </name>`, opts)
		require.Equal(t, "name", doc.RootName)
		n := doc.Tree.At(doc.Root)
		require.Equal(t, box.Scalar, n.Kind)
		require.Equal(t, "The Book", n.Text)
		require.Equal(t, 0, n.Offset)
	})

	t.Run("Untrimmed text keeps whitespace", func(t *testing.T) {
		doc := parse(t, `<name> The Book </name>`, Options{})
		require.Equal(t, " The Book ", doc.Tree.At(doc.Root).Text)
	})

	t.Run("Empty element is an empty scalar", func(t *testing.T) {
		doc := parse(t, `<container />`, opts)
		n := doc.Tree.At(doc.Root)
		require.Equal(t, box.Scalar, n.Kind)
		require.Equal(t, "", n.Text)
	})

	t.Run("Null marker", func(t *testing.T) {
		doc := parse(t, `<field null="true"></field>`, opts)
		require.Equal(t, box.Null, doc.Tree.Kind(doc.Root))
	})

	t.Run("Null marker with a custom name", func(t *testing.T) {
		doc := parse(t, `<field nil="true"/>`, Options{NullMarker: "nil"})
		require.Equal(t, box.Null, doc.Tree.Kind(doc.Root))
	})

	t.Run("Null-named attribute with other value is ordinary", func(t *testing.T) {
		doc := parse(t, `<field null="false"/>`, opts)
		n := doc.Tree.At(doc.Root)
		require.Equal(t, box.Keyed, n.Kind)
		require.Equal(t, []box.Attr{{Key: "null", Value: "false"}}, n.Attrs)
	})

	t.Run("Attributes and ordered children", func(t *testing.T) {
		doc := parse(t, `<Book id="42" authorID="24">
    <name>X</name>
    <authorID>24</authorID>
</Book>`, opts)
		tree := doc.Tree
		n := tree.At(doc.Root)
		require.Equal(t, box.Keyed, n.Kind)
		require.Equal(t, []box.Attr{{Key: "id", Value: "42"}, {Key: "authorID", Value: "24"}}, n.Attrs)
		require.Len(t, n.Elements, 2)
		require.Equal(t, "name", n.Elements[0].Key)
		require.Equal(t, "authorID", n.Elements[1].Key)
		require.Equal(t, "X", tree.At(n.Elements[0].Ref).Text)
	})

	t.Run("Mixed content becomes intrinsic text", func(t *testing.T) {
		doc := parse(t, `<p lang="en">hello <b>big</b> world</p>`, opts)
		tree := doc.Tree
		n := tree.At(doc.Root)
		require.Len(t, n.Elements, 3)
		require.Equal(t, box.IntrinsicKey, n.Elements[0].Key)
		require.Equal(t, "hello", tree.At(n.Elements[0].Ref).Text)
		require.Equal(t, "b", n.Elements[1].Key)
		require.Equal(t, box.IntrinsicKey, n.Elements[2].Key)
		require.Equal(t, "world", tree.At(n.Elements[2].Ref).Text)
	})

	t.Run("Namespaces are kept apart from attributes", func(t *testing.T) {
		doc := parse(t, `<n1:Name xmlns:n1="https://example.com/N1">Me</n1:Name>`, opts)
		require.Equal(t, "n1:Name", doc.RootName)
		n := doc.Tree.At(doc.Root)
		require.Equal(t, box.Keyed, n.Kind)
		require.Empty(t, n.Attrs)
		require.Equal(t, []box.Attr{{Key: "n1", Value: "https://example.com/N1"}}, n.Namespaces)
		text, ok := doc.Tree.Text(doc.Root)
		require.True(t, ok)
		require.Equal(t, "Me", text)
	})

	t.Run("Element names resolve through ancestor declarations", func(t *testing.T) {
		doc := parse(t, `<r xmlns="urn:d" xmlns:a="urn:a"><a:x>1</a:x><a:y xmlns:a="urn:b">2</a:y><z>3</z><u:w>4</u:w></r>`, opts)
		tree := doc.Tree
		n := tree.At(doc.Root)
		require.Equal(t, "urn:d", n.Space)
		require.Len(t, n.Elements, 4)
		require.Equal(t, "urn:a", tree.At(n.Elements[0].Ref).Space)
		require.Equal(t, "urn:b", tree.At(n.Elements[1].Ref).Space, "the nearest declaration wins")
		require.Equal(t, "urn:d", tree.At(n.Elements[2].Ref).Space)
		require.Equal(t, "", tree.At(n.Elements[3].Ref).Space, "undeclared prefixes stay unbound")
	})

	t.Run("Entities are decoded", func(t *testing.T) {
		doc := parse(t, `<v>escaped data: &amp;lt;&#xD;&#10;</v>`, Options{})
		require.Equal(t, "escaped data: &lt;\r\n", doc.Tree.At(doc.Root).Text)
	})

	t.Run("Comments and processing instructions are skipped", func(t *testing.T) {
		doc := parse(t, `<?xml version="1.0"?><!-- c --><a><!-- x --><b>1</b></a>`, opts)
		n := doc.Tree.At(doc.Root)
		require.Len(t, n.Elements, 1)
		require.Equal(t, "b", n.Elements[0].Key)
	})
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		message string
		line    int
	}{
		{name: "Mismatched end", input: "<container>\n  test1\n</blah>", message: "element <container> closed by </blah>", line: 3},
		{name: "Unclosed", input: "<a><b>", message: "unexpected end of input inside <b>", line: 1},
		{name: "Empty document", input: "  ", message: "document has no root element", line: 1},
		{name: "Two roots", input: "<a/><b/>", message: "multiple root elements", line: 1},
		{name: "Text outside root", input: "<a/>junk", message: "text outside of the root element", line: 1},
		{name: "Duplicate attribute", input: `<a x="1" x="2"/>`, message: `duplicate attribute "x"`, line: 1},
		{name: "Malformed tag", input: "<blah //>", line: 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := New([]byte(tc.input), Options{})
			doc := p.Parse()
			require.Nil(t, doc)
			errs := p.Errors()
			require.Len(t, errs, 1)
			if tc.message != "" {
				require.Equal(t, tc.message, errs[0].Message)
			}
			require.Equal(t, tc.line, errs[0].Line)
			require.Contains(t, errs.Error(), "xmlbox: parsing error at line")
		})
	}
}

func TestParse_ErrorContext(t *testing.T) {
	input := "<container>\n    test1\n</blah>\n<container>"
	p := New([]byte(input), Options{ContextLength: 4})
	require.Nil(t, p.Parse())
	err := p.Errors()[0]
	require.Equal(t, 3, err.Line)
	require.Equal(t, 1, err.Column)
	require.Equal(t, "st1\n</bl", err.Context)
	require.Contains(t, err.Error(), "\n`st1\n</bl`")
}

func TestPosition(t *testing.T) {
	src := []byte("ab\ncdé\nf")
	line, col := Position(src, 0)
	require.Equal(t, []int{1, 1}, []int{line, col})
	line, col = Position(src, 3)
	require.Equal(t, []int{2, 1}, []int{line, col})
	// é is two bytes but one column.
	line, col = Position(src, 8)
	require.Equal(t, []int{3, 1}, []int{line, col})
	line, col = Position(src, 1000)
	require.Equal(t, []int{3, 2}, []int{line, col})
}

func TestWindow(t *testing.T) {
	src := []byte("<blah //>")
	require.Equal(t, "", Window(src, 4, 0))
	require.Equal(t, "lah //", Window(src, 5, 3))
	// Clamped at both ends.
	require.Equal(t, "<blah", Window(src, 1, 4))
	require.Equal(t, " //>", Window(src, 9, 4))
	// Codepoints, not bytes.
	require.Equal(t, "éé", Window([]byte("ééé"), 2, 1))
}

/*
Package xmlbox encodes Go values as XML and decodes XML into Go values. The
API mirrors the standard `encoding/json` package, with control over where
each field lands in the document: as a child element, as an attribute, as
both, or as the content of its parent element.

Values are first converted into an intermediate tree of boxes (null, text,
keyed, unkeyed and choice nodes) and the tree is then written as XML, or the
other way around when decoding.

Placement is chosen per field. A field type can wrap its value in a marker:

	type Book struct {
		ID       xmlbox.Attribute[int]           `xmlbox:"id"`
		AuthorID xmlbox.ElementAndAttribute[int] `xmlbox:"authorID"`
		Name     string                          `xmlbox:"name"`
	}

	out, _ := xmlbox.Marshal(Book{
		ID:       xmlbox.Attribute[int]{Value: 42},
		AuthorID: xmlbox.ElementAndAttribute[int]{Value: 24},
		Name:     "The Book",
	})
	// <Book id="42" authorID="24"><authorID>24</authorID><name>The Book</name></Book>

The tag options attr, element, intrinsic and both do the same without a
wrapper. A type can also decide placement for its keys by implementing
DynamicNodeEncoding and DynamicNodeDecoding, and a whole document can be
steered with the NodeEncodingStrategy and NodeDecodingStrategy options,
which take precedence over the type's own declarations.

Namespaces are attached with the ns= tag option, DynamicNamespaceEncoding or
the Namespaces option. A namespaced element gets a prefix derived from a
hash of the namespace URI and declares it on itself:

	<n1a2b3c4d:Name xmlns:n1a2b3c4d="https://example.com/N1">Me</n1a2b3c4d:Name>

Types that need full control implement Marshaler and Unmarshaler and use the
keyed, unkeyed and choice containers directly. Structs that hold exactly one
of several alternatives implement Choice.

Decoding failures are reported as *CodingError values; use errors.Is with
ErrMissingRequiredValue, ErrInvalidChoice, ErrInvalidAttributeValue or
ErrDataCorrupted to tell them apart.
*/
package xmlbox

package xmlbox_test

import (
	"bytes"
	"log/slog"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KimNorgaard/go-xmlbox"
)

type Book struct {
	ID       xmlbox.Attribute[int]           `xmlbox:"id"`
	Name     string                          `xmlbox:"name"`
	AuthorID xmlbox.ElementAndAttribute[int] `xmlbox:"authorID"`
}

func TestPlacement_Book(t *testing.T) {
	book := Book{
		ID:       xmlbox.Attribute[int]{Value: 42},
		Name:     "X",
		AuthorID: xmlbox.ElementAndAttribute[int]{Value: 24},
	}

	b, err := xmlbox.Marshal(book)
	require.NoError(t, err)
	require.Equal(t, `<Book id="42" authorID="24"><name>X</name><authorID>24</authorID></Book>`, string(b))

	testCases := []struct {
		name  string
		input string
	}{
		{name: "Both forms", input: string(b)},
		{name: "Attribute only", input: `<Book id="42" authorID="24"><name>X</name></Book>`},
		{name: "Element only", input: `<Book id="42"><name>X</name><authorID>24</authorID></Book>`},
		{name: "Attribute key as element", input: `<Book><id>42</id><name>X</name><authorID>24</authorID></Book>`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var got Book
			require.NoError(t, xmlbox.Unmarshal([]byte(tc.input), &got))
			require.Equal(t, book, got)
		})
	}

	t.Run("Element wins over attribute", func(t *testing.T) {
		var got Book
		doc := `<Book id="42" authorID="1"><name>X</name><authorID>2</authorID></Book>`
		require.NoError(t, xmlbox.Unmarshal([]byte(doc), &got))
		require.Equal(t, 2, got.AuthorID.Value)
	})

	t.Run("Missing attribute", func(t *testing.T) {
		var got Book
		err := xmlbox.Unmarshal([]byte(`<Book><name>X</name><authorID>24</authorID></Book>`), &got)
		require.ErrorIs(t, err, xmlbox.ErrMissingRequiredValue)
		var ce *xmlbox.CodingError
		require.ErrorAs(t, err, &ce)
		require.Equal(t, []string{"id"}, ce.Path)
	})
}

type Slot struct {
	Pos   int    `xmlbox:"pos"`
	Label string `xmlbox:"label"`
}

type Shelf struct {
	Slots []Slot `xmlbox:"slot"`
	Spare *Slot  `xmlbox:"spare"`
}

type Review struct {
	Title xmlbox.Element[xmlbox.Nullable[string]] `xmlbox:"title"`
	Note  xmlbox.Nullable[string]                 `xmlbox:"note"`
	Plain *string                                 `xmlbox:"plain"`
}

func TestPlacement_Nullable(t *testing.T) {
	b, err := xmlbox.Marshal(Review{})
	require.NoError(t, err)
	require.Equal(t, `<Review><title null="true"></title><note null="true"></note></Review>`, string(b))

	withTitle := Review{Title: xmlbox.Element[xmlbox.Nullable[string]]{Value: xmlbox.Some("Dune")}}
	b, err = xmlbox.Marshal(withTitle)
	require.NoError(t, err)
	require.Equal(t, `<Review><title>Dune</title><note null="true"></note></Review>`, string(b))

	var got Review
	require.NoError(t, xmlbox.Unmarshal([]byte(`<Review><title null="true"/><note>n</note></Review>`), &got))
	require.Nil(t, got.Title.Value.Value)
	require.NotNil(t, got.Note.Value)
	require.Equal(t, "n", *got.Note.Value)

	got = Review{}
	require.NoError(t, xmlbox.Unmarshal([]byte(`<Review/>`), &got), "nullable keys are optional")
	require.Nil(t, got.Title.Value.Value)
}

type Size struct {
	Unit  xmlbox.Attribute[string]  `xmlbox:"unit"`
	Value xmlbox.Intrinsic[float64] `xmlbox:"value"`
}

type Parcel struct {
	Size Size `xmlbox:"size"`
}

func TestPlacement_Intrinsic(t *testing.T) {
	p := Parcel{Size: Size{
		Unit:  xmlbox.Attribute[string]{Value: "cm"},
		Value: xmlbox.Intrinsic[float64]{Value: 12.5},
	}}
	b, err := xmlbox.Marshal(p)
	require.NoError(t, err)
	require.Equal(t, `<Parcel><size unit="cm">12.5</size></Parcel>`, string(b))

	var got Parcel
	require.NoError(t, xmlbox.Unmarshal(b, &got))
	require.Equal(t, p, got)

	t.Run("Text only", func(t *testing.T) {
		var s Size
		err := xmlbox.Unmarshal([]byte(`<size>3</size>`), &s)
		require.ErrorIs(t, err, xmlbox.ErrMissingRequiredValue, "unit is required")

		var v struct {
			Value xmlbox.Intrinsic[int] `xmlbox:"value"`
		}
		require.NoError(t, xmlbox.Unmarshal([]byte(`<size>3</size>`), &v))
		require.Equal(t, 3, v.Value.Value)
	})

	t.Run("Keyed value merges", func(t *testing.T) {
		type inner struct {
			A xmlbox.Attribute[string] `xmlbox:"a"`
			B string                   `xmlbox:"b"`
		}
		v := struct {
			In xmlbox.Intrinsic[inner] `xmlbox:"in"`
			C  string                  `xmlbox:"c"`
		}{
			In: xmlbox.Intrinsic[inner]{Value: inner{A: xmlbox.Attribute[string]{Value: "1"}, B: "2"}},
			C:  "3",
		}
		b, err := xmlbox.Marshal(v, xmlbox.RootKey("r"))
		require.NoError(t, err)
		require.Equal(t, `<r a="1"><b>2</b><c>3</c></r>`, string(b))
	})
}

func TestPlacement_InvalidAttributeValue(t *testing.T) {
	t.Run("Sequence attribute", func(t *testing.T) {
		v := struct {
			Bad xmlbox.Attribute[[]int] `xmlbox:"bad"`
		}{Bad: xmlbox.Attribute[[]int]{Value: []int{1, 2}}}
		_, err := xmlbox.Marshal(v, xmlbox.RootKey("r"))
		require.ErrorIs(t, err, xmlbox.ErrInvalidAttributeValue)
		var ce *xmlbox.CodingError
		require.ErrorAs(t, err, &ce)
		require.Equal(t, []string{"bad"}, ce.Path)
	})

	t.Run("Sequence intrinsic", func(t *testing.T) {
		v := struct {
			Bad xmlbox.Intrinsic[[]int] `xmlbox:"bad"`
		}{Bad: xmlbox.Intrinsic[[]int]{Value: []int{1}}}
		_, err := xmlbox.Marshal(v, xmlbox.RootKey("r"))
		require.ErrorIs(t, err, xmlbox.ErrInvalidAttributeValue)
	})

	t.Run("Struct attribute with no content", func(t *testing.T) {
		type empty struct {
			Note string `xmlbox:"note,omitempty"`
		}
		v := struct {
			E xmlbox.Attribute[empty] `xmlbox:"e"`
		}{}
		_, err := xmlbox.Marshal(v, xmlbox.RootKey("r"))
		require.ErrorIs(t, err, xmlbox.ErrInvalidAttributeValue)
		require.EqualError(t, err, "xmlbox: invalid attribute value at e: cannot encode keyed value as an attribute")
	})

	t.Run("Struct attribute with intrinsic text", func(t *testing.T) {
		type code struct {
			Value xmlbox.Intrinsic[string] `xmlbox:"value"`
		}
		v := struct {
			C xmlbox.Attribute[code] `xmlbox:"c"`
		}{C: xmlbox.Attribute[code]{Value: code{Value: xmlbox.Intrinsic[string]{Value: "x1"}}}}
		b, err := xmlbox.Marshal(v, xmlbox.RootKey("r"))
		require.NoError(t, err)
		require.Equal(t, `<r c="x1" />`, string(b))
	})

	t.Run("Nil attribute is skipped", func(t *testing.T) {
		v := struct {
			Opt xmlbox.Attribute[*int] `xmlbox:"opt"`
		}{}
		b, err := xmlbox.Marshal(v, xmlbox.RootKey("r"))
		require.NoError(t, err)
		require.Equal(t, `<r />`, string(b))
	})
}

type Tagged struct {
	Code string `xmlbox:"code,element"`
	Name string `xmlbox:"name"`
}

func (Tagged) NodeEncoding(key string) xmlbox.Placement {
	if key == "code" {
		return xmlbox.PlacementAttribute
	}
	return xmlbox.PlacementDefault
}

type Labeled struct {
	Name string `xmlbox:"name"`
}

func (*Labeled) NodeDecoding(key string) xmlbox.Placement {
	if key == "name" {
		return xmlbox.PlacementAttribute
	}
	return xmlbox.PlacementDefault
}

func TestPlacement_Precedence(t *testing.T) {
	v := Tagged{Code: "c1", Name: "n"}

	t.Run("Type declaration beats tag", func(t *testing.T) {
		b, err := xmlbox.Marshal(v)
		require.NoError(t, err)
		require.Equal(t, `<Tagged code="c1"><name>n</name></Tagged>`, string(b))
	})

	t.Run("Strategy beats type declaration", func(t *testing.T) {
		var seen []reflect.Type
		strategy := func(typ reflect.Type, path []string) func(string) xmlbox.Placement {
			seen = append(seen, typ)
			if typ != reflect.TypeFor[Tagged]() {
				return nil
			}
			return func(key string) xmlbox.Placement {
				switch key {
				case "code":
					return xmlbox.PlacementElement
				case "name":
					return xmlbox.PlacementAttribute
				}
				return xmlbox.PlacementDefault
			}
		}
		b, err := xmlbox.Marshal(&v, xmlbox.NodeEncodingStrategy(strategy))
		require.NoError(t, err)
		require.Equal(t, `<Tagged name="n"><code>c1</code></Tagged>`, string(b))
		require.NotEmpty(t, seen)
		require.Equal(t, reflect.TypeFor[Tagged](), seen[0], "pointers are stripped")
	})

	t.Run("Strategy default defers", func(t *testing.T) {
		strategy := func(reflect.Type, []string) func(string) xmlbox.Placement {
			return func(string) xmlbox.Placement { return xmlbox.PlacementDefault }
		}
		b, err := xmlbox.Marshal(v, xmlbox.NodeEncodingStrategy(strategy))
		require.NoError(t, err)
		require.Equal(t, `<Tagged code="c1"><name>n</name></Tagged>`, string(b))
	})

	t.Run("Strategy applies to sequence items", func(t *testing.T) {
		strategy := func(typ reflect.Type, path []string) func(string) xmlbox.Placement {
			if typ != reflect.TypeFor[Slot]() {
				return nil
			}
			return func(key string) xmlbox.Placement {
				if key == "pos" {
					return xmlbox.PlacementAttribute
				}
				return xmlbox.PlacementDefault
			}
		}
		shelf := Shelf{
			Slots: []Slot{{Pos: 1, Label: "a"}, {Pos: 2, Label: "b"}},
			Spare: &Slot{Pos: 3, Label: "c"},
		}
		b, err := xmlbox.Marshal(shelf, xmlbox.NodeEncodingStrategy(strategy))
		require.NoError(t, err)
		require.Equal(t,
			`<Shelf><slot pos="1"><label>a</label></slot><slot pos="2"><label>b</label></slot>`+
				`<spare pos="3"><label>c</label></spare></Shelf>`,
			string(b))

		var got Shelf
		require.NoError(t, xmlbox.Unmarshal(b, &got, xmlbox.NodeDecodingStrategy(strategy)))
		require.Equal(t, shelf, got)
	})

	t.Run("Decoding", func(t *testing.T) {
		doc := []byte(`<Labeled name="attr"><name>elem</name></Labeled>`)

		var l Labeled
		require.NoError(t, xmlbox.Unmarshal(doc, &l))
		require.Equal(t, "attr", l.Name)

		var plain struct {
			Name string `xmlbox:"name"`
		}
		require.NoError(t, xmlbox.Unmarshal(doc, &plain))
		require.Equal(t, "elem", plain.Name)

		strategy := func(typ reflect.Type, path []string) func(string) xmlbox.Placement {
			return func(string) xmlbox.Placement { return xmlbox.PlacementElement }
		}
		require.NoError(t, xmlbox.Unmarshal(doc, &l, xmlbox.NodeDecodingStrategy(strategy)))
		require.Equal(t, "elem", l.Name)
	})

	t.Run("Logged decisions", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		_, err := xmlbox.Marshal(v, xmlbox.Logger(logger))
		require.NoError(t, err)
		require.Contains(t, buf.String(), "msg=encode path=code placement=attribute")
		require.Contains(t, buf.String(), "msg=encode path=name placement=element")
	})
}

type failingPart struct {
	C chan int `xmlbox:"c"`
}

func (failingPart) NodeEncoding(string) xmlbox.Placement { return xmlbox.PlacementElement }

type forgiving struct{}

func (forgiving) NodeEncoding(key string) xmlbox.Placement {
	if key == "code" {
		return xmlbox.PlacementAttribute
	}
	return xmlbox.PlacementDefault
}

func (forgiving) MarshalXMLBox(e *xmlbox.ValueEncoder) error {
	k := e.Keyed()
	if err := k.Encode("part", failingPart{}); err == nil {
		panic("expected the part to fail")
	}
	return k.Encode("code", "x")
}

func TestPlacement_ResolverStackAfterError(t *testing.T) {
	b, err := xmlbox.Marshal(forgiving{})
	require.NoError(t, err)
	require.Equal(t, `<forgiving code="x" />`, string(b))
}

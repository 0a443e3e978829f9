package xmlbox

import (
	"errors"
	"log/slog"
	"time"

	"github.com/KimNorgaard/go-xmlbox/internal/formatter"
	"github.com/KimNorgaard/go-xmlbox/internal/parser"
)

const (
	defaultMaxDepth   = 1000
	defaultNullMarker = parser.DefaultNullMarker
)

// UnixSeconds is a TimeFormat layout that reads and writes times as
// seconds since the Unix epoch.
const UnixSeconds = "unix"

// Option configures encoding, decoding and formatting.
type Option func(*options) error

type options struct {
	indent          int
	sortedKeys      bool
	noEmptyElements bool
	header          bool
	rootKey         string

	keyEncoding  KeyStrategy
	keyDecoding  KeyStrategy
	nodeEncoding PlacementStrategy
	nodeDecoding PlacementStrategy
	namespaces   NamespaceStrategy

	trimWhitespace bool
	contextLength  int
	maxDepth       int
	nullMarker     string
	timeFormat     string
	logger         *slog.Logger
}

func newOptions(opts []Option) (*options, error) {
	o := &options{
		trimWhitespace: true,
		maxDepth:       defaultMaxDepth,
		nullMarker:     defaultNullMarker,
		timeFormat:     time.RFC3339Nano,
		logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *options) formatterOptions() formatter.Options {
	return formatter.Options{
		Indent:          o.indent,
		SortedKeys:      o.sortedKeys,
		NoEmptyElements: o.noEmptyElements,
		Header:          o.header,
		NullMarker:      o.nullMarker,
	}
}

func (o *options) parserOptions() parser.Options {
	return parser.Options{
		TrimValueWhitespaces: o.trimWhitespace,
		NullMarker:           o.nullMarker,
		ContextLength:        o.contextLength,
	}
}

// Indent sets the number of spaces per nesting level. The default of zero
// writes the document on a single line.
func Indent(spaces int) Option {
	return func(o *options) error {
		if spaces < 0 {
			return errors.New("xmlbox: indent spaces cannot be negative")
		}
		o.indent = spaces
		return nil
	}
}

// SortedKeys orders attributes and child elements by key on output.
func SortedKeys() Option {
	return func(o *options) error {
		o.sortedKeys = true
		return nil
	}
}

// NoEmptyElements writes empty elements as <k></k> instead of <k />.
func NoEmptyElements() Option {
	return func(o *options) error {
		o.noEmptyElements = true
		return nil
	}
}

// Header prefixes the output with an XML declaration.
func Header() Option {
	return func(o *options) error {
		o.header = true
		return nil
	}
}

// RootKey sets the name of the document element. By default it is the name
// of the encoded type.
func RootKey(name string) Option {
	return func(o *options) error {
		if name == "" {
			return errors.New("xmlbox: root key cannot be empty")
		}
		o.rootKey = name
		return nil
	}
}

// KeyEncoding converts Go keys before they are written.
func KeyEncoding(s KeyStrategy) Option {
	return func(o *options) error {
		o.keyEncoding = s
		return nil
	}
}

// KeyDecoding converts document keys before they are matched to Go keys.
func KeyDecoding(s KeyStrategy) Option {
	return func(o *options) error {
		o.keyDecoding = s
		return nil
	}
}

// NodeEncodingStrategy installs a per-document placement resolver for
// encoding. It takes precedence over DynamicNodeEncoding declarations.
func NodeEncodingStrategy(s PlacementStrategy) Option {
	return func(o *options) error {
		o.nodeEncoding = s
		return nil
	}
}

// NodeDecodingStrategy installs a per-document placement resolver for
// decoding. It takes precedence over DynamicNodeDecoding declarations.
func NodeDecodingStrategy(s PlacementStrategy) Option {
	return func(o *options) error {
		o.nodeDecoding = s
		return nil
	}
}

// Namespaces installs a per-document namespace resolver. It takes
// precedence over DynamicNamespaceEncoding declarations.
func Namespaces(s NamespaceStrategy) Option {
	return func(o *options) error {
		o.namespaces = s
		return nil
	}
}

// TrimValueWhitespaces controls whether leading and trailing whitespace of
// text content is removed when decoding. It is enabled by default.
func TrimValueWhitespaces(trim bool) Option {
	return func(o *options) error {
		o.trimWhitespace = trim
		return nil
	}
}

// ErrorContextLength attaches n codepoints of input on each side of the
// failure point to decoding errors. Zero, the default, attaches nothing.
func ErrorContextLength(n int) Option {
	return func(o *options) error {
		if n < 0 {
			return errors.New("xmlbox: error context length cannot be negative")
		}
		o.contextLength = n
		return nil
	}
}

// MaxDepth sets the maximum nesting depth of encoded and decoded values.
// This helps prevent stack overflows on deeply nested or cyclic data.
//
// The depth n must be a positive integer.
func MaxDepth(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return errors.New("xmlbox: max depth must be a positive integer")
		}
		o.maxDepth = n
		return nil
	}
}

// NullMarker sets the attribute that marks an element as null. The default
// is "null", written as null="true".
func NullMarker(name string) Option {
	return func(o *options) error {
		if name == "" {
			return errors.New("xmlbox: null marker cannot be empty")
		}
		o.nullMarker = name
		return nil
	}
}

// TimeFormat sets the layout used for time.Time values, or UnixSeconds.
// The default is time.RFC3339Nano.
func TimeFormat(layout string) Option {
	return func(o *options) error {
		if layout == "" {
			return errors.New("xmlbox: time format cannot be empty")
		}
		o.timeFormat = layout
		return nil
	}
}

// Logger sets the logger that receives debug traces of placement and
// namespace decisions. Nothing is logged by default.
func Logger(l *slog.Logger) Option {
	return func(o *options) error {
		if l == nil {
			l = slog.New(slog.DiscardHandler)
		}
		o.logger = l
		return nil
	}
}

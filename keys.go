package xmlbox

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// KeyStrategy converts keys between their Go and document spellings.
// A nil strategy leaves keys unchanged.
type KeyStrategy func(key string) string

// Encoding strategies, applied to Go keys before they are written.
var (
	// SnakeCase writes "myURLValue" as "my_url_value".
	SnakeCase KeyStrategy = func(key string) string { return joinWords(key, "_", strings.ToLower) }
	// UpperSnakeCase writes "myURLValue" as "MY_URL_VALUE".
	UpperSnakeCase KeyStrategy = func(key string) string { return joinWords(key, "_", strings.ToUpper) }
	// KebabCase writes "myURLValue" as "my-url-value".
	KebabCase KeyStrategy = func(key string) string { return joinWords(key, "-", strings.ToLower) }
	// Capitalized upper-cases the first letter.
	Capitalized KeyStrategy = func(key string) string { return mapFirst(key, unicode.ToUpper) }
	// Uppercased upper-cases the whole key.
	Uppercased KeyStrategy = strings.ToUpper
	// Lowercased lower-cases the whole key.
	Lowercased KeyStrategy = strings.ToLower
)

// Decoding strategies, applied to document keys before they are matched.
var (
	// FromSnakeCase reads "my_url_value" as "myUrlValue".
	FromSnakeCase KeyStrategy = func(key string) string { return camelize(key, '_') }
	// FromKebabCase reads "my-url-value" as "myUrlValue".
	FromKebabCase KeyStrategy = func(key string) string { return camelize(key, '-') }
	// FromCapitalized lower-cases the first letter.
	FromCapitalized KeyStrategy = func(key string) string { return mapFirst(key, unicode.ToLower) }
	// FromUppercase reads "MY_VALUE" as "myValue".
	FromUppercase KeyStrategy = func(key string) string { return camelize(strings.ToLower(key), '_') }
)

func (s KeyStrategy) apply(key string) string {
	if s == nil || key == "" {
		return key
	}
	return s(key)
}

func mapFirst(s string, f func(rune) rune) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(f(r)) + s[n:]
}

// words splits a camel-case key. A run of upper-case letters is one word,
// except that its last letter starts the next word when followed by a
// lower-case letter: "myURLValue" has the words my, URL and Value.
// Existing separators are treated as boundaries.
func words(s string) []string {
	runes := []rune(s)
	var out []string
	start := 0
	for i := 1; i <= len(runes); i++ {
		if i < len(runes) {
			prev, cur := runes[i-1], runes[i]
			boundary := (unicode.IsLower(prev) || unicode.IsDigit(prev)) && unicode.IsUpper(cur)
			if !boundary && unicode.IsUpper(prev) && unicode.IsUpper(cur) && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
				boundary = true
			}
			if cur == '_' || cur == '-' {
				if i > start {
					out = append(out, string(runes[start:i]))
				}
				start = i + 1
				continue
			}
			if !boundary {
				continue
			}
		}
		if i > start {
			out = append(out, string(runes[start:i]))
		}
		start = i
	}
	return out
}

func joinWords(key, sep string, f func(string) string) string {
	w := words(key)
	if len(w) == 0 {
		return key
	}
	return f(strings.Join(w, sep))
}

// camelize joins sep-separated words, capitalizing all but the first.
// Leading and trailing separators are kept.
func camelize(key string, sep rune) string {
	trimmed := strings.TrimFunc(key, func(r rune) bool { return r == sep })
	if trimmed == "" {
		return key
	}
	lead := key[:strings.Index(key, trimmed)]
	trail := key[len(lead)+len(trimmed):]

	parts := strings.FieldsFunc(trimmed, func(r rune) bool { return r == sep })
	var sb strings.Builder
	sb.WriteString(lead)
	for i, p := range parts {
		if i == 0 {
			sb.WriteString(p)
			continue
		}
		sb.WriteString(mapFirst(strings.ToLower(p), unicode.ToUpper))
	}
	sb.WriteString(trail)
	return sb.String()
}

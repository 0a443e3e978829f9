package xmlbox

import (
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/zeebo/blake3"
)

// prefixWidths are the digest lengths, in hex digits, tried in turn when a
// shorter prefix is already taken by another URI.
var prefixWidths = []int{8, 16, 64}

// NamespacePrefix returns the prefix used for elements in the namespace
// uri: "n" followed by the first eight hex digits of the BLAKE3 digest of
// the URI. The result depends on the URI alone.
func NamespacePrefix(uri string) string {
	return "n" + digest(uri)[:prefixWidths[0]]
}

func digest(uri string) string {
	sum := blake3.Sum256([]byte(uri))
	return hex.EncodeToString(sum[:])
}

// synthesized reports whether prefix is one the registry can assign to
// uri, at any width.
func synthesized(prefix, uri string) bool {
	if len(prefix) < 2 || prefix[0] != 'n' {
		return false
	}
	d := digest(uri)
	for _, width := range prefixWidths {
		if prefix == "n"+d[:width] {
			return true
		}
	}
	return false
}

// prefixRegistry assigns prefixes to the namespaces of one document. Two
// distinct URIs never share a prefix; on a collision the later URI gets a
// longer slice of its digest.
type prefixRegistry struct {
	byURI    map[string]string
	byPrefix map[string]string
	logger   *slog.Logger
}

func newPrefixRegistry(logger *slog.Logger) *prefixRegistry {
	return &prefixRegistry{
		byURI:    make(map[string]string),
		byPrefix: make(map[string]string),
		logger:   logger,
	}
}

func (r *prefixRegistry) prefix(uri string) string {
	if p, ok := r.byURI[uri]; ok {
		return p
	}
	d := digest(uri)
	for _, width := range prefixWidths {
		p := "n" + d[:width]
		owner, taken := r.byPrefix[p]
		if !taken {
			r.byURI[uri] = p
			r.byPrefix[p] = uri
			return p
		}
		r.logger.Warn("namespace prefix collision", "prefix", p, "uri", uri, "owner", owner)
	}
	// Distinct URIs have distinct full digests.
	p := fmt.Sprintf("n%s_%d", d, len(r.byURI))
	r.byURI[uri] = p
	r.byPrefix[p] = uri
	return p
}

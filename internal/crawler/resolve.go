package crawler

import (
	"net/url"
	"strings"
)

// Resolve joins a possibly relative reference onto a base URL using RFC 3986
// reference resolution. An absolute reference is returned unchanged, and so
// is any reference when the base is empty. A reference that cannot be parsed
// is returned as-is so the fetch fails visibly rather than silently.
func Resolve(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if base == "" || ref == "" {
		return ref
	}

	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if r.IsAbs() {
		return r.String()
	}

	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

package crawler

import (
	"net/url"
	"strings"
	"sync"
)

// VisitedSet records every URL the engine has scheduled for fetching.
// TryMark checks and inserts under a single lock so that
// concurrent callers never fetch the same URL twice.
type VisitedSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

// NewVisitedSet creates an empty set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{urls: make(map[string]struct{})}
}

// TryMark inserts the URL and reports whether it was newly added.
func (v *VisitedSet) TryMark(rawURL string) bool {
	key := normalizeURL(rawURL)

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.urls[key]; ok {
		return false
	}
	v.urls[key] = struct{}{}
	return true
}

// Unmark removes the URL so that a later TryMark admits it again. The engine
// uses it to hand back URLs that were scheduled but never fetched.
func (v *VisitedSet) Unmark(rawURL string) {
	key := normalizeURL(rawURL)

	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.urls, key)
}

// Len returns the number of distinct URLs marked.
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.urls)
}

// normalizeURL drops the fragment, lower-cases scheme and host, and treats an
// empty path as "/". Query strings are kept because they may select different content.
func normalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" && u.Opaque == "" {
		u.Path = "/"
	}
	return u.String()
}

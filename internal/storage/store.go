// Package storage persists harvested assets to the output directory.
package storage

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/sha3"

	"github.com/nao1215/webql/internal/model"
)

// localHost is used in file names for URLs without a host, such as file:// URLs.
const localHost = "local"

// FileName derives the output file name for a URL:
// "<host with . and : replaced by _>_<last path segment>". An empty last
// segment becomes "index".
func FileName(rawURL string) string {
	host := localHost
	segment := ""

	if u, err := url.Parse(rawURL); err == nil {
		if u.Host != "" {
			host = u.Host
		}
		segment = u.Path
	}

	host = strings.NewReplacer(".", "_", ":", "_").Replace(strings.ToLower(host))

	if i := strings.LastIndex(segment, "/"); i >= 0 {
		segment = segment[i+1:]
	}
	segment = strings.Map(func(r rune) rune {
		if r == '\\' || r == 0 {
			return '_'
		}
		return r
	}, segment)
	if segment == "" || segment == "." || segment == ".." {
		segment = "index"
	}

	return host + "_" + segment
}

// Store writes assets into one directory. It is safe for concurrent use.
// Saving the same URL twice overwrites its file; a different URL that maps
// to a name already taken gets a numeric suffix before the extension.
type Store struct {
	dir       string
	companion func(name string) string

	mu     sync.Mutex
	byURL  map[string]int
	names  map[string]string
	assets []model.StoredAsset
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCompanionName reserves, next to every stored file, the name fn derives
// from it. Tools that write a rewritten copy beside an asset use it so that
// the copy and a later asset never share a file.
func WithCompanionName(fn func(name string) string) StoreOption {
	return func(s *Store) {
		s.companion = fn
	}
}

// NewStore creates the directory if needed and returns a store writing into it.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	s := &Store{
		dir:   dir,
		byURL: make(map[string]int),
		names: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the output directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes body to the file for rawURL and returns its record.
func (s *Store) Save(rawURL string, body []byte) (model.StoredAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, seen := s.byURL[rawURL]
	var path string
	if seen {
		path = s.assets[idx].Path
	} else {
		path = filepath.Join(s.dir, s.uniqueName(rawURL))
	}

	if err := os.WriteFile(path, body, 0o600); err != nil {
		return model.StoredAsset{}, fmt.Errorf("failed to write %s: %w", path, err)
	}

	sum := sha3.Sum256(body)
	stored := model.StoredAsset{
		URL:    rawURL,
		Path:   path,
		Size:   int64(len(body)),
		Digest: hex.EncodeToString(sum[:]),
	}

	if seen {
		s.assets[idx] = stored
	} else {
		s.byURL[rawURL] = len(s.assets)
		s.assets = append(s.assets, stored)
	}
	return stored, nil
}

// uniqueName returns a file name not yet claimed by another URL, together
// with its companion name when one is configured. The caller must hold s.mu.
func (s *Store) uniqueName(rawURL string) string {
	name := FileName(rawURL)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := name
	for n := 1; ; n++ {
		if s.free(candidate, rawURL) && (s.companion == nil || s.free(s.companion(candidate), rawURL)) {
			break
		}
		candidate = fmt.Sprintf("%s_%d%s", stem, n, ext)
	}
	s.names[candidate] = rawURL
	if s.companion != nil {
		s.names[s.companion(candidate)] = rawURL
	}
	return candidate
}

// free reports whether name is unclaimed or already claimed by rawURL.
func (s *Store) free(name, rawURL string) bool {
	owner, taken := s.names[name]
	return !taken || owner == rawURL
}

// Assets returns every stored asset in first-save order.
func (s *Store) Assets() []model.StoredAsset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.StoredAsset(nil), s.assets...)
}

// Len returns the number of distinct URLs stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.assets)
}

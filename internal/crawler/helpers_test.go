package crawler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/nao1215/webql/internal/model"
)

// dirStore is an AssetStore writing numbered files into a directory.
type dirStore struct {
	dir string

	mu    sync.Mutex
	saved []model.StoredAsset
}

func newDirStore(t *testing.T) *dirStore {
	t.Helper()
	return &dirStore{dir: t.TempDir()}
}

func (s *dirStore) Save(rawURL string, body []byte) (model.StoredAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, fmt.Sprintf("%d.js", len(s.saved)))
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return model.StoredAsset{}, err
	}
	stored := model.StoredAsset{URL: rawURL, Path: path, Size: int64(len(body))}
	s.saved = append(s.saved, stored)
	return stored, nil
}

func (s *dirStore) urls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.saved))
	for _, a := range s.saved {
		out = append(out, a.URL)
	}
	return out
}

// fakeDeobfuscator writes a fixed body next to the input.
type fakeDeobfuscator struct {
	body string
	err  error
}

func (d *fakeDeobfuscator) Deobfuscate(_ context.Context, path string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	out := path + ".deob.js"
	if err := os.WriteFile(out, []byte(d.body), 0o600); err != nil {
		return "", err
	}
	return out, nil
}

// recordingSink keeps every event for assertions.
type recordingSink struct {
	mu         sync.Mutex
	fetched    []string
	failed     []string
	skipped    []string
	discovered []model.Reference
	persisted  []string
}

func (s *recordingSink) Fetched(a *model.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = append(s.fetched, a.URL)
}

func (s *recordingSink) Failed(u string, _ error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, u)
}

func (s *recordingSink) Skipped(a *model.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped = append(s.skipped, a.URL)
}

func (s *recordingSink) Discovered(r model.Reference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discovered = append(s.discovered, r)
}

func (s *recordingSink) Persisted(a model.StoredAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persisted = append(s.persisted, a.URL)
}

func refURLs(refs []model.Reference) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.URL)
	}
	return out
}

func assertURLs(t *testing.T, got []string, want ...string) {
	t.Helper()
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func htmlAsset(rawURL, body string) *model.Asset {
	return &model.Asset{
		URL:         rawURL,
		StatusCode:  200,
		ContentType: "text/html; charset=utf-8",
		Kind:        model.KindHTML,
		Body:        []byte(body),
	}
}

func scriptAsset(rawURL, body string) *model.Asset {
	return &model.Asset{
		URL:         rawURL,
		StatusCode:  200,
		ContentType: "application/javascript",
		Kind:        model.KindJavaScript,
		Body:        []byte(body),
	}
}

func jsonAsset(rawURL, body string) *model.Asset {
	return &model.Asset{
		URL:         rawURL,
		StatusCode:  200,
		ContentType: "application/json",
		Kind:        model.KindJSON,
		Body:        []byte(body),
	}
}

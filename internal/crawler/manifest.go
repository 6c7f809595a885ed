package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/nao1215/webql/internal/model"
)

// PageManifest is a build manifest listing the files each page loads,
// as emitted by Next.js.
type PageManifest struct {
	Pages map[string]json.RawMessage `json:"pages"`
}

// RouteManifest is a build manifest with entry modules and per-route
// imports, as emitted by Remix.
type RouteManifest struct {
	Entry  map[string]json.RawMessage `json:"entry"`
	Routes map[string]json.RawMessage `json:"routes"`
}

type routeEntry struct {
	Imports []string `json:"imports"`
}

// ManifestExtractor recognizes framework build manifests. Both shapes are
// checked independently, so a document matching both yields the references
// of both. JSON that matches neither yields nothing.
type ManifestExtractor struct{}

// NewManifestExtractor creates a manifest extractor.
func NewManifestExtractor() *ManifestExtractor {
	return &ManifestExtractor{}
}

// Name implements Extractor.
func (e *ManifestExtractor) Name() string { return "manifest" }

// Extract implements Extractor.
func (e *ManifestExtractor) Extract(_ context.Context, asset *model.Asset) ([]model.Reference, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(asset.Body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON from %s: %w", asset.URL, err)
	}

	paths := make([]string, 0)
	paths = append(paths, pageManifestPaths(doc)...)
	paths = append(paths, routeManifestPaths(doc)...)

	refs := make([]model.Reference, 0, len(paths))
	for _, p := range paths {
		refs = append(refs, model.Reference{
			URL:       Resolve(asset.URL, p),
			Mechanism: model.MechanismManifest,
			Source:    asset.URL,
		})
	}
	return refs, nil
}

func pageManifestPaths(doc map[string]json.RawMessage) []string {
	raw, ok := doc["pages"]
	if !ok {
		return nil
	}
	var m PageManifest
	if err := json.Unmarshal(raw, &m.Pages); err != nil || m.Pages == nil {
		return nil
	}

	paths := make([]string, 0)
	for _, page := range slices.Sorted(maps.Keys(m.Pages)) {
		var files []string
		if err := json.Unmarshal(m.Pages[page], &files); err != nil {
			continue
		}
		paths = append(paths, files...)
	}
	return paths
}

func routeManifestPaths(doc map[string]json.RawMessage) []string {
	rawEntry, hasEntry := doc["entry"]
	rawRoutes, hasRoutes := doc["routes"]
	if !hasEntry || !hasRoutes {
		return nil
	}

	var m RouteManifest
	if err := json.Unmarshal(rawEntry, &m.Entry); err != nil {
		return nil
	}
	if err := json.Unmarshal(rawRoutes, &m.Routes); err != nil {
		return nil
	}

	paths := make([]string, 0)
	for _, key := range slices.Sorted(maps.Keys(m.Entry)) {
		paths = append(paths, stringsOf(m.Entry[key])...)
	}
	for _, route := range slices.Sorted(maps.Keys(m.Routes)) {
		var r routeEntry
		if err := json.Unmarshal(m.Routes[route], &r); err != nil {
			continue
		}
		paths = append(paths, r.Imports...)
	}
	return paths
}

// stringsOf returns the value itself when it is a string, its string
// elements when it is a list, and nothing otherwise.
func stringsOf(raw json.RawMessage) []string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []string{s}
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

package crawler

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"

	"github.com/nao1215/webql/internal/model"
)

// AssetStore persists fetched content to the output directory.
type AssetStore interface {
	Save(rawURL string, body []byte) (model.StoredAsset, error)
}

// Deobfuscator rewrites a persisted script and returns the path of the
// rewritten file.
type Deobfuscator interface {
	Deobfuscate(ctx context.Context, path string) (string, error)
}

// ScriptPreparer persists every script and, when a de-obfuscator is set,
// scans the de-obfuscated form instead of the original. The original file is
// always kept.
type ScriptPreparer struct {
	store  AssetStore
	deob   Deobfuscator
	logger *slog.Logger
}

// NewScriptPreparer creates a preparer. deob may be nil.
func NewScriptPreparer(store AssetStore, deob Deobfuscator, logger *slog.Logger) *ScriptPreparer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScriptPreparer{store: store, deob: deob, logger: logger}
}

// Prepare implements Preparer.
func (p *ScriptPreparer) Prepare(ctx context.Context, asset *model.Asset, sink Sink) *model.Asset {
	stored, err := p.store.Save(asset.URL, asset.Body)
	if err != nil {
		p.logger.Warn("failed to save script", "url", asset.URL, "error", err)
		return asset
	}
	sink.Persisted(stored)

	if p.deob == nil {
		return asset
	}

	out, err := p.deob.Deobfuscate(ctx, stored.Path)
	if err != nil {
		p.logger.Warn("de-obfuscation failed, scanning original", "path", stored.Path, "error", err)
		return asset
	}
	body, err := os.ReadFile(filepath.Clean(out))
	if err != nil {
		p.logger.Warn("failed to read de-obfuscated script", "path", out, "error", err)
		return asset
	}
	p.logger.Debug("scanning de-obfuscated script", "url", asset.URL, "path", out)
	return asset.WithBody(body)
}

// KeywordExtractor is an extractor that can only match when the body
// contains at least one of its keywords.
type KeywordExtractor interface {
	Extractor
	Keywords() []string
}

// ScriptScanner runs keyword extractors over a script, skipping those whose
// keywords do not occur in the body. Keyword presence is decided in a single
// Aho-Corasick pass.
type ScriptScanner struct {
	extractors []KeywordExtractor
	owners     map[int][]int

	mu      sync.Mutex
	matcher *ahocorasick.Matcher
}

// NewScriptScanner builds the keyword index for the given extractors.
func NewScriptScanner(extractors ...KeywordExtractor) *ScriptScanner {
	s := &ScriptScanner{
		extractors: extractors,
		owners:     make(map[int][]int),
	}

	keywordIndex := make(map[string]int)
	keywords := make([]string, 0)
	for i, ex := range extractors {
		for _, kw := range ex.Keywords() {
			idx, ok := keywordIndex[kw]
			if !ok {
				idx = len(keywords)
				keywords = append(keywords, kw)
				keywordIndex[kw] = idx
			}
			s.owners[idx] = append(s.owners[idx], i)
		}
	}
	s.matcher = ahocorasick.NewStringMatcher(keywords)
	return s
}

// Name implements Extractor.
func (s *ScriptScanner) Name() string { return "script" }

// Extract implements Extractor. Triggered extractors run in registration
// order; an error from one is returned only if no other extractor ran cleanly.
func (s *ScriptScanner) Extract(ctx context.Context, asset *model.Asset) ([]model.Reference, error) {
	s.mu.Lock()
	hits := s.matcher.Match(asset.Body)
	s.mu.Unlock()

	triggered := make([]bool, len(s.extractors))
	for _, hit := range hits {
		for _, i := range s.owners[hit] {
			triggered[i] = true
		}
	}

	refs := make([]model.Reference, 0)
	for i, ex := range s.extractors {
		if !triggered[i] {
			continue
		}
		found, err := ex.Extract(ctx, asset)
		if err != nil {
			return refs, err
		}
		refs = append(refs, found...)
	}
	return refs, nil
}

var sourceMapPattern = regexp.MustCompile(`(?m)//# sourceMappingURL=(.+)$`)

// SourceMapExtractor yields the trailing sourceMappingURL comment. When a
// body carries several, the last one wins.
type SourceMapExtractor struct{}

// NewSourceMapExtractor creates a source map extractor.
func NewSourceMapExtractor() *SourceMapExtractor {
	return &SourceMapExtractor{}
}

// Name implements Extractor.
func (e *SourceMapExtractor) Name() string { return "source_map" }

// Keywords implements KeywordExtractor.
func (e *SourceMapExtractor) Keywords() []string { return []string{"sourceMappingURL"} }

// Extract implements Extractor.
func (e *SourceMapExtractor) Extract(_ context.Context, asset *model.Asset) ([]model.Reference, error) {
	matches := sourceMapPattern.FindAllSubmatch(asset.Body, -1)
	if len(matches) == 0 {
		return nil, nil
	}
	value := strings.TrimSpace(string(matches[len(matches)-1][1]))
	if value == "" {
		return nil, nil
	}
	return []model.Reference{{
		URL:       Resolve(asset.URL, value),
		Mechanism: model.MechanismSourceMap,
		Source:    asset.URL,
	}}, nil
}

var dynamicImportPattern = regexp.MustCompile(`import\s*\(\s*['"` + "`" + `](.+?)['"` + "`" + `]\s*\)`)

// DynamicImportExtractor yields the target of every import("...") call.
type DynamicImportExtractor struct{}

// NewDynamicImportExtractor creates a dynamic import extractor.
func NewDynamicImportExtractor() *DynamicImportExtractor {
	return &DynamicImportExtractor{}
}

// Name implements Extractor.
func (e *DynamicImportExtractor) Name() string { return "dynamic_import" }

// Keywords implements KeywordExtractor.
func (e *DynamicImportExtractor) Keywords() []string { return []string{"import"} }

// Extract implements Extractor.
func (e *DynamicImportExtractor) Extract(_ context.Context, asset *model.Asset) ([]model.Reference, error) {
	refs := make([]model.Reference, 0)
	for _, m := range dynamicImportPattern.FindAllSubmatch(asset.Body, -1) {
		refs = append(refs, model.Reference{
			URL:       Resolve(asset.URL, string(m[1])),
			Mechanism: model.MechanismDynamicImport,
			Source:    asset.URL,
		})
	}
	return refs, nil
}

const quoteClass = `['"` + "`" + `]`

var webpackPatterns = []*regexp.Regexp{
	regexp.MustCompile(`__webpack_require__\.e\s*\(\s*` + quoteClass + `(.+?)` + quoteClass + `\s*\)`),
	regexp.MustCompile(`webpackJsonp\s*\(\s*` + quoteClass + `(.+?)` + quoteClass + `\s*\)`),
	regexp.MustCompile(`__webpack_require__\.t\s*\(\s*` + quoteClass + `(.+?)` + quoteClass + `\s*\)`),
}

// WebpackChunkExtractor yields chunk files loaded through webpack's runtime.
// Each captured chunk identifier gets a ".js" suffix. All three loader forms
// are applied and duplicates are left to the visited set.
type WebpackChunkExtractor struct{}

// NewWebpackChunkExtractor creates a webpack chunk extractor.
func NewWebpackChunkExtractor() *WebpackChunkExtractor {
	return &WebpackChunkExtractor{}
}

// Name implements Extractor.
func (e *WebpackChunkExtractor) Name() string { return "webpack_chunk" }

// Keywords implements KeywordExtractor.
func (e *WebpackChunkExtractor) Keywords() []string {
	return []string{"__webpack_require__", "webpackJsonp"}
}

// Extract implements Extractor.
func (e *WebpackChunkExtractor) Extract(_ context.Context, asset *model.Asset) ([]model.Reference, error) {
	refs := make([]model.Reference, 0)
	for _, re := range webpackPatterns {
		for _, m := range re.FindAllSubmatch(asset.Body, -1) {
			refs = append(refs, model.Reference{
				URL:       Resolve(asset.URL, string(m[1])+".js"),
				Mechanism: model.MechanismWebpackChunk,
				Source:    asset.URL,
			})
		}
	}
	return refs, nil
}

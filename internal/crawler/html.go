package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/coregx/coregex"
	"golang.org/x/net/html"

	"github.com/nao1215/webql/internal/model"
)

// parseDocument parses markup into a goquery document. The HTML5 parser
// accepts malformed input, so an error here means the reader itself failed.
func parseDocument(body []byte) (*goquery.Document, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return goquery.NewDocumentFromNode(root), nil
}

// ScriptTagExtractor yields the src attribute of every <script> element.
type ScriptTagExtractor struct{}

// NewScriptTagExtractor creates a script tag extractor.
func NewScriptTagExtractor() *ScriptTagExtractor {
	return &ScriptTagExtractor{}
}

// Name implements Extractor.
func (e *ScriptTagExtractor) Name() string { return "script_tag" }

// Extract implements Extractor.
func (e *ScriptTagExtractor) Extract(_ context.Context, asset *model.Asset) ([]model.Reference, error) {
	doc, err := parseDocument(asset.Body)
	if err != nil {
		return nil, err
	}

	refs := make([]model.Reference, 0)
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if strings.TrimSpace(src) == "" {
			return
		}
		refs = append(refs, model.Reference{
			URL:       Resolve(asset.URL, src),
			Mechanism: model.MechanismScriptTag,
			Source:    asset.URL,
		})
	})
	return refs, nil
}

// importMap is the subset of an import map that names module addresses.
type importMap struct {
	Imports map[string]any `json:"imports"`
}

// ImportMapExtractor yields every address declared in <script type="importmap">.
type ImportMapExtractor struct {
	logger *slog.Logger
}

// NewImportMapExtractor creates an import map extractor. Malformed import
// maps are logged through logger and skipped.
func NewImportMapExtractor(logger *slog.Logger) *ImportMapExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportMapExtractor{logger: logger}
}

// Name implements Extractor.
func (e *ImportMapExtractor) Name() string { return "import_map" }

// Extract implements Extractor.
func (e *ImportMapExtractor) Extract(_ context.Context, asset *model.Asset) ([]model.Reference, error) {
	doc, err := parseDocument(asset.Body)
	if err != nil {
		return nil, err
	}

	refs := make([]model.Reference, 0)
	doc.Find(`script[type="importmap"]`).Each(func(_ int, s *goquery.Selection) {
		var m importMap
		if err := json.Unmarshal([]byte(s.Text()), &m); err != nil {
			e.logger.Warn("failed to parse import map", "url", asset.URL, "error", err)
			return
		}
		for _, specifier := range slices.Sorted(maps.Keys(m.Imports)) {
			address, ok := m.Imports[specifier].(string)
			if !ok {
				e.logger.Debug("import map address is not a string", "url", asset.URL, "specifier", specifier)
				continue
			}
			refs = append(refs, model.Reference{
				URL:       Resolve(asset.URL, address),
				Mechanism: model.MechanismImportMap,
				Source:    asset.URL,
			})
		}
	})
	return refs, nil
}

// aggressivePatterns are the script extensions searched for in raw markup.
var aggressivePatterns = []string{`\.js`, `\.mjs`, `\.ts`, `\.jsx`, `\.tsx`}

type lockedRegexp struct {
	mu sync.Mutex
	re *coregex.Regexp
}

// AggressiveExtractor scans raw markup for script-like file extensions. For
// each match, the candidate runs from the match start to the next double
// quote, or to the next single quote when no double quote follows. The
// candidates are not validated; malformed ones fail at fetch time.
type AggressiveExtractor struct {
	patterns []*lockedRegexp
}

// NewAggressiveExtractor compiles the extension patterns.
func NewAggressiveExtractor() *AggressiveExtractor {
	e := &AggressiveExtractor{}
	for _, p := range aggressivePatterns {
		e.patterns = append(e.patterns, &lockedRegexp{re: mustCompile(p)})
	}
	return e
}

func mustCompile(pattern string) *coregex.Regexp {
	re, err := coregex.Compile(pattern)
	if err != nil {
		panic(fmt.Sprintf("invalid pattern %q: %v", pattern, err))
	}
	return re
}

// Name implements Extractor.
func (e *AggressiveExtractor) Name() string { return "aggressive" }

// Extract implements Extractor.
func (e *AggressiveExtractor) Extract(_ context.Context, asset *model.Asset) ([]model.Reference, error) {
	body := asset.Body
	refs := make([]model.Reference, 0)

	for _, p := range e.patterns {
		p.mu.Lock()
		matches := p.re.FindAllIndex(body, -1)
		p.mu.Unlock()

		for _, loc := range matches {
			candidate, ok := quotedTail(body, loc[0])
			if !ok {
				continue
			}
			refs = append(refs, model.Reference{
				URL:       Resolve(asset.URL, candidate),
				Mechanism: model.MechanismAggressive,
				Source:    asset.URL,
			})
		}
	}
	return refs, nil
}

// quotedTail returns body[start:end] where end is the first '"' at or after
// start, or failing that the first single quote.
func quotedTail(body []byte, start int) (string, bool) {
	rest := body[start:]
	end := bytes.IndexByte(rest, '"')
	if end == -1 {
		end = bytes.IndexByte(rest, '\'')
	}
	if end <= 0 {
		return "", false
	}
	return string(rest[:end]), true
}

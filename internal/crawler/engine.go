package crawler

import (
	"context"
	"log/slog"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/nao1215/webql/internal/model"
)

// ProgressFunc is called after every processed URL.
type ProgressFunc func(processed, known int)

// Engine walks the reference graph starting at one or more seeds. Every
// distinct normalized URL is fetched at most once per State, so the walk
// terminates on any finite graph, cycles included.
type Engine struct {
	fetcher    Fetcher
	dispatcher *Dispatcher
	store      AssetStore
	logger     *slog.Logger
	progress   ProgressFunc

	// maxURLs caps the number of URLs taken off the worklist. 0 means no limit.
	maxURLs int

	// ignorePatterns and followPatterns filter discovered references by path.
	// Seeds are never filtered.
	ignorePatterns []string
	followPatterns []string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxURLs caps how many URLs a crawl processes. 0 disables the cap.
func WithMaxURLs(n int) EngineOption {
	return func(e *Engine) {
		e.maxURLs = n
	}
}

// WithIgnorePatterns skips discovered references whose path matches any
// pattern. Patterns use glob syntax (e.g. "/vendor/*", "*.map").
func WithIgnorePatterns(patterns []string) EngineOption {
	return func(e *Engine) {
		e.ignorePatterns = patterns
	}
}

// WithFollowPatterns restricts discovered references to paths matching at
// least one pattern. An empty list allows everything not ignored.
func WithFollowPatterns(patterns []string) EngineOption {
	return func(e *Engine) {
		e.followPatterns = patterns
	}
}

// WithProgressFunc installs a progress callback.
func WithProgressFunc(fn ProgressFunc) EngineOption {
	return func(e *Engine) {
		e.progress = fn
	}
}

// WithEngineLogger sets the logger.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithSourceMapStore sets where fetched source maps are persisted.
func WithSourceMapStore(store AssetStore) EngineOption {
	return func(e *Engine) {
		e.store = store
	}
}

// NewEngine creates an engine that fetches with fetcher and extracts with dispatcher.
func NewEngine(fetcher Fetcher, dispatcher *Dispatcher, opts ...EngineOption) *Engine {
	e := &Engine{
		fetcher:    fetcher,
		dispatcher: dispatcher,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Crawl walks the graph from seeds using a fresh State.
func (e *Engine) Crawl(ctx context.Context, seeds []string, sink Sink) (*model.CrawlSummary, error) {
	return e.CrawlWithState(ctx, NewState(), seeds, sink)
}

// CrawlWithState walks the graph from seeds. URLs already in state.Visited
// are not fetched again. The summary is returned even when the context is
// cancelled, together with the context error.
func (e *Engine) CrawlWithState(ctx context.Context, state *State, seeds []string, sink Sink) (*model.CrawlSummary, error) {
	if sink == nil {
		sink = NopSink{}
	}
	summary := model.NewCrawlSummary(seeds)
	sink = MultiSink{sink, &summarySink{summary: summary}}
	defer func() { summary.FinishedAt = time.Now() }()

	// LIFO worklist. Seeds and references are pushed in reverse so they pop
	// in document order.
	stack := make([]model.Reference, 0, len(seeds))
	for _, seed := range slices.Backward(seeds) {
		if state.Visited.TryMark(seed) {
			stack = append(stack, model.Reference{URL: seed, Mechanism: model.MechanismSeed})
			state.addKnown(1)
		}
	}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			release(state, stack)
			return summary, err
		}
		if e.maxURLs > 0 && summary.Visited >= e.maxURLs {
			summary.Truncated = true
			e.logger.Warn("URL limit reached, stopping crawl", "limit", e.maxURLs, "pending", len(stack))
			release(state, stack)
			break
		}

		ref := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		found := e.process(ctx, ref, summary, sink)
		state.markProcessed()

		fresh := make([]model.Reference, 0, len(found))
		for _, r := range found {
			if !e.shouldFollow(ref.URL, r.URL) {
				continue
			}
			if state.Visited.TryMark(r.URL) {
				fresh = append(fresh, r)
			}
		}
		state.addKnown(len(fresh))
		for _, r := range slices.Backward(fresh) {
			stack = append(stack, r)
		}

		if e.progress != nil {
			processed, known := state.Progress()
			e.progress(processed, known)
		}
	}

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// release hands scheduled but unfetched URLs back to the visited set, so a
// later crawl sharing the State still fetches them.
func release(state *State, pending []model.Reference) {
	for _, r := range pending {
		state.Visited.Unmark(r.URL)
	}
	state.addKnown(-len(pending))
}

// process fetches one URL and returns the references found in it.
func (e *Engine) process(ctx context.Context, ref model.Reference, summary *model.CrawlSummary, sink Sink) []model.Reference {
	summary.Visited++

	asset, err := e.fetcher.Fetch(ctx, ref.URL)
	if err != nil {
		summary.Failed++
		summary.FailedURLs = append(summary.FailedURLs, ref.URL)
		sink.Failed(ref.URL, err)
		return nil
	}
	summary.Fetched++
	sink.Fetched(asset)

	// Source maps are harvested but never scanned.
	if ref.Mechanism == model.MechanismSourceMap {
		e.persist(asset, sink)
		return nil
	}

	if !e.dispatcher.Handles(asset.Kind) {
		summary.Skipped++
		sink.Skipped(asset)
		return nil
	}

	found := e.dispatcher.Dispatch(ctx, asset, sink)
	for _, r := range found {
		sink.Discovered(r)
	}
	return found
}

func (e *Engine) persist(asset *model.Asset, sink Sink) {
	if e.store == nil {
		return
	}
	stored, err := e.store.Save(asset.URL, asset.Body)
	if err != nil {
		e.logger.Warn("failed to save source map", "url", asset.URL, "error", err)
		return
	}
	sink.Persisted(stored)
}

// shouldFollow applies the scheme rule and the ignore/follow patterns.
// Local files may only be referenced from local files.
func (e *Engine) shouldFollow(source, target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "file":
		if !strings.HasPrefix(strings.ToLower(source), "file:") {
			return false
		}
	default:
		return false
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, pattern := range e.ignorePatterns {
		if matchPattern(pattern, path) {
			return false
		}
	}
	if len(e.followPatterns) > 0 {
		for _, pattern := range e.followPatterns {
			if matchPattern(pattern, path) {
				return true
			}
		}
		return false
	}
	return true
}

// matchPattern reports whether a path matches a glob pattern.
//   - "/admin/*" matches "/admin" and anything below it
//   - "*.map" matches any path ending in ".map"
//   - patterns without "/" are also tried against the last path segment
func matchPattern(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") {
		if strings.HasSuffix(path, strings.TrimPrefix(pattern, "*")) {
			return true
		}
	}

	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}

	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(path)); err == nil && matched {
			return true
		}
	}
	return false
}

// summarySink keeps the persisted-file count of a summary current.
type summarySink struct {
	NopSink
	summary *model.CrawlSummary
}

func (s *summarySink) Discovered(ref model.Reference) {
	s.summary.CountReference(ref.Mechanism)
}

func (s *summarySink) Persisted(model.StoredAsset) {
	s.summary.Persisted++
}

// Package crawler discovers the JavaScript assets reachable from one or more
// seed URLs or local files.
//
// # Traversal
//
// Engine keeps an explicit LIFO worklist. Each URL is marked in a VisitedSet
// before it is pushed, so every distinct normalized URL is fetched at most
// once and the walk ends on any finite graph, cycles included. A failed fetch
// abandons that URL's subtree; it never stops the crawl.
//
// # Extraction
//
// A fetched Asset is classified by its Content-Type and handed to the
// Dispatcher, which runs every Extractor registered for that kind:
//
//   - HTML: script tags, import maps and, in aggressive mode, raw extension matches
//   - JavaScript: source map comments, dynamic imports and webpack chunk loaders
//   - JSON: Next.js page manifests and Remix route manifests
//
// Scripts are persisted through an AssetStore and may be run through a
// Deobfuscator before they are scanned. Source maps are fetched and
// persisted, never scanned.
//
// # Usage
//
//	fetcher := crawler.NewSchemeFetcher(crawler.NewHTTPFetcher(crawler.WithRateLimit(5)))
//	dispatcher := crawler.NewStandardDispatcher(crawler.DispatcherConfig{Store: store})
//	engine := crawler.NewEngine(fetcher, dispatcher, crawler.WithSourceMapStore(store))
//	summary, err := engine.Crawl(ctx, []string{"https://example.com/"}, crawler.NewLogSink(logger))
package crawler

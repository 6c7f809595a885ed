package crawler

import (
	"context"
	"log/slog"

	"github.com/nao1215/webql/internal/model"
)

// Extractor finds references inside one asset. Implementations must not
// fetch anything; they only read the body and resolve against the asset URL.
type Extractor interface {
	// Name identifies the extractor in logs.
	Name() string

	// Extract returns the references found in the asset. An error means the
	// body could not be interpreted and contributes no references.
	Extract(ctx context.Context, asset *model.Asset) ([]model.Reference, error)
}

// Preparer transforms an asset before extraction, for example by persisting
// it and replacing the body with a de-obfuscated version. It never fails:
// on any problem it returns the asset unchanged.
type Preparer interface {
	Prepare(ctx context.Context, asset *model.Asset, sink Sink) *model.Asset
}

// Dispatcher routes assets to the extractors registered for their kind.
type Dispatcher struct {
	extractors map[model.ContentKind][]Extractor
	preparers  map[model.ContentKind]Preparer
	logger     *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger for extractor errors.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithExtractors registers extractors for a content kind.
func WithExtractors(kind model.ContentKind, extractors ...Extractor) DispatcherOption {
	return func(d *Dispatcher) {
		d.extractors[kind] = append(d.extractors[kind], extractors...)
	}
}

// WithPreparer sets the preparer for a content kind.
func WithPreparer(kind model.ContentKind, p Preparer) DispatcherOption {
	return func(d *Dispatcher) {
		d.preparers[kind] = p
	}
}

// NewDispatcher creates a dispatcher with no extractors registered.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		extractors: make(map[model.ContentKind][]Extractor),
		preparers:  make(map[model.ContentKind]Preparer),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Handles reports whether any extractor is registered for the kind.
func (d *Dispatcher) Handles(kind model.ContentKind) bool {
	return len(d.extractors[kind]) > 0
}

// Dispatch runs the preparer and every extractor registered for the asset's
// kind and returns the union of their references, in extractor order.
func (d *Dispatcher) Dispatch(ctx context.Context, asset *model.Asset, sink Sink) []model.Reference {
	extractors := d.extractors[asset.Kind]
	if len(extractors) == 0 {
		return nil
	}

	if p, ok := d.preparers[asset.Kind]; ok {
		asset = p.Prepare(ctx, asset, sink)
	}

	refs := make([]model.Reference, 0)
	for _, ex := range extractors {
		found, err := ex.Extract(ctx, asset)
		if err != nil {
			d.logger.Warn("extractor failed",
				"extractor", ex.Name(),
				"url", asset.URL,
				"error", err,
			)
			continue
		}
		refs = append(refs, found...)
	}
	return refs
}

// DispatcherConfig selects the standard extractor set.
type DispatcherConfig struct {
	// Aggressive enables brute-force extension matching in HTML.
	Aggressive bool

	// Store persists script bodies. Nil disables persistence and de-obfuscation.
	Store AssetStore

	// Deobfuscator rewrites persisted scripts. Nil skips de-obfuscation.
	Deobfuscator Deobfuscator

	// Logger receives extractor and preparer diagnostics.
	Logger *slog.Logger
}

// NewStandardDispatcher wires the HTML, JavaScript and manifest extractors.
func NewStandardDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	htmlExtractors := []Extractor{
		NewScriptTagExtractor(),
		NewImportMapExtractor(logger),
	}
	if cfg.Aggressive {
		htmlExtractors = append(htmlExtractors, NewAggressiveExtractor())
	}

	opts := []DispatcherOption{
		WithDispatcherLogger(logger),
		WithExtractors(model.KindHTML, htmlExtractors...),
		WithExtractors(model.KindJavaScript, NewScriptScanner(
			NewSourceMapExtractor(),
			NewDynamicImportExtractor(),
			NewWebpackChunkExtractor(),
		)),
		WithExtractors(model.KindJSON, NewManifestExtractor()),
	}
	if cfg.Store != nil {
		opts = append(opts, WithPreparer(model.KindJavaScript,
			NewScriptPreparer(cfg.Store, cfg.Deobfuscator, logger)))
	}
	return NewDispatcher(opts...)
}

package crawler

import (
	"log/slog"

	"github.com/nao1215/webql/internal/model"
)

// Sink observes crawl events. Calls happen on the crawling goroutine in the
// order the events occur.
type Sink interface {
	// Fetched is called for every asset retrieved successfully.
	Fetched(asset *model.Asset)

	// Failed is called when a URL could not be fetched.
	Failed(rawURL string, err error)

	// Skipped is called for a fetched asset whose content type no extractor handles.
	Skipped(asset *model.Asset)

	// Discovered is called for every reference extracted, duplicates included.
	Discovered(ref model.Reference)

	// Persisted is called for every file written to the asset store.
	Persisted(stored model.StoredAsset)
}

// NopSink ignores every event.
type NopSink struct{}

func (NopSink) Fetched(*model.Asset)        {}
func (NopSink) Failed(string, error)        {}
func (NopSink) Skipped(*model.Asset)        {}
func (NopSink) Discovered(model.Reference)  {}
func (NopSink) Persisted(model.StoredAsset) {}

// LogSink writes crawl events to a logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs through logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Fetched(asset *model.Asset) {
	s.logger.Info("fetched",
		"url", asset.URL,
		"status", asset.StatusCode,
		"kind", asset.Kind.String(),
		"bytes", len(asset.Body),
	)
}

func (s *LogSink) Failed(rawURL string, err error) {
	s.logger.Warn("fetch failed", "url", rawURL, "error", err)
}

func (s *LogSink) Skipped(asset *model.Asset) {
	s.logger.Debug("unrecognized content type",
		"url", asset.URL,
		"content_type", asset.ContentType,
	)
}

func (s *LogSink) Discovered(ref model.Reference) {
	s.logger.Debug("reference found",
		"url", ref.URL,
		"mechanism", ref.Mechanism.String(),
		"source", ref.Source,
	)
}

func (s *LogSink) Persisted(stored model.StoredAsset) {
	s.logger.Info("saved", "url", stored.URL, "path", stored.Path)
}

// MultiSink fans every event out to several sinks.
type MultiSink []Sink

func (m MultiSink) Fetched(asset *model.Asset) {
	for _, s := range m {
		s.Fetched(asset)
	}
}

func (m MultiSink) Failed(rawURL string, err error) {
	for _, s := range m {
		s.Failed(rawURL, err)
	}
}

func (m MultiSink) Skipped(asset *model.Asset) {
	for _, s := range m {
		s.Skipped(asset)
	}
}

func (m MultiSink) Discovered(ref model.Reference) {
	for _, s := range m {
		s.Discovered(ref)
	}
}

func (m MultiSink) Persisted(stored model.StoredAsset) {
	for _, s := range m {
		s.Persisted(stored)
	}
}

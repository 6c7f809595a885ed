package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/webql/internal/model"
)

// DefaultUserAgent is sent when no User-Agent is configured.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

// DefaultMaxBodySize is the largest body read from a single response.
const DefaultMaxBodySize int64 = 10 * 1024 * 1024

// ErrBadStatus is wrapped by StatusError for responses outside 200-399.
var ErrBadStatus = errors.New("unexpected HTTP status")

// StatusError reports a response whose status code is not a success or redirect.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Unwrap lets errors.Is match ErrBadStatus.
func (e *StatusError) Unwrap() error {
	return ErrBadStatus
}

// Fetcher retrieves the content behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*model.Asset, error)
}

// HTTPFetcher fetches assets over HTTP(S).
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	headers     map[string]string
	cookie      string
	maxBodySize int64
	limiter     *rate.Limiter
}

// HTTPFetcherOption configures an HTTPFetcher.
type HTTPFetcherOption func(*HTTPFetcher)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(client *http.Client) HTTPFetcherOption {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPFetcherOption {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithHeaders adds extra request headers.
func WithHeaders(headers map[string]string) HTTPFetcherOption {
	return func(f *HTTPFetcher) {
		for k, v := range headers {
			f.headers[k] = v
		}
	}
}

// WithCookie sets the Cookie header sent with every request.
func WithCookie(cookie string) HTTPFetcherOption {
	return func(f *HTTPFetcher) {
		f.cookie = cookie
	}
}

// WithMaxBodySize limits how many bytes of a response body are read.
func WithMaxBodySize(size int64) HTTPFetcherOption {
	return func(f *HTTPFetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// WithRateLimit caps requests per second. Zero or less disables limiting.
func WithRateLimit(perSecond float64) HTTPFetcherOption {
	return func(f *HTTPFetcher) {
		if perSecond <= 0 {
			f.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewHTTPFetcher creates a fetcher with a 30 second client timeout.
func NewHTTPFetcher(opts ...HTTPFetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:      &http.Client{Timeout: 30 * time.Second},
		userAgent:   DefaultUserAgent,
		headers:     make(map[string]string),
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs a GET request. Redirects are followed by the client, and the
// final status must be in 200-399.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*model.Asset, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "*/*")
	if f.cookie != "" {
		req.Header.Set("Cookie", f.cookie)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", rawURL, err)
	}

	contentType := resp.Header.Get("Content-Type")
	return &model.Asset{
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Kind:        model.ClassifyContentType(contentType),
		Body:        body,
	}, nil
}

// extraTypes covers extensions missing from some system MIME tables.
var extraTypes = map[string]string{
	".js":   "application/javascript",
	".mjs":  "application/javascript",
	".cjs":  "application/javascript",
	".jsx":  "application/javascript",
	".ts":   "application/javascript",
	".tsx":  "application/javascript",
	".json": "application/json",
	".map":  "application/json",
	".html": "text/html",
	".htm":  "text/html",
}

// FileFetcher reads file:// URLs from the local filesystem. The content type
// is derived from the file extension.
type FileFetcher struct {
	maxBodySize int64
}

// NewFileFetcher creates a local file fetcher.
func NewFileFetcher() *FileFetcher {
	return &FileFetcher{maxBodySize: DefaultMaxBodySize}
}

// Fetch reads the file named by a file:// URL.
func (f *FileFetcher) Fetch(ctx context.Context, rawURL string) (*model.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := filePath(rawURL)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, f.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	contentType := contentTypeByExtension(path)
	return &model.Asset{
		URL:         rawURL,
		StatusCode:  http.StatusOK,
		ContentType: contentType,
		Kind:        model.ClassifyContentType(contentType),
		Body:        body,
	}, nil
}

func contentTypeByExtension(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := extraTypes[ext]; ok {
		return ct
	}
	return mime.TypeByExtension(ext)
}

func filePath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid file URL %q: %w", rawURL, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("not a file URL: %s", rawURL)
	}
	return u.Path, nil
}

// FileURL converts a local path into an absolute file:// URL.
func FileURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

// SeedsFromPath turns a local file or directory into file:// seed URLs.
// A directory yields every HTML, script and JSON file beneath it.
func SeedsFromPath(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		seed, err := FileURL(path)
		if err != nil {
			return nil, err
		}
		return []string{seed}, nil
	}

	seeds := make([]string, 0)
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := extraTypes[strings.ToLower(filepath.Ext(p))]; !ok {
			return nil
		}
		seed, err := FileURL(p)
		if err != nil {
			return err
		}
		seeds = append(seeds, seed)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", path, err)
	}
	return seeds, nil
}

// SchemeFetcher routes file:// URLs to a FileFetcher and everything else to
// an HTTP fetcher.
type SchemeFetcher struct {
	HTTP Fetcher
	File Fetcher
}

// NewSchemeFetcher combines an HTTP fetcher with local file support.
func NewSchemeFetcher(httpFetcher Fetcher) *SchemeFetcher {
	return &SchemeFetcher{HTTP: httpFetcher, File: NewFileFetcher()}
}

// Fetch dispatches on the URL scheme.
func (f *SchemeFetcher) Fetch(ctx context.Context, rawURL string) (*model.Asset, error) {
	if strings.HasPrefix(strings.ToLower(rawURL), "file:") {
		return f.File.Fetch(ctx, rawURL)
	}
	return f.HTTP.Fetch(ctx, rawURL)
}

package model

import "strings"

// ContentKind is the extractor family an asset is routed to.
type ContentKind int

const (
	// KindUnrecognized is any content type no extractor handles.
	KindUnrecognized ContentKind = iota

	// KindHTML is markup that may reference scripts and import maps.
	KindHTML

	// KindJavaScript is script source that may reference chunks, imports and source maps.
	KindJavaScript

	// KindJSON is a JSON body that may be a framework build manifest.
	KindJSON
)

// String returns a short name for the kind.
func (k ContentKind) String() string {
	switch k {
	case KindHTML:
		return "html"
	case KindJavaScript:
		return "javascript"
	case KindJSON:
		return "json"
	default:
		return "unrecognized"
	}
}

// ClassifyContentType maps a Content-Type header to a ContentKind.
// The match is a case-insensitive substring test, so parameters such as
// charset are tolerated. An empty header is unrecognized.
func ClassifyContentType(header string) ContentKind {
	ct := strings.ToLower(header)
	switch {
	case strings.Contains(ct, "html"):
		return KindHTML
	case strings.Contains(ct, "javascript"):
		return KindJavaScript
	case strings.Contains(ct, "json"):
		return KindJSON
	default:
		return KindUnrecognized
	}
}

// Asset is an immutable snapshot of one fetch result.
type Asset struct {
	// URL is the absolute URL the asset was fetched from.
	URL string `json:"url"`

	// StatusCode is the HTTP status, or 200 for local files.
	StatusCode int `json:"status_code"`

	// ContentType is the raw Content-Type header.
	ContentType string `json:"content_type"`

	// Kind is the classification of ContentType.
	Kind ContentKind `json:"kind"`

	// Body is the response body, possibly truncated to the fetcher's size limit.
	Body []byte `json:"-"`
}

// WithBody returns a copy of the asset carrying a different body.
// Used when a script is replaced by its de-obfuscated form.
func (a *Asset) WithBody(body []byte) *Asset {
	cp := *a
	cp.Body = body
	return &cp
}

// Mechanism records how a reference was discovered.
type Mechanism int

const (
	// MechanismSeed marks a URL supplied by the caller.
	MechanismSeed Mechanism = iota

	// MechanismScriptTag is a <script src> attribute.
	MechanismScriptTag

	// MechanismImportMap is an address inside a <script type="importmap"> block.
	MechanismImportMap

	// MechanismAggressive is a brute-force extension match in raw markup.
	MechanismAggressive

	// MechanismDynamicImport is an import("...") call.
	MechanismDynamicImport

	// MechanismWebpackChunk is a webpack chunk loader call.
	MechanismWebpackChunk

	// MechanismManifest is an entry of a framework build manifest.
	MechanismManifest

	// MechanismSourceMap is a trailing sourceMappingURL comment.
	// Source maps are fetched and persisted but never scanned further.
	MechanismSourceMap
)

// String returns the mechanism name used in logs and summaries.
func (m Mechanism) String() string {
	switch m {
	case MechanismSeed:
		return "seed"
	case MechanismScriptTag:
		return "script_tag"
	case MechanismImportMap:
		return "import_map"
	case MechanismAggressive:
		return "aggressive"
	case MechanismDynamicImport:
		return "dynamic_import"
	case MechanismWebpackChunk:
		return "webpack_chunk"
	case MechanismManifest:
		return "manifest"
	case MechanismSourceMap:
		return "source_map"
	default:
		return "unknown"
	}
}

// Reference is a URL discovered inside an asset.
type Reference struct {
	// URL is the resolved absolute URL.
	URL string `json:"url"`

	// Mechanism is how the reference was found.
	Mechanism Mechanism `json:"mechanism"`

	// Source is the URL of the asset the reference was found in.
	Source string `json:"source,omitempty"`
}

// StoredAsset describes a file persisted to the output directory.
type StoredAsset struct {
	// URL is the source URL of the content.
	URL string `json:"url"`

	// Path is the file path on disk.
	Path string `json:"path"`

	// Size is the number of bytes written.
	Size int64 `json:"size"`

	// Digest is the hex SHA3-256 of the content.
	Digest string `json:"digest"`
}

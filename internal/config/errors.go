package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoTarget is returned when no URL or path was given.
	ErrNoTarget = errors.New("no target specified: provide at least one URL or local path")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidToolTimeout is returned when the external tool timeout is not positive.
	ErrInvalidToolTimeout = errors.New("invalid tool timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidMaxURLs is returned when the URL ceiling is negative.
	ErrInvalidMaxURLs = errors.New("invalid max urls: must be non-negative (0 means unlimited)")

	// ErrInvalidRateLimit is returned when the request rate is negative.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative (0 means unlimited)")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown are given.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)

// Package log builds the slog loggers used by webql.
//
// Crawls are often authenticated with cookies or bearer headers, and the
// secrets scanner reports raw credentials, so every logger created here
// wraps its handler in a RedactingHandler. The handler masks:
//   - attributes whose key names a credential (cookie, authorization, token, raw, ...)
//   - string values that look like credentials (JWTs, bearer tokens, AWS keys, private keys)
//   - sensitive query parameters inside URL values
//
// Usage:
//
//	logger := log.NewLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
package log

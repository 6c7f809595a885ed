// Package database keeps the history of webql analysis runs in SQLite.
//
// Each run of the analyze command records the target, the assets that were
// harvested (with their digests) and the classified findings, so repeated
// analyses of the same site can be compared. The database is written by the
// pipeline and read by the history command; the crawler never reads it.
//
// The driver is modernc.org/sqlite, which needs no cgo.
package database

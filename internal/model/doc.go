// Package model defines the core data structures shared by webql packages.
//
// This package contains the following main types:
//   - Asset and Reference: one fetch result and the URLs discovered inside it
//   - Severity, Finding and ClassifiedReport: SARIF findings grouped per severity bucket
//   - CrawlSummary: the outcome of one asset-discovery traversal
//   - AnalysisReport: accumulated state of a full analysis pipeline run
//
// The models carry no behavior beyond small helpers and are serializable to JSON
// for report output and database storage.
package model

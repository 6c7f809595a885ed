// Package pipeline runs the webql analysis of one or more targets as an
// ordered list of steps sharing a model.AnalysisReport:
//
//	crawl → beautify → database → query → classify → secrets
//
// Each step reads what earlier steps recorded in the report and fills in its
// own fields. A step whose input is missing fails with ErrMissingPrerequisite.
// BatchProcessor analyzes several targets concurrently with errgroup.
package pipeline

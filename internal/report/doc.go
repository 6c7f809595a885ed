// Package report renders webql results for people and tools.
//
// Three writers share the Writer interface:
//   - SimpleWriter: aligned text for the terminal, optionally colored
//   - MarkdownWriter: GitHub-flavored Markdown with tables, alerts and a chart
//   - JSONWriter: structured JSON for other tools
//
// Writers only format; the data lives in the model package.
package report

// Package main provides the entry point for the webql CLI.
//
// webql harvests the JavaScript of a web application (script tags, import
// maps, dynamic imports, webpack chunks, source maps and build manifests),
// builds a CodeQL database from it and reports the findings by severity.
//
// Usage:
//
//	webql scan https://example.com
//	webql analyze https://example.com --secrets
//	webql results results.sarif
//
// See --help for all available options.
package main

func main() {
	Execute()
}

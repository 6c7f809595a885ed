// Package config holds webql's runtime configuration: CLI flag values, the
// optional .webql YAML file with per-site crawl settings and tool paths, and
// the XDG directories used for the run history.
package config

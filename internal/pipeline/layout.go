package pipeline

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// dirTimeLayout is the timestamp suffix of per-target output directories.
const dirTimeLayout = "20060102_150405"

// Layout is the set of paths one analysis writes to.
type Layout struct {
	// Root is the per-target output directory.
	Root string
	// Assets holds harvested scripts, source maps and pages.
	Assets string
	// Database is the CodeQL database directory.
	Database string
	// SARIF is the query suite output.
	SARIF string
	// Secrets is the trufflehog NDJSON output.
	Secrets string
}

// NewLayout places the output of target below baseDir in a directory named
// by OutputDirName.
func NewLayout(baseDir, target string, now time.Time) Layout {
	return LayoutAt(filepath.Join(baseDir, OutputDirName(target, now)))
}

// LayoutAt returns the layout rooted at an existing directory.
func LayoutAt(root string) Layout {
	name := filepath.Base(root)
	return Layout{
		Root:     root,
		Assets:   filepath.Join(root, "assets"),
		Database: filepath.Join(root, name+"_db"),
		SARIF:    filepath.Join(root, name+"_results.sarif"),
		Secrets:  filepath.Join(root, "secrets", "trufflehog_"+name+"_output.txt"),
	}
}

// OutputDirName returns "<host>_<yyyymmdd_hhmmss>" for a URL target, with
// dots and colons in the host replaced by underscores. Local paths use their
// base name; an empty name becomes "local".
func OutputDirName(target string, now time.Time) string {
	return sanitize(targetName(target)) + "_" + now.Format(dirTimeLayout)
}

func targetName(target string) string {
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		return strings.ToLower(u.Host)
	}
	if u, err := url.Parse(target); err == nil && u.Scheme == "file" {
		target = u.Path
	}
	base := filepath.Base(filepath.Clean(target))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "local"
	}
	return base
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ':', '/', '\\', ' ':
			return '_'
		}
		return r
	}, name)
}

package pipeline

import (
	"path/filepath"
	"testing"
	"time"
)

func TestOutputDirName(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	tests := []struct {
		name   string
		target string
		want   string
	}{
		{name: "host", target: "https://Example.com/app", want: "example_com_20250304_050607"},
		{name: "host with port", target: "http://localhost:8080/", want: "localhost_8080_20250304_050607"},
		{name: "local directory", target: "/tmp/site/", want: "site_20250304_050607"},
		{name: "file url", target: "file:///srv/www/index.html", want: "index_html_20250304_050607"},
		{name: "empty", target: "", want: "local_20250304_050607"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := OutputDirName(tt.target, now); got != tt.want {
				t.Errorf("OutputDirName(%q) = %q, want %q", tt.target, got, tt.want)
			}
		})
	}
}

func TestNewLayout(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	l := NewLayout("out", "https://example.com", now)

	root := filepath.Join("out", "example_com_20250304_050607")
	want := Layout{
		Root:     root,
		Assets:   filepath.Join(root, "assets"),
		Database: filepath.Join(root, "example_com_20250304_050607_db"),
		SARIF:    filepath.Join(root, "example_com_20250304_050607_results.sarif"),
		Secrets:  filepath.Join(root, "secrets", "trufflehog_example_com_20250304_050607_output.txt"),
	}
	if l != want {
		t.Errorf("NewLayout() = %+v, want %+v", l, want)
	}
}

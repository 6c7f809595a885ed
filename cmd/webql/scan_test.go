package main

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><script src="/static/app.js"></script></head></html>`))
	})
	mux.HandleFunc("/static/app.js", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte(`eval(location.hash);`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func countScripts(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".js") {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestNewScanCmd(t *testing.T) {
	t.Parallel()

	cmd := NewScanCmd()
	for _, name := range []string{"output-dir", "aggressive", "secrets", "no-deobfuscate", "max-urls", "proxy", "json", "markdown", "report"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
	if err := cmd.Args(cmd, nil); err == nil {
		t.Error("expected error without targets")
	}
}

func TestRunScanCmd(t *testing.T) {
	t.Parallel()

	t.Run("harvests scripts from a site", func(t *testing.T) {
		t.Parallel()

		srv := newTestSite(t)
		outDir := t.TempDir()
		stdout, stderr, err := executeRoot(t, "scan", "--config", writeEmptyConfig(t), "--no-color",
			"-o", outDir, "--no-deobfuscate", "--rate-limit", "0", srv.URL+"/")
		if err != nil {
			t.Fatalf("unexpected error: %v\n%s", err, stderr)
		}
		if !strings.Contains(stdout, "CRAWL SUMMARY") {
			t.Errorf("expected crawl summary, got:\n%s", stdout)
		}
		if !strings.Contains(stderr, "Scan completed. 1 file(s)") {
			t.Errorf("unexpected status output:\n%s", stderr)
		}
		if got := countScripts(t, outDir); got != 1 {
			t.Errorf("expected 1 script on disk, got %d", got)
		}
	})

	t.Run("report file keeps a text summary on stdout", func(t *testing.T) {
		t.Parallel()

		srv := newTestSite(t)
		reportPath := filepath.Join(t.TempDir(), "reports", "crawl.json")
		stdout, stderr, err := executeRoot(t, "scan", "--config", writeEmptyConfig(t), "--no-color",
			"-o", t.TempDir(), "--no-deobfuscate", "--json", "-r", reportPath, srv.URL+"/")
		if err != nil {
			t.Fatalf("unexpected error: %v\n%s", err, stderr)
		}
		if !strings.Contains(stdout, "CRAWL SUMMARY") {
			t.Errorf("expected text summary on stdout, got:\n%s", stdout)
		}
		data, err := os.ReadFile(reportPath)
		if err != nil {
			t.Fatalf("report file: %v", err)
		}
		var summary map[string]any
		if err := json.Unmarshal(data, &summary); err != nil {
			t.Errorf("report file is not JSON: %v\n%s", err, data)
		}
	})

	t.Run("json log records", func(t *testing.T) {
		t.Parallel()

		srv := newTestSite(t)
		_, stderr, err := executeRoot(t, "scan", "--config", writeEmptyConfig(t), "--log-json",
			"-o", t.TempDir(), "--no-deobfuscate", srv.URL+"/")
		if err != nil {
			t.Fatalf("unexpected error: %v\n%s", err, stderr)
		}

		found := false
		for _, line := range strings.Split(stderr, "\n") {
			if !strings.HasPrefix(line, "{") {
				continue
			}
			var record map[string]any
			if err := json.Unmarshal([]byte(line), &record); err != nil {
				t.Fatalf("invalid JSON log line %q: %v", line, err)
			}
			if record["msg"] == "starting scan" {
				found = true
			}
		}
		if !found {
			t.Errorf("expected a JSON record for the scan start, got:\n%s", stderr)
		}
	})

	t.Run("conflicting report formats", func(t *testing.T) {
		t.Parallel()

		_, _, err := executeRoot(t, "scan", "--config", writeEmptyConfig(t),
			"-o", t.TempDir(), "--json", "--markdown", "https://example.com/")
		if err == nil {
			t.Error("expected configuration error")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		srv := newTestSite(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		cmd := NewRootCmd()
		cmd.SetArgs([]string{"scan", "--config", writeEmptyConfig(t), "-o", t.TempDir(), "--no-deobfuscate", srv.URL + "/"})
		cmd.SetOut(&strings.Builder{})
		cmd.SetErr(&strings.Builder{})
		if err := cmd.ExecuteContext(ctx); err == nil {
			t.Error("expected error for cancelled scan")
		}
	})
}

func TestSeedsFor(t *testing.T) {
	t.Parallel()

	t.Run("url", func(t *testing.T) {
		t.Parallel()

		seeds, err := seedsFor("https://example.com/")
		if err != nil {
			t.Fatal(err)
		}
		if len(seeds) != 1 || seeds[0] != "https://example.com/" {
			t.Errorf("seeds = %v", seeds)
		}
	})

	t.Run("local directory", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("var a;"), 0o600); err != nil {
			t.Fatal(err)
		}
		seeds, err := seedsFor(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(seeds) == 0 || !strings.HasPrefix(seeds[0], "file://") {
			t.Errorf("expected file:// seeds, got %v", seeds)
		}
	})
}

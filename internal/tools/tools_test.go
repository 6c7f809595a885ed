package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

// call is one recorded invocation.
type call struct {
	name string
	args []string
}

// fakeRunner records calls and returns canned results.
type fakeRunner struct {
	mu     sync.Mutex
	calls  []call
	result func(name string, args []string) *Result
}

func (f *fakeRunner) Run(_ context.Context, name string, args []string, _ ...RunOption) *Result {
	f.mu.Lock()
	f.calls = append(f.calls, call{name: name, args: append([]string(nil), args...)})
	f.mu.Unlock()
	if f.result == nil {
		return &Result{}
	}
	return f.result(name, args)
}

func failing(stderr string, code int) func(string, []string) *Result {
	return func(string, []string) *Result {
		return &Result{Stderr: stderr, ExitCode: code, Err: errors.New("exit status")}
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	if _, err := LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	t.Run("captures output and exit code", func(t *testing.T) {
		t.Parallel()
		r := Run(context.Background(), "sh", []string{"-c", "echo out; echo err >&2; exit 3"})
		if strings.TrimSpace(r.Stdout) != "out" || strings.TrimSpace(r.Stderr) != "err" {
			t.Errorf("unexpected output: %+v", r)
		}
		if r.ExitCode != 3 || r.Err == nil {
			t.Errorf("expected exit code 3, got %d (%v)", r.ExitCode, r.Err)
		}
	})

	t.Run("missing binary is reported", func(t *testing.T) {
		t.Parallel()
		r := Run(context.Background(), "webql-no-such-binary", nil)
		if r.Err == nil || r.ExitCode != -1 {
			t.Errorf("expected start failure, got %+v", r)
		}
	})
}

func TestTimeoutRunner(t *testing.T) {
	t.Parallel()

	var got []time.Duration
	inner := RunnerFunc(func(_ context.Context, _ string, _ []string, opts ...RunOption) *Result {
		o := &Options{}
		for _, opt := range opts {
			opt(o)
		}
		got = append(got, o.Timeout)
		return &Result{}
	})

	r := TimeoutRunner(inner, time.Minute)
	r.Run(context.Background(), "tool", nil)
	r.Run(context.Background(), "tool", nil, WithTimeout(time.Second))

	want := []time.Duration{time.Minute, time.Second}
	if !slices.Equal(got, want) {
		t.Errorf("timeouts = %v, want %v", got, want)
	}
}

func TestCommandError(t *testing.T) {
	t.Parallel()

	err := commandError("codeql", []string{"database", "create"}, &Result{
		ExitCode: 2,
		Stderr:   "A fatal error occurred:\nSource root is empty\n",
		Err:      errors.New("exit status 2"),
	})

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected *CommandError, got %T", err)
	}
	if cmdErr.ExitCode != 2 {
		t.Errorf("unexpected exit code %d", cmdErr.ExitCode)
	}
	if !strings.Contains(err.Error(), "Source root is empty") {
		t.Errorf("error should carry the last stderr line: %v", err)
	}

	if commandError("codeql", nil, &Result{}) != nil {
		t.Error("a successful result is not an error")
	}
}

func TestCodeQL(t *testing.T) {
	t.Parallel()

	t.Run("create database arguments", func(t *testing.T) {
		t.Parallel()
		runner := &fakeRunner{}
		if err := NewCodeQL("", runner).CreateDatabase(context.Background(), "/out/src", "/out/db", true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"database", "create", "--quiet", "/out/db", "--language=javascript", "--source-root", "/out/src", "--overwrite"}
		if runner.calls[0].name != "codeql" || !slices.Equal(runner.calls[0].args, want) {
			t.Errorf("unexpected call %+v", runner.calls[0])
		}
	})

	t.Run("analyze uses the default suite", func(t *testing.T) {
		t.Parallel()
		runner := &fakeRunner{}
		if err := NewCodeQL("/opt/codeql/codeql", runner).AnalyzeDatabase(context.Background(), "/out/db", "", "/out/results.sarif"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"database", "analyze", "--quiet", "/out/db", DefaultQuerySuite, "--format=sarif-latest", "--output=/out/results.sarif"}
		if runner.calls[0].name != "/opt/codeql/codeql" || !slices.Equal(runner.calls[0].args, want) {
			t.Errorf("unexpected call %+v", runner.calls[0])
		}
	})

	t.Run("failure carries diagnostics", func(t *testing.T) {
		t.Parallel()
		runner := &fakeRunner{result: failing("no source files", 32)}
		err := NewCodeQL("", runner).CreateDatabase(context.Background(), "/src", "/db", false)
		var cmdErr *CommandError
		if !errors.As(err, &cmdErr) || cmdErr.ExitCode != 32 || cmdErr.Stderr != "no source files" {
			t.Errorf("unexpected error %v", err)
		}
		if slices.Contains(runner.calls[0].args, "--overwrite") {
			t.Error("--overwrite should not be passed")
		}
	})
}

func TestWebcrack(t *testing.T) {
	t.Parallel()

	t.Run("writes stdout next to the input", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		input := filepath.Join(dir, "site_example_main.js")
		if err := os.WriteFile(input, []byte("eval(atob('x'))"), 0o600); err != nil {
			t.Fatal(err)
		}
		runner := &fakeRunner{result: func(string, []string) *Result {
			return &Result{Stdout: "const x = 1;\n"}
		}}

		out, err := NewWebcrack("", runner).Deobfuscate(context.Background(), input)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != filepath.Join(dir, "site_example_main_webcracked.js") {
			t.Errorf("unexpected output path %s", out)
		}
		data, _ := os.ReadFile(out)
		if string(data) != "const x = 1;\n" {
			t.Errorf("unexpected output %q", data)
		}
		original, _ := os.ReadFile(input)
		if string(original) != "eval(atob('x'))" {
			t.Error("input file must be kept")
		}
	})

	t.Run("failure is returned", func(t *testing.T) {
		t.Parallel()
		runner := &fakeRunner{result: failing("SyntaxError", 1)}
		if _, err := NewWebcrack("", runner).Deobfuscate(context.Background(), "/tmp/x.js"); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("empty output is an error", func(t *testing.T) {
		t.Parallel()
		if _, err := NewWebcrack("", &fakeRunner{}).Deobfuscate(context.Background(), "/tmp/x.js"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestBeautifier(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"a.js", "b.JS", "c.map", "sub/d.js", "bad.js"} {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	runner := &fakeRunner{result: func(_ string, args []string) *Result {
		if strings.HasSuffix(args[len(args)-1], "bad.js") {
			return &Result{ExitCode: 1, Err: errors.New("exit status 1")}
		}
		return &Result{}
	}}

	count, err := NewBeautifier("", runner, nil).BeautifyDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 beautified files, got %d", count)
	}
	if len(runner.calls) != 4 {
		t.Errorf("expected 4 js-beautify calls, got %d", len(runner.calls))
	}
	wantPrefix := []string{"-r", "--indent-size", "2", "--space-in-empty-paren"}
	if !slices.Equal(runner.calls[0].args[:4], wantPrefix) {
		t.Errorf("unexpected arguments %v", runner.calls[0].args)
	}
}

func TestTrufflehog(t *testing.T) {
	t.Parallel()

	ndjson := `{"level":"info","msg":"running source"}
{"DetectorName":"AWS","Verified":false,"Raw":"AKIAEXAMPLE","SourceMetadata":{"Data":{"Filesystem":{"file":"/out/site_main.js","line":12}}}}

not json
{"DetectorName":"Github","Verified":true,"Raw":"ghp_x","SourceMetadata":{"Data":{"Filesystem":{"file":"/out/site_app.js","line":3}}}}
`
	dir := t.TempDir()
	output := filepath.Join(dir, "secrets.json")
	runner := &fakeRunner{result: func(string, []string) *Result {
		return &Result{Stdout: ndjson}
	}}

	if err := NewTrufflehog("", runner).ScanFilesystem(context.Background(), dir, output); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"filesystem", "--directory", dir, "--json", "--no-update"}
	if !slices.Equal(runner.calls[0].args, want) {
		t.Errorf("unexpected arguments %v", runner.calls[0].args)
	}

	secrets, err := ReadSecrets(output)
	if err != nil {
		t.Fatalf("ReadSecrets: %v", err)
	}
	if len(secrets) != 2 {
		t.Fatalf("expected 2 secrets, got %d", len(secrets))
	}
	if secrets[0].DetectorName != "AWS" || secrets[0].File() != "/out/site_main.js" || secrets[0].Line() != 12 {
		t.Errorf("unexpected first secret %+v", secrets[0])
	}
	if !secrets[1].Verified {
		t.Error("second secret should be verified")
	}

	t.Run("scan failure is returned", func(t *testing.T) {
		t.Parallel()
		err := NewTrufflehog("", &fakeRunner{result: failing("boom", 2)}).ScanFilesystem(context.Background(), dir, filepath.Join(dir, "x.json"))
		if err == nil {
			t.Error("expected error")
		}
	})
}

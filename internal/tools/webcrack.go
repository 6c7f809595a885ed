package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// webcrackSuffix is appended to the input stem for the de-obfuscated output.
const webcrackSuffix = "_webcracked.js"

// Webcrack de-obfuscates scripts with the webcrack CLI.
type Webcrack struct {
	Binary string
	Runner Runner
}

// NewWebcrack returns a wrapper for binary, defaulting to "webcrack".
func NewWebcrack(binary string, runner Runner) *Webcrack {
	if binary == "" {
		binary = "webcrack"
	}
	if runner == nil {
		runner = ExecRunner
	}
	return &Webcrack{Binary: binary, Runner: runner}
}

// OutputPath returns where the de-obfuscated form of path is written.
func OutputPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + webcrackSuffix
}

// Deobfuscate runs webcrack on path and writes its stdout to
// "<stem>_webcracked.js" next to the input. The input file is left untouched.
func (w *Webcrack) Deobfuscate(ctx context.Context, path string) (string, error) {
	args := []string{path}
	r := w.Runner.Run(ctx, w.Binary, args)
	if err := commandError(w.Binary, args, r); err != nil {
		return "", err
	}
	if strings.TrimSpace(r.Stdout) == "" {
		return "", fmt.Errorf("%s produced no output for %s", w.Binary, path)
	}

	out := OutputPath(path)
	if err := os.WriteFile(out, []byte(r.Stdout), 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", out, err)
	}
	return out, nil
}

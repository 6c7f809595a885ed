package tools

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
)

// Beautifier reformats scripts in place with js-beautify so that CodeQL
// locations point at readable lines.
type Beautifier struct {
	Binary string
	Runner Runner
	Logger *slog.Logger
}

// NewBeautifier returns a wrapper for binary, defaulting to "js-beautify".
func NewBeautifier(binary string, runner Runner, logger *slog.Logger) *Beautifier {
	if binary == "" {
		binary = "js-beautify"
	}
	if runner == nil {
		runner = ExecRunner
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Beautifier{Binary: binary, Runner: runner, Logger: logger}
}

// BeautifyFile rewrites one file in place with a two-space indent.
func (b *Beautifier) BeautifyFile(ctx context.Context, path string) error {
	args := []string{"-r", "--indent-size", "2", "--space-in-empty-paren", path}
	return commandError(b.Binary, args, b.Runner.Run(ctx, b.Binary, args))
}

// BeautifyDir beautifies every .js file below dir and returns how many
// succeeded. A failing file is logged and skipped; only a walk error or
// cancellation is returned.
func (b *Beautifier) BeautifyDir(ctx context.Context, dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".js") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.BeautifyFile(ctx, path); err != nil {
			b.Logger.Warn("beautify failed", "path", path, "error", err)
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("failed to beautify %s: %w", dir, err)
	}
	return count, nil
}

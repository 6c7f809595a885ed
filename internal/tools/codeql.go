package tools

import "context"

// DefaultQuerySuite is the suite run when none is configured.
const DefaultQuerySuite = "javascript-lgtm.qls"

// CodeQL drives the CodeQL CLI.
type CodeQL struct {
	Binary   string
	Language string
	Runner   Runner
}

// NewCodeQL returns a wrapper for binary, defaulting to "codeql".
func NewCodeQL(binary string, runner Runner) *CodeQL {
	if binary == "" {
		binary = "codeql"
	}
	if runner == nil {
		runner = ExecRunner
	}
	return &CodeQL{Binary: binary, Language: "javascript", Runner: runner}
}

// CreateDatabase builds a database at dbPath from the sources in sourceRoot.
func (c *CodeQL) CreateDatabase(ctx context.Context, sourceRoot, dbPath string, overwrite bool) error {
	args := []string{
		"database", "create", "--quiet", dbPath,
		"--language=" + c.Language,
		"--source-root", sourceRoot,
	}
	if overwrite {
		args = append(args, "--overwrite")
	}
	return commandError(c.Binary, args, c.Runner.Run(ctx, c.Binary, args))
}

// AnalyzeDatabase runs querySuite against dbPath and writes SARIF to outputFile.
// An empty querySuite uses DefaultQuerySuite.
func (c *CodeQL) AnalyzeDatabase(ctx context.Context, dbPath, querySuite, outputFile string) error {
	if querySuite == "" {
		querySuite = DefaultQuerySuite
	}
	args := []string{
		"database", "analyze", "--quiet", dbPath, querySuite,
		"--format=sarif-latest",
		"--output=" + outputFile,
	}
	return commandError(c.Binary, args, c.Runner.Run(ctx, c.Binary, args))
}

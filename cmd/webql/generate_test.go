package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/webql/internal/config"
)

func TestNewGenerateCmd(t *testing.T) {
	t.Parallel()

	cmd := NewGenerateCmd()
	flag := cmd.Flags().Lookup("db-name")
	if flag == nil {
		t.Fatal("expected db-name flag")
	}
	if flag.DefValue != config.DefaultDatabaseName {
		t.Errorf("expected default %q, got %q", config.DefaultDatabaseName, flag.DefValue)
	}
	for _, name := range []string{"overwrite", "no-beautify", "tool-timeout"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
}

func TestRunGenerateCmdRequiresDirectory(t *testing.T) {
	t.Parallel()

	_, _, err := executeRoot(t, "generate", "--config", writeEmptyConfig(t), filepath.Join(t.TempDir(), "missing"))
	if err == nil || !strings.Contains(err.Error(), "is not a directory") {
		t.Errorf("expected directory error, got %v", err)
	}
}

func TestNewParseCmd(t *testing.T) {
	t.Parallel()

	cmd := NewParseCmd()
	flag := cmd.Flags().Lookup("output-file")
	if flag == nil {
		t.Fatal("expected output-file flag")
	}
	if flag.Shorthand != "o" {
		t.Errorf("expected shorthand 'o', got %q", flag.Shorthand)
	}
}

func TestRunParseCmdMissingDatabase(t *testing.T) {
	t.Parallel()

	_, _, err := executeRoot(t, "parse", "--config", writeEmptyConfig(t), filepath.Join(t.TempDir(), "missing_db"))
	if err == nil || !strings.Contains(err.Error(), "database not found") {
		t.Errorf("expected database not found error, got %v", err)
	}
}

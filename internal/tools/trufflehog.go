package tools

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Secret is one trufflehog finding.
type Secret struct {
	DetectorName   string `json:"DetectorName"`
	Verified       bool   `json:"Verified"`
	Raw            string `json:"Raw"`
	Redacted       string `json:"Redacted"`
	SourceMetadata struct {
		Data struct {
			Filesystem struct {
				File string `json:"file"`
				Line int64  `json:"line"`
			} `json:"Filesystem"`
		} `json:"Data"`
	} `json:"SourceMetadata"`
}

// File returns the path the secret was found in.
func (s Secret) File() string {
	return s.SourceMetadata.Data.Filesystem.File
}

// Line returns the line the secret was found on.
func (s Secret) Line() int {
	return int(s.SourceMetadata.Data.Filesystem.Line)
}

// Trufflehog scans harvested files for secrets.
type Trufflehog struct {
	Binary string
	Runner Runner
}

// NewTrufflehog returns a wrapper for binary, defaulting to "trufflehog".
func NewTrufflehog(binary string, runner Runner) *Trufflehog {
	if binary == "" {
		binary = "trufflehog"
	}
	if runner == nil {
		runner = ExecRunner
	}
	return &Trufflehog{Binary: binary, Runner: runner}
}

// ScanFilesystem scans dir and writes trufflehog's NDJSON output to outputFile.
func (t *Trufflehog) ScanFilesystem(ctx context.Context, dir, outputFile string) error {
	args := []string{"filesystem", "--directory", dir, "--json", "--no-update"}
	r := t.Runner.Run(ctx, t.Binary, args)
	if err := commandError(t.Binary, args, r); err != nil {
		return err
	}
	if err := os.WriteFile(outputFile, []byte(r.Stdout), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputFile, err)
	}
	return nil
}

// ReadSecrets parses a trufflehog NDJSON file. Lines that are not findings,
// such as log records, are skipped.
func ReadSecrets(path string) ([]Secret, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	secrets := make([]Secret, 0)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var s Secret
		if err := json.Unmarshal(line, &s); err != nil || s.DetectorName == "" {
			continue
		}
		secrets = append(secrets, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return secrets, nil
}

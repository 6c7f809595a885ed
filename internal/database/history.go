package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/webql/internal/model"
)

// FileName is the name of the database file inside the data directory.
const FileName = "webql.db"

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
	StatusTimedOut = "timed_out"
)

// HistoryDB stores analysis runs, their assets and their findings.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database in dbDir.
// When CreateIfNotExists is false a missing database file is an error.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	mode := "rwc"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	} else {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
		mode = "rw"
	}

	db, err := sql.Open("sqlite", dbPath+"?mode="+mode+"&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

func (h *HistoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target TEXT NOT NULL,
		output_dir TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		status TEXT NOT NULL,
		steps TEXT,
		step_errors TEXT,
		risk_summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_target ON runs(target);

	CREATE TABLE IF NOT EXISTS assets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		path TEXT NOT NULL,
		size INTEGER NOT NULL,
		digest TEXT NOT NULL,
		UNIQUE(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_assets_url ON assets(url);

	CREATE TABLE IF NOT EXISTS findings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		rule_id TEXT NOT NULL,
		severity TEXT NOT NULL,
		message TEXT NOT NULL,
		file_path TEXT NOT NULL,
		line INTEGER,
		location TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_findings_run ON findings(run_id);
	`

	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// Run is one recorded analysis.
type Run struct {
	ID        int64     `json:"id"`
	Target    string    `json:"target"`
	OutputDir string    `json:"output_dir"`
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is zero while the run is still in progress.
	FinishedAt time.Time `json:"finished_at"`

	Status string            `json:"status"`
	Steps  []string          `json:"steps"`
	Errors map[string]string `json:"errors,omitempty"`

	// RiskSummary counts findings per severity bucket.
	RiskSummary map[string]int `json:"risk_summary"`

	// AssetCount is the number of assets recorded for the run.
	AssetCount int `json:"asset_count"`
}

// BeginRun records the start of an analysis and returns its ID.
func (h *HistoryDB) BeginRun(ctx context.Context, target, outputDir string, startedAt time.Time) (int64, error) {
	result, err := h.db.ExecContext(ctx,
		`INSERT INTO runs (target, output_dir, started_at, status) VALUES (?, ?, ?, ?)`,
		target, outputDir, formatTimestamp(startedAt), StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to begin run: %w", err)
	}
	return result.LastInsertId()
}

// FinishRun stores the final state of an analysis.
func (h *HistoryDB) FinishRun(ctx context.Context, runID int64, report *model.AnalysisReport) error {
	steps, err := json.Marshal(report.PerformedSteps)
	if err != nil {
		return fmt.Errorf("failed to serialize steps: %w", err)
	}
	stepErrors, err := json.Marshal(report.StepErrors)
	if err != nil {
		return fmt.Errorf("failed to serialize step errors: %w", err)
	}
	risk, err := json.Marshal(riskSummary(report.Findings))
	if err != nil {
		return fmt.Errorf("failed to serialize risk summary: %w", err)
	}

	result, err := h.db.ExecContext(ctx, `
	UPDATE runs
	SET finished_at = ?, status = ?, steps = ?, step_errors = ?, risk_summary = ?
	WHERE id = ?
	`,
		formatTimestamp(time.Now()),
		runStatus(report),
		string(steps),
		string(stepErrors),
		string(risk),
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %d not found", runID)
	}
	return nil
}

// Record stores a finished analysis in one call: the run, its assets, its
// findings and its final status. It returns the new run ID.
func (h *HistoryDB) Record(ctx context.Context, report *model.AnalysisReport) (int64, error) {
	runID, err := h.BeginRun(ctx, report.Target, report.OutputDir, report.StartedAt)
	if err != nil {
		return 0, err
	}
	if err := h.SaveAssets(ctx, runID, report.Assets); err != nil {
		return runID, err
	}
	if err := h.SaveFindings(ctx, runID, report.Findings); err != nil {
		return runID, err
	}
	if err := h.FinishRun(ctx, runID, report); err != nil {
		return runID, err
	}
	return runID, nil
}

func runStatus(report *model.AnalysisReport) string {
	switch {
	case report.TimedOut:
		return StatusTimedOut
	case report.Failed():
		return StatusFailed
	default:
		return StatusComplete
	}
}

func riskSummary(findings *model.ClassifiedReport) map[string]int {
	summary := make(map[string]int, len(model.Buckets()))
	for _, sev := range model.Buckets() {
		summary[sev.String()] = 0
		if findings != nil {
			summary[sev.String()] = findings.Count(sev)
		}
	}
	return summary
}

// SaveAssets records the assets harvested by a run.
// Saving the same URL twice for a run keeps the latest file.
func (h *HistoryDB) SaveAssets(ctx context.Context, runID int64, assets []model.StoredAsset) error {
	return h.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO assets (run_id, url, path, size, digest)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, url) DO UPDATE SET
			path = excluded.path,
			size = excluded.size,
			digest = excluded.digest
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare asset insert: %w", err)
		}
		defer stmt.Close()

		for _, a := range assets {
			if _, err := stmt.ExecContext(ctx, runID, a.URL, a.Path, a.Size, a.Digest); err != nil {
				return fmt.Errorf("failed to save asset %s: %w", a.URL, err)
			}
		}
		return nil
	})
}

// SaveFindings records the classified findings of a run.
func (h *HistoryDB) SaveFindings(ctx context.Context, runID int64, report *model.ClassifiedReport) error {
	if report == nil {
		return nil
	}
	return h.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO findings (run_id, rule_id, severity, message, file_path, line, location)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare finding insert: %w", err)
		}
		defer stmt.Close()

		for _, f := range report.All() {
			var line sql.NullInt64
			if f.Line != nil {
				line = sql.NullInt64{Int64: int64(*f.Line), Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, runID, f.RuleID, f.Severity.String(), f.Message, f.FilePath, line, f.Location); err != nil {
				return fmt.Errorf("failed to save finding %s: %w", f.RuleID, err)
			}
		}
		return nil
	})
}

func (h *HistoryDB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const runColumns = `
	r.id, r.target, r.output_dir, r.started_at, r.finished_at, r.status,
	r.steps, r.step_errors, r.risk_summary,
	(SELECT COUNT(*) FROM assets a WHERE a.run_id = r.id)
`

// ListRuns returns recorded runs, newest first. An empty target lists
// every target. A limit of zero or less returns all runs.
func (h *HistoryDB) ListRuns(ctx context.Context, target string, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs r WHERE 1=1`
	args := make([]any, 0, 2)

	if target != "" {
		query += " AND r.target = ?"
		args = append(args, target)
	}
	query += " ORDER BY r.started_at DESC, r.id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

// GetRun returns a run by ID, or nil when it does not exist.
func (h *HistoryDB) GetRun(ctx context.Context, runID int64) (*Run, error) {
	row := h.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run                        Run
		startedAt                  string
		finishedAt                 sql.NullString
		steps, stepErrors, riskRaw sql.NullString
	)

	err := row.Scan(
		&run.ID,
		&run.Target,
		&run.OutputDir,
		&startedAt,
		&finishedAt,
		&run.Status,
		&steps,
		&stepErrors,
		&riskRaw,
		&run.AssetCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.StartedAt = parseTimestamp(startedAt)
	if finishedAt.Valid {
		run.FinishedAt = parseTimestamp(finishedAt.String)
	}

	// Malformed JSON columns degrade to empty values.
	run.Steps = []string{}
	if steps.Valid && steps.String != "" {
		_ = json.Unmarshal([]byte(steps.String), &run.Steps)
	}
	run.Errors = make(map[string]string)
	if stepErrors.Valid && stepErrors.String != "" {
		_ = json.Unmarshal([]byte(stepErrors.String), &run.Errors)
	}
	run.RiskSummary = make(map[string]int)
	if riskRaw.Valid && riskRaw.String != "" {
		_ = json.Unmarshal([]byte(riskRaw.String), &run.RiskSummary)
	}

	return &run, nil
}

// Assets returns the assets recorded for a run, ordered by URL.
func (h *HistoryDB) Assets(ctx context.Context, runID int64) ([]model.StoredAsset, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT url, path, size, digest FROM assets WHERE run_id = ? ORDER BY url`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var assets []model.StoredAsset
	for rows.Next() {
		var a model.StoredAsset
		if err := rows.Scan(&a.URL, &a.Path, &a.Size, &a.Digest); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// Findings rebuilds the classified report stored for a run.
func (h *HistoryDB) Findings(ctx context.Context, runID int64) (*model.ClassifiedReport, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT rule_id, severity, message, file_path, line, location
	FROM findings WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	report := model.NewClassifiedReport()
	for rows.Next() {
		var f model.Finding
		var severity string
		var line sql.NullInt64
		if err := rows.Scan(&f.RuleID, &severity, &f.Message, &f.FilePath, &line, &f.Location); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		if line.Valid {
			n := int(line.Int64)
			f.Line = &n
		}
		f.Severity, _ = model.ParseSeverity(severity)
		report.Add(f)
	}
	return report, rows.Err()
}

// ChangedAssets compares the assets of two runs and returns the URLs whose
// digest differs, plus URLs only present in the newer run.
func (h *HistoryDB) ChangedAssets(ctx context.Context, olderRunID, newerRunID int64) ([]string, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT n.url
	FROM assets n
	LEFT JOIN assets o ON o.url = n.url AND o.run_id = ?
	WHERE n.run_id = ? AND (o.digest IS NULL OR o.digest != n.digest)
	ORDER BY n.url
	`, olderRunID, newerRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to compare assets: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan asset url: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// storedLayout has a fixed width so that stored timestamps sort lexically.
const storedLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(storedLayout)
}

// timestampFormats contains the timestamp formats that may be stored.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp tries each known format and returns the zero time when none match.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

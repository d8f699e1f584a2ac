// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger persists the history of conversion runs in SQLite: one
// row per run and one row per file result, including a checksum of the
// source at the time it was compiled.
package ledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/src2ir/internal/convert"
	"github.com/pdiddy/src2ir/pkg/types"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Ledger manages the conversion history database.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger database at path, creating parent
// directories and the schema as needed.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	// Parallel compiles record concurrently; SQLite takes one writer.
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return l, nil
}

// Close releases the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			source_dir TEXT,
			ir_dir TEXT,
			converted INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			source TEXT NOT NULL,
			rel_path TEXT,
			output TEXT NOT NULL,
			language TEXT NOT NULL,
			status TEXT NOT NULL,
			checksum TEXT,
			duration_ms INTEGER,
			error TEXT,
			recorded_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_run_id ON entries(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_source ON entries(source)`,
	}

	for _, stmt := range statements {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// RunRecorder records file results for one run. It implements
// convert.Recorder.
type RunRecorder struct {
	ledger *Ledger
	ctx    context.Context
	id     string
}

// BeginRun inserts a new run and returns a recorder for its results. The
// recorder keeps ctx's values but not its cancellation.
func (l *Ledger) BeginRun(ctx context.Context, sourceDir, irDir string) (*RunRecorder, error) {
	id := uuid.NewString()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, source_dir, ir_dir) VALUES (?, ?, ?, ?)`,
		id, time.Now().UTC().Format(timeLayout), sourceDir, irDir,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting run: %w", err)
	}
	// Results and the finish time are still written after ctx is cancelled,
	// so an interrupted run is recorded as finished.
	return &RunRecorder{ledger: l, ctx: context.WithoutCancel(ctx), id: id}, nil
}

// ID returns the run identifier.
func (r *RunRecorder) ID() string { return r.id }

// Record stores one file result. The source checksum is stored for
// converted files so later runs can detect edits.
func (r *RunRecorder) Record(res convert.Result) error {
	var checksum string
	if res.Status == types.ConversionDone {
		sum, err := fileChecksum(res.Job.Source.Path)
		if err != nil {
			return err
		}
		checksum = sum
	}
	var errMsg string
	if res.Err != nil {
		errMsg = res.Err.Error()
	}

	_, err := r.ledger.db.ExecContext(r.ctx,
		`INSERT INTO entries (run_id, source, rel_path, output, language, status, checksum, duration_ms, error, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.id, res.Job.Source.Path, res.Job.Source.RelPath, res.Job.OutputPath,
		string(res.Job.Source.Language), string(res.Status), checksum,
		res.Duration.Milliseconds(), errMsg, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting entry: %w", err)
	}
	return nil
}

// Finish stores the batch counts and finish time.
func (r *RunRecorder) Finish(batch convert.BatchResult) error {
	_, err := r.ledger.db.ExecContext(r.ctx,
		`UPDATE runs SET finished_at = ?, converted = ?, skipped = ?, failed = ? WHERE id = ?`,
		time.Now().UTC().Format(timeLayout), batch.Converted, batch.Skipped, batch.Failed, r.id,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", r.id, err)
	}
	return nil
}

// LastChecksum returns the source checksum recorded the last time source
// was converted. ok is false when the source has never been converted.
func (l *Ledger) LastChecksum(ctx context.Context, source string) (sum string, ok bool, err error) {
	err = l.db.QueryRowContext(ctx,
		`SELECT checksum FROM entries
		 WHERE source = ? AND status = ? AND checksum != ''
		 ORDER BY id DESC LIMIT 1`,
		source, string(types.ConversionDone),
	).Scan(&sum)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying checksum for %s: %w", source, err)
	}
	return sum, true, nil
}

// StaleFunc returns a predicate reporting whether a job's source changed
// since its last recorded conversion. Sources with no recorded conversion
// are not stale: their existing IR is trusted. Lookup errors are written
// to w and treated as stale.
func (l *Ledger) StaleFunc(ctx context.Context, w io.Writer) func(types.Job) bool {
	return func(job types.Job) bool {
		prev, ok, err := l.LastChecksum(ctx, job.Source.Path)
		if err != nil {
			fmt.Fprintf(w, "  warning: %v\n", err)
			return true
		}
		if !ok {
			return false
		}
		cur, err := fileChecksum(job.Source.Path)
		if err != nil {
			fmt.Fprintf(w, "  warning: %v\n", err)
			return true
		}
		return cur != prev
	}
}

// fileChecksum returns the hex-encoded SHA-256 digest of the file at path.
func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("checksumming %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("checksumming %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

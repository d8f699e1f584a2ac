// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/src2ir/pkg/types"
)

// ErrRunNotFound is returned when no run matches an identifier.
var ErrRunNotFound = errors.New("run not found")

const defaultRunLimit = 20

// Run summarizes one conversion run.
type Run struct {
	ID         string    `json:"id" yaml:"id"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	SourceDir  string    `json:"source_dir" yaml:"source_dir"`
	IRDir      string    `json:"ir_dir" yaml:"ir_dir"`
	Converted  int       `json:"converted" yaml:"converted"`
	Skipped    int       `json:"skipped" yaml:"skipped"`
	Failed     int       `json:"failed" yaml:"failed"`
}

// Finished reports whether the run recorded its final counts.
func (r Run) Finished() bool { return !r.FinishedAt.IsZero() }

// Entry is one file result within a run.
type Entry struct {
	Source     string                 `json:"source" yaml:"source"`
	RelPath    string                 `json:"rel_path" yaml:"rel_path"`
	Output     string                 `json:"output" yaml:"output"`
	Language   types.Language         `json:"language" yaml:"language"`
	Status     types.ConversionStatus `json:"status" yaml:"status"`
	Checksum   string                 `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	DurationMS int64                  `json:"duration_ms" yaml:"duration_ms"`
	Error      string                 `json:"error,omitempty" yaml:"error,omitempty"`
	RecordedAt time.Time              `json:"recorded_at" yaml:"recorded_at"`
}

// EntryFilter narrows the entries returned by Entries.
type EntryFilter struct {
	Status   types.ConversionStatus
	Language types.Language
}

// Runs returns the most recent runs, newest first. A limit of zero uses
// the default of 20.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultRunLimit
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, source_dir, ir_dir, converted, skipped, failed
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run returns the run whose ID equals or starts with id. A prefix that
// matches more than one run is an error.
func (l *Ledger) Run(ctx context.Context, id string) (Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Run{}, fmt.Errorf("%w: empty id", ErrRunNotFound)
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, source_dir, ir_dir, converted, skipped, failed
		 FROM runs WHERE id = ? OR id LIKE ? ORDER BY started_at DESC LIMIT 2`,
		id, stripWildcards(id)+"%")
	if err != nil {
		return Run{}, fmt.Errorf("querying run %s: %w", id, err)
	}
	defer rows.Close()

	var matches []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return Run{}, err
		}
		if r.ID == id {
			return r, nil
		}
		matches = append(matches, r)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}
	switch len(matches) {
	case 0:
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
		return matches[0], nil
	}
	return Run{}, fmt.Errorf("run id prefix %q is ambiguous", id)
}

// Entries returns the file results of a run in the order they were
// recorded, optionally filtered.
func (l *Ledger) Entries(ctx context.Context, runID string, f EntryFilter) ([]Entry, error) {
	var (
		qb   strings.Builder
		args = []any{runID}
	)
	qb.WriteString(
		`SELECT source, rel_path, output, language, status, checksum, duration_ms, error, recorded_at
		 FROM entries WHERE run_id = ?`)
	if f.Status != "" {
		qb.WriteString(` AND status = ?`)
		args = append(args, string(f.Status))
	}
	if f.Language != "" {
		qb.WriteString(` AND language = ?`)
		args = append(args, string(f.Language))
	}
	qb.WriteString(` ORDER BY id`)

	rows, err := l.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying entries for %s: %w", runID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                         Entry
			relPath, checksum, errMsg sql.NullString
			duration                  sql.NullInt64
			lang, status, recordedAt  string
		)
		if err := rows.Scan(&e.Source, &relPath, &e.Output, &lang, &status,
			&checksum, &duration, &errMsg, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.RelPath = relPath.String
		e.Language = types.Language(lang)
		e.Status = types.ConversionStatus(status)
		e.Checksum = checksum.String
		e.DurationMS = duration.Int64
		e.Error = errMsg.String
		e.RecordedAt, _ = time.Parse(timeLayout, recordedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r                   Run
		startedAt           string
		finishedAt, src, ir sql.NullString
	)
	if err := s.Scan(&r.ID, &startedAt, &finishedAt, &src, &ir,
		&r.Converted, &r.Skipped, &r.Failed); err != nil {
		return Run{}, fmt.Errorf("scanning run: %w", err)
	}
	r.StartedAt, _ = time.Parse(timeLayout, startedAt)
	if finishedAt.Valid {
		r.FinishedAt, _ = time.Parse(timeLayout, finishedAt.String)
	}
	r.SourceDir = src.String
	r.IRDir = ir.String
	return r, nil
}

// stripWildcards removes LIKE wildcards from s. Run IDs never contain them.
func stripWildcards(s string) string {
	return strings.NewReplacer("%", "", "_", "").Replace(s)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/src2ir/internal/convert"
	"github.com/pdiddy/src2ir/internal/toolchain"
	"github.com/pdiddy/src2ir/pkg/types"
)

// --- test helpers ---

func testSetup(t *testing.T) (*Ledger, string) {
	t.Helper()
	tmpDir := t.TempDir()
	l, err := Open(filepath.Join(tmpDir, ".src2ir", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, tmpDir
}

// writeSource creates a source file and returns the job that compiles it.
func writeSource(t *testing.T, dir, rel, content string) types.Job {
	t.Helper()
	path := filepath.Join(dir, "source", filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	lang, ok := types.LanguageForPath(path)
	require.True(t, ok)
	src := types.SourceFile{Path: path, RelPath: rel, Language: lang}
	return types.Job{Source: src, OutputPath: filepath.Join(dir, "ir", src.Base()+lang.Suffix())}
}

func runWith(t *testing.T, l *Ledger, results ...convert.Result) *RunRecorder {
	t.Helper()
	rec, err := l.BeginRun(context.Background(), "source", "ir")
	require.NoError(t, err)
	var batch convert.BatchResult
	for _, r := range results {
		require.NoError(t, rec.Record(r))
		switch r.Status {
		case types.ConversionDone:
			batch.Converted++
		case types.ConversionSkipped:
			batch.Skipped++
		case types.ConversionFailed:
			batch.Failed++
		}
	}
	require.NoError(t, rec.Finish(batch))
	return rec
}

// --- schema tests ---

func TestOpenCreatesSchema(t *testing.T) {
	l, tmpDir := testSetup(t)

	for _, table := range []string{"runs", "entries"} {
		var count int
		err := l.db.QueryRow(
			`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}
	assert.FileExists(t, filepath.Join(tmpDir, ".src2ir", "ledger.db"))
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l1.Close())

	l2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l2.Close())
}

// --- recording tests ---

func TestRecordAndQuery(t *testing.T) {
	l, tmpDir := testSetup(t)
	add := writeSource(t, tmpDir, "add/add.cpp", "int add(int a, int b) { return a + b; }\n")
	deref := writeSource(t, tmpDir, "deref/deref.rs", "pub fn deref(x: &i32) -> i32 { *x }\n")
	bad := writeSource(t, tmpDir, "bad.cpp", "int main( {\n")

	rec := runWith(t, l,
		convert.Result{Job: add, Status: types.ConversionDone, Duration: 120 * time.Millisecond},
		convert.Result{Job: deref, Status: types.ConversionSkipped},
		convert.Result{Job: bad, Status: types.ConversionFailed, Err: errors.New("exit status 1")},
	)
	ctx := context.Background()

	run, err := l.Run(ctx, rec.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Converted)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, 1, run.Failed)
	assert.True(t, run.Finished())
	assert.Equal(t, "source", run.SourceDir)

	entries, err := l.Entries(ctx, rec.ID(), EntryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "add/add.cpp", entries[0].RelPath)
	assert.Equal(t, types.LangCPP, entries[0].Language)
	assert.Equal(t, int64(120), entries[0].DurationMS)
	assert.Len(t, entries[0].Checksum, 64, "converted entries carry a sha256 checksum")

	assert.Empty(t, entries[1].Checksum, "skipped entries carry no checksum")
	assert.Equal(t, "exit status 1", entries[2].Error)

	failed, err := l.Entries(ctx, rec.ID(), EntryFilter{Status: types.ConversionFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "bad.cpp", failed[0].RelPath)

	rust, err := l.Entries(ctx, rec.ID(), EntryFilter{Language: types.LangRust})
	require.NoError(t, err)
	require.Len(t, rust, 1)
	assert.Equal(t, "deref/deref.rs", rust[0].RelPath)
}

func TestRecordMissingSource(t *testing.T) {
	l, tmpDir := testSetup(t)
	job := writeSource(t, tmpDir, "gone.cpp", "x")
	require.NoError(t, os.Remove(job.Source.Path))

	rec, err := l.BeginRun(context.Background(), "source", "ir")
	require.NoError(t, err)
	err = rec.Record(convert.Result{Job: job, Status: types.ConversionDone})
	assert.Error(t, err)
}

func TestFinishAfterCancel(t *testing.T) {
	l, tmpDir := testSetup(t)
	job := writeSource(t, tmpDir, "add.cpp", "int x;\n")

	ctx, cancel := context.WithCancel(context.Background())
	rec, err := l.BeginRun(ctx, "source", "ir")
	require.NoError(t, err)
	cancel()

	require.NoError(t, rec.Record(convert.Result{Job: job, Status: types.ConversionDone}))
	require.NoError(t, rec.Finish(convert.BatchResult{Converted: 1}))

	run, err := l.Run(context.Background(), rec.ID())
	require.NoError(t, err)
	assert.True(t, run.Finished())
	assert.Equal(t, 1, run.Converted)

	entries, err := l.Entries(context.Background(), rec.ID(), EntryFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRuns(t *testing.T) {
	l, tmpDir := testSetup(t)
	job := writeSource(t, tmpDir, "add.cpp", "int x;\n")

	var ids []string
	for i := 0; i < 3; i++ {
		rec := runWith(t, l, convert.Result{Job: job, Status: types.ConversionSkipped})
		ids = append(ids, rec.ID())
	}

	runs, err := l.Runs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID, "newest run first")
	assert.Equal(t, ids[0], runs[2].ID)

	limited, err := l.Runs(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRunLookup(t *testing.T) {
	l, tmpDir := testSetup(t)
	job := writeSource(t, tmpDir, "add.cpp", "int x;\n")
	rec := runWith(t, l, convert.Result{Job: job, Status: types.ConversionSkipped})
	ctx := context.Background()

	byPrefix, err := l.Run(ctx, rec.ID()[:8])
	require.NoError(t, err)
	assert.Equal(t, rec.ID(), byPrefix.ID)

	_, err = l.Run(ctx, "ffffffff-not-a-run")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = l.Run(ctx, "  ")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

// --- change detection tests ---

func TestLastChecksumAndStale(t *testing.T) {
	l, tmpDir := testSetup(t)
	ctx := context.Background()
	job := writeSource(t, tmpDir, "add/add.cpp", "int add(int a, int b) { return a + b; }\n")
	never := writeSource(t, tmpDir, "never.rs", "pub fn f() {}\n")

	_, ok, err := l.LastChecksum(ctx, job.Source.Path)
	require.NoError(t, err)
	assert.False(t, ok)

	runWith(t, l, convert.Result{Job: job, Status: types.ConversionDone})

	sum, ok, err := l.LastChecksum(ctx, job.Source.Path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, sum, 64)

	var warn bytes.Buffer
	stale := l.StaleFunc(ctx, &warn)
	assert.False(t, stale(job), "unchanged source is not stale")
	assert.False(t, stale(never), "never-converted source trusts existing IR")

	require.NoError(t, os.WriteFile(job.Source.Path, []byte("int add(int a, int b) { return b + a; }\n"), 0o644))
	assert.True(t, stale(job), "edited source is stale")
	assert.Empty(t, warn.String())

	// A later skipped run does not replace the converted checksum.
	runWith(t, l, convert.Result{Job: job, Status: types.ConversionSkipped})
	again, _, err := l.LastChecksum(ctx, job.Source.Path)
	require.NoError(t, err)
	assert.Equal(t, sum, again)
}

// --- export tests ---

func TestExport(t *testing.T) {
	l, tmpDir := testSetup(t)
	job := writeSource(t, tmpDir, "add/add.rs", "pub fn add(a: i32, b: i32) -> i32 { a + b }\n")
	rec := runWith(t, l, convert.Result{Job: job, Status: types.ConversionDone})
	ctx := context.Background()

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, l.ExportYAML(ctx, &buf, rec.ID()))

		var rep Report
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &rep))
		assert.Equal(t, rec.ID(), rep.Run.ID)
		require.Len(t, rep.Entries, 1)
		assert.Equal(t, types.ConversionDone, rep.Entries[0].Status)
		assert.Equal(t, types.LangRust, rep.Entries[0].Language)
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, l.ExportJSON(ctx, &buf, rec.ID()))

		var rep Report
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rep))
		assert.Equal(t, 1, rep.Run.Converted)
		assert.Equal(t, "add/add.rs", rep.Entries[0].RelPath)
	})

	t.Run("unknown run", func(t *testing.T) {
		var buf bytes.Buffer
		err := l.ExportYAML(ctx, &buf, "nope")
		assert.ErrorIs(t, err, ErrRunNotFound)
	})
}

// --- integration with convert ---

type stubCompiler struct{ lang types.Language }

func (s stubCompiler) Name() string                            { return "stub" }
func (s stubCompiler) Language() types.Language                { return s.lang }
func (s stubCompiler) Available() bool                         { return true }
func (s stubCompiler) Version(context.Context) (string, error) { return "stub", nil }
func (s stubCompiler) Compile(_ context.Context, _ string, out string) error {
	return os.WriteFile(out, []byte("; ir\n"), 0o644)
}

func TestRecorderWithConvertBatch(t *testing.T) {
	l, tmpDir := testSetup(t)
	job := writeSource(t, tmpDir, "add.cpp", "int x;\n")
	ctx := context.Background()

	rec, err := l.BeginRun(ctx, "source", "ir")
	require.NoError(t, err)

	set := toolchain.Set{types.LangCPP: stubCompiler{lang: types.LangCPP}}
	var log bytes.Buffer
	batch, err := convert.ConvertBatch(ctx, set, []types.Job{job},
		convert.Options{Recorders: []convert.Recorder{rec}}, &log)
	require.NoError(t, err)
	require.NoError(t, rec.Finish(batch))

	// Second run with change detection skips the unchanged file.
	rec2, err := l.BeginRun(ctx, "source", "ir")
	require.NoError(t, err)
	batch2, err := convert.ConvertBatch(ctx, set, []types.Job{job},
		convert.Options{Stale: l.StaleFunc(ctx, &log), Recorders: []convert.Recorder{rec2}}, &log)
	require.NoError(t, err)
	assert.Equal(t, 1, batch2.Skipped)

	entries, err := l.Entries(ctx, rec.ID(), EntryFilter{Status: types.ConversionDone})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

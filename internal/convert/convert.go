// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert drives the external compilers over a set of source
// files, producing one IR file per source and skipping sources whose IR
// already exists.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/src2ir/internal/discover"
	"github.com/pdiddy/src2ir/internal/toolchain"
	"github.com/pdiddy/src2ir/pkg/types"
)

// Recorder observes the outcome of every file in a batch. The ledger and
// the metrics collector implement it.
type Recorder interface {
	Record(r Result) error
}

// Options controls how files are converted.
type Options struct {
	// Force recompiles files whose IR already exists.
	Force bool

	// Stale, when non-nil, is consulted for files whose IR exists; a true
	// result forces recompilation.
	Stale func(job types.Job) bool

	// KeepGoing continues after a failed file instead of aborting.
	KeepGoing bool

	// Jobs bounds concurrent compiles. Values below 2 run sequentially.
	Jobs int

	// Timeout bounds each compile; zero means no limit.
	Timeout time.Duration

	// MaxIRBytes and MaxIRLines reject oversized IR; zero means no limit.
	MaxIRBytes int64
	MaxIRLines int

	Recorders []Recorder
}

// OptionsFromConfig maps the conversion config onto Options.
func OptionsFromConfig(cfg types.ConversionConfig) Options {
	return Options{
		Force:      cfg.Force,
		KeepGoing:  cfg.KeepGoing,
		Jobs:       cfg.Jobs,
		Timeout:    cfg.Timeout,
		MaxIRBytes: cfg.MaxIRBytes,
		MaxIRLines: cfg.MaxIRLines,
	}
}

// Result is the outcome of converting one file.
type Result struct {
	Job      types.Job
	Status   types.ConversionStatus
	Duration time.Duration
	Err      error
}

// BatchResult holds the outcome of a batch conversion run.
type BatchResult struct {
	Converted int
	Skipped   int
	Failed    int
	Results   []Result
}

// Total returns the total number of files processed.
func (r BatchResult) Total() int {
	return r.Converted + r.Skipped + r.Failed
}

// HasFailures reports whether any file failed conversion.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

func (r *BatchResult) add(res Result) {
	switch res.Status {
	case types.ConversionDone:
		r.Converted++
	case types.ConversionSkipped:
		r.Skipped++
	case types.ConversionFailed:
		r.Failed++
	default:
		return
	}
	r.Results = append(r.Results, res)
}

// ConvertFile converts a single source file with c. If the IR output
// already exists and neither opts.Force nor opts.Stale asks for a rebuild,
// it skips the compile and returns ConversionSkipped.
//
// The compiler writes to a temporary file next to the output, which is
// renamed into place only after the compile succeeds and passes the size
// limits. A failed compile therefore never leaves an output that a later
// run would mistake for a cached result. When ctx itself is cancelled
// during the compile, ConvertFile returns an empty status with the error:
// the file was not attempted rather than failed.
func ConvertFile(ctx context.Context, c toolchain.Compiler, job types.Job, opts Options, w io.Writer) (types.ConversionStatus, error) {
	src, out := job.Source.Path, job.OutputPath

	if !NeedsCompile(job, opts) {
		fmt.Fprintf(w, "ir file %s already exists, skipping conversion.\n", out)
		return types.ConversionSkipped, nil
	}

	fail := func(err error) (types.ConversionStatus, error) {
		err = fmt.Errorf("converting %s: %w", job.Source.RelPath, err)
		fmt.Fprintf(w, "failed %s: %v\n", filepath.Base(src), err)
		return types.ConversionFailed, err
	}

	dir := filepath.Dir(out)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(fmt.Errorf("creating directory %s: %w", dir, err))
	}

	tmp, err := os.CreateTemp(dir, "."+stem(out)+".*.ll")
	if err != nil {
		return fail(fmt.Errorf("creating temp file: %w", err))
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	cctx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if err := c.Compile(cctx, src, tmpPath); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return "", fmt.Errorf("converting %s: %w", job.Source.RelPath, err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fail(fmt.Errorf("compilation timed out (%s): %w", opts.Timeout, err))
		}
		return fail(err)
	}

	if err := CheckLimits(tmpPath, opts.MaxIRBytes, opts.MaxIRLines); err != nil {
		return fail(err)
	}

	if err := os.Rename(tmpPath, out); err != nil {
		return fail(fmt.Errorf("moving IR into place: %w", err))
	}

	fmt.Fprintf(w, "converted %s to %s\n", filepath.Base(src), out)
	return types.ConversionDone, nil
}

// NeedsCompile reports whether ConvertFile would compile job rather than
// skip it: the output is missing, opts.Force is set, or opts.Stale reports
// the source as changed.
func NeedsCompile(job types.Job, opts Options) bool {
	return !exists(job.OutputPath) || opts.Force || (opts.Stale != nil && opts.Stale(job))
}

// Pending returns the jobs that NeedsCompile selects, in order.
func Pending(jobs []types.Job, opts Options) []types.Job {
	var pending []types.Job
	for _, job := range jobs {
		if NeedsCompile(job, opts) {
			pending = append(pending, job)
		}
	}
	return pending
}

// ConvertBatch converts jobs in order, printing per-file status to w and
// returning a summary.
//
// By default the first failure aborts the run: no further compiles are
// started and the failure is returned. With opts.KeepGoing every job is
// attempted and the error is nil; callers inspect HasFailures. With
// opts.Jobs > 1 up to that many compiles run at once; compiles still in
// flight when a failure stops the run are cancelled and left out of the
// result as not attempted.
func ConvertBatch(ctx context.Context, set toolchain.Set, jobs []types.Job, opts Options, w io.Writer) (BatchResult, error) {
	sw := &syncWriter{w: w}
	results := make([]Result, len(jobs))

	limit := opts.Jobs
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		i, job := i, job
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res := convertJob(gctx, set, job, opts, sw)
			if res.Status == "" {
				return nil
			}
			results[i] = res
			record(opts.Recorders, res, sw)
			if res.Err != nil && !opts.KeepGoing {
				return res.Err
			}
			return nil
		})
	}
	err := g.Wait()

	var batch BatchResult
	for _, r := range results {
		batch.add(r)
	}
	fmt.Fprintf(sw, "\nBatch summary: %d converted, %d skipped, %d failed (total: %d)\n",
		batch.Converted, batch.Skipped, batch.Failed, batch.Total())

	if err == nil {
		err = ctx.Err()
	}
	return batch, err
}

// ConvertPaths converts the named source files. Each path is mapped to
// its IR output relative to sourceDir and ordered the same way a
// directory walk would be.
func ConvertPaths(ctx context.Context, set toolchain.Set, sourceDir, irDir string, paths []string, opts Options, w io.Writer) (BatchResult, error) {
	jobs, err := discover.JobsFor(sourceDir, irDir, paths, nil)
	if err != nil {
		return BatchResult{}, err
	}
	return ConvertBatch(ctx, set, jobs, opts, w)
}

func convertJob(ctx context.Context, set toolchain.Set, job types.Job, opts Options, w io.Writer) Result {
	start := time.Now()
	c, err := set.For(job.Source.Language)
	if err != nil {
		fmt.Fprintf(w, "failed %s: %v\n", filepath.Base(job.Source.Path), err)
		return Result{Job: job, Status: types.ConversionFailed, Err: err}
	}
	status, err := ConvertFile(ctx, c, job, opts, w)
	return Result{
		Job:      job,
		Status:   status,
		Duration: time.Since(start),
		Err:      err,
	}
}

func record(recorders []Recorder, res Result, w io.Writer) {
	for _, rec := range recorders {
		if err := rec.Record(res); err != nil {
			fmt.Fprintf(w, "  warning: recording %s: %v\n", res.Job.Source.RelPath, err)
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// stem returns the filename of path without its extension.
func stem(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// syncWriter serializes writes so concurrent jobs do not interleave lines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package toolchain wraps the external compilers that emit LLVM IR:
// clang++ for C++ sources and rustc for Rust sources.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pdiddy/src2ir/pkg/types"
)

// ErrNotFound is returned when a compiler binary is not on PATH.
var ErrNotFound = errors.New("compiler not found")

// Compiler turns one source file into a textual IR file.
type Compiler interface {
	// Name returns the compiler binary name ("clang++" or "rustc").
	Name() string

	// Language returns the source language the compiler accepts.
	Language() types.Language

	// Available reports whether the compiler binary exists on PATH.
	Available() bool

	// Version returns the first line of the compiler's --version output.
	Version(ctx context.Context) (string, error)

	// Compile compiles src and writes IR to out. It blocks until the
	// compiler exits or ctx is done.
	Compile(ctx context.Context, src, out string) error
}

// CompileError reports a compiler that ran and exited unsuccessfully.
// Stderr holds whatever the compiler printed.
type CompileError struct {
	Compiler string
	Source   string
	Stderr   string
	Err      error
}

func (e *CompileError) Error() string {
	msg := fmt.Sprintf("%s failed on %s: %v", e.Compiler, e.Source, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += "\n" + s
	}
	return msg
}

func (e *CompileError) Unwrap() error { return e.Err }

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	Run(ctx context.Context, name string, args []string, stderr io.Writer) error
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

func (o *osExecutor) Run(ctx context.Context, name string, args []string, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = stderr
	return cmd.Run()
}

var defaultExec = &osExecutor{}

// compiler implements Compiler for one binary. clang++ and rustc share the
// same invocation shape: <bin> <args...> <src> -o <out>.
type compiler struct {
	lang types.Language
	bin  string
	args []string
	exec executor
}

func newCompiler(lang types.Language, cfg types.CompilerConfig, exec executor) *compiler {
	return &compiler{
		lang: lang,
		bin:  cfg.Bin,
		args: append([]string(nil), cfg.Args...),
		exec: exec,
	}
}

// NewClang returns the C++ compiler described by cfg.
func NewClang(cfg types.CompilerConfig) Compiler {
	return newCompiler(types.LangCPP, cfg, defaultExec)
}

// NewRustc returns the Rust compiler described by cfg.
func NewRustc(cfg types.CompilerConfig) Compiler {
	return newCompiler(types.LangRust, cfg, defaultExec)
}

func (c *compiler) Name() string { return filepath.Base(c.bin) }

func (c *compiler) Language() types.Language { return c.lang }

func (c *compiler) Available() bool {
	_, err := c.exec.LookPath(c.bin)
	return err == nil
}

func (c *compiler) Version(ctx context.Context) (string, error) {
	out, err := c.exec.Output(ctx, c.bin, "--version")
	if err != nil {
		return "", c.wrapExecErr("querying version of", err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line), nil
}

// Args returns the full argument list used to compile src into out.
func (c *compiler) Args(src, out string) []string {
	args := make([]string, 0, len(c.args)+3)
	args = append(args, c.args...)
	return append(args, src, "-o", out)
}

func (c *compiler) Compile(ctx context.Context, src, out string) error {
	var stderr bytes.Buffer
	if err := c.exec.Run(ctx, c.bin, c.Args(src, out), &stderr); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("compiling %s with %s: %w", src, c.Name(), ctxErr)
		}
		if errors.Is(err, exec.ErrNotFound) {
			return c.wrapExecErr("running", err)
		}
		return &CompileError{
			Compiler: c.Name(),
			Source:   src,
			Stderr:   stderr.String(),
			Err:      err,
		}
	}
	return nil
}

func (c *compiler) wrapExecErr(verb string, err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", verb, c.bin, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", verb, c.bin, err)
}

// Set maps each language to the compiler that handles it.
type Set map[types.Language]Compiler

// NewSet builds the compilers for both languages from cfg.
func NewSet(cfg types.ToolchainConfig) Set {
	return newSet(cfg, defaultExec)
}

func newSet(cfg types.ToolchainConfig, exec executor) Set {
	return Set{
		types.LangCPP:  newCompiler(types.LangCPP, cfg.CPP, exec),
		types.LangRust: newCompiler(types.LangRust, cfg.Rust, exec),
	}
}

// For returns the compiler for lang.
func (s Set) For(lang types.Language) (Compiler, error) {
	c, ok := s[lang]
	if !ok || c == nil {
		return nil, fmt.Errorf("no compiler configured for %s", lang)
	}
	return c, nil
}

// Check verifies that the compiler for every language in langs is on PATH.
// The returned error names all missing binaries and wraps ErrNotFound.
func (s Set) Check(langs []types.Language) error {
	var missing []string
	for _, lang := range langs {
		c, err := s.For(lang)
		if err != nil {
			return err
		}
		if !c.Available() {
			missing = append(missing, fmt.Sprintf("%s (for %s)", c.Name(), lang))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, strings.Join(missing, ", "))
	}
	return nil
}

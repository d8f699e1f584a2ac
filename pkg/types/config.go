// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	DefaultSourceDir = "examples/source"
	DefaultIRDir     = "examples/ir"
	DefaultFixedDir  = "examples/ir_fixed"
	DefaultLedger    = ".src2ir/ledger.db"
	DefaultAddr      = "127.0.0.1:3001"

	// DefaultServeTimeout bounds a single compile requested over HTTP.
	DefaultServeTimeout = 10 * time.Second
	// DefaultServeMaxIRBytes caps the size of IR returned over HTTP (1 MiB).
	DefaultServeMaxIRBytes = 1 << 20
	// DefaultServeMaxIRLines caps the number of IR lines returned over HTTP.
	DefaultServeMaxIRLines = 20000
)

// CompilerConfig selects the binary and arguments used for one language.
// The source path and "-o <output>" are appended by the compiler itself.
type CompilerConfig struct {
	// Bin is the compiler executable name or path (e.g. "clang++").
	Bin string `json:"bin" yaml:"bin"`

	// Args are the flags passed before the source path.
	Args []string `json:"args" yaml:"args"`
}

// Validate validates the compiler configuration.
func (c *CompilerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Bin, validation.Required),
	)
}

// ToolchainConfig holds the compiler settings for both languages.
type ToolchainConfig struct {
	CPP  CompilerConfig `json:"cpp" yaml:"cpp"`
	Rust CompilerConfig `json:"rust" yaml:"rust"`
}

// Validate validates both compiler configurations.
func (c *ToolchainConfig) Validate() error {
	if err := c.CPP.Validate(); err != nil {
		return fmt.Errorf("cpp: %w", err)
	}
	if err := c.Rust.Validate(); err != nil {
		return fmt.Errorf("rust: %w", err)
	}
	return nil
}

// DefaultToolchain returns the commands that emit unoptimized textual IR:
//
//	clang++ -O0 -S -emit-llvm <src> -o <out>
//	rustc --emit=llvm-ir --crate-type=lib <src> -o <out>
func DefaultToolchain() ToolchainConfig {
	return ToolchainConfig{
		CPP: CompilerConfig{
			Bin:  "clang++",
			Args: []string{"-O0", "-S", "-emit-llvm"},
		},
		Rust: CompilerConfig{
			Bin:  "rustc",
			Args: []string{"--emit=llvm-ir", "--crate-type=lib"},
		},
	}
}

// ConversionConfig holds settings for the batch conversion stage.
type ConversionConfig struct {
	// SourceDir is the root searched for .cpp and .rs files.
	SourceDir string `json:"source_dir" yaml:"source_dir"`

	// IRDir receives the generated .ll files, mirroring SourceDir's layout.
	IRDir string `json:"ir_dir" yaml:"ir_dir"`

	// Recursive descends into subdirectories of SourceDir (default true).
	Recursive bool `json:"recursive" yaml:"recursive"`

	// Force recompiles files whose IR already exists.
	Force bool `json:"force" yaml:"force"`

	// Changed recompiles files whose source checksum differs from the one
	// recorded in the ledger at their last successful conversion.
	Changed bool `json:"changed" yaml:"changed"`

	// KeepGoing continues past failed compiles instead of aborting the run.
	KeepGoing bool `json:"keep_going" yaml:"keep_going"`

	// Jobs is the number of compiles run at once (default 1, sequential).
	Jobs int `json:"jobs" yaml:"jobs"`

	// Timeout bounds each compile; zero means no limit.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxIRBytes rejects generated IR larger than this; zero means no limit.
	MaxIRBytes int64 `json:"max_ir_bytes" yaml:"max_ir_bytes"`

	// MaxIRLines rejects generated IR with more lines; zero means no limit.
	MaxIRLines int `json:"max_ir_lines" yaml:"max_ir_lines"`

	// Languages restricts conversion to these languages; empty means all.
	Languages []Language `json:"languages,omitempty" yaml:"languages,omitempty"`
}

// Validate validates the conversion configuration.
func (c *ConversionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SourceDir, validation.Required),
		validation.Field(&c.IRDir, validation.Required),
		validation.Field(&c.Jobs, validation.Min(0)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxIRBytes, validation.Min(int64(0))),
		validation.Field(&c.MaxIRLines, validation.Min(0)),
		validation.Field(&c.Languages, validation.Each(validation.In(LangCPP, LangRust))),
	)
}

// LedgerConfig locates the SQLite conversion ledger.
type LedgerConfig struct {
	// Path is the database file; empty disables the ledger.
	Path string `json:"path" yaml:"path"`
}

// ServeConfig holds settings for the generate-ir HTTP endpoint.
type ServeConfig struct {
	// Addr is the listen address (default 127.0.0.1:3001).
	Addr string `json:"addr" yaml:"addr"`

	// Timeout bounds each compile (default 10s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	MaxIRBytes int64 `json:"max_ir_bytes" yaml:"max_ir_bytes"`
	MaxIRLines int   `json:"max_ir_lines" yaml:"max_ir_lines"`
}

// Validate validates the serve configuration.
func (c *ServeConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MaxIRBytes, validation.Min(int64(0))),
		validation.Field(&c.MaxIRLines, validation.Min(0)),
	)
}

// Config groups the configuration of every stage.
type Config struct {
	Toolchain  ToolchainConfig  `json:"toolchain" yaml:"toolchain"`
	Conversion ConversionConfig `json:"conversion" yaml:"conversion"`
	Ledger     LedgerConfig     `json:"ledger" yaml:"ledger"`
	Serve      ServeConfig      `json:"serve" yaml:"serve"`

	// MetricsFile, when set, receives Prometheus metrics in text format
	// after each conversion run.
	MetricsFile string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"`
}

// Validate validates every stage configuration.
func (c *Config) Validate() error {
	if err := c.Toolchain.Validate(); err != nil {
		return fmt.Errorf("toolchain: %w", err)
	}
	if err := c.Conversion.Validate(); err != nil {
		return fmt.Errorf("conversion: %w", err)
	}
	return c.Serve.Validate()
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() Config {
	return Config{
		Toolchain: DefaultToolchain(),
		Conversion: ConversionConfig{
			SourceDir: DefaultSourceDir,
			IRDir:     DefaultIRDir,
			Recursive: true,
			Jobs:      1,
		},
		Ledger: LedgerConfig{Path: DefaultLedger},
		Serve: ServeConfig{
			Addr:       DefaultAddr,
			Timeout:    DefaultServeTimeout,
			MaxIRBytes: DefaultServeMaxIRBytes,
			MaxIRLines: DefaultServeMaxIRLines,
		},
	}
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package irpair locates the C++ and Rust IR files generated for one
// example so the two can be compared side by side.
package irpair

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/src2ir/pkg/types"
)

// ErrIRNotFound is returned when an example has no IR file for a language.
var ErrIRNotFound = errors.New("ir file not found")

// fixedSuffix is inserted before ".ll" in hand-corrected IR files.
const fixedSuffix = "_fixed"

// Pair holds the IR paths of one example.
type Pair struct {
	Base string `json:"base" yaml:"base"`
	CPP  File   `json:"cpp" yaml:"cpp"`
	Rust File   `json:"rust" yaml:"rust"`
}

// File is one side of a pair. Fixed is true when the path points into
// the fixed-IR directory rather than at the generated file.
type File struct {
	Path  string `json:"path" yaml:"path"`
	Fixed bool   `json:"fixed" yaml:"fixed"`
}

// For returns the side of the pair for lang.
func (p Pair) For(lang types.Language) File {
	if lang == types.LangRust {
		return p.Rust
	}
	return p.CPP
}

// GeneratedPath returns the IR path the converter writes for an example
// named base whose sources live in their own directory:
// "<irDir>/<base>/<base>_cpp.ll".
func GeneratedPath(irDir, base string, lang types.Language) string {
	return filepath.Join(irDir, base, base+lang.Suffix())
}

// FixedPath returns the path of a hand-corrected IR file:
// "<fixedDir>/<base>/<base>_cpp_fixed.ll".
func FixedPath(fixedDir, base string, lang types.Language) string {
	name := strings.TrimSuffix(base+lang.Suffix(), ".ll") + fixedSuffix + ".ll"
	return filepath.Join(fixedDir, base, name)
}

// Resolve finds the IR pair for example base. With useFixed, a file under
// fixedDir takes precedence for each language independently; otherwise
// the generated file is used. A language with neither file yields an
// error wrapping ErrIRNotFound.
func Resolve(irDir, fixedDir, base string, useFixed bool) (Pair, error) {
	base = strings.TrimSpace(base)
	if base == "" || strings.ContainsAny(base, `/\`) || base == "." || base == ".." {
		return Pair{}, fmt.Errorf("invalid example name %q", base)
	}

	pair := Pair{Base: base}
	var missing []string
	for _, lang := range types.Languages {
		f, err := resolveOne(irDir, fixedDir, base, lang, useFixed)
		if err != nil {
			if !errors.Is(err, ErrIRNotFound) {
				return Pair{}, err
			}
			missing = append(missing, GeneratedPath(irDir, base, lang))
			continue
		}
		if lang == types.LangRust {
			pair.Rust = f
		} else {
			pair.CPP = f
		}
	}
	if len(missing) > 0 {
		return pair, fmt.Errorf("%w: %s (run `src2ir convert` to generate it)",
			ErrIRNotFound, strings.Join(missing, ", "))
	}
	return pair, nil
}

func resolveOne(irDir, fixedDir, base string, lang types.Language, useFixed bool) (File, error) {
	if useFixed && fixedDir != "" {
		p := FixedPath(fixedDir, base, lang)
		ok, err := isFile(p)
		if err != nil {
			return File{}, err
		}
		if ok {
			return File{Path: p, Fixed: true}, nil
		}
	}
	p := GeneratedPath(irDir, base, lang)
	ok, err := isFile(p)
	if err != nil {
		return File{}, err
	}
	if !ok {
		return File{}, ErrIRNotFound
	}
	return File{Path: p}, nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", path, err)
	}
	return !info.IsDir(), nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the data structures shared by the src2ir stages:
// source languages, discovered files, conversion jobs and their status,
// and the configuration for each stage.
package types

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Language identifies the source language of a file and therefore which
// compiler toolchain turns it into IR.
type Language string

const (
	LangCPP  Language = "cpp"
	LangRust Language = "rust"
)

// Languages lists the supported languages in processing order. All C++
// sources are converted before any Rust source.
var Languages = []Language{LangCPP, LangRust}

// extensions maps a source file extension to its language.
var extensions = map[string]Language{
	".cpp": LangCPP,
	".rs":  LangRust,
}

// LanguageForPath returns the language of the file at path based on its
// extension. The second return value is false for unsupported files.
func LanguageForPath(path string) (Language, bool) {
	lang, ok := extensions[filepath.Ext(path)]
	return lang, ok
}

// ParseLanguage converts a user-supplied name ("cpp", "c++", "rust", "rs")
// into a Language.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpp", "c++", "cxx":
		return LangCPP, nil
	case "rust", "rs":
		return LangRust, nil
	}
	return "", fmt.Errorf("unsupported language %q: use cpp or rust", s)
}

func (l Language) String() string { return string(l) }

// Extension returns the source file extension for the language.
func (l Language) Extension() string {
	switch l {
	case LangCPP:
		return ".cpp"
	case LangRust:
		return ".rs"
	}
	return ""
}

// Suffix returns the IR filename suffix for the language. The IR file for
// add.cpp is add_cpp.ll; for add.rs it is add_rs.ll.
func (l Language) Suffix() string {
	switch l {
	case LangCPP:
		return "_cpp.ll"
	case LangRust:
		return "_rs.ll"
	}
	return ".ll"
}

// Order returns the position of the language in Languages, or len(Languages)
// for an unknown language.
func (l Language) Order() int {
	for i, lang := range Languages {
		if lang == l {
			return i
		}
	}
	return len(Languages)
}

// SourceFile is a discovered source file.
type SourceFile struct {
	// Path is the filesystem path to the source file.
	Path string `json:"path" yaml:"path"`

	// RelPath is Path relative to the source root, using forward slashes.
	RelPath string `json:"rel_path" yaml:"rel_path"`

	// Language is derived from the file extension.
	Language Language `json:"language" yaml:"language"`
}

// Base returns the filename without directory or extension
// (e.g. "binary_search" for "binary_search/binary_search.cpp").
func (s SourceFile) Base() string {
	name := filepath.Base(s.Path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Job pairs a source file with the IR file it produces.
type Job struct {
	Source     SourceFile `json:"source" yaml:"source"`
	OutputPath string     `json:"output_path" yaml:"output_path"`
}

// ConversionStatus records the outcome of converting one source file.
type ConversionStatus string

const (
	ConversionDone    ConversionStatus = "converted"
	ConversionSkipped ConversionStatus = "skipped"
	ConversionFailed  ConversionStatus = "failed"
)

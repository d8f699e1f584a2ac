// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package discover finds C++ and Rust sources under a directory and maps
// each one to the IR file it produces.
package discover

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdiddy/src2ir/pkg/types"
)

// skipDirs lists directory names that never contain sources worth
// compiling: VCS metadata, build output, and dependency caches.
var skipDirs = map[string]bool{
	".git":         true,
	"target":       true,
	"build":        true,
	"node_modules": true,
}

// ShouldSkipDir reports whether a directory with the given name is left
// out of traversal. Hidden directories are always skipped.
func ShouldSkipDir(name string) bool {
	if skipDirs[name] {
		return true
	}
	return len(name) > 1 && strings.HasPrefix(name, ".")
}

// Walk returns every .cpp and .rs file under root. When recursive is false
// only the files directly in root are considered. The result is ordered
// by language (C++ first) and then by relative path.
func Walk(root string, recursive bool) ([]types.SourceFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("reading source directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source path %s is not a directory", root)
	}

	var files []types.SourceFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if !recursive || ShouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		lang, ok := types.LanguageForPath(path)
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relativizing %s: %w", path, err)
		}
		files = append(files, types.SourceFile{
			Path:     path,
			RelPath:  filepath.ToSlash(rel),
			Language: lang,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	Sort(files)
	return files, nil
}

// Sort orders files by language (C++ first) and then by relative path.
func Sort(files []types.SourceFile) {
	sort.SliceStable(files, func(i, j int) bool {
		oi, oj := files[i].Language.Order(), files[j].Language.Order()
		if oi != oj {
			return oi < oj
		}
		return files[i].RelPath < files[j].RelPath
	})
}

// OutputPath returns the IR path for src under irDir. The source's
// directory relative to the source root is mirrored, so
// "add/add.cpp" maps to "<irDir>/add/add_cpp.ll".
func OutputPath(irDir string, src types.SourceFile) string {
	rel := filepath.FromSlash(src.RelPath)
	if rel == "" {
		rel = filepath.Base(src.Path)
	}
	dir := filepath.Dir(rel)
	return filepath.Join(irDir, dir, src.Base()+src.Language.Suffix())
}

// Plan walks root and returns one job per source file, in processing
// order. When langs is non-empty, only those languages are included.
func Plan(root, irDir string, recursive bool, langs []types.Language) ([]types.Job, error) {
	files, err := Walk(root, recursive)
	if err != nil {
		return nil, err
	}

	allowed := languageSet(langs)
	jobs := make([]types.Job, 0, len(files))
	for _, f := range files {
		if !allowed(f.Language) {
			continue
		}
		jobs = append(jobs, types.Job{Source: f, OutputPath: OutputPath(irDir, f)})
	}
	return jobs, nil
}

// JobsFor builds jobs for the named source paths under root, in the same
// order and with the same language filter as Plan.
func JobsFor(root, irDir string, paths []string, langs []types.Language) ([]types.Job, error) {
	allowed := languageSet(langs)
	files := make([]types.SourceFile, 0, len(paths))
	for _, p := range paths {
		job, err := JobFor(root, irDir, p)
		if err != nil {
			return nil, err
		}
		if allowed(job.Source.Language) {
			files = append(files, job.Source)
		}
	}
	Sort(files)

	jobs := make([]types.Job, 0, len(files))
	for _, f := range files {
		jobs = append(jobs, types.Job{Source: f, OutputPath: OutputPath(irDir, f)})
	}
	return jobs, nil
}

// languageSet reports membership in langs; an empty list allows all.
func languageSet(langs []types.Language) func(types.Language) bool {
	allowed := make(map[types.Language]bool, len(langs))
	for _, l := range langs {
		allowed[l] = true
	}
	return func(l types.Language) bool {
		return len(allowed) == 0 || allowed[l]
	}
}

// JobFor builds the job for a single source path under root. It is used
// when a file is named explicitly or reported by the watcher.
func JobFor(root, irDir, path string) (types.Job, error) {
	lang, ok := types.LanguageForPath(path)
	if !ok {
		return types.Job{}, fmt.Errorf("unsupported source file %s: expected .cpp or .rs", path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = filepath.Base(path)
	}
	src := types.SourceFile{
		Path:     path,
		RelPath:  filepath.ToSlash(rel),
		Language: lang,
	}
	return types.Job{Source: src, OutputPath: OutputPath(irDir, src)}, nil
}

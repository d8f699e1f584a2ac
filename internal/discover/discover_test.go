// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package discover

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/src2ir/pkg/types"
)

// writeTree creates each relative path under root with placeholder content.
func writeTree(t *testing.T, root string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("// src\n"), 0o644))
	}
}

func relPaths(files []types.SourceFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath
	}
	return out
}

func TestWalk(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"initialize_array.cpp",
		"add/add.rs",
		"add/add.cpp",
		"deref/deref.cpp",
		"clone/clone.rs",
		"notes.md",
		"add/Makefile",
		"target/debug/build.rs",
		".cache/stale.cpp",
	)

	files, err := Walk(root, true)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"add/add.cpp",
		"deref/deref.cpp",
		"initialize_array.cpp",
		"add/add.rs",
		"clone/clone.rs",
	}, relPaths(files))

	assert.Equal(t, types.LangCPP, files[0].Language)
	assert.Equal(t, types.LangRust, files[4].Language)
	assert.Equal(t, filepath.Join(root, "add", "add.cpp"), files[0].Path)
}

func TestWalk_NonRecursive(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "initialize_array.cpp", "top.rs", "add/add.cpp")

	files, err := Walk(root, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"initialize_array.cpp", "top.rs"}, relPaths(files))
}

func TestWalk_Errors(t *testing.T) {
	t.Run("missing root", func(t *testing.T) {
		_, err := Walk(filepath.Join(t.TempDir(), "nope"), true)
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("root is a file", func(t *testing.T) {
		root := t.TempDir()
		writeTree(t, root, "add.cpp")
		_, err := Walk(filepath.Join(root, "add.cpp"), true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a directory")
	})

	t.Run("empty root", func(t *testing.T) {
		files, err := Walk(t.TempDir(), true)
		require.NoError(t, err)
		assert.Empty(t, files)
	})
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		name string
		src  types.SourceFile
		want string
	}{
		{
			name: "top-level cpp",
			src:  types.SourceFile{Path: "src/initialize_array.cpp", RelPath: "initialize_array.cpp", Language: types.LangCPP},
			want: filepath.Join("ir", "initialize_array_cpp.ll"),
		},
		{
			name: "nested rust mirrors directory",
			src:  types.SourceFile{Path: "src/add/add.rs", RelPath: "add/add.rs", Language: types.LangRust},
			want: filepath.Join("ir", "add", "add_rs.ll"),
		},
		{
			name: "nested cpp mirrors directory",
			src:  types.SourceFile{Path: "src/binary_search/binary_search.cpp", RelPath: "binary_search/binary_search.cpp", Language: types.LangCPP},
			want: filepath.Join("ir", "binary_search", "binary_search_cpp.ll"),
		},
		{
			name: "missing relpath falls back to basename",
			src:  types.SourceFile{Path: "/abs/x/deref.rs", Language: types.LangRust},
			want: filepath.Join("ir", "deref_rs.ll"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OutputPath("ir", tt.src))
		})
	}
}

func TestPlan(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "add/add.cpp", "add/add.rs", "atomic/atomic.rs")
	irDir := filepath.Join(t.TempDir(), "ir")

	jobs, err := Plan(root, irDir, true, nil)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, filepath.Join(irDir, "add", "add_cpp.ll"), jobs[0].OutputPath)
	assert.Equal(t, filepath.Join(irDir, "add", "add_rs.ll"), jobs[1].OutputPath)
	assert.Equal(t, filepath.Join(irDir, "atomic", "atomic_rs.ll"), jobs[2].OutputPath)

	rustOnly, err := Plan(root, irDir, true, []types.Language{types.LangRust})
	require.NoError(t, err)
	require.Len(t, rustOnly, 2)
	for _, j := range rustOnly {
		assert.Equal(t, types.LangRust, j.Source.Language)
	}
}

func TestJobFor(t *testing.T) {
	root := filepath.Join("examples", "source")

	job, err := JobFor(root, "ir", filepath.Join(root, "deref", "deref.cpp"))
	require.NoError(t, err)
	assert.Equal(t, "deref/deref.cpp", job.Source.RelPath)
	assert.Equal(t, filepath.Join("ir", "deref", "deref_cpp.ll"), job.OutputPath)

	outside, err := JobFor(root, "ir", filepath.Join("elsewhere", "x.rs"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("ir", "x_rs.ll"), outside.OutputPath)

	_, err = JobFor(root, "ir", filepath.Join(root, "README.md"))
	assert.Error(t, err)
}

func TestJobsFor(t *testing.T) {
	root := filepath.Join("examples", "source")
	paths := []string{
		filepath.Join(root, "deref", "deref.cpp"),
		filepath.Join(root, "add", "add.rs"),
		filepath.Join(root, "add", "add.cpp"),
	}

	jobs, err := JobsFor(root, "ir", paths, nil)
	require.NoError(t, err)
	var rels []string
	for _, j := range jobs {
		rels = append(rels, j.Source.RelPath)
	}
	assert.Equal(t, []string{"add/add.cpp", "deref/deref.cpp", "add/add.rs"}, rels)
	assert.Equal(t, filepath.Join("ir", "add", "add_cpp.ll"), jobs[0].OutputPath)

	cppOnly, err := JobsFor(root, "ir", paths, []types.Language{types.LangCPP})
	require.NoError(t, err)
	require.Len(t, cppOnly, 2)
	for _, j := range cppOnly {
		assert.Equal(t, types.LangCPP, j.Source.Language)
	}

	_, err = JobsFor(root, "ir", []string{filepath.Join(root, "notes.txt")}, nil)
	assert.Error(t, err)
}

func TestShouldSkipDir(t *testing.T) {
	assert.True(t, ShouldSkipDir(".git"))
	assert.True(t, ShouldSkipDir(".idea"))
	assert.True(t, ShouldSkipDir("target"))
	assert.False(t, ShouldSkipDir("."))
	assert.False(t, ShouldSkipDir("add"))
}

package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"dist/**", "dist", true},
		{"dist/**", "dist/a/b.js", true},
		{"dist/**/*.js", "dist/a.js", true},
		{"dist/**/*.js", "dist/a/b/c.js", true},
		{"dist/**/*.js", "dist/a/b/c.css", false},
		{"app/*.ts", "app/x/y.ts", false},
		{"app/*.ts", "app/y.ts", true},
		{"**/*.{js,css}", "a/b/c.css", true},
		{"**/*.{js,css}", "a/b/c.html", false},
		{"index.html", "index.html", true},
		{"/abs/**/x", "/abs/x", true},
		{"src/**/test/*.spec.ts", "src/app/test/a.spec.ts", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Match(tc.pattern, tc.name), "%s vs %s", tc.pattern, tc.name)
	}
}

func TestExpandBraces(t *testing.T) {
	assert.Equal(t, []string{"a.js", "a.css"}, ExpandBraces("a.{js,css}"))
	assert.Equal(t, []string{"a/c", "a/d", "b/c", "b/d"}, ExpandBraces("{a,b}/{c,d}"))
	assert.Equal(t, []string{"plain"}, ExpandBraces("plain"))
}

func TestStaticPrefix(t *testing.T) {
	assert.Equal(t, filepath.FromSlash("src/app"), StaticPrefix("src/app/**/*.ts"))
	assert.Equal(t, ".", StaticPrefix("**/*.ts"))
	assert.Equal(t, "/", StaticPrefix("/*.ts"))
	assert.Equal(t, filepath.FromSlash("a/b.txt"), StaticPrefix("a/b.txt"))
}

func tree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		require.NoError(t, WriteFile(filepath.Join(root, f), []byte(f)))
	}
}

func TestExpand(t *testing.T) {
	root := t.TempDir()
	tree(t, root,
		"app/main.ts",
		"app/lib/util.ts",
		"app/lib/util.spec.ts",
		"app/style.css",
		"index.html",
	)

	t.Run("files with negation and rel", func(t *testing.T) {
		entries, err := Expand(root, []string{"app/**/*.ts", "!app/**/*.spec.ts"}, false)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, filepath.Join(root, "app/lib/util.ts"), entries[0].Path)
		assert.Equal(t, filepath.FromSlash("lib/util.ts"), entries[0].Rel)
		assert.Equal(t, "main.ts", entries[1].Rel)
	})

	t.Run("literal file and missing base", func(t *testing.T) {
		paths, err := Files(root, []string{"index.html", "nope/**/*.js", "missing.txt"})
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(root, "index.html")}, paths)
	})

	t.Run("dirs included", func(t *testing.T) {
		entries, err := Expand(root, []string{"app/**"}, true)
		require.NoError(t, err)
		var dirs []string
		for _, e := range entries {
			if e.IsDir {
				dirs = append(dirs, e.Path)
			}
		}
		assert.Equal(t, []string{filepath.Join(root, "app"), filepath.Join(root, "app/lib")}, dirs)
	})

	t.Run("dedup across patterns", func(t *testing.T) {
		paths, err := Files(root, []string{"app/*.ts", "app/**/*.ts"})
		require.NoError(t, err)
		assert.Len(t, paths, 3)
	})
}

func TestCopyFile(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src.sh")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh"), 0o755))

	dst := filepath.Join(root, "out/nested/dst.sh")
	require.NoError(t, CopyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh", string(data))
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	assert.Error(t, CopyFile(root, filepath.Join(root, "x")))
}

func TestFindFilesByExtension(t *testing.T) {
	root := t.TempDir()
	tree(t, root, "b/c.hcl", "a.hcl", "d.txt", "node_modules/pkg/x.hcl", ".git/y.hcl")
	files, err := FindFilesByExtension(root, ".hcl")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a.hcl"), filepath.Join(root, "b", "c.hcl")}, files)

	assert.True(t, Ignored("node_modules"))
	assert.True(t, Ignored(".cache"))
	assert.False(t, Ignored("."))
	assert.False(t, Ignored("src"))
}

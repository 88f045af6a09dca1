package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Entry is one path produced by Expand.
type Entry struct {
	// Path is the full path, rooted like the pattern that matched it.
	Path string
	// Rel is Path relative to the pattern's static base, e.g. "a/b.js" for
	// "src/**/*.js" matching "src/a/b.js". Copy-like actions mirror it.
	Rel   string
	IsDir bool
}

// Match reports whether name matches pattern. Segments are matched with
// path.Match; a "**" segment matches zero or more segments. Both arguments
// may use the OS separator.
func Match(pattern, name string) bool {
	for _, p := range ExpandBraces(pattern) {
		if matchSegments(splitPath(p), splitPath(name)) {
			return true
		}
	}
	return false
}

func splitPath(p string) []string {
	p = path.Clean(filepath.ToSlash(p))
	if p == "." {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(pat, name []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			pat = pat[1:]
			if len(pat) == 0 {
				return true
			}
			for i := 0; i <= len(name); i++ {
				if matchSegments(pat, name[i:]) {
					return true
				}
			}
			return false
		}
		if len(name) == 0 {
			return false
		}
		ok, err := path.Match(pat[0], name[0])
		if err != nil || !ok {
			return false
		}
		pat, name = pat[1:], name[1:]
	}
	return len(name) == 0
}

// ExpandBraces expands "{a,b}" alternatives, e.g. "*.{js,css}" becomes
// ["*.js", "*.css"]. Several groups multiply out.
func ExpandBraces(pattern string) []string {
	end := strings.IndexByte(pattern, '}')
	if end < 0 {
		return []string{pattern}
	}
	start := strings.LastIndexByte(pattern[:end], '{')
	if start < 0 {
		return []string{pattern}
	}

	var out []string
	for _, alt := range strings.Split(pattern[start+1:end], ",") {
		out = append(out, ExpandBraces(pattern[:start]+alt+pattern[end+1:])...)
	}
	return out
}

// HasMeta reports whether p contains glob syntax.
func HasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

// StaticPrefix returns the leading part of pattern without glob syntax. For
// a literal path it returns the path itself.
func StaticPrefix(pattern string) string {
	segs := strings.Split(filepath.ToSlash(pattern), "/")
	for i, s := range segs {
		if HasMeta(s) {
			prefix := strings.Join(segs[:i], "/")
			if prefix == "" {
				if strings.HasPrefix(pattern, "/") {
					return "/"
				}
				return "."
			}
			return filepath.FromSlash(prefix)
		}
	}
	return filepath.Clean(pattern)
}

// Expand resolves patterns relative to root and returns the matching
// entries sorted by path. Patterns starting with "!" exclude matches.
// Directories are returned only when includeDirs is set. Patterns whose base
// does not exist match nothing.
func Expand(root string, patterns []string, includeDirs bool) ([]Entry, error) {
	var include, exclude []string
	for _, p := range patterns {
		neg := strings.HasPrefix(p, "!")
		p = strings.TrimPrefix(p, "!")
		if !filepath.IsAbs(p) && root != "" {
			p = filepath.Join(root, p)
		}
		for _, e := range ExpandBraces(p) {
			if neg {
				exclude = append(exclude, e)
			} else {
				include = append(include, e)
			}
		}
	}

	seen := make(map[string]bool)
	var out []Entry
	add := func(e Entry) {
		if seen[e.Path] {
			return
		}
		for _, ex := range exclude {
			if Match(ex, e.Path) {
				return
			}
		}
		seen[e.Path] = true
		out = append(out, e)
	}

	for _, pattern := range include {
		if !HasMeta(pattern) {
			info, err := os.Stat(pattern)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if !info.IsDir() || includeDirs {
				add(Entry{Path: filepath.Clean(pattern), Rel: filepath.Base(pattern), IsDir: info.IsDir()})
			}
			continue
		}

		base := StaticPrefix(pattern)
		err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() && !includeDirs {
				return nil
			}
			if !Match(pattern, p) {
				return nil
			}
			rel, err := filepath.Rel(base, p)
			if err != nil {
				return err
			}
			add(Entry{Path: p, Rel: rel, IsDir: d.IsDir()})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Files is Expand without directories, returning only the paths.
func Files(root string, patterns []string) ([]string, error) {
	entries, err := Expand(root, patterns, false)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	return paths, nil
}

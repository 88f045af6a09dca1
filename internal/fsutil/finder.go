// Package fsutil provides the file system helpers shared by the loader, the
// file actions and the watcher: discovery, `**` glob expansion, and copy.
package fsutil

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Ignored reports whether a directory named name is never searched for
// Buildfiles nor watched: dependency trees and hidden directories.
func Ignored(name string) bool {
	return name == "node_modules" || (len(name) > 1 && strings.HasPrefix(name, "."))
}

// FindFilesByExtension returns the files under root ending in ext, sorted so
// Buildfiles load in a stable order. Ignored directories below root are
// skipped.
func FindFilesByExtension(root, ext string) ([]string, error) {
	if ext == "" {
		panic("extension must not be empty")
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && Ignored(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ext) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

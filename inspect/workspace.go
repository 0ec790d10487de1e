package inspect

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
)

// Directories that never contain workspace members.
var skipDirs = map[string]bool{
	".git":         true,
	".direnv":      true,
	"target":       true,
	"result":       true,
	"vendor":       true,
	"node_modules": true,
}

// scanMembers walks the tree below root and collects every directory
// holding a manifest of the same language, excluding the root's own.
// Returned paths are root-relative, slash-separated and sorted, so the
// scan is deterministic across platforms.
func scanMembers(root string, lang Language) ([]string, error) {
	manifest := "Cargo.toml"
	if lang == LanguageGo {
		manifest = "go.mod"
	}

	var members []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != manifest {
			return nil
		}
		dir := filepath.Dir(p)
		if dir == root {
			return nil
		}
		rel, err := filepath.Rel(root, dir)
		if err != nil {
			return err
		}
		members = append(members, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan for workspace members: %w", err)
	}
	sort.Strings(members)
	return members, nil
}

package watcher

import (
	"path/filepath"
	"strings"
)

// ExtensionFilter accepts paths ending in one of exts. Extensions are given
// without the leading dot.
func ExtensionFilter(exts ...string) FileFilter {
	return func(path string) bool {
		for _, ext := range exts {
			if strings.HasSuffix(path, "."+ext) {
				return true
			}
		}
		return false
	}
}

// NameFilter accepts paths whose cleaned form equals one of names, or whose
// base name does when a name has no directory part.
func NameFilter(names ...string) FileFilter {
	return func(path string) bool {
		clean := filepath.Clean(path)
		base := filepath.Base(clean)
		for _, name := range names {
			if strings.ContainsRune(name, filepath.Separator) {
				if filepath.Clean(name) == clean {
					return true
				}
				continue
			}
			if name == base {
				return true
			}
		}
		return false
	}
}

// AnyOf accepts a path when at least one filter does.
func AnyOf(filters ...FileFilter) FileFilter {
	return func(path string) bool {
		for _, f := range filters {
			if f(path) {
				return true
			}
		}
		return false
	}
}

// NotUnder rejects paths inside root. Watch mode uses it to ignore its own
// output directory.
func NotUnder(root string) FileFilter {
	root = filepath.Clean(root)
	return func(path string) bool {
		rel, err := filepath.Rel(root, filepath.Clean(path))
		if err != nil {
			return true
		}
		return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
	}
}

// Under accepts paths inside root, root included.
func Under(root string) FileFilter {
	outside := NotUnder(root)
	return func(path string) bool {
		return !outside(path)
	}
}

// NoNodeModulesFilter rejects files inside node_modules.
func NoNodeModulesFilter(path string) bool {
	slashed := filepath.ToSlash(path)
	return !strings.HasPrefix(slashed, "node_modules/") && !strings.Contains(slashed, "/node_modules/")
}

// NoGitFilter rejects files inside .git.
func NoGitFilter(path string) bool {
	slashed := filepath.ToSlash(path)
	return !strings.HasPrefix(slashed, ".git/") && !strings.Contains(slashed, "/.git/")
}

// NoEditorTempFilter rejects swap and backup files written by editors.
func NoEditorTempFilter(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasPrefix(base, ".#"):
		return false
	}
	return true
}

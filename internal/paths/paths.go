// Package paths resolves the filesystem locations a build plan is
// synthesized against.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	planerrors "github.com/conneroisu/extplan/internal/errors"
)

// Paths are canonical, absolute locations for one extension app.
type Paths struct {
	AppDir         string
	SourceRoot     string
	AppNodeModules string
	// NodeModuleRoots lists module search roots after node_modules lookup:
	// the app's own node_modules followed by NODE_PATH entries.
	NodeModuleRoots []string
	OutputRoot      string
	// TypeConfigPath is empty when the app has no tsconfig.json.
	TypeConfigPath string
}

// Option customises Resolve.
type Option func(*resolver)

type resolver struct {
	sourceDir string
	outputDir string
	nodePath  string
}

// WithSourceDir overrides the source directory (default "src").
func WithSourceDir(dir string) Option {
	return func(r *resolver) { r.sourceDir = dir }
}

// WithOutputDir overrides the output directory (default "build").
func WithOutputDir(dir string) Option {
	return func(r *resolver) { r.outputDir = dir }
}

// WithNodePath sets the NODE_PATH list used for extra module roots.
func WithNodePath(nodePath string) Option {
	return func(r *resolver) { r.nodePath = nodePath }
}

// Resolve computes Paths for the app rooted at appDir.
func Resolve(appDir string, opts ...Option) (Paths, error) {
	r := &resolver{sourceDir: "src", outputDir: "build"}
	for _, opt := range opts {
		opt(r)
	}

	abs, err := filepath.Abs(appDir)
	if err != nil {
		return Paths{}, planerrors.WrapIO(err, planerrors.ErrCodeFileNotFound, "resolving app directory")
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Paths{}, planerrors.WrapIO(err, planerrors.ErrCodeFileNotFound, "app directory "+abs)
	}
	if !info.IsDir() {
		return Paths{}, planerrors.NewIOError(planerrors.ErrCodeFileNotFound, fmt.Sprintf("app directory %s is not a directory", abs), nil)
	}

	p := Paths{
		AppDir:         abs,
		SourceRoot:     within(abs, r.sourceDir),
		AppNodeModules: filepath.Join(abs, "node_modules"),
		OutputRoot:     within(abs, r.outputDir),
	}
	p.NodeModuleRoots = append([]string{p.AppNodeModules}, splitNodePath(abs, r.nodePath)...)

	tsconfig := filepath.Join(abs, "tsconfig.json")
	if st, err := os.Stat(tsconfig); err == nil && !st.IsDir() {
		p.TypeConfigPath = tsconfig
	}

	return p, nil
}

func within(base, dir string) string {
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(base, dir)
}

// splitNodePath splits a NODE_PATH value and resolves relative entries
// against the app directory. Absolute entries are kept as-is; empty entries
// are dropped.
func splitNodePath(appDir, nodePath string) []string {
	var roots []string
	for _, part := range strings.Split(nodePath, string(os.PathListSeparator)) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		roots = append(roots, within(appDir, part))
	}
	return roots
}

// Package matcher expands a tool's include globs over the project
// tree, subtracts ignores and CLI filters, and applies --staged,
// producing a deterministically ordered file list. `**` recursive
// matching is handled by walking directories rather than by a glob
// engine that natively understands it, using filepath.Match for each
// path segment.
package matcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"lun/internal/fileset"
	"lun/internal/logging"
	"lun/internal/tool"
	"lun/internal/vcsgit"
)

// Options carries the CLI filters layered on top of a tool's own
// include/ignore globs.
type Options struct {
	OnlyFiles  []string
	SkipFiles  []string
	Staged     bool
	GlobalIgnore []string
}

// Matcher expands globs over a project rooted at Root.
type Matcher struct {
	Root   string
	VCS    vcsgit.Adapter
	Logger *logging.Logger
}

// New builds a Matcher rooted at root.
func New(root string, vcs vcsgit.Adapter, logger *logging.Logger) *Matcher {
	return &Matcher{Root: root, VCS: vcs, Logger: logger}
}

// Match returns the deterministically ordered (lexicographic) list of
// project-relative paths matching t's include globs, minus t's and the
// global ignore globs, minus/filtered by opts.
func (m *Matcher) Match(ctx context.Context, t *tool.Spec, opts Options) ([]*fileset.File, error) {
	base := m.Root
	if t.Dir != "" {
		base = filepath.Join(m.Root, t.Dir)
	}

	var staged map[string]bool
	if opts.Staged {
		if m.VCS == nil {
			return nil, nil
		}
		files, err := m.VCS.StagedFiles(ctx)
		if err != nil {
			return nil, err
		}
		staged = make(map[string]bool, len(files))
		for _, f := range files {
			staged[filepath.ToSlash(f)] = true
		}
	}

	candidates, err := walkTree(base)
	if err != nil {
		return nil, err
	}

	ignore := append(append([]string{}, t.Ignore...), opts.GlobalIgnore...)

	// dirRel is relative to base (the tool's own Dir), since Include/
	// Ignore/OnlyFiles/SkipFiles globs are written relative to where
	// the tool runs. projRel is relative to the project root and is
	// what every other component (fingerprinter, executor, VCS lookup)
	// expects a File.Path to be.
	var projPaths []string
	dirRelByProj := make(map[string]string, len(candidates))
	for _, dirRel := range candidates {
		if !matchesAny(t.Include, dirRel) {
			continue
		}
		if matchesAny(ignore, dirRel) {
			continue
		}
		if len(opts.OnlyFiles) > 0 && !matchesAny(opts.OnlyFiles, dirRel) {
			continue
		}
		if matchesAny(opts.SkipFiles, dirRel) {
			continue
		}
		projRel := projectRelative(t.Dir, dirRel)
		if staged != nil && !staged[projRel] {
			continue
		}
		projPaths = append(projPaths, projRel)
		dirRelByProj[projRel] = dirRel
	}
	sort.Strings(projPaths)

	files := make([]*fileset.File, 0, len(projPaths))
	var g errgroup.Group
	results := make([]*fileset.File, len(projPaths))
	for i, projRel := range projPaths {
		i, projRel := i, projRel
		g.Go(func() error {
			abs := filepath.Join(base, dirRelByProj[projRel])
			f, err := fileset.New(projRel, abs)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Warn("dropping unstat-able file", map[string]interface{}{"path": abs, "error": err.Error()})
				}
				return nil
			}
			results[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, f := range results {
		if f != nil {
			files = append(files, f)
		}
	}
	return files, nil
}

// projectRelative prefixes a tool-Dir-relative path with the tool's
// Dir, producing a path relative to the project root.
func projectRelative(dir, dirRel string) string {
	if dir == "" {
		return dirRel
	}
	return filepath.ToSlash(filepath.Join(dir, dirRel))
}

// walkTree returns every regular file under root, as slash-separated
// paths relative to root, skipping the .lun cache directory and any
// VCS metadata directory.
func walkTree(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are dropped, not fatal
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", ".lun", "node_modules", ".hg", ".svn":
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// matchesAny reports whether path matches any of the given shell-style
// glob patterns, honoring "**" as a recursive-directory wildcard by
// expanding it into path-segment matching rather than delegating to
// filepath.Match (which treats "**" the same as a single "*").
func matchesAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if matchGlob(p, path) {
			return true
		}
	}
	return false
}

func matchGlob(pattern, path string) bool {
	if !strings.Contains(pattern, "**") {
		ok, err := filepath.Match(pattern, path)
		return err == nil && ok
	}
	return matchDoubleStar(strings.Split(pattern, "/"), strings.Split(path, "/"))
}

// matchDoubleStar matches path segments against pattern segments where
// a "**" segment consumes zero or more path segments.
func matchDoubleStar(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}
	if pattern[0] == "**" {
		if matchDoubleStar(pattern[1:], path) {
			return true
		}
		if len(path) == 0 {
			return false
		}
		return matchDoubleStar(pattern, path[1:])
	}
	if len(path) == 0 {
		return false
	}
	ok, err := filepath.Match(pattern[0], path[0])
	if err != nil || !ok {
		return false
	}
	return matchDoubleStar(pattern[1:], path[1:])
}

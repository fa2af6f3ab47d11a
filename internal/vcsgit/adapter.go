// Package vcsgit implements a VCS adapter by shelling out to the git
// binary: availability probing, a bounded timeout, and a typed error
// when git is missing or the directory is not a work tree.
package vcsgit

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	lunerrors "lun/internal/errors"
)

// Adapter is the VCS query interface the core consumes: whether a file
// is staged, whether its working-tree bytes match a ref's blob, and
// the blob's raw bytes for verbose ref-trust diagnostics.
type Adapter interface {
	StagedFiles(ctx context.Context) ([]string, error)
	FileMatchesRef(ctx context.Context, path, ref string) (bool, error)
	BlobAt(ctx context.Context, path, ref string) ([]byte, error)
}

// GitAdapter shells out to `git` in repoRoot.
type GitAdapter struct {
	repoRoot string
	timeout  time.Duration
}

// New builds a GitAdapter rooted at repoRoot, verifying git is
// available and repoRoot is inside a work tree.
func New(repoRoot string) (*GitAdapter, error) {
	a := &GitAdapter{repoRoot: repoRoot, timeout: 5 * time.Second}
	if !a.available() {
		return nil, lunerrors.New(lunerrors.ErrVCSUnavailable, "git is not available in "+repoRoot).
			WithFixes(lunerrors.FixAction{
				Type:        lunerrors.RunCommand,
				Command:     "git status",
				Safe:        true,
				Description: "verify this is a git work tree",
			})
	}
	return a, nil
}

func (a *GitAdapter) available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = a.repoRoot
	return cmd.Run() == nil
}

func (a *GitAdapter) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = a.repoRoot
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", lunerrors.Wrap(lunerrors.ErrVCSUnavailable, "git "+strings.Join(args, " ")+": "+stderr.String(), err)
	}
	return stdout.String(), nil
}

// StagedFiles returns the set of paths staged in the index.
func (a *GitAdapter) StagedFiles(ctx context.Context) ([]string, error) {
	out, err := a.run(ctx, "diff", "--name-only", "--cached")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// FileMatchesRef reports whether path's working-tree bytes equal the
// blob at ref:path.
func (a *GitAdapter) FileMatchesRef(ctx context.Context, path, ref string) (bool, error) {
	working, err := os.ReadFile(filepath.Join(a.repoRoot, path))
	if err != nil {
		return false, lunerrors.Wrap(lunerrors.ErrVCSUnavailable, "read working tree file "+path, err)
	}

	blob, err := a.BlobAt(ctx, path, ref)
	if err != nil {
		// A missing path at ref, or an unresolvable ref, is a
		// legitimate "not identical" rather than an adapter failure.
		return false, nil
	}
	return bytes.Equal(working, blob), nil
}

// BlobAt returns the raw bytes of path as recorded at ref.
func (a *GitAdapter) BlobAt(ctx context.Context, path, ref string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx, "git", "cat-file", "blob", ref+":"+path)
	cmd.Dir = a.repoRoot
	blob, err := cmd.Output()
	if err != nil {
		return nil, lunerrors.Wrap(lunerrors.ErrVCSUnavailable, "cat-file blob "+ref+":"+path, err)
	}
	return blob, nil
}

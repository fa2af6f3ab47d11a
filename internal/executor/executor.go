// Package executor runs a tool's batches in parallel across at most c
// workers, capturing per-batch output atomically, and committing cache
// entries only for files in batches that exited zero.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lun/internal/batcher"
	"lun/internal/cachestore"
	"lun/internal/fingerprint"
	"lun/internal/logging"
	"lun/internal/tool"
	"lun/internal/warn"
)

// Outcome is one file's result after its batch ran.
type Outcome int

const (
	Success Outcome = iota
	Failure
)

// KeyLookup resolves the mkey/ckey pair pre-computed by the
// Fingerprinter for one file under a specific tool and mode, so the
// Executor can commit exactly the keys the Skip Oracle will probe on
// the next run.
type KeyLookup func(path string) (mkey, ckey fingerprint.Key, mtimeEnabled bool)

// Result is the aggregate outcome of running one batch.
type Result struct {
	Batch    batcher.Batch
	Outcome  Outcome
	Combined []byte // captured stdout+stderr, flushed as one write
	Err      error  // non-nil only on spawn failure, distinct from a non-zero exit
	CmdLine  string // the printed command line, cd-prefixed if applicable
}

// RunOptions selects which command variant of a tool is used, and
// whether this is a dry run.
type RunOptions struct {
	Mode         tool.Mode
	Color        string
	DryRun       bool
	Cores        int
	Careful      bool
	WriteEnabled bool // false under --no-cache/--fresh: run tools but never commit cache entries
}

// Executor runs batches for one tool.
type Executor struct {
	store  *cachestore.Store
	logger *logging.Logger
	warns  *warn.Table

	mu sync.Mutex // serializes writes to stdout so batch output stays contiguous
}

// New builds an Executor writing successful-file cache entries to store.
// warns may be nil, in which case an unknown-binary spawn failure is
// only logged, not surfaced as a warning.
func New(store *cachestore.Store, logger *logging.Logger, warns *warn.Table) *Executor {
	return &Executor{store: store, logger: logger, warns: warns}
}

// Run executes batches in parallel (bounded by opts.Cores) and returns
// one Result per batch, in the same order as the input. On --dry-run,
// no subprocess is spawned and no cache mutation occurs.
func (e *Executor) Run(ctx context.Context, batches []batcher.Batch, opts RunOptions, keys KeyLookup, stdout *os.File) []Result {
	results := make([]Result, len(batches))
	cores := opts.Cores
	if cores < 1 {
		cores = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cores)

	for i, b := range batches {
		i, b := i, b
		g.Go(func() error {
			results[i] = e.runBatch(ctx, b, opts, keys, stdout)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Executor) runBatch(ctx context.Context, b batcher.Batch, opts RunOptions, keys KeyLookup, stdout *os.File) Result {
	cmdStr := fingerprint.EffectiveCmd(b.Tool, opts.Mode, opts.Color)
	relArgs := make([]string, 0, len(b.Files))
	for _, f := range b.Files {
		relArgs = append(relArgs, relativeToDir(f.Path, b.Tool.Dir))
	}

	displayLine := displayCommand(b.Tool, cmdStr, relArgs)
	e.printLine(stdout, displayLine)

	if opts.DryRun {
		return Result{Batch: b, Outcome: Success, CmdLine: displayLine}
	}

	argv := append(strings.Fields(cmdStr), relArgs...)
	if len(argv) == 0 {
		return Result{Batch: b, Outcome: Failure, Err: fmt.Errorf("empty command for tool %s", b.Tool.DisplayName())}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if b.Tool.Dir != "" {
		// Tool.Dir is project-relative; resolve it against the project
		// root recovered from a file's absolute path so the subprocess
		// does not depend on this process's own working directory.
		cmd.Dir = b.Tool.Dir
		if len(b.Files) > 0 {
			f := b.Files[0]
			if abs := filepath.ToSlash(f.Abs); strings.HasSuffix(abs, "/"+f.Path) {
				cmd.Dir = filepath.Join(f.Abs[:len(f.Abs)-len(f.Path)], b.Tool.Dir)
			}
		}
	}
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	err := cmd.Run()
	outcome := Success
	if err != nil {
		outcome = Failure
	}

	res := Result{Batch: b, Outcome: outcome, Combined: combined.Bytes(), CmdLine: displayLine}
	if _, ok := err.(*exec.ExitError); err != nil && !ok {
		res.Err = err // spawn failure, distinct from a non-zero exit
		if e.logger != nil {
			e.logger.Warn("tool spawn failed", map[string]interface{}{"tool": b.Tool.DisplayName(), "error": err.Error()})
		}
		if errors.Is(err, exec.ErrNotFound) && e.warns != nil {
			e.warns.Emit(warn.UnknownTool, b.Tool.DisplayName()+": binary "+argv[0]+" not found on PATH")
		}
	}

	if outcome == Failure {
		e.printLine(stdout, b.Tool.DisplayName()+":\n"+string(combined.Bytes()))
		return res
	}

	if opts.WriteEnabled {
		e.commitSuccess(b, keys)
	}
	return res
}

// commitSuccess inserts the pre-computed keys for every file in a
// successful batch.
func (e *Executor) commitSuccess(b batcher.Batch, keys KeyLookup) {
	if keys == nil || e.store == nil {
		return
	}
	now := time.Now()
	for _, f := range b.Files {
		mkey, ckey, mtimeEnabled := keys(f.Path)
		e.store.Insert(cachestore.ContentTier, ckey, now)
		if mtimeEnabled {
			e.store.Insert(cachestore.MtimeTier, mkey, now)
		}
	}
}

// printLine writes atomically under a mutex so concurrent batches never
// interleave mid-line.
func (e *Executor) printLine(w *os.File, line string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintln(w, line)
}

// relativeToDir rewrites a project-relative path to be relative to the
// tool's working directory.
func relativeToDir(path, dir string) string {
	if dir == "" {
		return path
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// displayCommand renders the printed command line, cd-prefixed when the
// tool declares a working directory.
func displayCommand(t *tool.Spec, cmdStr string, args []string) string {
	line := strings.TrimSpace(cmdStr + " " + strings.Join(args, " "))
	if t.Dir == "" {
		return line
	}
	return fmt.Sprintf("cd %s && %s", t.Dir, line)
}

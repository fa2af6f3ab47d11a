package executor

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lun/internal/batcher"
	"lun/internal/cachestore"
	"lun/internal/fileset"
	"lun/internal/fingerprint"
	"lun/internal/logging"
	"lun/internal/tool"
	"lun/internal/warn"
)

func newTestStore(t *testing.T) *cachestore.Store {
	t.Helper()
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
	store, err := cachestore.Open(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}

func testFile(t *testing.T, dir, name string) *fileset.File {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := fileset.New(name, path)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestRunSuccessCommitsCacheEntries(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t)
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
	e := New(store, logger, nil)

	f := testFile(t, dir, "a.go")
	spec := &tool.Spec{Name: "echo", Cmd: "echo ok"}
	batches := []batcher.Batch{{Tool: spec, Files: []*fileset.File{f}}}

	mkey, ckey := fingerprint.Key{1}, fingerprint.Key{2}
	keys := func(path string) (fingerprint.Key, fingerprint.Key, bool) { return mkey, ckey, true }

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	results := e.Run(context.Background(), batches, RunOptions{Mode: tool.ModeNormal, Cores: 1, WriteEnabled: true}, keys, w)
	w.Close()

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Outcome != Success {
		t.Fatalf("expected success, got %v (err=%v)", results[0].Outcome, results[0].Err)
	}
	if store.Lookup(cachestore.ContentTier, ckey) != cachestore.Hit {
		t.Fatalf("expected content key committed on success")
	}
	if store.Lookup(cachestore.MtimeTier, mkey) != cachestore.Hit {
		t.Fatalf("expected mtime key committed on success")
	}
}

func TestRunWriteDisabledSkipsCommitOnSuccess(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t)
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
	e := New(store, logger, nil)

	f := testFile(t, dir, "a.go")
	spec := &tool.Spec{Name: "echo", Cmd: "echo ok"}
	batches := []batcher.Batch{{Tool: spec, Files: []*fileset.File{f}}}

	mkey, ckey := fingerprint.Key{4}, fingerprint.Key{5}
	keys := func(path string) (fingerprint.Key, fingerprint.Key, bool) { return mkey, ckey, true }

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	results := e.Run(context.Background(), batches, RunOptions{Mode: tool.ModeNormal, Cores: 1, WriteEnabled: false}, keys, w)
	w.Close()

	if results[0].Outcome != Success {
		t.Fatalf("expected success, got %v (err=%v)", results[0].Outcome, results[0].Err)
	}
	if store.Lookup(cachestore.ContentTier, ckey) != cachestore.Miss {
		t.Fatalf("expected --no-cache/--fresh (WriteEnabled=false) to skip the cache commit entirely")
	}
	if store.Lookup(cachestore.MtimeTier, mkey) != cachestore.Miss {
		t.Fatalf("expected --no-cache/--fresh (WriteEnabled=false) to skip the cache commit entirely")
	}
}

func TestRunFailureDoesNotCommit(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t)
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
	e := New(store, logger, nil)

	f := testFile(t, dir, "a.go")
	spec := &tool.Spec{Name: "false", Cmd: "false"}
	batches := []batcher.Batch{{Tool: spec, Files: []*fileset.File{f}}}

	ckey := fingerprint.Key{9}
	keys := func(path string) (fingerprint.Key, fingerprint.Key, bool) { return fingerprint.Key{}, ckey, false }

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	results := e.Run(context.Background(), batches, RunOptions{Mode: tool.ModeNormal, Cores: 1}, keys, w)
	w.Close()

	if results[0].Outcome != Failure {
		t.Fatalf("expected failure outcome for `false`, got %v", results[0].Outcome)
	}
	if store.Lookup(cachestore.ContentTier, ckey) != cachestore.Miss {
		t.Fatalf("expected no cache commit on failure")
	}
}

func TestRunFailureOutputHeaderedWithDisplayName(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t)
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
	e := New(store, logger, nil)

	f := testFile(t, dir, "a.go")
	spec := &tool.Spec{Name: "myLinter", Cmd: "sh -c \"echo boom 1>&2; false\""}
	batches := []batcher.Batch{{Tool: spec, Files: []*fileset.File{f}}}
	keys := func(path string) (fingerprint.Key, fingerprint.Key, bool) { return fingerprint.Key{}, fingerprint.Key{}, false }

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan []byte, 1)
	go func() {
		data, _ := io.ReadAll(r)
		done <- data
	}()

	e.Run(context.Background(), batches, RunOptions{Mode: tool.ModeNormal, Cores: 1}, keys, w)
	w.Close()

	out := string(<-done)
	if !strings.Contains(out, spec.DisplayName()) {
		t.Fatalf("expected failure output headered with the tool's display name, got %q", out)
	}
}

func TestRunDryRunSkipsSubprocessAndCache(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t)
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
	e := New(store, logger, nil)

	f := testFile(t, dir, "a.go")
	spec := &tool.Spec{Name: "nonexistent-binary-xyz", Cmd: "nonexistent-binary-xyz"}
	batches := []batcher.Batch{{Tool: spec, Files: []*fileset.File{f}}}

	ckey := fingerprint.Key{3}
	keys := func(path string) (fingerprint.Key, fingerprint.Key, bool) { return fingerprint.Key{}, ckey, false }

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	results := e.Run(context.Background(), batches, RunOptions{Mode: tool.ModeNormal, Cores: 1, DryRun: true}, keys, w)
	w.Close()

	if results[0].Outcome != Success {
		t.Fatalf("expected dry-run to always report success, got %v", results[0].Outcome)
	}
	if store.Lookup(cachestore.ContentTier, ckey) != cachestore.Miss {
		t.Fatalf("expected dry-run not to touch the cache")
	}
}

func TestRunMissingBinaryEmitsUnknownToolWarning(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t)
	logger := logging.NewLogger(logging.Config{Level: logging.ErrorLevel})
	table := warn.NewTable(nil, nil, nil)
	e := New(store, logger, table)

	f := testFile(t, dir, "a.go")
	spec := &tool.Spec{Name: "nonexistent-binary-xyz", Cmd: "nonexistent-binary-xyz"}
	batches := []batcher.Batch{{Tool: spec, Files: []*fileset.File{f}}}

	keys := func(path string) (fingerprint.Key, fingerprint.Key, bool) { return fingerprint.Key{}, fingerprint.Key{}, false }

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	results := e.Run(context.Background(), batches, RunOptions{Mode: tool.ModeNormal, Cores: 1}, keys, w)
	w.Close()

	if results[0].Outcome != Failure {
		t.Fatalf("expected failure for a missing binary, got %v", results[0].Outcome)
	}
	found := false
	for _, ev := range table.Events() {
		if ev.Name == warn.UnknownTool {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an unknown-tool warning, got %v", table.Events())
	}
}

func TestDisplayCommandCdPrefix(t *testing.T) {
	spec := &tool.Spec{Dir: "sub"}
	got := displayCommand(spec, "eslint", []string{"a.js"})
	want := "cd sub && eslint a.js"
	if got != want {
		t.Fatalf("displayCommand() = %q, want %q", got, want)
	}
}

func TestRelativeToDirRewritesPath(t *testing.T) {
	got := relativeToDir("sub/pkg/a.go", "sub")
	if got != "pkg/a.go" {
		t.Fatalf("relativeToDir() = %q, want pkg/a.go", got)
	}
}

package vcsgit

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-q")
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", "a.txt")
	run("commit", "-q", "-m", "initial")
	return dir
}

func TestNewFailsOutsideWorkTree(t *testing.T) {
	dir := t.TempDir()
	if _, err := New(dir); err == nil {
		t.Fatalf("expected New to fail outside a git work tree")
	}
}

func TestNewSucceedsInsideWorkTree(t *testing.T) {
	dir := initRepo(t)
	if _, err := New(dir); err != nil {
		t.Fatalf("New: %v", err)
	}
}

func TestFileMatchesRefTrueWhenUnchanged(t *testing.T) {
	dir := initRepo(t)
	a, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	matched, err := a.FileMatchesRef(context.Background(), "a.txt", "HEAD")
	if err != nil {
		t.Fatalf("FileMatchesRef: %v", err)
	}
	if !matched {
		t.Fatalf("expected working tree to match HEAD before any edit")
	}
}

func TestFileMatchesRefFalseAfterEdit(t *testing.T) {
	dir := initRepo(t)
	a, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	matched, err := a.FileMatchesRef(context.Background(), "a.txt", "HEAD")
	if err != nil {
		t.Fatalf("FileMatchesRef: %v", err)
	}
	if matched {
		t.Fatalf("expected mismatch after editing the working tree copy")
	}
}

func TestBlobAtReturnsCommittedContent(t *testing.T) {
	dir := initRepo(t)
	a, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	blob, err := a.BlobAt(context.Background(), "a.txt", "HEAD")
	if err != nil {
		t.Fatalf("BlobAt: %v", err)
	}
	if string(blob) != "v1" {
		t.Fatalf("expected blob content %q, got %q", "v1", blob)
	}
}

func TestStagedFilesReportsIndex(t *testing.T) {
	dir := initRepo(t)
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	cmd := exec.Command("git", "add", "b.txt")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git add: %v\n%s", err, out)
	}

	a, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	files, err := a.StagedFiles(context.Background())
	if err != nil {
		t.Fatalf("StagedFiles: %v", err)
	}
	if len(files) != 1 || files[0] != "b.txt" {
		t.Fatalf("expected [b.txt] staged, got %v", files)
	}
}

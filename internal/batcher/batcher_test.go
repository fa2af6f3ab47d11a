package batcher

import (
	"testing"

	"lun/internal/fileset"
	"lun/internal/tool"
)

func sizedFile(t *testing.T, dir, name string, size int64) *fileset.File {
	t.Helper()
	path := dir + "/" + name
	if err := writeSized(path, size); err != nil {
		t.Fatalf("writeSized(%s): %v", path, err)
	}
	f, err := fileset.New(name, path)
	if err != nil {
		t.Fatalf("fileset.New(%s): %v", path, err)
	}
	return f
}

func TestLPTBatchBalancesLoad(t *testing.T) {
	dir := t.TempDir()
	sizes := map[string]int64{
		"file1": 100, "file2": 200, "file3": 150,
		"file4": 50, "file5": 300, "file6": 100,
	}
	names := []string{"file1", "file2", "file3", "file4", "file5", "file6"}
	files := make([]*fileset.File, 0, len(names))
	for _, n := range names {
		files = append(files, sizedFile(t, dir, n, sizes[n]))
	}

	spec := &tool.Spec{Name: "lint", Granularity: tool.Individual}
	batches := Plan(spec, files, 2, false)

	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	for _, b := range batches {
		var total int64
		for _, f := range b.Files {
			total += f.Size()
		}
		if total != 450 {
			t.Errorf("batch %v: expected total 450, got %d", pathsOf(b), total)
		}
	}
}

func TestPlanBatchGranularityIsSingleBatch(t *testing.T) {
	dir := t.TempDir()
	files := []*fileset.File{
		sizedFile(t, dir, "a", 10),
		sizedFile(t, dir, "b", 20),
	}
	spec := &tool.Spec{Name: "fmt", Granularity: tool.Batch}
	batches := Plan(spec, files, 4, false)
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch for batch-granularity tool, got %d", len(batches))
	}
	if len(batches[0].Files) != 2 {
		t.Fatalf("expected both files in the single batch, got %d", len(batches[0].Files))
	}
}

func TestPlanNoBatchUnbatches(t *testing.T) {
	dir := t.TempDir()
	files := []*fileset.File{
		sizedFile(t, dir, "a", 10),
		sizedFile(t, dir, "b", 20),
		sizedFile(t, dir, "c", 30),
	}
	spec := &tool.Spec{Name: "lint", Granularity: tool.Individual}
	batches := Plan(spec, files, 2, true)
	if len(batches) != 3 {
		t.Fatalf("expected one batch per file with --no-batch, got %d", len(batches))
	}
}

func TestPlanEmptyFilesReturnsNil(t *testing.T) {
	spec := &tool.Spec{Name: "lint"}
	if batches := Plan(spec, nil, 4, false); batches != nil {
		t.Fatalf("expected nil batches for empty file list, got %v", batches)
	}
}

func TestPlanFewerFilesThanCoresUnbatches(t *testing.T) {
	dir := t.TempDir()
	files := []*fileset.File{
		sizedFile(t, dir, "a", 10),
		sizedFile(t, dir, "b", 20),
	}
	spec := &tool.Spec{Name: "lint", Granularity: tool.Individual}
	batches := Plan(spec, files, 8, false)
	if len(batches) != 2 {
		t.Fatalf("expected one batch per file when files < cores, got %d", len(batches))
	}
}

func pathsOf(b Batch) []string {
	out := make([]string, len(b.Files))
	for i, f := range b.Files {
		out[i] = f.Path
	}
	return out
}

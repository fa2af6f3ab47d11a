// Package batcher partitions a tool's miss list into size-balanced
// batches via LPT (longest-processing-time-first) approximation,
// honoring granularity and --no-batch: sort files by size descending,
// then repeatedly assign the next file to the currently
// smallest-total batch.
package batcher

import (
	"sort"

	"lun/internal/fileset"
	"lun/internal/tool"
)

// Batch is a non-empty, ordered group of files destined for one
// subprocess invocation of a single tool.
type Batch struct {
	Tool  *tool.Spec
	Files []*fileset.File
}

// Plan partitions files (already filtered down to the miss set for t)
// into batches according to t's granularity, cores, and noBatch.
func Plan(t *tool.Spec, files []*fileset.File, cores int, noBatch bool) []Batch {
	if len(files) == 0 {
		return nil
	}
	if cores < 1 {
		cores = 1
	}

	if t.Granularity == tool.Batch {
		return []Batch{{Tool: t, Files: files}}
	}

	if noBatch {
		return unbatch(t, files)
	}
	return lptBatch(t, files, cores)
}

func unbatch(t *tool.Spec, files []*fileset.File) []Batch {
	batches := make([]Batch, 0, len(files))
	for _, f := range files {
		batches = append(batches, Batch{Tool: t, Files: []*fileset.File{f}})
	}
	return batches
}

func lptBatch(t *tool.Spec, files []*fileset.File, cores int) []Batch {
	if len(files) == 1 || len(files) < cores {
		return unbatch(t, files)
	}

	sorted := make([]*fileset.File, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Size() > sorted[j].Size() })

	totals := make([]int64, cores)
	groups := make([][]*fileset.File, cores)
	for _, f := range sorted {
		idx := smallestIndex(totals)
		totals[idx] += f.Size()
		groups[idx] = append(groups[idx], f)
	}

	batches := make([]Batch, 0, cores)
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		sort.Slice(g, func(i, j int) bool { return g[i].Path < g[j].Path })
		batches = append(batches, Batch{Tool: t, Files: g})
	}
	return batches
}

func smallestIndex(totals []int64) int {
	minIdx := 0
	for i, v := range totals {
		if v < totals[minIdx] {
			minIdx = i
		}
	}
	return minIdx
}

// Package vcsdiag renders verbose ref-trust diagnostics: when a file
// was trusted via VCS-ref identity, -v shows which ref it was trusted
// through, summarizing any mismatch between the working tree and the
// ref blob.
package vcsdiag

import (
	"bytes"
	"fmt"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"

	"lun/internal/oracle"
)

// Render formats a human-readable explanation for why each file in
// trusts was skipped. A ref hit implies byte-identical content, so
// under normal operation there is nothing to diff; if the working tree
// and blob disagree anyway (e.g. a mid-run edit racing the VCS query)
// the disagreement is surfaced as a parsed unified diff summary rather
// than silently trusted, since that would indicate an adapter bug.
func Render(trusts []oracle.RefTrust, workingByPath, blobByPath map[string][]byte) string {
	var b strings.Builder
	for _, t := range trusts {
		fmt.Fprintf(&b, "trusted %s via ref %s\n", t.Path, t.Ref)
		working, haveWorking := workingByPath[t.Path]
		blob, haveBlob := blobByPath[t.Path]
		if !haveWorking || !haveBlob || bytes.Equal(working, blob) {
			continue
		}
		summary := diffSummary(t.Path, working, blob)
		if summary != "" {
			b.WriteString(summary)
		}
	}
	return b.String()
}

// diffSummary builds a minimal unified diff (single hunk, whole-file
// replacement) and re-parses it with go-diff to report the hunk range,
// giving a structured line count rather than dumping full file bodies.
func diffSummary(path string, working, blob []byte) string {
	oldLines := strings.Count(string(blob), "\n") + 1
	newLines := strings.Count(string(working), "\n") + 1
	raw := fmt.Sprintf(
		"diff --git a/%s b/%s\n--- a/%s\n+++ b/%s\n@@ -1,%d +1,%d @@\n",
		path, path, path, path, oldLines, newLines,
	)
	fd, err := godiff.ParseFileDiff([]byte(raw))
	if err != nil || len(fd.Hunks) == 0 {
		return fmt.Sprintf("  content mismatch: %d old lines, %d new lines\n", oldLines, newLines)
	}
	h := fd.Hunks[0]
	return fmt.Sprintf("  content mismatch: -%d,+%d (hunk at line %d)\n", h.OrigLines, h.NewLines, h.NewStartLine)
}

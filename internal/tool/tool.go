// Package tool models a configured linter or formatter invocation and
// its mode-to-command selection.
package tool

import (
	"path/filepath"
	"strings"
)

// Kind distinguishes linters (check-only) from formatters (may mutate
// files on disk).
type Kind string

const (
	Linter    Kind = "linter"
	Formatter Kind = "formatter"
)

// Granularity controls how the Batcher may group a tool's matched files
// into subprocess invocations.
type Granularity string

const (
	Individual Granularity = "individual"
	Batch       Granularity = "batch"
)

// Mode is the run mode requested on the CLI, which selects which of a
// tool's command variants is used.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeCheck  Mode = "check"
	ModeFix    Mode = "fix"
)

// Spec is a single configured tool.
type Spec struct {
	// Name is the tool's configured display name, "" if unset;
	// DisplayName falls back to the command template in that case.
	Name string
	Kind Kind

	Cmd   string // primary command template
	Check string // formatter-only: check-mode command
	Fix   string // linter-only: fix-mode command

	Dir         string // working directory, project-relative; "" means project root
	Granularity Granularity

	Include []string // include glob set
	Ignore  []string // ignore glob set

	Configs []string // config-file paths contributing to the cache key, in declared order
}

// DisplayName returns the tool's identity for user-facing output: its
// configured name, or its command template if none was set.
func (s *Spec) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Cmd
}

// EnvPrefix derives the environment-variable name prefix from the
// tool's executable basename: upper-cased, followed by "_". Only the
// first whitespace-delimited token of Cmd is treated as the executable.
func (s *Spec) EnvPrefix() string {
	fields := strings.Fields(s.Cmd)
	if len(fields) == 0 {
		return ""
	}
	base := filepath.Base(fields[0])
	return strings.ToUpper(base) + "_"
}

// CommandFor selects the command template to use for the given mode:
//   - normal: the tool's main Cmd.
//   - check: a formatter's Check if set, else its Cmd; a linter's Cmd.
//   - fix: a linter's Fix if set, else its Cmd; a formatter's Cmd.
func (s *Spec) CommandFor(mode Mode) string {
	switch mode {
	case ModeCheck:
		if s.Kind == Formatter && s.Check != "" {
			return s.Check
		}
	case ModeFix:
		if s.Kind == Linter && s.Fix != "" {
			return s.Fix
		}
	}
	return s.Cmd
}

// IncludedInMode reports whether this tool participates in the given
// mode's tool set: --format restricts to formatters.
func (s *Spec) IncludedInMode(formatOnly bool) bool {
	if formatOnly {
		return s.Kind == Formatter
	}
	return true
}

// Package warn implements an open set of warning names with a
// default-level registry, three severities (allow, warn, deny), and
// deny-forces-exit-1 semantics.
package warn

import "sort"

// Level is a warning's configured severity.
type Level string

const (
	Allow Level = "allow"
	Warn  Level = "warn"
	Deny  Level = "deny"
)

// Name identifies a warning kind. The set is open: names outside the
// registry are still accepted by config/CLI, but reported back through
// the UnknownWarning warning itself.
type Name string

const (
	UnknownTool    Name = "unknown-tool"
	UnlistedConfig Name = "unlisted-config"
	NoFiles        Name = "no-files"
	CacheFull      Name = "cache-full"
	CacheUsage     Name = "cache-usage"
	Mtime          Name = "mtime"
	Refs           Name = "refs"
	Careful        Name = "careful"
	UnknownWarning Name = "unknown-warning"
)

// defaultLevels is the registry of known warnings and their default
// severities absent any -A/-W/-D override.
var defaultLevels = map[Name]Level{
	UnknownTool:    Warn,
	UnlistedConfig: Warn,
	NoFiles:        Warn,
	CacheFull:      Warn,
	CacheUsage:     Allow,
	Mtime:          Warn,
	Refs:           Warn,
	Careful:        Allow,
	UnknownWarning: Warn,
}

// IsKnown reports whether name is in the default registry.
func IsKnown(name Name) bool {
	_, ok := defaultLevels[name]
	return ok
}

// KnownNames returns the registry's names in stable, sorted order.
func KnownNames() []Name {
	names := make([]Name, 0, len(defaultLevels))
	for n := range defaultLevels {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Emitted is one warning instance produced during a run.
type Emitted struct {
	Name    Name
	Level   Level
	Message string
}

// Table resolves the effective level for each warning name, applying
// -A (allow) / -W (warn) / -D (deny) overrides on top of the defaults.
type Table struct {
	levels map[Name]Level
	events []Emitted
}

// NewTable builds a Table from the config's allow/warn/deny arrays,
// applied in that order: for a name listed in more than one array,
// deny overrides warn and warn overrides allow, whatever order the
// flags appeared in on the command line.
func NewTable(allow, warnNames, deny []string) *Table {
	t := &Table{levels: make(map[Name]Level, len(defaultLevels))}
	for name, level := range defaultLevels {
		t.levels[name] = level
	}
	apply := func(names []string, level Level) {
		for _, raw := range names {
			name := Name(raw)
			if !IsKnown(name) {
				t.events = append(t.events, Emitted{Name: UnknownWarning, Level: t.levels[UnknownWarning], Message: raw + ": not a recognized warning name"})
				continue
			}
			t.levels[name] = level
		}
	}
	apply(allow, Allow)
	apply(warnNames, Warn)
	apply(deny, Deny)
	return t
}

// Level returns the effective level for name, treating an unregistered
// name as itself triggering UnknownWarning (recorded lazily by Emit).
func (t *Table) Level(name Name) Level {
	if level, ok := t.levels[name]; ok {
		return level
	}
	return Warn
}

// Emit records a warning occurrence at its configured level. Allow-level
// warnings are dropped: not recorded, never surfaced, and not considered
// for exit-status purposes; Deny-level warnings force a non-zero exit even if every
// subprocess succeeded.
func (t *Table) Emit(name Name, message string) {
	level := t.Level(name)
	if !IsKnown(name) {
		unknownLevel := t.Level(UnknownWarning)
		t.events = append(t.events, Emitted{Name: UnknownWarning, Level: unknownLevel, Message: string(name) + ": " + message})
		return
	}
	if level == Allow {
		return
	}
	t.events = append(t.events, Emitted{Name: name, Level: level, Message: message})
}

// Events returns every non-Allow warning emitted so far, in emission order.
func (t *Table) Events() []Emitted {
	return t.events
}

// HasDeny reports whether any deny-level warning was emitted.
func (t *Table) HasDeny() bool {
	for _, e := range t.events {
		if e.Level == Deny {
			return true
		}
	}
	return false
}

// Package corecfg is the ambient configuration collaborator referenced
// by spec.md §6: a read-only map of {string → string|[]string} bound
// once at taskscheduler init time, for taskThreads, taskNoAffinities,
// taskNoBackgroundScheduler and taskBackgroundThreads. Deliberately
// thin — config I/O and the full config store (configSystem.cpp /
// configEntry.cpp in original_source/) are out of scope per spec §1 —
// this only models the collaborator interface the scheduler consumes,
// as a plain lookup interface with Int/Bool helpers rather than the
// teacher's functional-option idiom (eventloop/options.go).
package corecfg

import "strconv"

// CommandLine is the read-only lookup the core consumes. A real
// process would implement it over os.Args/flag or a config file; the
// core never parses flags itself.
type CommandLine interface {
	// Lookup returns the raw value(s) bound to key and whether key was
	// present at all.
	Lookup(key string) (values []string, ok bool)
}

// Map is a CommandLine backed by a plain map, for tests and simple
// callers.
type Map map[string][]string

func (m Map) Lookup(key string) ([]string, bool) {
	v, ok := m[key]
	return v, ok
}

// Int reads key as a single integer, returning def if absent or
// unparsable.
func Int(cl CommandLine, key string, def int) int {
	values, ok := cl.Lookup(key)
	if !ok || len(values) == 0 {
		return def
	}
	n, err := strconv.Atoi(values[0])
	if err != nil {
		return def
	}
	return n
}

// Bool reads key as a single boolean flag, returning def if absent or
// unparsable. A bare presence with no value (empty slice) is true,
// matching common CLI bool-flag behavior.
func Bool(cl CommandLine, key string, def bool) bool {
	values, ok := cl.Lookup(key)
	if !ok {
		return def
	}
	if len(values) == 0 {
		return true
	}
	b, err := strconv.ParseBool(values[0])
	if err != nil {
		return def
	}
	return b
}

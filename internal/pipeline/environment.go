package pipeline

import (
	"os"
	"sort"
	"sync"
)

// Environment is a lexically scoped mapping of variable names to values.
// A child frame overlays its parent: lookups walk the chain outward,
// writes always land in the local frame and never mutate an ancestor.
// Concurrent parallel branches therefore each get an independent overlay
// of the shared ancestor and cannot race on it.
type Environment struct {
	parent *Environment
	values map[string]string
	mu     sync.RWMutex
}

// NewEnvironment creates a root environment frame with the given values.
func NewEnvironment(values map[string]string) *Environment {
	env := &Environment{values: make(map[string]string, len(values))}
	for k, v := range values {
		env.values[k] = v
	}
	return env
}

// Overlay creates a child frame with the given local entries. The child
// shadows the parent on name collisions; the parent is never modified.
func (e *Environment) Overlay(values map[string]string) *Environment {
	child := &Environment{
		parent: e,
		values: make(map[string]string, len(values)),
	}
	for k, v := range values {
		child.values[k] = v
	}
	return child
}

// Lookup returns the value for name, walking the scope chain outward.
func (e *Environment) Lookup(name string) (string, bool) {
	for frame := e; frame != nil; frame = frame.parent {
		frame.mu.RLock()
		value, ok := frame.values[name]
		frame.mu.RUnlock()
		if ok {
			return value, true
		}
	}
	return "", false
}

// Get returns the value for name or the empty string when unset.
func (e *Environment) Get(name string) string {
	value, _ := e.Lookup(name)
	return value
}

// Set writes a value into the local frame, shadowing any ancestor entry.
func (e *Environment) Set(name, value string) {
	e.mu.Lock()
	e.values[name] = value
	e.mu.Unlock()
}

// SetAll writes multiple values into the local frame.
func (e *Environment) SetAll(values map[string]string) {
	e.mu.Lock()
	for k, v := range values {
		e.values[k] = v
	}
	e.mu.Unlock()
}

// Expand substitutes ${name} and $name references in s using this scope.
// Unset variables expand to the empty string.
func (e *Environment) Expand(s string) string {
	return os.Expand(s, e.Get)
}

// Snapshot returns the effective mapping visible from this frame, with
// inner frames shadowing outer ones.
func (e *Environment) Snapshot() map[string]string {
	// Walk root-first so inner frames overwrite outer values.
	var frames []*Environment
	for frame := e; frame != nil; frame = frame.parent {
		frames = append(frames, frame)
	}

	merged := make(map[string]string)
	for i := len(frames) - 1; i >= 0; i-- {
		frames[i].mu.RLock()
		for k, v := range frames[i].values {
			merged[k] = v
		}
		frames[i].mu.RUnlock()
	}
	return merged
}

// Flatten returns the effective mapping as sorted KEY=VALUE pairs suitable
// for a process environment.
func (e *Environment) Flatten() []string {
	merged := e.Snapshot()
	pairs := make([]string, 0, len(merged))
	for k, v := range merged {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return pairs
}

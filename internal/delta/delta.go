// Package delta defines the domain event record every plugin reads and
// emits, and the segment-glob pattern matching used to route it (spec §4.H,
// GLOSSARY).
package delta

import "encoding/json"

// PathValue is one {path, value} pair inside an update.
type PathValue struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// Update is one source's contribution to a Delta.
type Update struct {
	Source    string      `json:"source,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
	Values    []PathValue `json:"values,omitempty"`
	Meta      []PathValue `json:"meta,omitempty"`
}

// Delta is the fundamental event record: a timestamped set of updates
// scoped to a context.
type Delta struct {
	Context string   `json:"context"`
	Updates []Update `json:"updates"`
}

// selfContext is the canonical internal form of the "vessels.self" alias.
const selfContext = "vessels.self"

// Canonicalize normalizes the root context alias so pattern matching never
// has to special-case "self" vs. a vessel's real MMSI-based context.
func Canonicalize(context string) string {
	if context == "self" || context == "" {
		return selfContext
	}
	return context
}

// MatchPattern reports whether value matches a segment-glob pattern where
// "*" matches exactly one dotted segment. Patterns and values are compared
// segment-by-segment; differing segment counts never match.
func MatchPattern(pattern, value string) bool {
	pSegs := splitSegments(pattern)
	vSegs := splitSegments(value)
	if len(pSegs) != len(vSegs) {
		return false
	}
	for i, p := range pSegs {
		if p != "*" && p != vSegs[i] {
			return false
		}
	}
	return true
}

func splitSegments(s string) []string {
	if s == "" {
		return nil
	}
	var segs []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			segs = append(segs, s[start:i])
			start = i + 1
		}
	}
	segs = append(segs, s[start:])
	return segs
}

// Subscription is a plugin's request to be notified of deltas whose
// context and at least one path match the given glob patterns.
type Subscription struct {
	PluginID      string
	ContextGlob   string
	PathGlob      string
}

// Matches reports whether d has at least one value/meta path matching the
// subscription's context and path globs.
func (sub Subscription) Matches(d Delta) bool {
	if !MatchPattern(sub.ContextGlob, Canonicalize(d.Context)) {
		return false
	}
	for _, u := range d.Updates {
		for _, pv := range u.Values {
			if MatchPattern(sub.PathGlob, pv.Path) {
				return true
			}
		}
		for _, pv := range u.Meta {
			if MatchPattern(sub.PathGlob, pv.Path) {
				return true
			}
		}
	}
	return false
}

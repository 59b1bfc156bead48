package store

import (
	"fmt"
	"sort"
	"strings"
)

// Hunk is one contiguous diff region within a single file, anchored at an
// exact line position in the "before" content. Hunks are never re-located by
// context search: they only apply against the tree they were computed from.
type Hunk struct {
	Path  string   `json:"path"`
	Start int      `json:"start"` // 0-based line index in the before file
	Old   []string `json:"old"`   // lines replaced (with trailing newlines)
	New   []string `json:"new"`   // replacement lines
}

// FileHunks computes the hunks turning before into after.
func FileHunks(path string, before, after []byte) []Hunk {
	baseLines := splitLines(string(before))
	chunks := editChunks(string(before), string(after))
	hunks := make([]Hunk, 0, len(chunks))
	for _, c := range chunks {
		old := make([]string, c.end-c.start)
		copy(old, baseLines[c.start:c.end])
		hunks = append(hunks, Hunk{Path: path, Start: c.start, Old: old, New: c.repl})
	}
	return hunks
}

// ApplyHunk replaces the hunk's old lines in before, verifying that the
// content at the anchor matches exactly.
func ApplyHunk(before []byte, h Hunk) ([]byte, error) {
	lines := splitLines(string(before))
	if h.Start < 0 || h.Start+len(h.Old) > len(lines) {
		return nil, fmt.Errorf("hunk at line %d out of range for %q", h.Start, h.Path)
	}
	for i, old := range h.Old {
		if lines[h.Start+i] != old {
			return nil, fmt.Errorf("hunk at line %d does not match %q", h.Start, h.Path)
		}
	}
	var out []string
	out = append(out, lines[:h.Start]...)
	out = append(out, h.New...)
	out = append(out, lines[h.Start+len(h.Old):]...)
	return []byte(strings.Join(out, "")), nil
}

// DiffPaths returns the sorted set of paths whose content differs between
// the two trees.
func DiffPaths(before, after *Tree) []string {
	seen := make(map[string]struct{})
	for p, h := range before.entries {
		if other, ok := after.entries[p]; !ok || other != h {
			seen[p] = struct{}{}
		}
	}
	for p := range after.entries {
		if _, ok := before.entries[p]; !ok {
			seen[p] = struct{}{}
		}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

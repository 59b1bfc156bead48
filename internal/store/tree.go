package store

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
)

// Tree is an immutable snapshot of the file hierarchy: a content-addressed
// mapping from repo-relative path to blob hash. Paths carrying unresolved
// conflict markers are tracked separately so commits can surface them.
type Tree struct {
	store     *Store
	entries   map[string]plumbing.Hash
	conflicts map[string]struct{}
	id        plumbing.Hash
}

func newTree(s *Store, entries map[string]plumbing.Hash, conflicts map[string]struct{}) *Tree {
	t := &Tree{store: s, entries: entries, conflicts: conflicts}
	t.id = t.computeID()
	return t
}

func (t *Tree) computeID() plumbing.Hash {
	paths := t.Paths()
	var buf bytes.Buffer
	for _, p := range paths {
		flag := byte(0)
		if _, ok := t.conflicts[p]; ok {
			flag = 1
		}
		fmt.Fprintf(&buf, "%s\x00%s%c", p, t.entries[p].String(), flag)
	}
	return plumbing.ComputeHash(plumbing.TreeObject, buf.Bytes())
}

// ID is the content hash of the tree. Two trees with the same files, content
// and conflict set have the same ID.
func (t *Tree) ID() plumbing.Hash { return t.id }

// Equal reports whether both trees have identical content.
func (t *Tree) Equal(other *Tree) bool { return t.id == other.id }

// Len returns the number of files.
func (t *Tree) Len() int { return len(t.entries) }

// Paths returns every file path in sorted order.
func (t *Tree) Paths() []string {
	paths := make([]string, 0, len(t.entries))
	for p := range t.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Lookup returns the blob hash at path, or false if absent.
func (t *Tree) Lookup(path string) (plumbing.Hash, bool) {
	h, ok := t.entries[path]
	return h, ok
}

// ReadFile returns the file content at path.
func (t *Tree) ReadFile(path string) ([]byte, error) {
	h, ok := t.entries[path]
	if !ok {
		return nil, fmt.Errorf("path %q not in tree", path)
	}
	return t.store.ReadBlob(h)
}

// HasConflicts reports whether any path carries unresolved conflict markers.
func (t *Tree) HasConflicts() bool { return len(t.conflicts) > 0 }

// ConflictPaths returns the conflicted paths in sorted order.
func (t *Tree) ConflictPaths() []string {
	paths := make([]string, 0, len(t.conflicts))
	for p := range t.conflicts {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (t *Tree) clone() (map[string]plumbing.Hash, map[string]struct{}) {
	entries := make(map[string]plumbing.Hash, len(t.entries))
	for p, h := range t.entries {
		entries[p] = h
	}
	var conflicts map[string]struct{}
	if len(t.conflicts) > 0 {
		conflicts = make(map[string]struct{}, len(t.conflicts))
		for p := range t.conflicts {
			conflicts[p] = struct{}{}
		}
	}
	return entries, conflicts
}

// With returns a copy of the tree with content written at path.
func (t *Tree) With(path string, content []byte) (*Tree, error) {
	h, err := t.store.WriteBlob(content)
	if err != nil {
		return nil, err
	}
	entries, conflicts := t.clone()
	entries[path] = h
	if conflicts != nil {
		delete(conflicts, path)
	}
	return newTree(t.store, entries, conflicts), nil
}

// Without returns a copy of the tree with path removed.
func (t *Tree) Without(path string) *Tree {
	entries, conflicts := t.clone()
	delete(entries, path)
	if conflicts != nil {
		delete(conflicts, path)
	}
	return newTree(t.store, entries, conflicts)
}

// Merge performs the three-way merge primitive: it projects the base->other
// diff onto the receiver. Per-path decision table:
//
//	target == other                  -> keep target
//	base == target, base != other    -> take other (add/modify/delete)
//	base == other, base != target    -> keep target
//	otherwise                        -> line-level merge; unresolved regions
//	                                    get conflict markers and the path is
//	                                    recorded as conflicted
func (t *Tree) Merge(base, other *Tree) (*Tree, error) {
	union := make(map[string]struct{}, len(t.entries)+len(base.entries)+len(other.entries))
	for p := range t.entries {
		union[p] = struct{}{}
	}
	for p := range base.entries {
		union[p] = struct{}{}
	}
	for p := range other.entries {
		union[p] = struct{}{}
	}

	entries := make(map[string]plumbing.Hash)
	conflicts := make(map[string]struct{})

	keep := func(path string, from *Tree) {
		if h, ok := from.entries[path]; ok {
			entries[path] = h
			if _, c := from.conflicts[path]; c {
				conflicts[path] = struct{}{}
			}
		}
	}

	for path := range union {
		baseH := base.entries[path]
		targetH := t.entries[path]
		otherH := other.entries[path]

		switch {
		case targetH == otherH:
			keep(path, t)
		case baseH == targetH:
			keep(path, other)
		case baseH == otherH:
			keep(path, t)
		default:
			merged, clean, err := t.mergeFile(path, base, other)
			if err != nil {
				return nil, err
			}
			h, err := t.store.WriteBlob(merged)
			if err != nil {
				return nil, err
			}
			entries[path] = h
			if !clean {
				conflicts[path] = struct{}{}
			}
		}
	}

	if len(conflicts) == 0 {
		conflicts = nil
	}
	return newTree(t.store, entries, conflicts), nil
}

// mergeFile merges one both-modified path; absent sides merge as empty
// content, which yields delete/modify conflicts when the other side changed.
func (t *Tree) mergeFile(path string, base, other *Tree) ([]byte, bool, error) {
	read := func(tr *Tree) (string, error) {
		if _, ok := tr.entries[path]; !ok {
			return "", nil
		}
		content, err := tr.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(content), nil
	}
	baseC, err := read(base)
	if err != nil {
		return nil, false, err
	}
	targetC, err := read(t)
	if err != nil {
		return nil, false, err
	}
	otherC, err := read(other)
	if err != nil {
		return nil, false, err
	}
	merged, clean := mergeLines(baseC, targetC, otherC)
	return []byte(merged), clean, nil
}

package engine

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutLinearChainStaysInColumnZero(t *testing.T) {
	s, r := newTestSession(t)
	parent := r.Root().ID
	for i := 0; i < 4; i++ {
		c := addCommit(t, r, []plumbing.Hash{parent}, map[string][]byte{"f": {byte('a' + i)}}, "step")
		parent = c.ID
	}

	rows := collectPages(t, s, "::"+parent.String())
	require.Len(t, rows, 5)
	for _, row := range rows {
		assert.Equal(t, 0, row.Column)
	}
}

func TestLayoutBranchAndMerge(t *testing.T) {
	s, r := newTestSession(t)
	a := addCommit(t, r, []plumbing.Hash{r.Root().ID}, map[string][]byte{"a": []byte("1")}, "a")
	b := addCommit(t, r, []plumbing.Hash{r.Root().ID}, map[string][]byte{"b": []byte("2")}, "b")
	m := addCommit(t, r, []plumbing.Hash{a.ID, b.ID}, map[string][]byte{"a": []byte("1"), "b": []byte("2")}, "merge")

	rows := collectPages(t, s, "all()")
	require.Len(t, rows, 5)

	cols := make(map[string]int)
	for _, row := range rows {
		cols[row.Header.ID.Commit] = row.Column
	}
	// The merge row and its first-parent chain share a column; the second
	// parent branches out; fan-in collapses at the root.
	assert.Equal(t, 0, cols[m.ID.String()])
	assert.Equal(t, 0, cols[a.ID.String()])
	assert.Equal(t, 1, cols[b.ID.String()])
	assert.Equal(t, 0, cols[r.Root().ID.String()])
}

func TestLayoutDeterministicAcrossRuns(t *testing.T) {
	s, r := newTestSession(t)
	a := addCommit(t, r, []plumbing.Hash{r.Root().ID}, map[string][]byte{"a": []byte("1")}, "a")
	addCommit(t, r, []plumbing.Hash{r.Root().ID}, map[string][]byte{"b": []byte("2")}, "b")
	addCommit(t, r, []plumbing.Hash{a.ID}, map[string][]byte{"c": []byte("3")}, "c")

	first := collectPages(t, s, "all()")
	second := collectPages(t, s, "all()")
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Header.ID.Commit, second[i].Header.ID.Commit)
		assert.Equal(t, first[i].Column, second[i].Column)
	}
}

func TestLayoutEmitReusesFreedColumns(t *testing.T) {
	l := newLayoutState()
	h := func(b byte) plumbing.Hash {
		var x plumbing.Hash
		x[0] = b
		return x
	}

	// Two independent heads, then their shared parent.
	assert.Equal(t, 0, l.emit(h(1), []plumbing.Hash{h(3)}))
	assert.Equal(t, 1, l.emit(h(2), []plumbing.Hash{h(3)}))
	// Both stems wait for h(3); it lands in the leftmost and frees the rest.
	assert.Equal(t, 0, l.emit(h(3), nil))
	// Everything is free again.
	assert.Equal(t, 0, l.emit(h(4), nil))
}

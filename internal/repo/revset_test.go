package repo

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func changeIDs(commits []*Commit) []ChangeID {
	out := make([]ChangeID, len(commits))
	for i, c := range commits {
		out[i] = c.Change
	}
	return out
}

func TestEvalRevsetAll(t *testing.T) {
	r := New(testAuthor())
	a := addCommit(t, r, []plumbing.Hash{r.Root().ID}, map[string][]byte{"a": []byte("1")}, "a")
	b := addCommit(t, r, []plumbing.Hash{a.ID}, map[string][]byte{"a": []byte("1"), "b": []byte("2")}, "b")

	commits, err := r.EvalRevset("all()")
	require.NoError(t, err)
	// root, the working copy, a and b.
	require.Len(t, commits, 4)

	// Topological: every commit precedes its parents; the root comes last.
	pos := make(map[ChangeID]int)
	for i, c := range commits {
		pos[c.Change] = i
	}
	assert.Less(t, pos[b.Change], pos[a.Change])
	assert.Equal(t, len(commits)-1, pos[RootChangeID])
}

func TestEvalRevsetAncestorsAndDescendants(t *testing.T) {
	r := New(testAuthor())
	a := addCommit(t, r, []plumbing.Hash{r.Root().ID}, map[string][]byte{"a": []byte("1")}, "a")
	b := addCommit(t, r, []plumbing.Hash{a.ID}, map[string][]byte{"b": []byte("2")}, "b")
	c := addCommit(t, r, []plumbing.Hash{b.ID}, map[string][]byte{"c": []byte("3")}, "c")

	anc, err := r.EvalRevset("::" + string(b.Change))
	require.NoError(t, err)
	assert.Equal(t, []ChangeID{b.Change, a.Change, RootChangeID}, changeIDs(anc))

	desc, err := r.EvalRevset(string(b.Change) + "::")
	require.NoError(t, err)
	assert.Equal(t, []ChangeID{c.Change, b.Change}, changeIDs(desc))

	rng, err := r.EvalRevset(string(a.Change) + "::" + string(c.Change))
	require.NoError(t, err)
	assert.Equal(t, []ChangeID{c.Change, b.Change, a.Change}, changeIDs(rng))
}

func TestEvalRevsetUnionAndFunctions(t *testing.T) {
	r := New(testAuthor())
	a := addCommit(t, r, []plumbing.Hash{r.Root().ID}, map[string][]byte{"a": []byte("1")}, "a")
	b := addCommit(t, r, []plumbing.Hash{a.ID}, map[string][]byte{"b": []byte("2")}, "b")
	r.Refs().SetLocal("main", a.ID)
	r.Refs().SetTag("v1", b.ID)

	got, err := r.EvalRevset("root() | @")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, RootChangeID, got[1].Change)

	got, err = r.EvalRevset("bookmarks()")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)

	got, err = r.EvalRevset("tags()")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)

	got, err = r.EvalRevset("none()")
	require.NoError(t, err)
	assert.Empty(t, got)

	// The default immutability boundary shape.
	got, err = r.EvalRevset("::bookmarks() | tags()")
	require.NoError(t, err)
	assert.Equal(t, []ChangeID{b.Change, a.Change, RootChangeID}, changeIDs(got))
}

func TestEvalRevsetErrors(t *testing.T) {
	r := New(testAuthor())
	for _, expr := range []string{"", "::", "nonsense()", "deadbeef"} {
		_, err := r.EvalRevset(expr)
		assert.Error(t, err, "expr %q", expr)
	}
}

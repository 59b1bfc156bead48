package repo

import (
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurobon/revgraph/internal/store"
)

func testAuthor() object.Signature {
	return object.Signature{
		Name:  "test",
		Email: "test@example.com",
		When:  time.Unix(1700000000, 0),
	}
}

func mustTree(t *testing.T, r *Repo, files map[string][]byte) *store.Tree {
	t.Helper()
	tree, err := r.Store().BuildTree(files)
	require.NoError(t, err)
	return tree
}

// addCommit writes one commit through its own transaction.
func addCommit(t *testing.T, r *Repo, parents []plumbing.Hash, files map[string][]byte, desc string) *Commit {
	t.Helper()
	tx := r.Begin()
	c := tx.WriteCommit(NewChangeID(), parents, mustTree(t, r, files), desc, testAuthor())
	changed, err := tx.Commit()
	require.NoError(t, err)
	require.True(t, changed)
	final, ok := tx.Result(c.ID)
	require.True(t, ok)
	return final
}

func readFile(t *testing.T, c *Commit, path string) string {
	t.Helper()
	content, err := c.Tree.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func TestRewriteCascadesToDescendants(t *testing.T) {
	r := New(testAuthor())
	a := addCommit(t, r, []plumbing.Hash{r.Root().ID}, map[string][]byte{"a.txt": []byte("a\n")}, "add a")
	b := addCommit(t, r, []plumbing.Hash{a.ID}, map[string][]byte{"a.txt": []byte("a\n"), "b.txt": []byte("b\n")}, "add b")
	r.Refs().SetLocal("feature", b.ID)

	tx := r.Begin()
	tx.Rewrite(a, a.Parents, a.Tree, "add a, reworded")
	changed, err := tx.Commit()
	require.NoError(t, err)
	require.True(t, changed)

	a2, err := r.Resolve(string(a.Change))
	require.NoError(t, err)
	assert.Equal(t, "add a, reworded", a2.Description)
	assert.NotEqual(t, a.ID, a2.ID)
	assert.False(t, r.IsLive(a.ID))

	// b was rebased onto the rewrite, content intact.
	b2, err := r.Resolve(string(b.Change))
	require.NoError(t, err)
	assert.Equal(t, []plumbing.Hash{a2.ID}, b2.Parents)
	assert.Equal(t, "b\n", readFile(t, b2, "b.txt"))

	// The bookmark followed the rewritten line.
	bm, ok := r.Refs().Local("feature")
	require.True(t, ok)
	assert.Equal(t, b2.ID, bm.Target)

	// Obsolescence chain resolves to the live successors.
	succ, ok := r.Successor(b.ID)
	require.True(t, ok)
	assert.Equal(t, b2.ID, succ.ID)
}

func TestAbandonReparentsChildrenWithoutItsDiff(t *testing.T) {
	r := New(testAuthor())
	a := addCommit(t, r, []plumbing.Hash{r.Root().ID}, map[string][]byte{"a.txt": []byte("a\n")}, "a")
	b := addCommit(t, r, []plumbing.Hash{a.ID}, map[string][]byte{"a.txt": []byte("a\n"), "b.txt": []byte("b\n")}, "b")
	c := addCommit(t, r, []plumbing.Hash{b.ID}, map[string][]byte{"a.txt": []byte("a\n"), "b.txt": []byte("b\n"), "c.txt": []byte("c\n")}, "c")
	r.Refs().SetLocal("feature", b.ID)

	tx := r.Begin()
	tx.Abandon(b)
	changed, err := tx.Commit()
	require.NoError(t, err)
	require.True(t, changed)

	_, err = r.Resolve(string(b.Change))
	assert.Error(t, err)

	// c keeps its own change but loses b's.
	c2, err := r.Resolve(string(c.Change))
	require.NoError(t, err)
	assert.Equal(t, []plumbing.Hash{a.ID}, c2.Parents)
	assert.Equal(t, "c\n", readFile(t, c2, "c.txt"))
	_, ok := c2.Tree.Lookup("b.txt")
	assert.False(t, ok)

	// Refs on an abandoned commit fall back to its surviving parent.
	bm, ok := r.Refs().Local("feature")
	require.True(t, ok)
	assert.Equal(t, a.ID, bm.Target)
}

func TestIdenticalRewriteIsUnchanged(t *testing.T) {
	r := New(testAuthor())
	a := addCommit(t, r, []plumbing.Hash{r.Root().ID}, map[string][]byte{"a.txt": []byte("a\n")}, "a")
	epoch := r.Epoch()

	tx := r.Begin()
	got := tx.Rewrite(a, a.Parents, a.Tree, a.Description)
	assert.Equal(t, a.ID, got.ID)
	changed, err := tx.Commit()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, epoch, r.Epoch())
}

func TestRebaseReappliesDiffOntoNewParent(t *testing.T) {
	r := New(testAuthor())
	base := map[string][]byte{"f.txt": []byte("1\n2\n3\n")}
	a := addCommit(t, r, []plumbing.Hash{r.Root().ID}, base, "base")
	child := addCommit(t, r, []plumbing.Hash{a.ID}, map[string][]byte{"f.txt": []byte("1\n2\n3\nfour\n")}, "append four")
	other := addCommit(t, r, []plumbing.Hash{a.ID}, map[string][]byte{"f.txt": []byte("zero\n1\n2\n3\n")}, "prepend zero")

	tx := r.Begin()
	moved, err := tx.Rebase(child, []plumbing.Hash{other.ID})
	require.NoError(t, err)
	changed, err := tx.Commit()
	require.NoError(t, err)
	require.True(t, changed)

	final, ok := tx.Result(moved.ID)
	require.True(t, ok)
	assert.Equal(t, []plumbing.Hash{other.ID}, final.Parents)
	assert.Equal(t, "zero\n1\n2\n3\nfour\n", readFile(t, final, "f.txt"))
	assert.False(t, final.HasConflict())
}

func TestTransformTreeRunsAfterCascade(t *testing.T) {
	// Rewriting a and transforming its descendant b in one transaction:
	// b's transform must see b's already-rebased tree.
	r := New(testAuthor())
	a := addCommit(t, r, []plumbing.Hash{r.Root().ID}, map[string][]byte{"a.txt": []byte("a\n")}, "a")
	b := addCommit(t, r, []plumbing.Hash{a.ID}, map[string][]byte{"a.txt": []byte("a\n"), "b.txt": []byte("b\n")}, "b")

	tx := r.Begin()
	newATree := mustTree(t, r, map[string][]byte{"a.txt": []byte("a2\n")})
	tx.Rewrite(a, a.Parents, newATree, a.Description)
	tx.TransformTree(b, func(tree *store.Tree) (*store.Tree, error) {
		return tree.With("extra.txt", []byte("x\n"))
	})
	changed, err := tx.Commit()
	require.NoError(t, err)
	require.True(t, changed)

	b2, err := r.Resolve(string(b.Change))
	require.NoError(t, err)
	assert.Equal(t, "a2\n", readFile(t, b2, "a.txt"))
	assert.Equal(t, "b\n", readFile(t, b2, "b.txt"))
	assert.Equal(t, "x\n", readFile(t, b2, "extra.txt"))
}

func TestWorkingCopyFollowsRewrite(t *testing.T) {
	r := New(testAuthor())
	wc := r.WorkingCopy()

	tx := r.Begin()
	tx.Rewrite(wc, wc.Parents, mustTree(t, r, map[string][]byte{"f.txt": []byte("work\n")}), wc.Description)
	changed, err := tx.Commit()
	require.NoError(t, err)
	require.True(t, changed)

	got := r.WorkingCopy()
	assert.Equal(t, wc.Change, got.Change)
	assert.NotEqual(t, wc.ID, got.ID)
	assert.Equal(t, "work\n", readFile(t, got, "f.txt"))
}

func TestResolveDivergentChange(t *testing.T) {
	r := New(testAuthor())
	change := NewChangeID()
	tx := r.Begin()
	tx.WriteCommit(change, []plumbing.Hash{r.Root().ID}, mustTree(t, r, map[string][]byte{"a": []byte("1")}), "one", testAuthor())
	tx.WriteCommit(change, []plumbing.Hash{r.Root().ID}, mustTree(t, r, map[string][]byte{"a": []byte("2")}), "two", testAuthor())
	_, err := tx.Commit()
	require.NoError(t, err)

	// Single-target resolution refuses a divergent change id.
	_, err = r.Resolve(string(change))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "divergent")

	// Multi-target resolution selects every visible commit.
	all, err := r.ResolveAll(string(change))
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestResolveByCommitIDPrefix(t *testing.T) {
	r := New(testAuthor())
	a := addCommit(t, r, []plumbing.Hash{r.Root().ID}, map[string][]byte{"a": []byte("1")}, "a")

	got, err := r.Resolve(a.ID.String()[:8])
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = r.Resolve("ffffffff")
	assert.Error(t, err)
}

// A commit created on an already-settled parent rebuilds to itself. Result
// must still terminate and hand back the live commit rather than walking a
// self-referential successor entry.
func TestResultTerminatesForUnchangedCreatedCommit(t *testing.T) {
	r := New(testAuthor())
	tx := r.Begin()
	c := tx.WriteCommit(NewChangeID(), []plumbing.Hash{r.Root().ID},
		mustTree(t, r, map[string][]byte{"a.txt": []byte("a\n")}), "add a", testAuthor())
	changed, err := tx.Commit()
	require.NoError(t, err)
	require.True(t, changed)

	type res struct {
		c  *Commit
		ok bool
	}
	got := make(chan res, 1)
	go func() {
		final, ok := tx.Result(c.ID)
		got <- res{c: final, ok: ok}
	}()
	select {
	case r := <-got:
		require.True(t, r.ok)
		assert.Equal(t, c.ID, r.c.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("Result did not terminate for an unchanged created commit")
	}
}

package engine

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectPages(t *testing.T, s *Session, revset string) []LogRow {
	t.Helper()
	page, err := s.QueryLog(revset)
	require.NoError(t, err)
	rows := append([]LogRow(nil), page.Rows...)
	for page.HasMore {
		page, err = s.QueryLogNextPage()
		require.NoError(t, err)
		rows = append(rows, page.Rows...)
	}
	return rows
}

func TestQueryLogPaginatesCompletely(t *testing.T) {
	s, r := newTestSession(t)
	s.cfg.PageSize = 3
	parent := r.Root().ID
	for i := 0; i < 5; i++ {
		c := addCommit(t, r, []plumbing.Hash{parent}, map[string][]byte{"f": {byte('a' + i)}}, "step")
		parent = c.ID
	}

	page, err := s.QueryLog("all()")
	require.NoError(t, err)
	assert.Equal(t, StateQuery, s.State())
	assert.Len(t, page.Rows, 3)
	assert.True(t, page.HasMore)

	rows := collectPages(t, s, "all()")
	// 5 steps + root + working copy, no duplicates.
	require.Len(t, rows, 7)
	seen := make(map[string]struct{})
	for _, row := range rows {
		_, dup := seen[row.Header.ID.Commit]
		assert.False(t, dup)
		seen[row.Header.ID.Commit] = struct{}{}
	}
}

func TestQueryLogRowsAreNewestFirst(t *testing.T) {
	s, r := newTestSession(t)
	a := addCommit(t, r, []plumbing.Hash{r.Root().ID}, map[string][]byte{"a": []byte("1")}, "a")
	b := addCommit(t, r, []plumbing.Hash{a.ID}, map[string][]byte{"b": []byte("2")}, "b")

	rows := collectPages(t, s, "::"+b.ID.String())
	require.Len(t, rows, 3)
	assert.Equal(t, b.ID.String(), rows[0].Header.ID.Commit)
	assert.Equal(t, a.ID.String(), rows[1].Header.ID.Commit)
	assert.Equal(t, r.Root().ID.String(), rows[2].Header.ID.Commit)
	// The root row has no outgoing edges.
	assert.Empty(t, rows[2].Edges)
}

func TestQueryLogEdgeKinds(t *testing.T) {
	s, r := newTestSession(t)
	a := addCommit(t, r, []plumbing.Hash{r.Root().ID}, map[string][]byte{"a": []byte("1")}, "a")
	b := addCommit(t, r, []plumbing.Hash{a.ID}, map[string][]byte{"b": []byte("2")}, "b")
	c := addCommit(t, r, []plumbing.Hash{b.ID}, map[string][]byte{"c": []byte("3")}, "c")

	// b is elided: c's edge resolves to a as indirect.
	rows := collectPages(t, s, c.ID.String()+" | "+a.ID.String())
	require.Len(t, rows, 2)
	require.Len(t, rows[0].Edges, 1)
	assert.Equal(t, EdgeIndirect, rows[0].Edges[0].Kind)
	assert.Equal(t, a.ID.String(), rows[0].Edges[0].Target.Commit)

	// Direct parent inside the set.
	rows = collectPages(t, s, b.ID.String()+" | "+a.ID.String())
	require.Len(t, rows, 2)
	require.Len(t, rows[0].Edges, 1)
	assert.Equal(t, EdgeDirect, rows[0].Edges[0].Kind)

	// No included ancestor at all.
	rows = collectPages(t, s, c.ID.String())
	require.Len(t, rows, 1)
	require.Len(t, rows[0].Edges, 1)
	assert.Equal(t, EdgeToMissing, rows[0].Edges[0].Kind)
	assert.Equal(t, b.ID.String(), rows[0].Edges[0].Target.Commit)
}

func TestQueryLogReevaluatesAfterMutation(t *testing.T) {
	s, r := newTestSession(t)
	s.cfg.PageSize = 2
	addCommit(t, r, []plumbing.Hash{r.Root().ID}, map[string][]byte{"a": []byte("1")}, "a")

	// Root, working copy and one commit: page one leaves a single row.
	page, err := s.QueryLog("all()")
	require.NoError(t, err)
	require.Len(t, page.Rows, 2)
	require.True(t, page.HasMore)
	require.Equal(t, StateQuery, s.State())

	res := s.ExecuteMutation(DescribeRevision{Revision: "@", Message: "work"})
	require.Equal(t, ResultUpdated, res.Kind, res.Message)

	// The open iterator went stale; the next page request re-evaluates
	// against the rewritten graph instead of failing.
	assert.Equal(t, StateQuery, s.State())
	page, err = s.QueryLogNextPage()
	require.NoError(t, err)
	assert.Len(t, page.Rows, 1)
	assert.False(t, page.HasMore)
}

func TestQueryLogStaleIteratorReevaluates(t *testing.T) {
	s, r := newTestSession(t)
	s.cfg.PageSize = 2
	parent := r.Root().ID
	for i := 0; i < 3; i++ {
		c := addCommit(t, r, []plumbing.Hash{parent}, map[string][]byte{"f": {byte('a' + i)}}, "step")
		parent = c.ID
	}

	page, err := s.QueryLog("all()")
	require.NoError(t, err)
	require.Len(t, page.Rows, 2)

	// An external writer commits behind the session's back; the iterator
	// notices the epoch change and re-evaluates instead of serving stale rows.
	addCommit(t, r, []plumbing.Hash{parent}, map[string][]byte{"g": []byte("x")}, "external")

	var rest []LogRow
	for {
		page, err = s.QueryLogNextPage()
		require.NoError(t, err)
		rest = append(rest, page.Rows...)
		if !page.HasMore {
			break
		}
	}
	// 6 commits total; 2 were already emitted.
	assert.Len(t, rest, 4)
}

func TestQueryLogLastQueryWins(t *testing.T) {
	s, r := newTestSession(t)
	a := addCommit(t, r, []plumbing.Hash{r.Root().ID}, map[string][]byte{"a": []byte("1")}, "a")

	_, err := s.QueryLog("all()")
	require.NoError(t, err)

	// Opening a second query replaces the first.
	page, err := s.QueryLog(a.ID.String())
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, a.ID.String(), page.Rows[0].Header.ID.Commit)
	assert.False(t, page.HasMore)
}

func TestQueryLogOnClosedSession(t *testing.T) {
	s, _ := newTestSession(t)
	s.Close()
	_, err := s.QueryLog("all()")
	assert.Error(t, err)
}

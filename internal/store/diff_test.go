package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHunksAndApply(t *testing.T) {
	before := []byte("a\nb\nc\nd\n")
	after := []byte("a\nB\nc\nd\nE\n")

	hunks := FileHunks("f.txt", before, after)
	require.Len(t, hunks, 2)

	assert.Equal(t, 1, hunks[0].Start)
	assert.Equal(t, []string{"b\n"}, hunks[0].Old)
	assert.Equal(t, []string{"B\n"}, hunks[0].New)

	// Applying each hunk in isolation against the original content works
	// because hunks are anchored at base positions.
	got, err := ApplyHunk(before, hunks[0])
	require.NoError(t, err)
	assert.Equal(t, "a\nB\nc\nd\n", string(got))

	got, err = ApplyHunk(before, hunks[1])
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\nd\nE\n", string(got))
}

func TestApplyHunkAnchorMismatch(t *testing.T) {
	h := Hunk{Path: "f.txt", Start: 0, Old: []string{"x\n"}, New: []string{"y\n"}}
	_, err := ApplyHunk([]byte("different\n"), h)
	assert.Error(t, err)

	h = Hunk{Path: "f.txt", Start: 5, Old: []string{"x\n"}, New: nil}
	_, err = ApplyHunk([]byte("one\n"), h)
	assert.Error(t, err)
}

func TestApplyHunkInsertIntoEmptyFile(t *testing.T) {
	h := Hunk{Path: "f.txt", Start: 0, Old: nil, New: []string{"first\n"}}
	got, err := ApplyHunk(nil, h)
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(got))
}

func TestDiffPaths(t *testing.T) {
	s := NewStore()
	before, err := s.BuildTree(map[string][]byte{
		"same.txt":    []byte("x"),
		"changed.txt": []byte("1"),
		"removed.txt": []byte("gone"),
	})
	require.NoError(t, err)
	after, err := s.BuildTree(map[string][]byte{
		"same.txt":    []byte("x"),
		"changed.txt": []byte("2"),
		"added.txt":   []byte("new"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"added.txt", "changed.txt", "removed.txt"}, DiffPaths(before, after))
	assert.Empty(t, DiffPaths(before, before))
}

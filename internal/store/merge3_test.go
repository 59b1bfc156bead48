package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeLinesDisjointEdits(t *testing.T) {
	base := "a\nb\nc\nd\ne\n"
	target := "A\nb\nc\nd\ne\n"
	other := "a\nb\nc\nd\nE\n"

	merged, clean := mergeLines(base, target, other)
	assert.True(t, clean)
	assert.Equal(t, "A\nb\nc\nd\nE\n", merged)
}

func TestMergeLinesSameEditBothSides(t *testing.T) {
	merged, clean := mergeLines("x\n", "y\n", "y\n")
	assert.True(t, clean)
	assert.Equal(t, "y\n", merged)
}

func TestMergeLinesOnlyOneSideChanged(t *testing.T) {
	base := "a\nb\nc\n"
	changed := "a\nB\nc\n"

	merged, clean := mergeLines(base, changed, base)
	assert.True(t, clean)
	assert.Equal(t, changed, merged)

	merged, clean = mergeLines(base, base, changed)
	assert.True(t, clean)
	assert.Equal(t, changed, merged)
}

func TestMergeLinesConflict(t *testing.T) {
	merged, clean := mergeLines("x\n", "y\n", "z\n")
	assert.False(t, clean)
	assert.Equal(t, "<<<<<<< target\ny\n=======\nz\n>>>>>>> other\n", merged)
}

func TestMergeLinesAdjacentInsertionsConflict(t *testing.T) {
	// Both sides insert different content at the same point; neither wins.
	base := "a\nb\n"
	target := "a\nX\nb\n"
	other := "a\nY\nb\n"

	merged, clean := mergeLines(base, target, other)
	assert.False(t, clean)
	assert.Contains(t, merged, "<<<<<<< target\n")
	assert.Contains(t, merged, "X\n")
	assert.Contains(t, merged, "Y\n")
}

func TestMergeLinesNoTrailingNewline(t *testing.T) {
	merged, clean := mergeLines("a", "b", "c")
	assert.False(t, clean)
	// Markers must stay on their own lines even when the content has no
	// trailing newline.
	assert.True(t, strings.HasSuffix(merged, ">>>>>>> other\n"))
}

func TestTreeMergeDecisionTable(t *testing.T) {
	s := NewStore()
	base, err := s.BuildTree(map[string][]byte{
		"keep.txt":  []byte("keep\n"),
		"mine.txt":  []byte("v1\n"),
		"yours.txt": []byte("v1\n"),
	})
	require.NoError(t, err)
	target, err := s.BuildTree(map[string][]byte{
		"keep.txt":  []byte("keep\n"),
		"mine.txt":  []byte("v2\n"),
		"yours.txt": []byte("v1\n"),
	})
	require.NoError(t, err)
	other, err := s.BuildTree(map[string][]byte{
		"keep.txt":  []byte("keep\n"),
		"mine.txt":  []byte("v1\n"),
		"yours.txt": []byte("v2\n"),
		"new.txt":   []byte("added\n"),
	})
	require.NoError(t, err)

	merged, err := target.Merge(base, other)
	require.NoError(t, err)
	require.False(t, merged.HasConflicts())

	read := func(path string) string {
		content, err := merged.ReadFile(path)
		require.NoError(t, err)
		return string(content)
	}
	assert.Equal(t, "keep\n", read("keep.txt"))
	assert.Equal(t, "v2\n", read("mine.txt"))  // only target changed
	assert.Equal(t, "v2\n", read("yours.txt")) // only other changed
	assert.Equal(t, "added\n", read("new.txt"))
}

func TestTreeMergeWithIdenticalBaseIsIdentity(t *testing.T) {
	s := NewStore()
	target, err := s.BuildTree(map[string][]byte{"f.txt": []byte("content\n")})
	require.NoError(t, err)
	base, err := s.BuildTree(map[string][]byte{"f.txt": []byte("old\n")})
	require.NoError(t, err)

	// other == base means no diff to apply.
	merged, err := target.Merge(base, base)
	require.NoError(t, err)
	assert.True(t, merged.Equal(target))
}

func TestTreeMergeDeleteModifyConflict(t *testing.T) {
	s := NewStore()
	base, err := s.BuildTree(map[string][]byte{"f.txt": []byte("1\n")})
	require.NoError(t, err)
	target, err := s.BuildTree(map[string][]byte{"f.txt": []byte("2\n")})
	require.NoError(t, err)
	other := s.Empty()

	merged, err := target.Merge(base, other)
	require.NoError(t, err)
	assert.True(t, merged.HasConflicts())
	assert.Equal(t, []string{"f.txt"}, merged.ConflictPaths())
}

func TestTreeMergeCleanResolutionClearsConflict(t *testing.T) {
	s := NewStore()
	base, err := s.BuildTree(map[string][]byte{"f.txt": []byte("1\n")})
	require.NoError(t, err)
	target, err := s.BuildTree(map[string][]byte{"f.txt": []byte("2\n")})
	require.NoError(t, err)

	conflicted, err := target.Merge(base, s.Empty())
	require.NoError(t, err)
	require.True(t, conflicted.HasConflicts())

	resolved, err := conflicted.With("f.txt", []byte("2\n"))
	require.NoError(t, err)
	assert.False(t, resolved.HasConflicts())
}

func TestTreeIDStableAcrossOrder(t *testing.T) {
	s := NewStore()
	a, err := s.BuildTree(map[string][]byte{"a": []byte("1"), "b": []byte("2")})
	require.NoError(t, err)
	b, err := s.BuildTree(map[string][]byte{"b": []byte("2"), "a": []byte("1")})
	require.NoError(t, err)
	assert.Equal(t, a.ID(), b.ID())
	assert.NotEqual(t, a.ID(), s.Empty().ID())
}

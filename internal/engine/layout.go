package engine

import (
	"github.com/go-git/go-git/v5/plumbing"
)

// layoutState assigns graph columns to log rows as they stream out, one row
// at a time. Each open stem is the id of a commit some earlier row's edge is
// waiting for; a zero hash is a free column. Rows already emitted are never
// reassigned, so appending a page cannot move anything drawn above it.
type layoutState struct {
	stems []plumbing.Hash
}

func newLayoutState() *layoutState {
	return &layoutState{}
}

// emit places one commit and returns its column. targets are the ids of the
// in-set commits this row's edges point at, in edge order; edges leaving the
// set open no stem because nothing below will ever close them.
func (l *layoutState) emit(id plumbing.Hash, targets []plumbing.Hash) int {
	col := -1
	for i, stem := range l.stems {
		if stem == id {
			if col < 0 {
				col = i
			} else {
				// extra stems waiting for this commit merge into its column
				l.stems[i] = plumbing.ZeroHash
			}
		}
	}
	if col < 0 {
		col = l.freeColumn()
	}

	// the first target continues in this commit's column; later ones open
	// stems of their own unless one is already waiting for them
	l.stems[col] = plumbing.ZeroHash
	for i, t := range targets {
		if i == 0 {
			l.stems[col] = t
			continue
		}
		if l.hasStem(t) {
			continue
		}
		l.stems[l.freeColumn()] = t
	}

	for len(l.stems) > 0 && l.stems[len(l.stems)-1] == plumbing.ZeroHash {
		l.stems = l.stems[:len(l.stems)-1]
	}
	return col
}

func (l *layoutState) hasStem(id plumbing.Hash) bool {
	for _, stem := range l.stems {
		if stem == id {
			return true
		}
	}
	return false
}

func (l *layoutState) freeColumn() int {
	for i, stem := range l.stems {
		if stem == plumbing.ZeroHash {
			return i
		}
	}
	l.stems = append(l.stems, plumbing.ZeroHash)
	return len(l.stems) - 1
}

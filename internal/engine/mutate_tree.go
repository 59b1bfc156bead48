package engine

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/kurobon/revgraph/internal/repo"
	"github.com/kurobon/revgraph/internal/store"
)

// selectionTree builds parentTree with the from-commit's state copied in at
// the selected paths: the tree representing exactly the diff being moved.
func selectionTree(parentTree, fromTree *store.Tree, paths []string) (*store.Tree, error) {
	if len(paths) == 0 {
		paths = store.DiffPaths(parentTree, fromTree)
	}
	sel := parentTree
	for _, path := range paths {
		if _, ok := fromTree.Lookup(path); ok {
			content, err := fromTree.ReadFile(path)
			if err != nil {
				return nil, err
			}
			sel, err = sel.With(path, content)
			if err != nil {
				return nil, err
			}
		} else {
			sel = sel.Without(path)
		}
	}
	return sel, nil
}

// stageDiffMove stages the two-merge move of a diff tree out of from and
// into to. The identical formula covers unrelated commits and
// ancestor/descendant pairs: the destination's application runs after any
// descendant rebasing the source rewrite causes.
func (s *Session) stageDiffMove(tx *repo.Transaction, from, to *repo.Commit, parentTree, diffTree *store.Tree) error {
	remainder, err := from.Tree.Merge(diffTree, parentTree)
	if err != nil {
		return fmt.Errorf("failed to remove diff from %s: %w", from.ID.String()[:7], err)
	}
	if remainder.Equal(parentTree) && from.Description == "" && from.ID != s.repo.WorkingCopy().ID {
		tx.Abandon(from)
	} else {
		tx.Rewrite(from, from.Parents, remainder, from.Description)
	}
	tx.TransformTree(to, func(tree *store.Tree) (*store.Tree, error) {
		return tree.Merge(parentTree, diffTree)
	})
	return nil
}

func (s *Session) moveChanges(m MoveChanges) (*repo.Transaction, *repo.Commit, error) {
	from, err := s.repo.Resolve(m.From)
	if err != nil {
		return nil, nil, err
	}
	to, err := s.repo.Resolve(m.To)
	if err != nil {
		return nil, nil, err
	}
	if from.ID == to.ID {
		return nil, nil, repo.Preconditionf("source and destination are the same commit")
	}
	if err := s.checker.CheckRewritable(s.rewriteTargets(from, to), m.AllowImmutable); err != nil {
		return nil, nil, err
	}
	parentTree, err := s.repo.MergedParentTree(from.Parents)
	if err != nil {
		return nil, nil, err
	}
	diffTree, err := selectionTree(parentTree, from.Tree, m.Paths)
	if err != nil {
		return nil, nil, err
	}
	if diffTree.Equal(parentTree) {
		// Nothing selected actually differs; stage nothing so the
		// dispatcher reports Unchanged.
		return s.repo.Begin(), nil, nil
	}
	tx := s.repo.Begin()
	if err := s.stageDiffMove(tx, from, to, parentTree, diffTree); err != nil {
		return nil, nil, err
	}
	return tx, to, nil
}

func (s *Session) copyChanges(m CopyChanges) (*repo.Transaction, *repo.Commit, error) {
	from, err := s.repo.Resolve(m.From)
	if err != nil {
		return nil, nil, err
	}
	to, err := s.repo.Resolve(m.To)
	if err != nil {
		return nil, nil, err
	}
	if from.ID == to.ID {
		return nil, nil, repo.Preconditionf("source and destination are the same commit")
	}
	if len(from.Parents) != 1 {
		return nil, nil, repo.Preconditionf("can only copy changes from a single-parent commit")
	}
	if err := s.checker.CheckRewritable(s.rewriteTargets(to), m.AllowImmutable); err != nil {
		return nil, nil, err
	}
	parentTree, err := s.repo.MergedParentTree(from.Parents)
	if err != nil {
		return nil, nil, err
	}
	diffTree, err := selectionTree(parentTree, from.Tree, m.Paths)
	if err != nil {
		return nil, nil, err
	}
	tx := s.repo.Begin()
	tx.TransformTree(to, func(tree *store.Tree) (*store.Tree, error) {
		return tree.Merge(parentTree, diffTree)
	})
	return tx, to, nil
}

func (s *Session) moveHunk(m MoveHunk) (*repo.Transaction, *repo.Commit, error) {
	from, err := s.repo.Resolve(m.From)
	if err != nil {
		return nil, nil, err
	}
	to, err := s.repo.Resolve(m.To)
	if err != nil {
		return nil, nil, err
	}
	if from.ID == to.ID {
		return nil, nil, repo.Preconditionf("source and destination are the same commit")
	}
	if err := s.checker.CheckRewritable(s.rewriteTargets(from, to), m.AllowImmutable); err != nil {
		return nil, nil, err
	}
	parentTree, err := s.repo.MergedParentTree(from.Parents)
	if err != nil {
		return nil, nil, err
	}
	// The hunk was computed against the parent tree, so applying it there
	// can only fail when the caller's hunk is stale.
	var before []byte
	if _, ok := parentTree.Lookup(m.Hunk.Path); ok {
		before, err = parentTree.ReadFile(m.Hunk.Path)
		if err != nil {
			return nil, nil, err
		}
	}
	after, err := store.ApplyHunk(before, m.Hunk)
	if err != nil {
		return nil, nil, repo.Preconditionf("hunk no longer applies: %v", err)
	}
	hunkTree, err := parentTree.With(m.Hunk.Path, after)
	if err != nil {
		return nil, nil, err
	}
	tx := s.repo.Begin()
	if err := s.stageDiffMove(tx, from, to, parentTree, hunkTree); err != nil {
		return nil, nil, err
	}
	return tx, to, nil
}

func (s *Session) backoutRevision(m BackoutRevision) (*repo.Transaction, *repo.Commit, error) {
	target, err := s.repo.Resolve(m.Revision)
	if err != nil {
		return nil, nil, err
	}
	if target.IsRoot() {
		return nil, nil, repo.Preconditionf("the root commit cannot be backed out")
	}
	parentTree, err := s.repo.MergedParentTree(target.Parents)
	if err != nil {
		return nil, nil, err
	}
	wc := s.repo.WorkingCopy()
	reversed, err := wc.Tree.Merge(target.Tree, parentTree)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to back out %s: %w", target.ID.String()[:7], err)
	}
	tx := s.repo.Begin()
	description := fmt.Sprintf("Back out %q", firstLine(target.Description))
	backout := tx.WriteCommit(repo.NewChangeID(), []plumbing.Hash{wc.ID}, reversed, description, s.author())
	tx.SetWorkingCopy(backout.ID)
	return tx, backout, nil
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}

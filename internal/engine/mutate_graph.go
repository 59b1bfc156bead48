package engine

import (
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/kurobon/revgraph/internal/repo"
)

func (s *Session) moveRevisions(m MoveRevisions) (*repo.Transaction, *repo.Commit, error) {
	if len(m.Revisions) == 0 {
		return nil, nil, repo.Preconditionf("no revisions selected")
	}
	dest, err := s.repo.Resolve(m.Destination)
	if err != nil {
		return nil, nil, err
	}
	targets := make([]*repo.Commit, 0, len(m.Revisions))
	for _, id := range m.Revisions {
		c, err := s.repo.Resolve(id)
		if err != nil {
			return nil, nil, err
		}
		targets = append(targets, c)
	}
	// Reachability check before any rewrite: a commit may never become its
	// own ancestor.
	for _, c := range targets {
		if c.ID == dest.ID || s.repo.IsAncestor(c.ID, dest.ID) {
			return nil, nil, repo.Preconditionf("cannot rebase %s onto its own descendant %s",
				c.ID.String()[:7], dest.ID.String()[:7])
		}
	}
	if err := s.checker.CheckRewritable(s.rewriteTargets(targets...), m.AllowImmutable); err != nil {
		return nil, nil, err
	}
	tx := s.repo.Begin()
	var last *repo.Commit
	for _, c := range targets {
		moved, err := tx.Rebase(c, []plumbing.Hash{dest.ID})
		if err != nil {
			return nil, nil, err
		}
		last = moved
	}
	return tx, last, nil
}

func (s *Session) insertRevision(m InsertRevision) (*repo.Transaction, *repo.Commit, error) {
	target, err := s.repo.Resolve(m.Revision)
	if err != nil {
		return nil, nil, err
	}
	after, err := s.repo.Resolve(m.After)
	if err != nil {
		return nil, nil, err
	}
	before, err := s.repo.Resolve(m.Before)
	if err != nil {
		return nil, nil, err
	}
	if target.ID == after.ID || target.ID == before.ID {
		return nil, nil, repo.Preconditionf("cannot insert a revision next to itself")
	}
	// New edges: after -> target -> before. Reject any assignment that
	// closes a cycle in the existing graph.
	if s.repo.IsAncestor(target.ID, after.ID) {
		return nil, nil, repo.Preconditionf("cannot insert %s after its own descendant", target.ID.String()[:7])
	}
	if s.repo.IsAncestor(before.ID, after.ID) {
		return nil, nil, repo.Preconditionf("insertion point is already ordered the other way around")
	}
	if err := s.checker.CheckRewritable(s.rewriteTargets(target, before), m.AllowImmutable); err != nil {
		return nil, nil, err
	}
	tx := s.repo.Begin()
	moved, err := tx.Rebase(target, []plumbing.Hash{after.ID})
	if err != nil {
		return nil, nil, err
	}
	newParents := make([]plumbing.Hash, 0, len(before.Parents)+1)
	replaced := false
	for _, p := range before.Parents {
		if p == after.ID {
			newParents = append(newParents, moved.ID)
			replaced = true
		} else {
			newParents = append(newParents, p)
		}
	}
	if !replaced {
		newParents = append(newParents, moved.ID)
	}
	if _, err := tx.Rebase(before, newParents); err != nil {
		return nil, nil, err
	}
	return tx, moved, nil
}

func (s *Session) adoptRevision(m AdoptRevision) (*repo.Transaction, *repo.Commit, error) {
	target, err := s.repo.Resolve(m.Revision)
	if err != nil {
		return nil, nil, err
	}
	parent, err := s.repo.Resolve(m.Parent)
	if err != nil {
		return nil, nil, err
	}
	var newParents []plumbing.Hash
	if m.Remove {
		for _, p := range target.Parents {
			if p != parent.ID {
				newParents = append(newParents, p)
			}
		}
		if len(newParents) == len(target.Parents) {
			return nil, nil, repo.Preconditionf("%s is not a parent of %s",
				parent.ID.String()[:7], target.ID.String()[:7])
		}
		if len(newParents) == 0 {
			return nil, nil, repo.Preconditionf("a revision must keep at least one parent")
		}
	} else {
		for _, p := range target.Parents {
			if p == parent.ID {
				return nil, nil, repo.Preconditionf("%s is already a parent of %s",
					parent.ID.String()[:7], target.ID.String()[:7])
			}
		}
		if s.repo.IsAncestor(target.ID, parent.ID) {
			return nil, nil, repo.Preconditionf("cannot adopt a descendant as a parent")
		}
		newParents = append(append(newParents, target.Parents...), parent.ID)
	}
	if err := s.checker.CheckRewritable(s.rewriteTargets(target), m.AllowImmutable); err != nil {
		return nil, nil, err
	}
	tx := s.repo.Begin()
	moved, err := tx.Rebase(target, newParents)
	if err != nil {
		return nil, nil, err
	}
	return tx, moved, nil
}

func (s *Session) abandonRevisions(m AbandonRevisions) (*repo.Transaction, *repo.Commit, error) {
	if len(m.Revisions) == 0 {
		return nil, nil, repo.Preconditionf("no revisions selected")
	}
	seen := make(map[plumbing.Hash]struct{})
	var targets []*repo.Commit
	for _, id := range m.Revisions {
		// Divergent change ids select every visible commit of the change.
		commits, err := s.repo.ResolveAll(id)
		if err != nil {
			return nil, nil, err
		}
		for _, c := range commits {
			if _, dup := seen[c.ID]; !dup {
				seen[c.ID] = struct{}{}
				targets = append(targets, c)
			}
		}
	}
	if err := s.checker.CheckRewritable(s.rewriteTargets(targets...), m.AllowImmutable); err != nil {
		return nil, nil, err
	}
	wc := s.repo.WorkingCopy()
	wcAbandoned := false
	for _, c := range targets {
		if c.ID == wc.ID {
			wcAbandoned = true
		}
	}
	tx := s.repo.Begin()
	for _, c := range targets {
		tx.Abandon(c)
	}
	if wcAbandoned {
		// The workspace always has a working-copy commit; replace the
		// abandoned one with a fresh empty commit on its (re-parented)
		// parents.
		parentTree, err := s.repo.MergedParentTree(wc.Parents)
		if err != nil {
			return nil, nil, err
		}
		fresh := tx.WriteCommit(repo.NewChangeID(), wc.Parents, parentTree, "", s.author())
		tx.SetWorkingCopy(fresh.ID)
	}
	return tx, nil, nil
}

func (s *Session) newRevision(m NewRevision) (*repo.Transaction, *repo.Commit, error) {
	if len(m.Parents) == 0 {
		return nil, nil, repo.Preconditionf("a revision must have at least one parent")
	}
	var parents []plumbing.Hash
	seen := make(map[plumbing.Hash]struct{})
	for _, id := range m.Parents {
		c, err := s.repo.Resolve(id)
		if err != nil {
			return nil, nil, err
		}
		if _, dup := seen[c.ID]; dup {
			return nil, nil, repo.Preconditionf("duplicate parent %s", c.ID.String()[:7])
		}
		seen[c.ID] = struct{}{}
		parents = append(parents, c.ID)
	}
	parentTree, err := s.repo.MergedParentTree(parents)
	if err != nil {
		return nil, nil, err
	}
	tx := s.repo.Begin()
	created := tx.WriteCommit(repo.NewChangeID(), parents, parentTree, "", s.author())
	tx.SetWorkingCopy(created.ID)
	s.maybeAbandonWorkingCopy(tx, seen)
	return tx, created, nil
}

func (s *Session) checkoutRevision(m CheckoutRevision) (*repo.Transaction, *repo.Commit, error) {
	target, err := s.repo.Resolve(m.Revision)
	if err != nil {
		return nil, nil, err
	}
	wc := s.repo.WorkingCopy()
	if target.ID == wc.ID {
		return s.repo.Begin(), nil, nil
	}
	tx := s.repo.Begin()
	created := tx.WriteCommit(repo.NewChangeID(), []plumbing.Hash{target.ID}, target.Tree, "", s.author())
	tx.SetWorkingCopy(created.ID)
	s.maybeAbandonWorkingCopy(tx, map[plumbing.Hash]struct{}{target.ID: {}})
	return tx, created, nil
}

// maybeAbandonWorkingCopy drops the outgoing working-copy commit when it is
// empty, undescribed, unreferenced, and not itself a parent of the new one.
func (s *Session) maybeAbandonWorkingCopy(tx *repo.Transaction, newParents map[plumbing.Hash]struct{}) {
	wc := s.repo.WorkingCopy()
	if _, isParent := newParents[wc.ID]; isParent {
		return
	}
	if wc.Description != "" || len(s.repo.Children(wc.ID)) > 0 {
		return
	}
	parentTree, err := s.repo.MergedParentTree(wc.Parents)
	if err != nil || !wc.Tree.Equal(parentTree) {
		return
	}
	if _, referenced := s.repo.Refs().TargetsOf()[wc.ID]; referenced {
		return
	}
	tx.Abandon(wc)
}

func (s *Session) describeRevision(m DescribeRevision) (*repo.Transaction, *repo.Commit, error) {
	target, err := s.repo.Resolve(m.Revision)
	if err != nil {
		return nil, nil, err
	}
	if m.Message == "" {
		// Suspension, not an error: the caller resubmits the same mutation
		// with the message attached.
		return nil, nil, &InputRequiredError{Fields: []string{"message"}}
	}
	if err := s.checker.CheckRewritable(s.rewriteTargets(target), m.AllowImmutable); err != nil {
		return nil, nil, err
	}
	tx := s.repo.Begin()
	described := tx.Rewrite(target, target.Parents, target.Tree, m.Message)
	return tx, described, nil
}

func (s *Session) duplicateRevisions(m DuplicateRevisions) (*repo.Transaction, *repo.Commit, error) {
	if len(m.Revisions) == 0 {
		return nil, nil, repo.Preconditionf("no revisions selected")
	}
	seen := make(map[plumbing.Hash]struct{})
	var targets []*repo.Commit
	for _, id := range m.Revisions {
		commits, err := s.repo.ResolveAll(id)
		if err != nil {
			return nil, nil, err
		}
		for _, c := range commits {
			if _, dup := seen[c.ID]; !dup {
				seen[c.ID] = struct{}{}
				targets = append(targets, c)
			}
		}
	}
	for _, c := range targets {
		if c.IsRoot() {
			return nil, nil, repo.Preconditionf("the root commit cannot be duplicated")
		}
	}
	// Oldest first, so duplicates of a selected chain parent onto each
	// other rather than onto the originals.
	ordered := make([]*repo.Commit, 0, len(targets))
	for _, c := range s.repo.All() {
		if _, ok := seen[c.ID]; ok {
			ordered = append(ordered, c)
		}
	}
	for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}
	tx := s.repo.Begin()
	copies := make(map[plumbing.Hash]plumbing.Hash, len(ordered))
	var last *repo.Commit
	for _, c := range ordered {
		parents := make([]plumbing.Hash, len(c.Parents))
		for i, p := range c.Parents {
			if dup, ok := copies[p]; ok {
				parents[i] = dup
			} else {
				parents[i] = p
			}
		}
		last = tx.WriteCommit(repo.NewChangeID(), parents, c.Tree, c.Description, c.Author)
		copies[c.ID] = last.ID
	}
	return tx, last, nil
}

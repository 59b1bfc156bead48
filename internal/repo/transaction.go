package repo

import (
	"container/heap"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/kurobon/revgraph/internal/store"
)

// Transaction stages a batch of graph edits: rewritten commits, newly
// created commits, abandoned commits and ref updates. Commit applies the
// whole batch atomically, including the mandatory transitive rebase of every
// descendant of a rewritten commit; nothing is observable until then.
type Transaction struct {
	repo *Repo
	refs *RefTable

	created      []*Commit
	replacements map[plumbing.Hash]*Commit                       // old live id -> staged draft
	prelim       map[plumbing.Hash]plumbing.Hash                 // staged draft id -> old id
	transforms   map[plumbing.Hash]func(*store.Tree) (*store.Tree, error) // old live id -> post-rebase tree edit
	abandoned    map[plumbing.Hash]struct{}
	wcOverride   *plumbing.Hash

	committed bool
	// successors records the final mapping once Commit ran.
	successors map[plumbing.Hash]plumbing.Hash
}

// Begin opens a transaction against the repo's current state.
func (r *Repo) Begin() *Transaction {
	return &Transaction{
		repo:         r,
		refs:         r.refs.Clone(),
		replacements: make(map[plumbing.Hash]*Commit),
		prelim:       make(map[plumbing.Hash]plumbing.Hash),
		transforms:   make(map[plumbing.Hash]func(*store.Tree) (*store.Tree, error)),
		abandoned:    make(map[plumbing.Hash]struct{}),
	}
}

// Refs is the staged ref table; edits to it land when the transaction
// commits.
func (tx *Transaction) Refs() *RefTable { return tx.refs }

// Lookup finds a commit by id among staged commits first, then the repo
// (obsolete included, so tree rebasing can reach pre-rewrite parents).
func (tx *Transaction) Lookup(id plumbing.Hash) (*Commit, bool) {
	for _, c := range tx.created {
		if c.ID == id {
			return c, true
		}
	}
	if old, ok := tx.prelim[id]; ok {
		return tx.replacements[old], true
	}
	c, ok := tx.repo.commits[id]
	return c, ok
}

// WriteCommit stages a brand-new commit.
func (tx *Transaction) WriteCommit(change ChangeID, parents []plumbing.Hash, tree *store.Tree, description string, author object.Signature) *Commit {
	c := newCommit(change, parents, tree, description, author)
	tx.created = append(tx.created, c)
	return c
}

// Rewrite stages a replacement for old with the given parents, tree and
// description; change id and authorship carry over. Returns old unchanged if
// the replacement would be identical.
func (tx *Transaction) Rewrite(old *Commit, parents []plumbing.Hash, tree *store.Tree, description string) *Commit {
	draft := newCommit(old.Change, parents, tree, description, old.Author)
	if draft.ID == old.ID {
		return old
	}
	tx.replacements[old.ID] = draft
	tx.prelim[draft.ID] = old.ID
	return draft
}

// Rebase stages a parent-pointer move for old, re-merging its tree from the
// old merged parent tree onto the new one.
func (tx *Transaction) Rebase(old *Commit, parents []plumbing.Hash) (*Commit, error) {
	oldBase, err := tx.mergedParentTree(old.Parents)
	if err != nil {
		return nil, err
	}
	newBase, err := tx.mergedParentTree(parents)
	if err != nil {
		return nil, err
	}
	tree, err := old.Tree.Merge(oldBase, newBase)
	if err != nil {
		return nil, fmt.Errorf("failed to rebase tree of %s: %w", old.ID.String()[:7], err)
	}
	return tx.Rewrite(old, parents, tree, old.Description), nil
}

// TransformTree stages a tree edit for old that runs after any descendant
// rebasing the transaction causes. This is how a diff is applied to a
// destination commit with one formula whether or not the destination
// descends from another commit rewritten in the same transaction.
func (tx *Transaction) TransformTree(old *Commit, fn func(*store.Tree) (*store.Tree, error)) {
	tx.transforms[old.ID] = fn
}

// Abandon stages removal of old from the visible graph; its descendants get
// re-parented onto old's own parents when the transaction commits.
func (tx *Transaction) Abandon(old *Commit) {
	tx.abandoned[old.ID] = struct{}{}
}

// SetWorkingCopy stages a working-copy pointer move. The id may reference a
// staged commit.
func (tx *Transaction) SetWorkingCopy(id plumbing.Hash) {
	tx.wcOverride = &id
}


// mergedParentTree folds the trees of the given parent commits into the
// effective base tree a child diffs against.
func (tx *Transaction) mergedParentTree(parents []plumbing.Hash) (*store.Tree, error) {
	if len(parents) == 0 {
		return tx.repo.store.Empty(), nil
	}
	first, ok := tx.Lookup(parents[0])
	if !ok {
		return nil, fmt.Errorf("parent %s not found", parents[0].String()[:7])
	}
	tree := first.Tree
	for _, p := range parents[1:] {
		c, ok := tx.Lookup(p)
		if !ok {
			return nil, fmt.Errorf("parent %s not found", p.String()[:7])
		}
		merged, err := tree.Merge(tx.repo.store.Empty(), c.Tree)
		if err != nil {
			return nil, err
		}
		tree = merged
	}
	return tree, nil
}

// Result returns the live successor of a commit rewritten by this
// transaction, valid after Commit.
func (tx *Transaction) Result(old plumbing.Hash) (*Commit, bool) {
	if !tx.committed {
		return nil, false
	}
	id := old
	if o, ok := tx.prelim[id]; ok {
		id = o
	}
	for {
		next, ok := tx.successors[id]
		if !ok || next == id {
			c, live := tx.repo.commits[id]
			if live && tx.repo.IsLive(id) {
				return c, true
			}
			return nil, false
		}
		id = next
	}
}

// rebuildOrder sorts the touched commits oldest-first by their effective
// parent edges: the staged draft's parents when a replacement exists, the
// old commit's otherwise, with draft ids mapped back to the old ids they
// replace. Ties break on insertion order for determinism.
func (tx *Transaction) rebuildOrder(touched map[plumbing.Hash]struct{}) []*Commit {
	r := tx.repo
	effParents := func(old plumbing.Hash) []plumbing.Hash {
		src := r.commits[old]
		if draft, ok := tx.replacements[old]; ok {
			src = draft
		}
		out := make([]plumbing.Hash, 0, len(src.Parents))
		for _, p := range src.Parents {
			if o, ok := tx.prelim[p]; ok {
				p = o
			}
			out = append(out, p)
		}
		return out
	}

	pending := make(map[plumbing.Hash]int, len(touched))
	dependents := make(map[plumbing.Hash][]plumbing.Hash)
	for old := range touched {
		for _, p := range effParents(old) {
			if _, in := touched[p]; in {
				pending[old]++
				dependents[p] = append(dependents[p], old)
			}
		}
	}
	h := &seqHeap{seq: r.seq, oldestFirst: true}
	for old := range touched {
		if pending[old] == 0 {
			h.ids = append(h.ids, old)
		}
	}
	heap.Init(h)
	out := make([]*Commit, 0, len(touched))
	for h.Len() > 0 {
		id := heap.Pop(h).(plumbing.Hash)
		out = append(out, r.commits[id])
		for _, d := range dependents[id] {
			pending[d]--
			if pending[d] == 0 {
				heap.Push(h, d)
			}
		}
	}
	return out
}

// Commit applies the staged batch atomically and reports whether the repo
// actually changed. The full replacement plan, every transitively affected
// descendant included, is computed before any repo state changes, so a
// failure leaves the graph untouched.
func (tx *Transaction) Commit() (bool, error) {
	if tx.committed {
		return false, fmt.Errorf("transaction already committed")
	}
	r := tx.repo

	// Every live commit that must be re-committed: explicitly rewritten,
	// tree-transformed or abandoned ones plus all their transitive
	// descendants.
	touched := make(map[plumbing.Hash]struct{})
	var roots []plumbing.Hash
	for old := range tx.replacements {
		touched[old] = struct{}{}
		roots = append(roots, old)
	}
	for old := range tx.transforms {
		touched[old] = struct{}{}
		roots = append(roots, old)
	}
	for old := range tx.abandoned {
		touched[old] = struct{}{}
		roots = append(roots, old)
	}
	for id := range r.Descendants(roots...) {
		touched[id] = struct{}{}
	}

	// Oldest-first so parents are resolved before their children. Ordering
	// must follow the staged parents, not the old graph: an explicit draft
	// may reference another draft its old commit never descended from.
	order := tx.rebuildOrder(touched)

	subst := make(map[plumbing.Hash]plumbing.Hash)
	finals := make([]*Commit, 0, len(order))
	finalByID := make(map[plumbing.Hash]*Commit)

	treeOf := func(id plumbing.Hash) (*store.Tree, error) {
		if c, ok := finalByID[id]; ok {
			return c.Tree, nil
		}
		c, ok := tx.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("commit %s not found", id.String()[:7])
		}
		return c.Tree, nil
	}
	mergedTree := func(ids []plumbing.Hash) (*store.Tree, error) {
		if len(ids) == 0 {
			return r.store.Empty(), nil
		}
		tree, err := treeOf(ids[0])
		if err != nil {
			return nil, err
		}
		for _, id := range ids[1:] {
			t, err := treeOf(id)
			if err != nil {
				return nil, err
			}
			tree, err = tree.Merge(r.store.Empty(), t)
			if err != nil {
				return nil, err
			}
		}
		return tree, nil
	}

	createdSubst := make(map[plumbing.Hash]plumbing.Hash)

	// resolveParent maps a pre-transaction parent id to its post-transaction
	// parent list: substituted for rewrites, spliced out for abandons,
	// remapped for staged created commits whose final id shifted.
	var resolveParent func(p plumbing.Hash) []plumbing.Hash
	resolveParent = func(p plumbing.Hash) []plumbing.Hash {
		if s, ok := createdSubst[p]; ok {
			return []plumbing.Hash{s}
		}
		if old, ok := tx.prelim[p]; ok {
			p = old
		}
		if _, ab := tx.abandoned[p]; ab {
			c := r.commits[p]
			var spliced []plumbing.Hash
			for _, q := range c.Parents {
				spliced = append(spliced, resolveParent(q)...)
			}
			return spliced
		}
		if s, ok := subst[p]; ok {
			return []plumbing.Hash{s}
		}
		return []plumbing.Hash{p}
	}

	rebuild := func(draft *Commit, author object.Signature) (*Commit, error) {
		var newParents []plumbing.Hash
		type pair struct {
			oldP plumbing.Hash
			newP []plumbing.Hash
		}
		var changedPairs []pair
		seen := make(map[plumbing.Hash]struct{})
		for _, p := range draft.Parents {
			rp := resolveParent(p)
			if len(rp) != 1 || rp[0] != p {
				changedPairs = append(changedPairs, pair{oldP: p, newP: rp})
			}
			for _, np := range rp {
				if _, dup := seen[np]; !dup {
					seen[np] = struct{}{}
					newParents = append(newParents, np)
				}
			}
		}
		if len(newParents) == 0 {
			newParents = []plumbing.Hash{r.rootID}
		}
		tree := draft.Tree
		for _, cp := range changedPairs {
			oldC, ok := tx.Lookup(cp.oldP)
			if !ok {
				return nil, fmt.Errorf("parent %s not found", cp.oldP.String()[:7])
			}
			newTree, err := mergedTree(cp.newP)
			if err != nil {
				return nil, err
			}
			tree, err = tree.Merge(oldC.Tree, newTree)
			if err != nil {
				return nil, err
			}
		}
		return newCommit(draft.Change, newParents, tree, draft.Description, author), nil
	}

	for _, c := range order {
		old := c.ID
		if _, ab := tx.abandoned[old]; ab {
			continue
		}
		draft, explicit := tx.replacements[old]
		if !explicit {
			draft = c
		}
		final, err := rebuild(draft, draft.Author)
		if err != nil {
			return false, err
		}
		if fn, ok := tx.transforms[old]; ok {
			tree, err := fn(final.Tree)
			if err != nil {
				return false, err
			}
			final = newCommit(final.Change, final.Parents, tree, final.Description, final.Author)
		}
		if final.ID == old {
			continue
		}
		subst[old] = final.ID
		finals = append(finals, final)
		finalByID[final.ID] = final
	}

	// Newly created commits may also reference pre-transaction parents.
	createdFinals := make([]*Commit, 0, len(tx.created))
	for _, c := range tx.created {
		final, err := rebuild(c, c.Author)
		if err != nil {
			return false, err
		}
		createdFinals = append(createdFinals, final)
		createdSubst[c.ID] = final.ID
		finalByID[final.ID] = final
	}

	changed := len(finals) > 0 || len(createdFinals) > 0 || len(tx.abandoned) > 0 ||
		!tx.refs.Equal(r.refs) ||
		(tx.wcOverride != nil && *tx.wcOverride != r.workingCopy)
	if !changed {
		tx.committed = true
		tx.successors = subst
		return false, nil
	}

	// Plan complete; apply. Everything below is infallible.
	obsolete := make([]plumbing.Hash, 0, len(subst)+len(tx.abandoned))
	for old := range subst {
		obsolete = append(obsolete, old)
	}
	for old := range tx.abandoned {
		obsolete = append(obsolete, old)
	}
	for _, old := range obsolete {
		r.removeLive(old)
		r.obsolete[old] = subst[old] // ZeroHash for abandoned lines
	}
	for _, final := range finals {
		r.addLive(final)
	}
	for _, final := range createdFinals {
		r.addLive(final)
	}

	mapTarget := func(h plumbing.Hash) plumbing.Hash {
		if s, ok := createdSubst[h]; ok {
			return s
		}
		rp := resolveParent(h)
		if len(rp) > 0 {
			return rp[0]
		}
		return r.rootID
	}
	tx.refs.retarget(mapTarget)
	r.refs = tx.refs

	if tx.wcOverride != nil {
		r.workingCopy = mapTarget(*tx.wcOverride)
	} else {
		r.workingCopy = mapTarget(r.workingCopy)
	}

	r.epoch++
	tx.successors = subst
	for from, to := range createdSubst {
		// A created commit whose rebuilt form matched its draft maps to
		// itself; recording that would make Result chase its own tail.
		if from != to {
			tx.successors[from] = to
		}
	}
	tx.committed = true
	return true, nil
}

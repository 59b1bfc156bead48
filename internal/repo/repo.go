// Package repo holds the append-only commit graph, its refs, revset
// evaluation and the transaction machinery that keeps rewrites atomic.
package repo

import (
	"container/heap"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/kurobon/revgraph/internal/store"
)

// Repo is the in-memory commit graph for one open workspace. The underlying
// store is not safe for concurrent access; a Repo must only ever be touched
// by its owning session worker.
type Repo struct {
	store   *store.Store
	commits map[plumbing.Hash]*Commit // every commit ever written, obsolete included
	live    map[plumbing.Hash]struct{}
	// children indexes the live graph only.
	children map[plumbing.Hash]map[plumbing.Hash]struct{}
	byChange map[ChangeID]map[plumbing.Hash]struct{} // live commits per change id
	// obsolete maps a rewritten commit id to its successor (ZeroHash for
	// abandoned commits).
	obsolete map[plumbing.Hash]plumbing.Hash
	seq      map[plumbing.Hash]int // insertion order, used for stable log order
	nextSeq  int

	refs        *RefTable
	rootID      plumbing.Hash
	workingCopy plumbing.Hash
	epoch       int
}

// New creates an empty repo containing only the virtual root commit and a
// working-copy commit on top of it.
func New(author object.Signature) *Repo {
	r := &Repo{
		store:    store.NewStore(),
		commits:  make(map[plumbing.Hash]*Commit),
		live:     make(map[plumbing.Hash]struct{}),
		children: make(map[plumbing.Hash]map[plumbing.Hash]struct{}),
		byChange: make(map[ChangeID]map[plumbing.Hash]struct{}),
		obsolete: make(map[plumbing.Hash]plumbing.Hash),
		seq:      make(map[plumbing.Hash]int),
		refs:     NewRefTable(),
	}
	root := newCommit(RootChangeID, nil, r.store.Empty(), "", object.Signature{})
	r.addLive(root)
	r.rootID = root.ID

	wc := newCommit(NewChangeID(), []plumbing.Hash{root.ID}, r.store.Empty(), "", author)
	r.addLive(wc)
	r.workingCopy = wc.ID
	return r
}

// Store returns the tree store backing this repo.
func (r *Repo) Store() *store.Store { return r.store }

// Root returns the virtual root commit.
func (r *Repo) Root() *Commit { return r.commits[r.rootID] }

// WorkingCopy returns the current working-copy commit.
func (r *Repo) WorkingCopy() *Commit { return r.commits[r.workingCopy] }

// Refs returns the live ref table.
func (r *Repo) Refs() *RefTable { return r.refs }

// Epoch increments every time a transaction commits. Cached derived state
// (immutable sets, open query iterators) keys off it.
func (r *Repo) Epoch() int { return r.epoch }

// Commit looks up a commit by exact id, live or obsolete.
func (r *Repo) Commit(id plumbing.Hash) (*Commit, bool) {
	c, ok := r.commits[id]
	return c, ok
}

// IsLive reports whether id is part of the visible graph.
func (r *Repo) IsLive(id plumbing.Hash) bool {
	_, ok := r.live[id]
	return ok
}

// Successor follows the obsolescence chain from an obsolete commit id to its
// live replacement, or false for abandoned lines.
func (r *Repo) Successor(id plumbing.Hash) (*Commit, bool) {
	for {
		if r.IsLive(id) {
			return r.commits[id], true
		}
		next, ok := r.obsolete[id]
		if !ok || next == plumbing.ZeroHash {
			return nil, false
		}
		id = next
	}
}

func (r *Repo) addLive(c *Commit) {
	r.commits[c.ID] = c
	r.live[c.ID] = struct{}{}
	r.seq[c.ID] = r.nextSeq
	r.nextSeq++
	set, ok := r.byChange[c.Change]
	if !ok {
		set = make(map[plumbing.Hash]struct{})
		r.byChange[c.Change] = set
	}
	set[c.ID] = struct{}{}
	for _, p := range c.Parents {
		kids, ok := r.children[p]
		if !ok {
			kids = make(map[plumbing.Hash]struct{})
			r.children[p] = kids
		}
		kids[c.ID] = struct{}{}
	}
}

func (r *Repo) removeLive(id plumbing.Hash) {
	c, ok := r.commits[id]
	if !ok {
		return
	}
	delete(r.live, id)
	if set, ok := r.byChange[c.Change]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byChange, c.Change)
		}
	}
	for _, p := range c.Parents {
		if kids, ok := r.children[p]; ok {
			delete(kids, id)
		}
	}
	delete(r.children, id)
}

// Children returns the live children of id.
func (r *Repo) Children(id plumbing.Hash) []*Commit {
	kids := make([]*Commit, 0, len(r.children[id]))
	for k := range r.children[id] {
		kids = append(kids, r.commits[k])
	}
	return kids
}

// IsAncestor reports whether anc is reachable from desc by following parent
// edges (a commit is its own ancestor).
func (r *Repo) IsAncestor(anc, desc plumbing.Hash) bool {
	if anc == desc {
		return true
	}
	seen := map[plumbing.Hash]struct{}{desc: {}}
	stack := []plumbing.Hash{desc}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		c, ok := r.commits[id]
		if !ok {
			continue
		}
		for _, p := range c.Parents {
			if p == anc {
				return true
			}
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				stack = append(stack, p)
			}
		}
	}
	return false
}

// Descendants returns every live commit reachable by child edges from any of
// the given ids, the ids themselves excluded.
func (r *Repo) Descendants(ids ...plumbing.Hash) map[plumbing.Hash]struct{} {
	out := make(map[plumbing.Hash]struct{})
	stack := append([]plumbing.Hash(nil), ids...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for kid := range r.children[id] {
			if _, ok := out[kid]; !ok {
				out[kid] = struct{}{}
				stack = append(stack, kid)
			}
		}
	}
	return out
}

// MergedParentTree folds the trees of the given parent commits into the
// effective base tree a child's snapshot diffs against.
func (r *Repo) MergedParentTree(parents []plumbing.Hash) (*store.Tree, error) {
	if len(parents) == 0 {
		return r.store.Empty(), nil
	}
	first, ok := r.commits[parents[0]]
	if !ok {
		return nil, NotFoundf("parent %s not found", parents[0].String()[:7])
	}
	tree := first.Tree
	for _, p := range parents[1:] {
		c, ok := r.commits[p]
		if !ok {
			return nil, NotFoundf("parent %s not found", p.String()[:7])
		}
		merged, err := tree.Merge(r.store.Empty(), c.Tree)
		if err != nil {
			return nil, err
		}
		tree = merged
	}
	return tree, nil
}

// seqHeap orders commit ids by insertion sequence, newest first by default.
type seqHeap struct {
	ids         []plumbing.Hash
	seq         map[plumbing.Hash]int
	oldestFirst bool
}

func (h *seqHeap) Len() int { return len(h.ids) }
func (h *seqHeap) Less(i, j int) bool {
	if h.oldestFirst {
		return h.seq[h.ids[i]] < h.seq[h.ids[j]]
	}
	return h.seq[h.ids[i]] > h.seq[h.ids[j]]
}
func (h *seqHeap) Swap(i, j int)  { h.ids[i], h.ids[j] = h.ids[j], h.ids[i] }
func (h *seqHeap) Push(x any)     { h.ids = append(h.ids, x.(plumbing.Hash)) }
func (h *seqHeap) Pop() any {
	n := len(h.ids)
	x := h.ids[n-1]
	h.ids = h.ids[:n-1]
	return x
}

// topoOrder returns the given live commits newest-first: every commit
// appears before all of its parents. Ties break on insertion order, so the
// result is deterministic for a given history.
func (r *Repo) topoOrder(ids map[plumbing.Hash]struct{}) []*Commit {
	// In-degree counts only children inside the selected set.
	pending := make(map[plumbing.Hash]int, len(ids))
	for id := range ids {
		pending[id] = 0
	}
	for id := range ids {
		c := r.commits[id]
		for _, p := range c.Parents {
			if _, ok := ids[p]; ok {
				pending[p]++
			}
		}
	}
	h := &seqHeap{seq: r.seq}
	for id, n := range pending {
		if n == 0 {
			h.ids = append(h.ids, id)
		}
	}
	heap.Init(h)
	out := make([]*Commit, 0, len(ids))
	for h.Len() > 0 {
		id := heap.Pop(h).(plumbing.Hash)
		c := r.commits[id]
		out = append(out, c)
		for _, p := range c.Parents {
			if _, ok := pending[p]; ok {
				pending[p]--
				if pending[p] == 0 {
					heap.Push(h, p)
				}
			}
		}
	}
	return out
}

// All returns every live commit, newest first.
func (r *Repo) All() []*Commit {
	return r.topoOrder(r.liveSet())
}

func (r *Repo) liveSet() map[plumbing.Hash]struct{} {
	out := make(map[plumbing.Hash]struct{}, len(r.live))
	for id := range r.live {
		out[id] = struct{}{}
	}
	return out
}

// Resolve turns a user-supplied id string into one concrete live commit.
// Accepted forms: "@" (working copy), a commit id prefix (at least 4 hex
// chars), or a change id prefix. A change id carried by more than one live
// commit is divergent: single-target resolution refuses it, a commit id must
// be used instead.
func (r *Repo) Resolve(id string) (*Commit, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, NotFoundf("empty revision id")
	}
	if id == "@" {
		return r.WorkingCopy(), nil
	}
	matches := r.resolvePrefix(id)
	switch len(matches) {
	case 0:
		return nil, NotFoundf("revision %q not found", id)
	case 1:
		return matches[0], nil
	}
	// Multiple hits: distinguish a divergent change id from a plain
	// ambiguous prefix.
	change := matches[0].Change
	divergent := true
	for _, c := range matches[1:] {
		if c.Change != change {
			divergent = false
			break
		}
	}
	if divergent {
		return nil, NotFoundf("change id %q is divergent (%d visible commits); use a commit id", id, len(matches))
	}
	return nil, NotFoundf("revision id %q is ambiguous", id)
}

// ResolveAll is the multi-target form of Resolve: a divergent change id
// selects all of its visible commits.
func (r *Repo) ResolveAll(id string) ([]*Commit, error) {
	id = strings.TrimSpace(id)
	if id == "@" {
		return []*Commit{r.WorkingCopy()}, nil
	}
	matches := r.resolvePrefix(id)
	if len(matches) == 0 {
		return nil, NotFoundf("revision %q not found", id)
	}
	change := matches[0].Change
	for _, c := range matches[1:] {
		if c.Change != change {
			return nil, NotFoundf("revision id %q is ambiguous", id)
		}
	}
	return matches, nil
}

func (r *Repo) resolvePrefix(id string) []*Commit {
	var matches []*Commit
	// Exact or prefix commit id match.
	if len(id) >= 4 && isHex(id) {
		for h := range r.live {
			if strings.HasPrefix(h.String(), strings.ToLower(id)) {
				matches = append(matches, r.commits[h])
			}
		}
		if len(matches) > 0 {
			return matches
		}
	}
	// Change id prefix match over live commits.
	for change, set := range r.byChange {
		if strings.HasPrefix(string(change), id) {
			for h := range set {
				matches = append(matches, r.commits[h])
			}
		}
	}
	return matches
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

package repo

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
)

// EvalRevset evaluates a revset expression and returns the selected commits
// in topological order, newest first. Supported grammar:
//
//	expr  := term ("|" term)*
//	term  := "::" atom | atom "::" | atom "::" atom | atom
//	atom  := "all()" | "none()" | "root()" | "bookmarks()" | "tags()"
//	       | "@" | <change or commit id prefix>
//
// "::x" selects ancestors of x (x included), "x::" descendants, "x::y" the
// DAG range between them. An id atom carried by a divergent change selects
// every visible commit of that change.
func (r *Repo) EvalRevset(expr string) ([]*Commit, error) {
	set, err := r.evalRevsetSet(expr)
	if err != nil {
		return nil, err
	}
	return r.topoOrder(set), nil
}

func (r *Repo) evalRevsetSet(expr string) (map[plumbing.Hash]struct{}, error) {
	out := make(map[plumbing.Hash]struct{})
	terms := strings.Split(expr, "|")
	if strings.TrimSpace(expr) == "" {
		return nil, NotFoundf("empty revset")
	}
	for _, term := range terms {
		set, err := r.evalTerm(strings.TrimSpace(term))
		if err != nil {
			return nil, err
		}
		for id := range set {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (r *Repo) evalTerm(term string) (map[plumbing.Hash]struct{}, error) {
	if term == "" {
		return nil, NotFoundf("empty revset term")
	}
	if i := strings.Index(term, "::"); i >= 0 {
		lhs := strings.TrimSpace(term[:i])
		rhs := strings.TrimSpace(term[i+2:])
		switch {
		case lhs == "" && rhs == "":
			return nil, NotFoundf("revset term %q has no operand", term)
		case lhs == "":
			heads, err := r.evalAtom(rhs)
			if err != nil {
				return nil, err
			}
			return r.ancestors(heads), nil
		case rhs == "":
			tails, err := r.evalAtom(lhs)
			if err != nil {
				return nil, err
			}
			return r.descendantsOf(tails), nil
		default:
			tails, err := r.evalAtom(lhs)
			if err != nil {
				return nil, err
			}
			heads, err := r.evalAtom(rhs)
			if err != nil {
				return nil, err
			}
			desc := r.descendantsOf(tails)
			anc := r.ancestors(heads)
			out := make(map[plumbing.Hash]struct{})
			for id := range desc {
				if _, ok := anc[id]; ok {
					out[id] = struct{}{}
				}
			}
			return out, nil
		}
	}
	return r.evalAtom(term)
}

func (r *Repo) evalAtom(atom string) (map[plumbing.Hash]struct{}, error) {
	out := make(map[plumbing.Hash]struct{})
	switch atom {
	case "all()":
		return r.liveSet(), nil
	case "none()":
		return out, nil
	case "root()":
		out[r.rootID] = struct{}{}
		return out, nil
	case "@":
		out[r.workingCopy] = struct{}{}
		return out, nil
	case "bookmarks()":
		for _, b := range r.refs.Locals() {
			out[b.Target] = struct{}{}
		}
		return out, nil
	case "tags()":
		for _, t := range r.refs.Tags() {
			out[t.Target] = struct{}{}
		}
		return out, nil
	}
	commits, err := r.ResolveAll(atom)
	if err != nil {
		return nil, err
	}
	for _, c := range commits {
		out[c.ID] = struct{}{}
	}
	return out, nil
}

// ancestors returns the ids reachable from the given set by parent edges,
// the set included.
func (r *Repo) ancestors(ids map[plumbing.Hash]struct{}) map[plumbing.Hash]struct{} {
	out := make(map[plumbing.Hash]struct{}, len(ids))
	stack := make([]plumbing.Hash, 0, len(ids))
	for id := range ids {
		out[id] = struct{}{}
		stack = append(stack, id)
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		c, ok := r.commits[id]
		if !ok {
			continue
		}
		for _, p := range c.Parents {
			if _, seen := out[p]; !seen {
				out[p] = struct{}{}
				stack = append(stack, p)
			}
		}
	}
	return out
}

// descendantsOf returns the ids reachable by child edges, the set included.
func (r *Repo) descendantsOf(ids map[plumbing.Hash]struct{}) map[plumbing.Hash]struct{} {
	out := make(map[plumbing.Hash]struct{}, len(ids))
	for id := range ids {
		out[id] = struct{}{}
	}
	for id := range r.Descendants(keys(ids)...) {
		out[id] = struct{}{}
	}
	return out
}

func keys(ids map[plumbing.Hash]struct{}) []plumbing.Hash {
	out := make([]plumbing.Hash, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out
}

package engine

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/kurobon/revgraph/internal/repo"
)

// ImmutabilityChecker evaluates membership against the configured boundary
// revset. The membership set is cached per repo epoch; this is the hot path
// on large graphs and the cache can be swapped for an incremental
// implementation without changing the dispatcher's contract.
type ImmutabilityChecker struct {
	repo  *repo.Repo
	expr  string
	epoch int
	set   map[plumbing.Hash]struct{}
}

// NewImmutabilityChecker builds a checker for the given boundary expression.
func NewImmutabilityChecker(r *repo.Repo, expr string) *ImmutabilityChecker {
	return &ImmutabilityChecker{repo: r, expr: expr, epoch: -1}
}

func (c *ImmutabilityChecker) refresh() error {
	if c.set != nil && c.epoch == c.repo.Epoch() {
		return nil
	}
	commits, err := c.repo.EvalRevset(c.expr)
	if err != nil {
		return fmt.Errorf("failed to evaluate immutability boundary %q: %w", c.expr, err)
	}
	set := make(map[plumbing.Hash]struct{}, len(commits))
	for _, commit := range commits {
		set[commit.ID] = struct{}{}
	}
	c.set = set
	c.epoch = c.repo.Epoch()
	return nil
}

// IsImmutable reports whether the commit lies inside the boundary. The
// virtual root is always immutable.
func (c *ImmutabilityChecker) IsImmutable(commit *repo.Commit) (bool, error) {
	if commit.IsRoot() {
		return true, nil
	}
	if err := c.refresh(); err != nil {
		return false, err
	}
	_, ok := c.set[commit.ID]
	return ok, nil
}

// CheckRewritable validates that every commit may be rewritten. The override
// flag skips the boundary check but never unlocks the root.
func (c *ImmutabilityChecker) CheckRewritable(commits []*repo.Commit, override bool) error {
	for _, commit := range commits {
		if commit.IsRoot() {
			return repo.Preconditionf("the root commit cannot be rewritten")
		}
	}
	if override {
		return nil
	}
	if err := c.refresh(); err != nil {
		return err
	}
	for _, commit := range commits {
		if _, ok := c.set[commit.ID]; ok {
			return repo.Preconditionf("commit %s is immutable", commit.ID.String()[:7])
		}
	}
	return nil
}

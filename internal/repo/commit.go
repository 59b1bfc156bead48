package repo

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/kurobon/revgraph/internal/store"
)

// ChangeID is the logical identity of an evolving commit. It stays stable
// across rewrites while the commit id changes with every one.
type ChangeID string

// RootChangeID is the change id of the virtual root commit.
const RootChangeID ChangeID = "zzzzzzzzzzzzzzzz"

// NewChangeID generates a fresh random change id.
func NewChangeID() ChangeID {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("change id generation: %v", err))
	}
	return ChangeID(hex.EncodeToString(buf[:]))
}

// Short returns an abbreviated form for display.
func (c ChangeID) Short() string {
	if len(c) > 8 {
		return string(c[:8])
	}
	return string(c)
}

// Commit is one immutable snapshot in the graph. Rewriting never mutates a
// commit in place: it produces a new Commit with a new ID and the same
// Change.
type Commit struct {
	Change      ChangeID
	ID          plumbing.Hash
	Parents     []plumbing.Hash
	Tree        *store.Tree
	Description string
	Author      object.Signature
}

// IsRoot reports whether this is the virtual root commit.
func (c *Commit) IsRoot() bool { return c.Change == RootChangeID }

// HasConflict reports whether the commit's tree carries unresolved conflicts.
func (c *Commit) HasConflict() bool { return c.Tree.HasConflicts() }

// computeCommitID hashes the full snapshot content. Any rewrite that changes
// tree, parents, description or authorship yields a new id.
func computeCommitID(change ChangeID, parents []plumbing.Hash, tree *store.Tree, description string, author object.Signature) plumbing.Hash {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "change %s\ntree %s\n", change, tree.ID())
	for _, p := range parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s <%s> %d\n\n%s", author.Name, author.Email, author.When.Unix(), description)
	return plumbing.ComputeHash(plumbing.CommitObject, buf.Bytes())
}

func newCommit(change ChangeID, parents []plumbing.Hash, tree *store.Tree, description string, author object.Signature) *Commit {
	ps := make([]plumbing.Hash, len(parents))
	copy(ps, parents)
	return &Commit{
		Change:      change,
		ID:          computeCommitID(change, ps, tree, description, author),
		Parents:     ps,
		Tree:        tree,
		Description: description,
		Author:      author,
	}
}

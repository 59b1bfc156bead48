package engine

import (
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"

	"github.com/kurobon/revgraph/internal/repo"
	"github.com/kurobon/revgraph/internal/store"
)

// Mutation is the closed set of structural edits. Dispatch is an exhaustive
// type switch, so adding a kind is a compile-time-checked enumeration
// change.
type Mutation interface {
	isMutation()
}

// MoveChanges moves the diff of the selected paths (all paths when empty)
// out of From and into To.
type MoveChanges struct {
	From           string   `json:"from"`
	To             string   `json:"to"`
	Paths          []string `json:"paths,omitempty"`
	AllowImmutable bool     `json:"allow_immutable,omitempty"`
}

// CopyChanges applies From's diff at the selected paths to To without
// touching From. From must have a single parent.
type CopyChanges struct {
	From           string   `json:"from"`
	To             string   `json:"to"`
	Paths          []string `json:"paths,omitempty"`
	AllowImmutable bool     `json:"allow_immutable,omitempty"`
}

// MoveHunk moves one sub-file diff region from From into To. The hunk must
// have been computed against From's parent tree; it is never re-located by
// context search.
type MoveHunk struct {
	From           string     `json:"from"`
	To             string     `json:"to"`
	Hunk           store.Hunk `json:"hunk"`
	AllowImmutable bool       `json:"allow_immutable,omitempty"`
}

// MoveRevisions rebases the selected revisions onto a new parent.
type MoveRevisions struct {
	Revisions      []string `json:"revisions"`
	Destination    string   `json:"destination"`
	AllowImmutable bool     `json:"allow_immutable,omitempty"`
}

// InsertRevision splices Revision between After and Before.
type InsertRevision struct {
	Revision       string `json:"revision"`
	After          string `json:"after"`
	Before         string `json:"before"`
	AllowImmutable bool   `json:"allow_immutable,omitempty"`
}

// AdoptRevision adds or removes one parent of Revision. The resulting
// parent set must be non-empty.
type AdoptRevision struct {
	Revision       string `json:"revision"`
	Parent         string `json:"parent"`
	Remove         bool   `json:"remove,omitempty"`
	AllowImmutable bool   `json:"allow_immutable,omitempty"`
}

// AbandonRevisions removes the selected revisions from the visible graph,
// re-parenting descendants onto the abandoned commits' own parents. A
// divergent change id selects all of its commits.
type AbandonRevisions struct {
	Revisions      []string `json:"revisions"`
	AllowImmutable bool     `json:"allow_immutable,omitempty"`
}

// BackoutRevision reverses Revision's diff in the working copy.
type BackoutRevision struct {
	Revision string `json:"revision"`
}

// NewRevision creates an empty revision on the given parents and makes it
// the working copy.
type NewRevision struct {
	Parents []string `json:"parents"`
}

// CheckoutRevision moves the working copy onto Revision.
type CheckoutRevision struct {
	Revision string `json:"revision"`
}

// DescribeRevision rewrites a revision's description. An empty message
// suspends with InputRequired; the caller resubmits with the message set.
type DescribeRevision struct {
	Revision       string `json:"revision"`
	Message        string `json:"message"`
	AllowImmutable bool   `json:"allow_immutable,omitempty"`
}

// DuplicateRevisions copies the selected revisions under fresh change ids
// without obsoleting the originals.
type DuplicateRevisions struct {
	Revisions []string `json:"revisions"`
}

// CreateBookmark points a new local bookmark at Revision.
type CreateBookmark struct {
	Name     string `json:"name"`
	Revision string `json:"revision"`
}

// RenameBookmark renames a local bookmark, keeping target and tracking.
type RenameBookmark struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DeleteBookmark removes a local bookmark; remote counterparts survive.
type DeleteBookmark struct {
	Name string `json:"name"`
}

// MoveBookmark retargets a local bookmark.
type MoveBookmark struct {
	Name     string `json:"name"`
	Revision string `json:"revision"`
}

// TrackBookmark starts tracking a remote bookmark, creating the local
// counterpart when missing.
type TrackBookmark struct {
	Name   string `json:"name"`
	Remote string `json:"remote"`
}

// UntrackBookmark stops tracking a remote bookmark.
type UntrackBookmark struct {
	Name   string `json:"name"`
	Remote string `json:"remote"`
}

func (MoveChanges) isMutation()        {}
func (CopyChanges) isMutation()        {}
func (MoveHunk) isMutation()           {}
func (MoveRevisions) isMutation()      {}
func (InsertRevision) isMutation()     {}
func (AdoptRevision) isMutation()      {}
func (AbandonRevisions) isMutation()   {}
func (BackoutRevision) isMutation()    {}
func (NewRevision) isMutation()        {}
func (CheckoutRevision) isMutation()   {}
func (DescribeRevision) isMutation()   {}
func (DuplicateRevisions) isMutation() {}
func (CreateBookmark) isMutation()     {}
func (RenameBookmark) isMutation()     {}
func (DeleteBookmark) isMutation()     {}
func (MoveBookmark) isMutation()       {}
func (TrackBookmark) isMutation()      {}
func (UntrackBookmark) isMutation()    {}

// ExecuteMutation runs one mutation through the fixed protocol: resolve ids,
// check immutability, open a transaction, edit, then commit, or report
// Unchanged when the graph diff is empty. Any open query iterator is marked
// stale whether or not the mutation succeeds; the next page request
// re-evaluates against the rewritten graph.
func (s *Session) ExecuteMutation(m Mutation) MutationResult {
	if s.state == StateClosed {
		return MutationResult{Kind: ResultPrecondition, Message: "no open workspace"}
	}
	defer func() {
		if s.query != nil {
			s.query.stale = true
		}
	}()

	tx, sel, err := s.stage(m)
	if err != nil {
		return resultFromError(err)
	}
	changed, err := tx.Commit()
	if err != nil {
		return MutationResult{Kind: ResultInternal, Message: err.Error()}
	}
	if !changed {
		return unchanged()
	}
	if sel != nil {
		if final, ok := tx.Result(sel.ID); ok {
			sel = final
		}
	}
	s.log.Info("mutation applied", zap.String("kind", mutationKind(m)))
	return s.updated(sel)
}

// stage validates and stages one mutation. Precondition failures happen
// before the transaction holds anything, so nothing is ever partially
// applied.
func (s *Session) stage(m Mutation) (*repo.Transaction, *repo.Commit, error) {
	switch m := m.(type) {
	case MoveChanges:
		return s.moveChanges(m)
	case CopyChanges:
		return s.copyChanges(m)
	case MoveHunk:
		return s.moveHunk(m)
	case MoveRevisions:
		return s.moveRevisions(m)
	case InsertRevision:
		return s.insertRevision(m)
	case AdoptRevision:
		return s.adoptRevision(m)
	case AbandonRevisions:
		return s.abandonRevisions(m)
	case BackoutRevision:
		return s.backoutRevision(m)
	case NewRevision:
		return s.newRevision(m)
	case CheckoutRevision:
		return s.checkoutRevision(m)
	case DescribeRevision:
		return s.describeRevision(m)
	case DuplicateRevisions:
		return s.duplicateRevisions(m)
	case CreateBookmark:
		return s.createBookmark(m)
	case RenameBookmark:
		return s.renameBookmark(m)
	case DeleteBookmark:
		return s.deleteBookmark(m)
	case MoveBookmark:
		return s.moveBookmark(m)
	case TrackBookmark:
		return s.trackBookmark(m)
	case UntrackBookmark:
		return s.untrackBookmark(m)
	}
	return nil, nil, repo.Preconditionf("unknown mutation kind")
}

func mutationKind(m Mutation) string {
	switch m.(type) {
	case MoveChanges:
		return "move_changes"
	case CopyChanges:
		return "copy_changes"
	case MoveHunk:
		return "move_hunk"
	case MoveRevisions:
		return "move_revisions"
	case InsertRevision:
		return "insert_revision"
	case AdoptRevision:
		return "adopt_revision"
	case AbandonRevisions:
		return "abandon_revisions"
	case BackoutRevision:
		return "backout_revision"
	case NewRevision:
		return "new_revision"
	case CheckoutRevision:
		return "checkout_revision"
	case DescribeRevision:
		return "describe_revision"
	case DuplicateRevisions:
		return "duplicate_revisions"
	case CreateBookmark:
		return "create_bookmark"
	case RenameBookmark:
		return "rename_bookmark"
	case DeleteBookmark:
		return "delete_bookmark"
	case MoveBookmark:
		return "move_bookmark"
	case TrackBookmark:
		return "track_bookmark"
	case UntrackBookmark:
		return "untrack_bookmark"
	}
	return "unknown"
}

// rewriteTargets expands the commits a rewriting mutation touches to include
// their live descendants, all of which will be re-committed. Skipped above
// the large-repo threshold; the ancestor-closed default boundary makes the
// descendant check redundant there.
func (s *Session) rewriteTargets(commits ...*repo.Commit) []*repo.Commit {
	if len(s.repo.All()) > s.cfg.LargeRepoThreshold {
		return commits
	}
	out := append([]*repo.Commit(nil), commits...)
	seen := make(map[plumbing.Hash]struct{}, len(commits))
	ids := make([]plumbing.Hash, 0, len(commits))
	for _, c := range commits {
		seen[c.ID] = struct{}{}
		ids = append(ids, c.ID)
	}
	for id := range s.repo.Descendants(ids...) {
		if _, dup := seen[id]; dup {
			continue
		}
		if c, ok := s.repo.Commit(id); ok {
			out = append(out, c)
		}
	}
	return out
}

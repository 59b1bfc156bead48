package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/kurobon/revgraph/internal/config"
	"github.com/kurobon/revgraph/internal/repo"
)

// State is the session's position in its lifecycle. Query is a modal
// sub-state of Workspace: a session in Query still has an open workspace.
type State int

const (
	StateClosed State = iota
	StateWorkspace
	StateQuery
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateWorkspace:
		return "workspace"
	case StateQuery:
		return "query"
	}
	return "unknown"
}

// transitions is the documented transition table of the session machine.
var transitions = map[State][]State{
	StateClosed:    {StateWorkspace},
	StateWorkspace: {StateWorkspace, StateQuery, StateClosed},
	StateQuery:     {StateQuery, StateWorkspace, StateClosed},
}

// Session owns the single live handle to the underlying store for one open
// workspace and sequences Query and Mutation requests. It is not safe for
// concurrent use; a Worker serializes access to it.
type Session struct {
	state   State
	cfg     *config.Config
	log     *zap.Logger
	repo    *repo.Repo
	checker *ImmutabilityChecker
	query   *logQuery
}

// NewSession creates a closed session.
func NewSession(cfg *config.Config, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{state: StateClosed, cfg: cfg, log: logger}
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Repo exposes the open repo, nil when closed. Intended for tests and the
// status query; mutations go through ExecuteMutation.
func (s *Session) Repo() *repo.Repo { return s.repo }

func (s *Session) transition(to State) error {
	for _, allowed := range transitions[s.state] {
		if allowed == to {
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("invalid session transition %s -> %s", s.state, to)
}

func (s *Session) author() object.Signature {
	return object.Signature{
		Name:  s.cfg.AuthorName,
		Email: s.cfg.AuthorEmail,
		When:  time.Now(),
	}
}

// Open attaches the session to a workspace. Failure is terminal for the
// request: the session stays closed and the caller decides whether to retry.
func (s *Session) Open(fs billy.Filesystem, path string) error {
	if s.state != StateClosed {
		return repo.Preconditionf("session already has an open workspace")
	}
	r, err := repo.Open(fs, s.author())
	if err != nil {
		return &LoadError{Path: path, Err: err}
	}
	s.repo = r
	s.checker = NewImmutabilityChecker(r, s.cfg.ImmutableRevset)
	if err := s.transition(StateWorkspace); err != nil {
		return err
	}
	s.log.Info("workspace opened",
		zap.String("path", path),
		zap.String("working_copy", r.WorkingCopy().ID.String()[:12]))
	return nil
}

// AttachRepo opens the session over an existing repo. Used by tests and by
// callers that build the repo themselves.
func (s *Session) AttachRepo(r *repo.Repo) error {
	if s.state != StateClosed {
		return repo.Preconditionf("session already has an open workspace")
	}
	s.repo = r
	s.checker = NewImmutabilityChecker(r, s.cfg.ImmutableRevset)
	return s.transition(StateWorkspace)
}

// Close detaches from the workspace, dropping the store handle and any open
// query iterator.
func (s *Session) Close() {
	if s.state == StateClosed {
		return
	}
	s.repo = nil
	s.checker = nil
	s.query = nil
	s.state = StateClosed
}

// Status reports the working copy and refs; callers refresh from it after
// every Updated mutation result.
func (s *Session) Status() RepoStatus {
	wc := s.repo.WorkingCopy()
	return RepoStatus{
		WorkingCopy: s.header(wc),
		Refs:        s.allRefs(),
		CommitCount: len(s.repo.All()),
	}
}

// QueryRevision returns the header of one revision.
func (s *Session) QueryRevision(id string) (*RevHeader, error) {
	if s.state == StateClosed {
		return nil, repo.Preconditionf("no open workspace")
	}
	c, err := s.repo.Resolve(id)
	if err != nil {
		return nil, err
	}
	h := s.header(c)
	return &h, nil
}

// header builds the wire summary of a commit.
func (s *Session) header(c *repo.Commit) RevHeader {
	immutable, err := s.checker.IsImmutable(c)
	if err != nil {
		s.log.Warn("immutability boundary evaluation failed", zap.Error(err))
	}
	parents := make([]RevID, 0, len(c.Parents))
	for _, p := range c.Parents {
		if pc, ok := s.repo.Commit(p); ok {
			parents = append(parents, revID(pc))
		}
	}
	return RevHeader{
		ID:            revID(c),
		Description:   c.Description,
		Author: RevAuthor{
			Name:      c.Author.Name,
			Email:     c.Author.Email,
			Timestamp: c.Author.When,
		},
		ParentIDs:     parents,
		Refs:          s.refsAt(c),
		IsImmutable:   immutable,
		IsWorkingCopy: c.ID == s.repo.WorkingCopy().ID,
		HasConflict:   c.HasConflict(),
	}
}

func revID(c *repo.Commit) RevID {
	return RevID{Change: string(c.Change), Commit: c.ID.String()}
}

// refsAt lists the refs pointing at a commit. A local bookmark whose tracked
// remotes all sit on the same commit is reported once, synced; remote
// bookmarks that diverge from their local (or are untracked) show up
// individually.
func (s *Session) refsAt(c *repo.Commit) []StoreRef {
	refs := s.repo.Refs()
	var out []StoreRef
	for _, b := range refs.Locals() {
		if b.Target != c.ID {
			continue
		}
		synced := len(b.TrackedRemotes) > 0
		for _, remote := range b.TrackedRemotes {
			rb, ok := refs.Remote(b.Name, remote)
			if !ok || rb.Absent || rb.Target != b.Target {
				synced = false
				break
			}
		}
		out = append(out, StoreRef{
			Kind:            RefLocalBookmark,
			Name:            b.Name,
			TrackingRemotes: b.TrackedRemotes,
			IsSynced:        synced,
		})
	}
	for _, rb := range refs.AllRemotes() {
		if rb.Target != c.ID {
			continue
		}
		if local, ok := refs.Local(rb.Name); ok && rb.Tracked && rb.Target == local.Target {
			continue // folded into the synced local above
		}
		out = append(out, StoreRef{
			Kind:      RefRemoteBookmark,
			Name:      rb.Name,
			Remote:    rb.Remote,
			IsTracked: rb.Tracked,
			IsAbsent:  rb.Absent,
		})
	}
	for _, t := range refs.Tags() {
		if t.Target == c.ID {
			out = append(out, StoreRef{Kind: RefTag, Name: t.Name})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

func (s *Session) allRefs() []StoreRef {
	refs := s.repo.Refs()
	var out []StoreRef
	for _, b := range refs.Locals() {
		out = append(out, StoreRef{
			Kind:            RefLocalBookmark,
			Name:            b.Name,
			TrackingRemotes: b.TrackedRemotes,
		})
	}
	for _, rb := range refs.AllRemotes() {
		out = append(out, StoreRef{
			Kind:      RefRemoteBookmark,
			Name:      rb.Name,
			Remote:    rb.Remote,
			IsTracked: rb.Tracked,
			IsAbsent:  rb.Absent,
		})
	}
	for _, t := range refs.Tags() {
		out = append(out, StoreRef{Kind: RefTag, Name: t.Name})
	}
	return out
}

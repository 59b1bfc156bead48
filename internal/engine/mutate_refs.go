package engine

import (
	"strings"

	"github.com/kurobon/revgraph/internal/repo"
)

// Bookmark mutations touch the ref table only: no tree edits, no descendant
// rebasing, no immutability constraint on the target commit.

func validBookmarkName(name string) error {
	if name == "" {
		return repo.Preconditionf("bookmark name must not be empty")
	}
	if strings.ContainsAny(name, " \t\n") {
		return repo.Preconditionf("bookmark name %q must not contain whitespace", name)
	}
	return nil
}

func (s *Session) createBookmark(m CreateBookmark) (*repo.Transaction, *repo.Commit, error) {
	if err := validBookmarkName(m.Name); err != nil {
		return nil, nil, err
	}
	if _, exists := s.repo.Refs().Local(m.Name); exists {
		return nil, nil, repo.Preconditionf("bookmark %q already exists", m.Name)
	}
	target, err := s.repo.Resolve(m.Revision)
	if err != nil {
		return nil, nil, err
	}
	if target.IsRoot() {
		return nil, nil, repo.Preconditionf("cannot point a bookmark at the root commit")
	}
	tx := s.repo.Begin()
	tx.Refs().SetLocal(m.Name, target.ID)
	return tx, target, nil
}

func (s *Session) renameBookmark(m RenameBookmark) (*repo.Transaction, *repo.Commit, error) {
	if err := validBookmarkName(m.To); err != nil {
		return nil, nil, err
	}
	if _, exists := s.repo.Refs().Local(m.To); exists {
		return nil, nil, repo.Preconditionf("bookmark %q already exists", m.To)
	}
	if _, exists := s.repo.Refs().Local(m.From); !exists {
		return nil, nil, repo.NotFoundf("bookmark %q not found", m.From)
	}
	tx := s.repo.Begin()
	tx.Refs().RenameLocal(m.From, m.To)
	return tx, nil, nil
}

func (s *Session) deleteBookmark(m DeleteBookmark) (*repo.Transaction, *repo.Commit, error) {
	if _, exists := s.repo.Refs().Local(m.Name); !exists {
		return nil, nil, repo.NotFoundf("bookmark %q not found", m.Name)
	}
	tx := s.repo.Begin()
	tx.Refs().DeleteLocal(m.Name)
	return tx, nil, nil
}

func (s *Session) moveBookmark(m MoveBookmark) (*repo.Transaction, *repo.Commit, error) {
	if _, exists := s.repo.Refs().Local(m.Name); !exists {
		return nil, nil, repo.NotFoundf("bookmark %q not found", m.Name)
	}
	target, err := s.repo.Resolve(m.Revision)
	if err != nil {
		return nil, nil, err
	}
	if target.IsRoot() {
		return nil, nil, repo.Preconditionf("cannot point a bookmark at the root commit")
	}
	tx := s.repo.Begin()
	tx.Refs().SetLocal(m.Name, target.ID)
	return tx, target, nil
}

func (s *Session) trackBookmark(m TrackBookmark) (*repo.Transaction, *repo.Commit, error) {
	remote, ok := s.repo.Refs().Remote(m.Name, m.Remote)
	if !ok {
		return nil, nil, repo.NotFoundf("bookmark %q not found on remote %q", m.Name, m.Remote)
	}
	if remote.Tracked {
		return nil, nil, repo.Preconditionf("bookmark %q is already tracked on %q", m.Name, m.Remote)
	}
	tx := s.repo.Begin()
	rb, _ := tx.Refs().Remote(m.Name, m.Remote)
	rb.Tracked = true
	local, exists := tx.Refs().Local(m.Name)
	if !exists {
		local = tx.Refs().SetLocal(m.Name, remote.Target)
	}
	local.TrackedRemotes = append(local.TrackedRemotes, m.Remote)
	return tx, nil, nil
}

func (s *Session) untrackBookmark(m UntrackBookmark) (*repo.Transaction, *repo.Commit, error) {
	remote, ok := s.repo.Refs().Remote(m.Name, m.Remote)
	if !ok {
		return nil, nil, repo.NotFoundf("bookmark %q not found on remote %q", m.Name, m.Remote)
	}
	if !remote.Tracked {
		return nil, nil, repo.Preconditionf("bookmark %q is not tracked on %q", m.Name, m.Remote)
	}
	tx := s.repo.Begin()
	rb, _ := tx.Refs().Remote(m.Name, m.Remote)
	rb.Tracked = false
	if local, exists := tx.Refs().Local(m.Name); exists {
		kept := local.TrackedRemotes[:0]
		for _, r := range local.TrackedRemotes {
			if r != m.Remote {
				kept = append(kept, r)
			}
		}
		local.TrackedRemotes = kept
	}
	return tx, nil, nil
}

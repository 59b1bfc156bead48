// Package engine implements the repository mutation engine: the session
// state machine, the mutation dispatcher and its catalogue, the immutability
// checker, and the log paginator with graph layout. One engine worker owns
// the underlying store handle for one open workspace; all access is
// serialized through it.
package engine

import (
	"time"

	"github.com/kurobon/revgraph/internal/repo"
)

// RevID pairs the two identities of a commit: the change id survives
// rewrites, the commit id is the content hash of one snapshot.
type RevID struct {
	Change string `json:"change"`
	Commit string `json:"commit"`
}

// RevAuthor is the display form of a commit signature.
type RevAuthor struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
}

// RevHeader is the commit summary every query row and status carries.
type RevHeader struct {
	ID            RevID      `json:"id"`
	Description   string     `json:"description"`
	Author        RevAuthor  `json:"author"`
	ParentIDs     []RevID    `json:"parent_ids"`
	Refs          []StoreRef `json:"refs"`
	IsImmutable   bool       `json:"is_immutable"`
	IsWorkingCopy bool       `json:"is_working_copy"`
	HasConflict   bool       `json:"has_conflict"`
}

// StoreRef kinds.
const (
	RefLocalBookmark  = "local_bookmark"
	RefRemoteBookmark = "remote_bookmark"
	RefTag            = "tag"
)

// StoreRef is the wire form of a named pointer, discriminated by Kind.
// A local bookmark and a same-named tracked remote bookmark at the same
// commit display as one synced ref.
type StoreRef struct {
	Kind            string   `json:"kind"`
	Name            string   `json:"name"`
	Remote          string   `json:"remote,omitempty"`
	TrackingRemotes []string `json:"tracking_remotes,omitempty"`
	IsTracked       bool     `json:"is_tracked,omitempty"`
	IsAbsent        bool     `json:"is_absent,omitempty"`
	IsSynced        bool     `json:"is_synced,omitempty"`
}

// RepoStatus is returned after every successful mutation and by the
// workspace query.
type RepoStatus struct {
	WorkingCopy RevHeader  `json:"working_copy"`
	Refs        []StoreRef `json:"refs"`
	CommitCount int        `json:"commit_count"`
}

// Edge kinds for log rows.
const (
	EdgeDirect    = "direct"
	EdgeIndirect  = "indirect" // intermediate commits elided from the page's set
	EdgeToMissing = "missing"  // parent outside the queried set entirely
)

// GraphEdge is one outgoing edge of a log row.
type GraphEdge struct {
	Target RevID  `json:"target"`
	Kind   string `json:"kind"`
}

// LogRow is one commit in a log page, with its layout column assigned.
type LogRow struct {
	Header RevHeader   `json:"header"`
	Edges  []GraphEdge `json:"edges"`
	Column int         `json:"column"`
}

// LogPage is one page of a log query.
type LogPage struct {
	Rows    []LogRow `json:"rows"`
	HasMore bool     `json:"has_more"`
}

// MutationResult kinds. InputRequired is not an error: it suspends the
// mutation pending externally supplied fields, and the caller resubmits the
// same mutation augmented with the answer.
const (
	ResultUnchanged     = "unchanged"
	ResultUpdated       = "updated"
	ResultPrecondition  = "precondition_error"
	ResultInternal      = "internal_error"
	ResultInputRequired = "input_required"
)

// MutationResult is the closed result variant set of every mutation.
type MutationResult struct {
	Kind         string      `json:"kind"`
	Message      string      `json:"message,omitempty"`
	NewStatus    *RepoStatus `json:"new_status,omitempty"`
	NewSelection *RevHeader  `json:"new_selection,omitempty"`
	// Request lists the fields the caller must supply for InputRequired.
	Request []string `json:"request,omitempty"`
}

func unchanged() MutationResult { return MutationResult{Kind: ResultUnchanged} }

func (s *Session) updated(sel *repo.Commit) MutationResult {
	res := MutationResult{Kind: ResultUpdated}
	status := s.Status()
	res.NewStatus = &status
	if sel != nil {
		h := s.header(sel)
		res.NewSelection = &h
	}
	return res
}

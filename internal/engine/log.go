package engine

import (
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"

	"github.com/kurobon/revgraph/internal/repo"
)

// logQuery is the open log iterator. rows holds the full topological order of
// the queried set (newest first); pos is how many rows have been handed out.
// A mutation marks the query stale; the next page re-evaluates the expression
// against the rewritten graph and replays the already-emitted prefix through
// a fresh layout so columns below stay consistent with what was drawn above.
type logQuery struct {
	expr   string
	epoch  int
	rows   []*repo.Commit
	set    map[plumbing.Hash]struct{}
	pos    int
	layout *layoutState
	stale  bool
}

// QueryLog opens a log over the given revset and returns its first page. Any
// previous query is discarded: last query wins.
func (s *Session) QueryLog(revset string) (*LogPage, error) {
	if s.state == StateClosed {
		return nil, repo.Preconditionf("no open workspace")
	}
	q, err := s.buildQuery(revset)
	if err != nil {
		return nil, err
	}
	if err := s.transition(StateQuery); err != nil {
		return nil, err
	}
	s.query = q
	s.log.Debug("log query opened",
		zap.String("revset", revset),
		zap.Int("rows", len(q.rows)))
	return s.nextPage()
}

// QueryLogNextPage continues the open query. On a stale iterator the revset
// is re-evaluated first; rows already emitted stay emitted even when the
// graph underneath them changed.
func (s *Session) QueryLogNextPage() (*LogPage, error) {
	if s.state != StateQuery || s.query == nil {
		return nil, repo.Preconditionf("no open log query")
	}
	if s.query.stale || s.query.epoch != s.repo.Epoch() {
		if err := s.refreshQuery(); err != nil {
			return nil, err
		}
	}
	return s.nextPage()
}

func (s *Session) buildQuery(revset string) (*logQuery, error) {
	rows, err := s.repo.EvalRevset(revset)
	if err != nil {
		return nil, err
	}
	set := make(map[plumbing.Hash]struct{}, len(rows))
	for _, c := range rows {
		set[c.ID] = struct{}{}
	}
	return &logQuery{
		expr:   revset,
		epoch:  s.repo.Epoch(),
		rows:   rows,
		set:    set,
		layout: newLayoutState(),
	}, nil
}

// refreshQuery rebuilds a stale iterator. The emitted prefix keeps its old
// length: re-evaluation only governs rows the caller has not seen yet.
func (s *Session) refreshQuery() error {
	old := s.query
	q, err := s.buildQuery(old.expr)
	if err != nil {
		return err
	}
	if old.pos < len(q.rows) {
		q.pos = old.pos
	} else {
		q.pos = len(q.rows)
	}
	for _, c := range q.rows[:q.pos] {
		q.layout.emit(c.ID, s.edgeTargets(c, q.set))
	}
	s.query = q
	return nil
}

func (s *Session) nextPage() (*LogPage, error) {
	q := s.query
	end := q.pos + s.cfg.PageSize
	if end > len(q.rows) {
		end = len(q.rows)
	}
	page := &LogPage{Rows: make([]LogRow, 0, end-q.pos)}
	for _, c := range q.rows[q.pos:end] {
		edges := s.edges(c, q.set)
		targets := make([]plumbing.Hash, 0, len(edges))
		for _, e := range edges {
			if e.Kind != EdgeToMissing {
				targets = append(targets, plumbing.NewHash(e.Target.Commit))
			}
		}
		page.Rows = append(page.Rows, LogRow{
			Header: s.header(c),
			Edges:  edges,
			Column: q.layout.emit(c.ID, targets),
		})
	}
	q.pos = end
	page.HasMore = q.pos < len(q.rows)
	return page, nil
}

// edges classifies one row's outgoing edges. A parent inside the set is a
// direct edge; a parent outside it resolves to its nearest in-set ancestors
// as indirect edges, or to a missing edge when no ancestor is included.
func (s *Session) edges(c *repo.Commit, set map[plumbing.Hash]struct{}) []GraphEdge {
	var out []GraphEdge
	seen := make(map[plumbing.Hash]struct{})
	for _, p := range c.Parents {
		if _, in := set[p]; in {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, GraphEdge{Target: s.edgeTarget(p), Kind: EdgeDirect})
			continue
		}
		anc := s.nearestIncluded(p, set)
		if len(anc) == 0 {
			out = append(out, GraphEdge{Target: s.edgeTarget(p), Kind: EdgeToMissing})
			continue
		}
		for _, a := range anc {
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			out = append(out, GraphEdge{Target: s.edgeTarget(a), Kind: EdgeIndirect})
		}
	}
	return out
}

// edgeTargets is the layout-facing view of edges: in-set target ids only.
func (s *Session) edgeTargets(c *repo.Commit, set map[plumbing.Hash]struct{}) []plumbing.Hash {
	edges := s.edges(c, set)
	out := make([]plumbing.Hash, 0, len(edges))
	for _, e := range edges {
		if e.Kind != EdgeToMissing {
			out = append(out, plumbing.NewHash(e.Target.Commit))
		}
	}
	return out
}

func (s *Session) edgeTarget(id plumbing.Hash) RevID {
	if c, ok := s.repo.Commit(id); ok {
		return revID(c)
	}
	return RevID{Commit: id.String()}
}

// nearestIncluded walks ancestors breadth-first from an excluded parent and
// returns the closest frontier of in-set commits, sorted for determinism.
func (s *Session) nearestIncluded(from plumbing.Hash, set map[plumbing.Hash]struct{}) []plumbing.Hash {
	visited := map[plumbing.Hash]struct{}{from: {}}
	frontier := []plumbing.Hash{from}
	for len(frontier) > 0 {
		var found []plumbing.Hash
		var next []plumbing.Hash
		for _, id := range frontier {
			if _, in := set[id]; in {
				found = append(found, id)
				continue
			}
			c, ok := s.repo.Commit(id)
			if !ok {
				continue
			}
			for _, p := range c.Parents {
				if _, dup := visited[p]; dup {
					continue
				}
				visited[p] = struct{}{}
				next = append(next, p)
			}
		}
		if len(found) > 0 {
			sort.Slice(found, func(i, j int) bool {
				return found[i].String() < found[j].String()
			})
			return found
		}
		frontier = next
	}
	return nil
}

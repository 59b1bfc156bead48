package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kurobon/revgraph/internal/engine"
	"github.com/kurobon/revgraph/internal/repo"
)

type openRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleOpenWorkspace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Path == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("path is required"))
		return
	}
	if err := s.Worker.Open(r.Context(), osfs.New(req.Path), req.Path); err != nil {
		s.log.Warn("workspace open failed", zap.String("path", req.Path), zap.Error(err))
		s.writeError(w, statusFor(err), err)
		return
	}
	status, err := s.Worker.QueryWorkspace(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, status)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.Worker.QueryWorkspace(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, status)
}

type logRequest struct {
	Revset string `json:"revset"`
}

func (s *Server) handleQueryLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req logRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Revset == "" {
		req.Revset = "all()"
	}
	page, err := s.Worker.QueryLog(r.Context(), req.Revset)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, page)
}

func (s *Server) handleQueryLogNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	page, err := s.Worker.QueryLogNextPage(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, page)
}

func (s *Server) handleQueryRevision(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("id is required"))
		return
	}
	header, err := s.Worker.QueryRevision(r.Context(), id)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, header)
}

func (s *Server) handleMutate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	m, err := decodeMutation(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.Worker.Mutate(r.Context(), m)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, result)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.Worker.Trigger()
	s.writeJSON(w, map[string]string{"status": "triggered"})
}

// decodeMutation picks the concrete mutation type from the kind field of the
// envelope, then unmarshals the same payload into it.
func decodeMutation(raw json.RawMessage) (engine.Mutation, error) {
	var env struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(err, "decoding mutation envelope")
	}
	switch env.Kind {
	case "move_changes":
		return decodeAs[engine.MoveChanges](raw)
	case "copy_changes":
		return decodeAs[engine.CopyChanges](raw)
	case "move_hunk":
		return decodeAs[engine.MoveHunk](raw)
	case "move_revisions":
		return decodeAs[engine.MoveRevisions](raw)
	case "insert_revision":
		return decodeAs[engine.InsertRevision](raw)
	case "adopt_revision":
		return decodeAs[engine.AdoptRevision](raw)
	case "abandon_revisions":
		return decodeAs[engine.AbandonRevisions](raw)
	case "backout_revision":
		return decodeAs[engine.BackoutRevision](raw)
	case "new_revision":
		return decodeAs[engine.NewRevision](raw)
	case "checkout_revision":
		return decodeAs[engine.CheckoutRevision](raw)
	case "describe_revision":
		return decodeAs[engine.DescribeRevision](raw)
	case "duplicate_revisions":
		return decodeAs[engine.DuplicateRevisions](raw)
	case "create_bookmark":
		return decodeAs[engine.CreateBookmark](raw)
	case "rename_bookmark":
		return decodeAs[engine.RenameBookmark](raw)
	case "delete_bookmark":
		return decodeAs[engine.DeleteBookmark](raw)
	case "move_bookmark":
		return decodeAs[engine.MoveBookmark](raw)
	case "track_bookmark":
		return decodeAs[engine.TrackBookmark](raw)
	case "untrack_bookmark":
		return decodeAs[engine.UntrackBookmark](raw)
	}
	return nil, errors.Errorf("unknown mutation kind %q", env.Kind)
}

// decodeAs unmarshals the payload into a value of the concrete mutation
// type, so the worker's exhaustive type switch sees the variant it expects.
func decodeAs[T engine.Mutation](raw json.RawMessage) (engine.Mutation, error) {
	var m T
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(err, "decoding mutation")
	}
	return m, nil
}

func statusFor(err error) int {
	var notFound *repo.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound
	}
	var precondition *repo.PreconditionError
	if errors.As(err, &precondition) {
		return http.StatusConflict
	}
	var load *engine.LoadError
	if errors.As(err, &load) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

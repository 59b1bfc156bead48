package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kurobon/revgraph/internal/config"
	"github.com/kurobon/revgraph/internal/engine"
	"github.com/kurobon/revgraph/internal/repo"
)

func newTestServer(t *testing.T) (*Server, *repo.Repo) {
	t.Helper()
	cfg := config.Default()
	session := engine.NewSession(cfg, zap.NewNop())
	r := repo.New(object.Signature{Name: "test", Email: "test@example.com", When: time.Unix(1700000000, 0)})
	require.NoError(t, session.AttachRepo(r))
	worker := engine.NewWorker(session, zap.NewNop())
	t.Cleanup(worker.Stop)
	return NewServer(worker, zap.NewNop()), r
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func TestHandlePing(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "pong", resp["message"])
}

func TestHandleMutate(t *testing.T) {
	s, r := newTestServer(t)

	w := postJSON(t, s, "/api/mutate", map[string]any{
		"kind":     "describe_revision",
		"revision": "@",
		"message":  "over the wire",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res engine.MutationResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, engine.ResultUpdated, res.Kind)
	require.NotNil(t, res.NewStatus)
	assert.Equal(t, "over the wire", r.WorkingCopy().Description)
}

func TestHandleMutateInputRequired(t *testing.T) {
	s, _ := newTestServer(t)

	w := postJSON(t, s, "/api/mutate", map[string]any{
		"kind":     "describe_revision",
		"revision": "@",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var res engine.MutationResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, engine.ResultInputRequired, res.Kind)
	assert.Equal(t, []string{"message"}, res.Request)
}

func TestHandleMutateUnknownKind(t *testing.T) {
	s, _ := newTestServer(t)
	w := postJSON(t, s, "/api/mutate", map[string]any{"kind": "frobnicate"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleMutateMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/mutate", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleQueryLogAndNext(t *testing.T) {
	s, _ := newTestServer(t)

	w := postJSON(t, s, "/api/query/log", map[string]string{"revset": "all()"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var page engine.LogPage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&page))
	assert.Len(t, page.Rows, 2) // root and working copy
	assert.False(t, page.HasMore)

	w = postJSON(t, s, "/api/query/log/next", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&page))
	assert.Empty(t, page.Rows)
}

func TestHandleQueryRevision(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/query/revision?id=@", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var header engine.RevHeader
	require.NoError(t, json.NewDecoder(w.Body).Decode(&header))
	assert.True(t, header.IsWorkingCopy)

	req = httptest.NewRequest(http.MethodGet, "/api/query/revision?id=nope", nil)
	w = httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleStatus(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/workspace/status", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var status engine.RepoStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, 2, status.CommitCount)
}

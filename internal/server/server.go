// Package server exposes the engine worker over HTTP. Every handler decodes
// a JSON request, forwards it to the worker, and encodes the reply; the
// worker serializes the actual work.
package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/kurobon/revgraph/internal/engine"
)

type Server struct {
	Worker *engine.Worker
	Mux    *http.ServeMux
	log    *zap.Logger
}

func NewServer(worker *engine.Worker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		Worker: worker,
		Mux:    http.NewServeMux(),
		log:    logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Mux.HandleFunc("/ping", s.handlePing)
	s.Mux.HandleFunc("/api/workspace/open", s.handleOpenWorkspace)
	s.Mux.HandleFunc("/api/workspace/status", s.handleStatus)
	s.Mux.HandleFunc("/api/query/log", s.handleQueryLog)
	s.Mux.HandleFunc("/api/query/log/next", s.handleQueryLogNext)
	s.Mux.HandleFunc("/api/query/revision", s.handleQueryRevision)
	s.Mux.HandleFunc("/api/mutate", s.handleMutate)
	s.Mux.HandleFunc("/api/trigger", s.handleTrigger)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Mux.ServeHTTP(w, r)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"message": "pong"})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("response encoding failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(map[string]string{"error": err.Error()}); encErr != nil {
		s.log.Error("response encoding failed", zap.Error(encErr))
	}
}

// Package controlapi implements the control API (component G): an HTTP
// surface, served by a gorilla/mux router, that lets an operator list,
// inspect, insert, and remove fault rules against a shared registry.Registry
// while the operations engine is serving FUSE requests against the same
// instance.
package controlapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bentsi/charybdisfs/internal/faults"
	"github.com/bentsi/charybdisfs/internal/logger"
	"github.com/bentsi/charybdisfs/internal/registry"
	"github.com/gorilla/mux"
)

// Server wraps an http.Server bound to a registry.Registry. When mounting,
// cmd/mount.go starts it on its own goroutine and never waits on it:
// shutdown is the parent process exiting, matching the "daemon thread"
// sequencing the CLI contract specifies. With --no-mount, runControlAPIOnly
// waits for either SIGINT or Serve's result.
type Server struct {
	http *http.Server
	reg  *registry.Registry
}

// New builds a Server listening on addr (e.g. "127.0.0.1:8080").
func New(addr string, reg *registry.Registry) *Server {
	s := &Server{reg: reg}

	router := mux.NewRouter()
	router.HandleFunc("/faults", s.handleList).Methods(http.MethodGet)
	router.HandleFunc("/faults", s.handleInsert).Methods(http.MethodPost)
	router.HandleFunc("/faults/{id}", s.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/faults/{id}", s.handleDelete).Methods(http.MethodDelete)

	s.http = &http.Server{Addr: addr, Handler: router}
	return s
}

// Serve runs the HTTP server, blocking until it is shut down or fails. The
// caller is expected to invoke this on its own goroutine.
func (s *Server) Serve() error {
	logger.Infof("control API listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listResponse{FaultIDs: s.reg.AllIDs()})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	f, ok := s.reg.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no fault with id %q", id))
		return
	}
	writeJSON(w, http.StatusOK, getResponse{FaultID: id, Fault: f.ToDict()})
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	var dict map[string]any
	if err := json.NewDecoder(r.Body).Decode(&dict); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("malformed fault dict: %s", err))
		return
	}

	f, ok := faults.FromDict(dict)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed fault dict")
		return
	}

	id, err := s.reg.Add(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, insertResponse{FaultID: id})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.reg.Remove(id); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no fault with id %q", id))
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{FaultID: id})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

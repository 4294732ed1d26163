// Package api serves read-only introspection of running trading groups over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/mux"
	"github.com/rxtech-lab/argo-tradlet/internal/group"
	"github.com/rxtech-lab/argo-tradlet/internal/journal"
	"github.com/rxtech-lab/argo-tradlet/internal/logger"
	"github.com/rxtech-lab/argo-tradlet/internal/playbook"
	"github.com/rxtech-lab/argo-tradlet/pkg/errors"
	"go.uber.org/zap"
)

// GroupSource publishes group snapshots. *group.Group implements it.
type GroupSource interface {
	ID() string
	Snapshot() *group.Snapshot
}

// TransitionStore reads journaled playbook transitions. *journal.DuckDBJournal implements it.
type TransitionStore interface {
	Transitions(groupID, playbookID string) ([]journal.TransitionRecord, error)
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// Server exposes group snapshots as JSON.
type Server struct {
	groups      map[string]GroupSource
	ids         []string
	transitions TransitionStore
	router      *mux.Router
	httpServer  *http.Server
	listener    net.Listener
	log         *logger.Logger
}

// NewServer creates a server for groups. transitions may be nil when journaling is disabled.
func NewServer(groups []GroupSource, transitions TransitionStore, log *logger.Logger) *Server {
	s := &Server{
		groups:      make(map[string]GroupSource, len(groups)),
		ids:         make([]string, 0, len(groups)),
		transitions: transitions,
		router:      mux.NewRouter(),
		httpServer:  nil,
		listener:    nil,
		log:         log.Named("api"),
	}

	for _, g := range groups {
		s.groups[g.ID()] = g
		s.ids = append(s.ids, g.ID())
	}

	slices.Sort(s.ids)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/groups", s.handleGroups).Methods("GET")
	s.router.HandleFunc("/groups/{group}", s.handleGroup).Methods("GET")
	s.router.HandleFunc("/groups/{group}/playbooks", s.handlePlaybooks).Methods("GET")
	s.router.HandleFunc("/groups/{group}/playbooks/{playbook}", s.handlePlaybook).Methods("GET")
	s.router.HandleFunc("/groups/{group}/playbooks/{playbook}/transitions", s.handleTransitions).Methods("GET")

	return s
}

// Handler returns the router, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on address and serves in the background.
// If address is empty or ":0", a random available port is used.
func (s *Server) Start(address string) error {
	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to listen on %s", address)
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("API server stopped", zap.Error(err))
		}
	}()

	s.log.Info("API server listening", zap.String("address", listener.Addr().String()))

	return nil
}

// Address returns the address the server is listening on.
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting for in-flight requests up to ctx.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGroups handles GET /groups
func (s *Server) handleGroups(w http.ResponseWriter, _ *http.Request) {
	snapshots := make([]*group.Snapshot, 0, len(s.ids))
	for _, id := range s.ids {
		if snap := s.groups[id].Snapshot(); snap != nil {
			snapshots = append(snapshots, snap)
		}
	}

	s.writeJSON(w, http.StatusOK, snapshots)
}

// handleGroup handles GET /groups/{group}
func (s *Server) handleGroup(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	s.writeJSON(w, http.StatusOK, snap)
}

// handlePlaybooks handles GET /groups/{group}/playbooks
// Every playbook is listed, terminal ones included, oldest first.
func (s *Server) handlePlaybooks(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	views := snap.Playbooks()
	slices.SortFunc(views, func(a, b playbook.View) int {
		if c := a.CreateTime.Compare(b.CreateTime); c != 0 {
			return c
		}

		if a.ID < b.ID {
			return -1
		}

		if a.ID > b.ID {
			return 1
		}

		return 0
	})

	s.writeJSON(w, http.StatusOK, views)
}

// handlePlaybook handles GET /groups/{group}/playbooks/{playbook}
func (s *Server) handlePlaybook(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}

	id := mux.Vars(r)["playbook"]

	view, ok := snap.Playbook(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, errors.Newf(errors.ErrCodeDataNotFound, "playbook %s not found", id))

		return
	}

	s.writeJSON(w, http.StatusOK, view)
}

// handleTransitions handles GET /groups/{group}/playbooks/{playbook}/transitions
func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if _, ok := s.groups[vars["group"]]; !ok {
		s.writeError(w, http.StatusNotFound, errors.Newf(errors.ErrCodeGroupNotFound, "group %s not found", vars["group"]))

		return
	}

	if s.transitions == nil {
		s.writeError(w, http.StatusNotImplemented, errors.New(errors.ErrCodeJournalFailed, "journal disabled"))

		return
	}

	records, err := s.transitions.Transitions(vars["group"], vars["playbook"])
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)

		return
	}

	if records == nil {
		records = []journal.TransitionRecord{}
	}

	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (*group.Snapshot, bool) {
	id := mux.Vars(r)["group"]

	g, ok := s.groups[id]
	if !ok {
		s.writeError(w, http.StatusNotFound, errors.Newf(errors.ErrCodeGroupNotFound, "group %s not found", id))

		return nil, false
	}

	snap := g.Snapshot()
	if snap == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.Newf(errors.ErrCodeGroupInitFailed, "group %s not initialized", id))

		return nil, false
	}

	return snap, true
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	var e *errors.Error

	body := ErrorResponse{Code: errors.GetCode(err), Message: err.Error()}
	if errors.As(err, &e) {
		body.Message = e.Message
	}

	s.writeJSON(w, status, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("Failed to write response", zap.Error(err))
	}
}

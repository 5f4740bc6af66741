package node

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"msgstore/internal/cluster"
	"msgstore/internal/replication"
	"msgstore/internal/storage"
	"msgstore/internal/telemetry"
)

// Replicator is the write-path contract the HTTP layer depends on.
type Replicator interface {
	Replicate(ctx context.Context, payload string, w int) error
}

// Server exposes the node's HTTP surface: the client-facing write/read
// endpoints, the peer replication endpoint, and the operational endpoints.
type Server struct {
	nodeID     string
	replicator Replicator
	store      storage.Store
	members    *cluster.Set
	log        *zap.SugaredLogger
}

// NewServer creates the HTTP handler set for one node.
func NewServer(nodeID string, replicator Replicator, store storage.Store,
	members *cluster.Set, log *zap.SugaredLogger) *Server {
	return &Server{
		nodeID:     nodeID,
		replicator: replicator,
		store:      store,
		members:    members,
		log:        log,
	}
}

// writeRequest is the body of POST /messages. A client write carries
// payload and w; a peer's replica write carries payload and the sequence
// assigned by the coordinating node.
type writeRequest struct {
	Payload  string `json:"payload"`
	W        int    `json:"w,omitempty"`
	Sequence uint64 `json:"sequence,omitempty"`
}

// Mux builds the instrumented request multiplexer.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/messages", telemetry.Instrument("messages", http.HandlerFunc(s.handleMessages)))
	mux.Handle("/healthz", http.HandlerFunc(s.handleHealthz))
	mux.Handle("/info", telemetry.Instrument("info", http.HandlerFunc(s.handleInfo)))
	mux.Handle("/metrics", telemetry.MetricsHandler())
	return mux
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleWrite(w, r)
	case http.MethodGet:
		s.handleRead(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Payload == "" {
		http.Error(w, "payload cannot be empty", http.StatusBadRequest)
		return
	}

	// A body carrying a sequence is a replica write from a coordinating
	// peer; the sequence is authoritative and the write is local only.
	if req.Sequence > 0 {
		s.handleReplicaWrite(w, req)
		return
	}

	err := s.replicator.Replicate(r.Context(), req.Payload, req.W)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, replication.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, replication.ErrUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleReplicaWrite(w http.ResponseWriter, req writeRequest) {
	msg := storage.Message{Payload: req.Payload, Sequence: req.Sequence}
	if err := s.store.Persist(msg); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			// Already applied: idempotent for the sender.
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Infof("Persisted replica %s", msg)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRead(w http.ResponseWriter, _ *http.Request) {
	resp := struct {
		Messages []string `json:"messages"`
	}{Messages: s.store.ReadAll()}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	resp := struct {
		NodeID   string `json:"node_id"`
		Members  int    `json:"members"`
		Messages int    `json:"messages"`
	}{
		NodeID:   s.nodeID,
		Members:  s.members.Len(),
		Messages: s.store.Len(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

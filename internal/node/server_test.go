package node

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"msgstore/internal/cluster"
	"msgstore/internal/replication"
	"msgstore/internal/storage"
)

// stubReplicator records the last write and returns a scripted error.
type stubReplicator struct {
	payload string
	w       int
	err     error
}

func (s *stubReplicator) Replicate(_ context.Context, payload string, w int) error {
	s.payload = payload
	s.w = w
	return s.err
}

func newTestServer(rep Replicator, store storage.Store) *Server {
	return NewServer("n1", rep, store, cluster.New([]string{"a:1"}), zap.NewNop().Sugar())
}

func postJSON(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)
	return rec
}

func TestHandleWrite_Success(t *testing.T) {
	rep := &stubReplicator{}
	srv := newTestServer(rep, storage.NewInMemoryStore())

	rec := postJSON(t, srv, `{"payload":"hello","w":2}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rep.payload)
	assert.Equal(t, 2, rep.w)
}

func TestHandleWrite_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid request", replication.ErrInvalidRequest, http.StatusBadRequest},
		{"unavailable", replication.ErrUnavailable, http.StatusServiceUnavailable},
		{"interrupted", replication.ErrInterrupted, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&stubReplicator{err: tt.err}, storage.NewInMemoryStore())
			rec := postJSON(t, srv, `{"payload":"hello","w":5}`)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestHandleWrite_EmptyPayloadRejected(t *testing.T) {
	rep := &stubReplicator{}
	srv := newTestServer(rep, storage.NewInMemoryStore())

	rec := postJSON(t, srv, `{"w":1}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rep.payload, "replicator must not be called")
}

func TestHandleWrite_MalformedBody(t *testing.T) {
	srv := newTestServer(&stubReplicator{}, storage.NewInMemoryStore())
	rec := postJSON(t, srv, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleReplicaWrite_PersistsWithSequence(t *testing.T) {
	store := storage.NewInMemoryStore()
	rep := &stubReplicator{}
	srv := newTestServer(rep, store)

	rec := postJSON(t, srv, `{"payload":"replica","sequence":7}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"replica"}, store.ReadAll())
	assert.Empty(t, rep.payload, "replica writes bypass the coordinator")
}

func TestHandleReplicaWrite_DuplicateConflicts(t *testing.T) {
	store := storage.NewInMemoryStore()
	srv := newTestServer(&stubReplicator{}, store)

	first := postJSON(t, srv, `{"payload":"replica","sequence":7}`)
	require.Equal(t, http.StatusOK, first.Code)

	second := postJSON(t, srv, `{"payload":"replica","sequence":7}`)
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, 1, store.Len())
}

func TestHandleRead_ReturnsOrderedPayloads(t *testing.T) {
	store := storage.NewInMemoryStore()
	require.NoError(t, store.Persist(storage.Message{Payload: "b", Sequence: 2}))
	require.NoError(t, store.Persist(storage.Message{Payload: "a", Sequence: 1}))
	srv := newTestServer(&stubReplicator{}, store)

	req := httptest.NewRequest(http.MethodGet, "/messages", nil)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []string `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"a", "b"}, resp.Messages)
}

func TestHandleMessages_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(&stubReplicator{}, storage.NewInMemoryStore())

	req := httptest.NewRequest(http.MethodDelete, "/messages", nil)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleHealthz(t *testing.T) {
	srv := newTestServer(&stubReplicator{}, storage.NewInMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestHandleInfo(t *testing.T) {
	store := storage.NewInMemoryStore()
	require.NoError(t, store.Persist(storage.Message{Payload: "a", Sequence: 1}))
	srv := newTestServer(&stubReplicator{}, store)

	req := httptest.NewRequest(http.MethodGet, "/info", nil)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		NodeID   string `json:"node_id"`
		Members  int    `json:"members"`
		Messages int    `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "n1", resp.NodeID)
	assert.Equal(t, 1, resp.Members)
	assert.Equal(t, 1, resp.Messages)
}

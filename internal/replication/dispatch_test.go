package replication

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"msgstore/internal/cluster"
	"msgstore/internal/storage"
)

// fakeChecker is a scriptable health collaborator.
type fakeChecker struct {
	mu      sync.Mutex
	quorum  bool
	healthy map[string]bool
	crashed map[string]bool
}

func newFakeChecker() *fakeChecker {
	return &fakeChecker{
		quorum:  true,
		healthy: make(map[string]bool),
		crashed: make(map[string]bool),
	}
}

func (f *fakeChecker) HasQuorum() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quorum
}

func (f *fakeChecker) IsHealthy(host string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy[host]
}

func (f *fakeChecker) IsCrashed(host string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.crashed[host]
}

func (f *fakeChecker) set(host string, healthy, crashed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy[host] = healthy
	f.crashed[host] = crashed
}

func (f *fakeChecker) setQuorum(q bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quorum = q
}

// fakeTransport returns scripted statuses/errors per host, with optional
// per-host latency, and counts calls.
type fakeTransport struct {
	mu     sync.Mutex
	status map[string]int
	errs   map[string]error
	delays map[string]time.Duration
	calls  map[string]int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		status: make(map[string]int),
		errs:   make(map[string]error),
		delays: make(map[string]time.Duration),
		calls:  make(map[string]int),
	}
}

func (f *fakeTransport) Persist(_ context.Context, host string, _ storage.Message) (int, error) {
	f.mu.Lock()
	f.calls[host]++
	d := f.delays[host]
	err := f.errs[host]
	status := f.status[host]
	f.mu.Unlock()

	if d > 0 {
		time.Sleep(d)
	}
	if err != nil {
		return 0, err
	}
	return status, nil
}

func (f *fakeTransport) delay(host string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays[host] = d
}

func (f *fakeTransport) callCount(host string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[host]
}

func newTestDispatcher(store storage.Store, tc *fakeTransport, checker *fakeChecker, members *cluster.Set) *Dispatcher {
	return NewDispatcher(store, tc, checker, members, 100*time.Millisecond, zap.NewNop().Sugar())
}

func TestDispatch_LocalAlwaysAcknowledged(t *testing.T) {
	store := storage.NewInMemoryStore()
	d := newTestDispatcher(store, newFakeTransport(), newFakeChecker(), cluster.New(nil))

	out := d.Persist(storage.Message{Payload: "x", Sequence: 1}, Local())
	if out.Class != Acknowledged {
		t.Fatalf("Expected local write acknowledged, got %+v", out)
	}
	if store.Len() != 1 {
		t.Errorf("Expected 1 stored message, got %d", store.Len())
	}
}

func TestDispatch_LocalDuplicateIdempotent(t *testing.T) {
	store := storage.NewInMemoryStore()
	d := newTestDispatcher(store, newFakeTransport(), newFakeChecker(), cluster.New(nil))

	msg := storage.Message{Payload: "x", Sequence: 1}
	d.Persist(msg, Local())
	out := d.Persist(msg, Local())

	if out.Class != Acknowledged {
		t.Fatalf("Expected duplicate local write acknowledged, got %+v", out)
	}
}

func TestDispatch_HealthyRemoteClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantClass   OutcomeClass
		wantFailure FailureKind
	}{
		{"200 acknowledges", 200, Acknowledged, 0},
		{"409 acknowledges", 409, Acknowledged, 0},
		{"500 terminal application", 500, Terminal, FailureApplication},
		{"404 terminal application", 404, Terminal, FailureApplication},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := newFakeChecker()
			checker.set("a:1", true, false)
			tc := newFakeTransport()
			tc.status["a:1"] = tt.status

			d := newTestDispatcher(storage.NewInMemoryStore(), tc, checker, cluster.New([]string{"a:1"}))
			out := d.Persist(storage.Message{Payload: "x", Sequence: 1}, Remote("a:1"))

			if out.Class != tt.wantClass {
				t.Fatalf("Expected class %v, got %+v", tt.wantClass, out)
			}
			if out.Class == Terminal && out.Failure != tt.wantFailure {
				t.Errorf("Expected failure %v, got %v", tt.wantFailure, out.Failure)
			}
		})
	}
}

func TestDispatch_TransportErrorIsRetryableConnection(t *testing.T) {
	checker := newFakeChecker()
	checker.set("a:1", true, false)
	tc := newFakeTransport()
	tc.errs["a:1"] = context.DeadlineExceeded

	d := newTestDispatcher(storage.NewInMemoryStore(), tc, checker, cluster.New([]string{"a:1"}))
	out := d.Persist(storage.Message{Payload: "x", Sequence: 1}, Remote("a:1"))

	if out.Class != Retryable || out.Failure != FailureConnection {
		t.Fatalf("Expected retryable connection failure, got %+v", out)
	}
}

func TestDispatch_SuspiciousSkipsNetworkCall(t *testing.T) {
	checker := newFakeChecker()
	checker.set("a:1", false, false) // unhealthy but not dead
	tc := newFakeTransport()

	d := newTestDispatcher(storage.NewInMemoryStore(), tc, checker, cluster.New([]string{"a:1"}))
	out := d.Persist(storage.Message{Payload: "x", Sequence: 1}, Remote("a:1"))

	if out.Class != Retryable || out.Failure != FailureSuspicious {
		t.Fatalf("Expected retryable suspicious failure, got %+v", out)
	}
	if tc.callCount("a:1") != 0 {
		t.Errorf("Expected no network call to a suspicious node, got %d", tc.callCount("a:1"))
	}
}

func TestDispatch_CrashedNodeRemovedFromMembership(t *testing.T) {
	checker := newFakeChecker()
	checker.set("a:1", false, true) // confirmed dead
	members := cluster.New([]string{"a:1", "b:1"})

	d := newTestDispatcher(storage.NewInMemoryStore(), newFakeTransport(), checker, members)
	out := d.Persist(storage.Message{Payload: "x", Sequence: 1}, Remote("a:1"))

	if out.Class != Terminal || out.Failure != FailureDeadNode {
		t.Fatalf("Expected terminal dead-node failure, got %+v", out)
	}
	if members.Contains("a:1") {
		t.Error("Expected dead node removed from membership")
	}
	if !members.Contains("b:1") {
		t.Error("Expected unrelated member untouched")
	}
}

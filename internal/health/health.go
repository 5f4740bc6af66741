package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"msgstore/internal/telemetry"
)

// Status represents the tracked state of a cluster peer.
type Status int

const (
	Alive Status = iota
	Suspect
	Dead
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case Alive:
		return "ALIVE"
	case Suspect:
		return "SUSPECT"
	case Dead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// Checker is the health contract consumed by the replication coordinator.
// Implementations must keep death monotone: once IsCrashed reports true for
// a host it must never report false again.
type Checker interface {
	// HasQuorum reports whether enough members are alive for the cluster
	// to accept writes.
	HasQuorum() bool
	// IsHealthy reports whether a peer is currently believed reachable.
	IsHealthy(host string) bool
	// IsCrashed reports whether a peer is confirmed permanently dead.
	IsCrashed(host string) bool
}

// ProbeFunc performs one liveness probe against a peer's health address.
// A nil return means the peer answered and reported itself serving.
type ProbeFunc func(ctx context.Context, healthAddr string) error

// peerHealth tracks one peer. Protected by the Tracker's mutex.
type peerHealth struct {
	healthAddr       string
	status           Status
	consecutiveFails int
	lastSeen         time.Time
}

// Tracker probes all configured peers on a fixed interval and maintains
// their Alive/Suspect/Dead statuses. Peers are keyed by their replication
// address; the health address is only used for probing.
type Tracker struct {
	mu    sync.RWMutex
	peers map[string]*peerHealth

	clusterSize  int // self + initially configured peers
	suspectAfter int // consecutive failures before Alive -> Suspect
	deadAfter    int // consecutive failures before Suspect -> Dead

	probeInterval time.Duration
	probeTimeout  time.Duration
	probeFn       ProbeFunc
	conns         *connCache

	log    *zap.SugaredLogger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTracker creates a tracker for the given peers, mapping replication
// address to health address. The probe function defaults to the gRPC health
// protocol client; tests override it with SetProbeFunc.
func NewTracker(peers map[string]string, probeInterval, probeTimeout time.Duration,
	suspectAfter, deadAfter int, log *zap.SugaredLogger) *Tracker {
	if probeInterval <= 0 {
		probeInterval = 1 * time.Second
	}
	if probeTimeout <= 0 {
		probeTimeout = 2 * time.Second
	}
	if suspectAfter <= 0 {
		suspectAfter = 3
	}
	if deadAfter <= suspectAfter {
		deadAfter = suspectAfter + 7
	}

	ctx, cancel := context.WithCancel(context.Background())

	t := &Tracker{
		peers:         make(map[string]*peerHealth, len(peers)),
		clusterSize:   len(peers) + 1,
		suspectAfter:  suspectAfter,
		deadAfter:     deadAfter,
		probeInterval: probeInterval,
		probeTimeout:  probeTimeout,
		conns:         newConnCache(),
		log:           log,
		ctx:           ctx,
		cancel:        cancel,
	}
	for addr, healthAddr := range peers {
		t.peers[addr] = &peerHealth{
			healthAddr: healthAddr,
			status:     Alive, // assume alive until probes say otherwise
			lastSeen:   time.Now(),
		}
	}
	t.probeFn = t.grpcProbe
	return t
}

// SetProbeFunc replaces the probe implementation. Must be called before
// Start.
func (t *Tracker) SetProbeFunc(fn ProbeFunc) {
	t.probeFn = fn
}

// Start launches the background probe loop.
func (t *Tracker) Start() {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.probeInterval)
		defer ticker.Stop()

		t.probeAll()
		for {
			select {
			case <-t.ctx.Done():
				return
			case <-ticker.C:
				t.probeAll()
			}
		}
	}()
}

// Stop terminates the probe loop and waits for it to exit.
func (t *Tracker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.conns.closeAll()
}

// probeAll probes every tracked peer once. Dead peers are skipped; they do
// not recover.
func (t *Tracker) probeAll() {
	t.mu.RLock()
	targets := make(map[string]string, len(t.peers))
	for addr, p := range t.peers {
		if p.status != Dead {
			targets[addr] = p.healthAddr
		}
	}
	t.mu.RUnlock()

	var wg sync.WaitGroup
	for addr, healthAddr := range targets {
		wg.Add(1)
		go func(addr, healthAddr string) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(t.ctx, t.probeTimeout)
			defer cancel()
			t.observe(addr, t.probeFn(ctx, healthAddr))
		}(addr, healthAddr)
	}
	wg.Wait()
}

// observe applies one probe result to a peer's state machine.
func (t *Tracker) observe(addr string, probeErr error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, exists := t.peers[addr]
	if !exists || p.status == Dead {
		return
	}

	if probeErr == nil {
		if p.status == Suspect {
			t.log.Infof("Peer %s is responsive again, marked ALIVE", addr)
		}
		p.status = Alive
		p.consecutiveFails = 0
		p.lastSeen = time.Now()
		return
	}

	p.consecutiveFails++
	switch {
	case p.status == Alive && p.consecutiveFails >= t.suspectAfter:
		p.status = Suspect
		t.log.Infof("Peer %s marked SUSPECT after %d consecutive probe failures: %v",
			addr, p.consecutiveFails, probeErr)
	case p.status == Suspect && p.consecutiveFails >= t.deadAfter:
		p.status = Dead
		telemetry.PeersConfirmedDead.Inc()
		t.log.Warnf("Peer %s marked DEAD after %d consecutive probe failures", addr, p.consecutiveFails)
	}
}

// HasQuorum implements Checker. The local node always counts as alive.
func (t *Tracker) HasQuorum() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	alive := 1
	for _, p := range t.peers {
		if p.status == Alive {
			alive++
		}
	}
	return alive >= t.clusterSize/2+1
}

// IsHealthy implements Checker.
func (t *Tracker) IsHealthy(host string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, exists := t.peers[host]
	return exists && p.status == Alive
}

// IsCrashed implements Checker.
func (t *Tracker) IsCrashed(host string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, exists := t.peers[host]
	return exists && p.status == Dead
}

// StatusOf returns the tracked status of a peer, for the info endpoint.
func (t *Tracker) StatusOf(host string) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, exists := t.peers[host]
	if !exists {
		return Alive, false
	}
	return p.status, true
}

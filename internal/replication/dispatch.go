package replication

import (
	"context"
	"time"

	"go.uber.org/zap"

	"msgstore/internal/cluster"
	"msgstore/internal/health"
	"msgstore/internal/storage"
	"msgstore/internal/telemetry"
	"msgstore/internal/transport"
)

// localHost is the distinguished target name for the node's own store.
const localHost = "local"

// Target is one replication destination: the local store or a remote peer.
type Target struct {
	Host string
}

// Local returns the distinguished local target.
func Local() Target {
	return Target{Host: localHost}
}

// Remote returns a target for a peer's replication address.
func Remote(host string) Target {
	return Target{Host: host}
}

// IsLocal reports whether the target is the local store.
func (t Target) IsLocal() bool {
	return t.Host == localHost
}

// Dispatcher performs one persistence attempt against one target. Remote
// attempts are gated on the peer's health; a peer confirmed crashed is
// removed from membership on the spot.
type Dispatcher struct {
	store     storage.Store
	transport transport.Client
	health    health.Checker
	members   *cluster.Set
	timeout   time.Duration
	log       *zap.SugaredLogger
}

// NewDispatcher wires a dispatcher. timeout bounds each remote request.
func NewDispatcher(store storage.Store, tc transport.Client, checker health.Checker,
	members *cluster.Set, timeout time.Duration, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		transport: tc,
		health:    checker,
		members:   members,
		timeout:   timeout,
		log:       log,
	}
}

// Persist runs one attempt and classifies it. Invoked repeatedly by the
// coordinator's retry loop; it performs no retries of its own.
func (d *Dispatcher) Persist(msg storage.Message, target Target) Outcome {
	if target.IsLocal() {
		return d.persistLocal(msg)
	}
	return d.persistRemote(msg, target.Host)
}

// persistLocal writes to the local store. Local writes are assumed to not
// transiently fail at this layer; a duplicate sequence is idempotent.
func (d *Dispatcher) persistLocal(msg storage.Message) Outcome {
	if err := d.store.Persist(msg); err != nil {
		d.log.Infof("Local persist of %s: %v", msg, err)
	}
	return acknowledged(0)
}

func (d *Dispatcher) persistRemote(msg storage.Message, host string) Outcome {
	if d.health.IsHealthy(host) {
		return d.request(msg, host)
	}

	d.log.Infof("Peer %s is not responsive, message = %s", host, msg)
	if d.health.IsCrashed(host) {
		if d.members.Remove(host) {
			telemetry.DeadNodeRemovals.Inc()
			d.log.Warnf("Host %s is dead and removed from cluster", host)
		}
		return terminal(FailureDeadNode, 0)
	}
	return retryable(FailureSuspicious)
}

// request issues the network persistence call with a bounded timeout.
// Timeouts and transport errors are connection failures; responses are
// classified by status.
func (d *Dispatcher) request(msg storage.Message, host string) Outcome {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	status, err := d.transport.Persist(ctx, host, msg)
	if err != nil {
		d.log.Infof("Persist to %s failed: %v", host, err)
		return retryable(FailureConnection)
	}

	d.log.Infof("Status = %d, message = %s, host = %s", status, msg, host)
	return classifyStatus(status)
}

package replication

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"msgstore/internal/clock"
	"msgstore/internal/cluster"
	"msgstore/internal/health"
	"msgstore/internal/storage"
	"msgstore/internal/telemetry"
)

// call tracks one replication request's settlements. The counter starts at
// W; the settlement that brings it to zero closes done exactly once.
// Settlements past W keep decrementing below zero with no further effect.
type call struct {
	remaining atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
}

func newCall(w int) *call {
	c := &call{done: make(chan struct{})}
	c.remaining.Store(int64(w))
	return c
}

func (c *call) settle() {
	if c.remaining.Add(-1) == 0 {
		c.closeOnce.Do(func() { close(c.done) })
	}
}

// wait blocks until W settlements have occurred, the overall deadline
// expires, the caller abandons the wait, or the coordinator shuts down. A
// zero timeout disables the deadline. The two channels exist so a parked
// wait never outlives its caller or wedges Pool.Close.
func (c *call) wait(timeout time.Duration, abandoned, shutdown <-chan struct{}) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-c.done:
		return nil
	case <-expired:
		return errors.Wrapf(ErrUnavailable, "quorum wait expired after %s", timeout)
	case <-abandoned:
		return errors.Wrap(ErrInterrupted, "caller abandoned the wait")
	case <-shutdown:
		return errors.Wrap(ErrInterrupted, "coordinator is shut down")
	}
}

// targetState is one target's retry lifetime: the per-tier attempt counters
// and an idempotent settlement guard.
type targetState struct {
	attempts Attempts
	settled  atomic.Bool
}

// settle decrements the call's counter exactly once per target, no matter
// how retries and terminal failures race.
func (s *targetState) settle(cl *call, kind string) {
	if s.settled.CompareAndSwap(false, true) {
		telemetry.SettlementsTotal.WithLabelValues(kind).Inc()
		cl.settle()
	}
}

// Coordinator orchestrates quorum writes. One instance runs per node.
type Coordinator struct {
	clock        clock.Clock
	members      *cluster.Set
	health       health.Checker
	dispatcher   *Dispatcher
	policy       Policy
	dispatchPool *Pool
	waitPool     *Pool
	waitTimeout  time.Duration
	log          *zap.SugaredLogger
}

// NewCoordinator wires a coordinator over its collaborators. waitTimeout
// bounds the quorum wait; zero disables the bound.
func NewCoordinator(clk clock.Clock, members *cluster.Set, checker health.Checker,
	dispatcher *Dispatcher, policy Policy, dispatchWorkers, waitWorkers int,
	waitTimeout time.Duration, log *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		clock:        clk,
		members:      members,
		health:       checker,
		dispatcher:   dispatcher,
		policy:       policy,
		dispatchPool: NewPool(dispatchWorkers),
		waitPool:     NewPool(waitWorkers),
		waitTimeout:  waitTimeout,
		log:          log,
	}
}

// Replicate submits a payload for replication with concern w and blocks
// until w targets have settled (acknowledged or terminally failed), in any
// order. Targets still in flight at that point continue in the background
// with no effect on this call.
//
// Pre-dispatch rejections: ErrUnavailable without cluster quorum,
// ErrInvalidRequest when w is not in [1, local+peers]. Neither has side
// effects. ErrInterrupted reports a caller context cancelled mid-wait.
func (c *Coordinator) Replicate(ctx context.Context, payload string, w int) error {
	if !c.health.HasQuorum() {
		telemetry.WritesTotal.WithLabelValues("unavailable").Inc()
		return errors.Wrap(ErrUnavailable, "write operation deprecated until quorum is reached")
	}

	remotes := c.members.Snapshot()
	maxAcknowledgers := len(remotes) + 1
	if w < 1 || w > maxAcknowledgers {
		telemetry.WritesTotal.WithLabelValues("invalid").Inc()
		c.log.Infof("Rejecting write: replication concern %d exceeds %d possible acknowledgers", w, maxAcknowledgers)
		return errors.Wrapf(ErrInvalidRequest,
			"replication concern %d outside valid range [1, %d]", w, maxAcknowledgers)
	}

	msg := storage.Message{Payload: payload, Sequence: c.clock.Next()}
	c.log.Infof("Sending message %s with concern %d", msg, w)

	cl := newCall(w)
	c.startTarget(cl, Local(), msg)
	for _, host := range remotes {
		c.startTarget(cl, Remote(host), msg)
	}

	return c.await(ctx, cl)
}

// Close shuts down the worker pools. Replicate must not be called after
// Close; in-flight background retries are dropped.
func (c *Coordinator) Close() {
	c.dispatchPool.Close()
	c.waitPool.Close()
}

// startTarget schedules the first attempt of one target's dispatch+retry
// sequence on the dispatch pool.
func (c *Coordinator) startTarget(cl *call, target Target, msg storage.Message) {
	st := &targetState{}
	c.dispatchPool.Submit(func() { c.attempt(cl, st, target, msg) })
}

// attempt runs one dispatch and either settles the target or schedules the
// next attempt after the tier's delay. Delays are scheduled off-pool so a
// backing-off target never occupies a worker.
func (c *Coordinator) attempt(cl *call, st *targetState, target Target, msg storage.Message) {
	out := c.dispatcher.Persist(msg, target)

	switch out.Class {
	case Acknowledged:
		st.settle(cl, "ack")

	case Terminal:
		st.settle(cl, out.Failure.String())

	case Retryable:
		decision := c.policy.Decide(out.Failure, st.attempts)
		if !decision.Retry {
			c.log.Infof("Giving up on %s after %d suspicious and %d connection retries",
				target.Host, st.attempts.Suspicious, st.attempts.Connection)
			st.settle(cl, "exhausted")
			return
		}

		switch out.Failure {
		case FailureSuspicious:
			st.attempts.Suspicious++
		case FailureConnection:
			st.attempts.Connection++
		}
		telemetry.RetriesTotal.WithLabelValues(out.Failure.String()).Inc()

		time.AfterFunc(decision.Delay, func() {
			c.dispatchPool.Submit(func() { c.attempt(cl, st, target, msg) })
		})
	}
}

// await parks the quorum wait on the dedicated wait pool and relays the
// result to the caller. The caller's context cancelling first surfaces as
// ErrInterrupted and releases the parked worker, so abandoned calls never
// pin wait-pool capacity.
func (c *Coordinator) await(ctx context.Context, cl *call) error {
	abandoned := make(chan struct{})
	defer close(abandoned)

	result := make(chan error, 1)
	submitted := c.waitPool.Submit(func() {
		result <- cl.wait(c.waitTimeout, abandoned, c.waitPool.Done())
	})
	if !submitted {
		telemetry.WritesTotal.WithLabelValues("interrupted").Inc()
		return errors.Wrap(ErrInterrupted, "coordinator is shut down")
	}

	select {
	case err := <-result:
		switch {
		case err == nil:
			telemetry.WritesTotal.WithLabelValues("ok").Inc()
			return nil
		case errors.Is(err, ErrInterrupted):
			telemetry.WritesTotal.WithLabelValues("interrupted").Inc()
			return err
		default:
			telemetry.WritesTotal.WithLabelValues("unavailable").Inc()
			return err
		}
	case <-ctx.Done():
		telemetry.WritesTotal.WithLabelValues("interrupted").Inc()
		return errors.Wrapf(ErrInterrupted, "failed while waiting for settlements: %v", ctx.Err())
	}
}

package replication

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

// Caller-visible failures. Per-target failures never surface individually;
// only these aggregate outcomes (or nil) are returned by Replicate.
var (
	// ErrInvalidRequest rejects a write whose replication concern exceeds
	// the number of possible acknowledgers, before any dispatch.
	ErrInvalidRequest = errors.New("replication: invalid request")

	// ErrUnavailable rejects a write while the cluster lacks quorum, and
	// reports a quorum wait that exceeded its deadline.
	ErrUnavailable = errors.New("replication: cluster unavailable")

	// ErrInterrupted reports a caller wait cut short by the runtime
	// (context cancellation) rather than by settlements.
	ErrInterrupted = errors.New("replication: wait interrupted")
)

// FailureKind classifies a failed dispatch attempt.
type FailureKind int

const (
	// FailureConnection covers transport errors and request timeouts
	// against a healthy peer. Transient; retried on the general tier.
	FailureConnection FailureKind = iota
	// FailureSuspicious marks a peer currently reported unhealthy but not
	// confirmed dead. No network call is made; retried on the slow tier.
	FailureSuspicious
	// FailureDeadNode marks a peer confirmed crashed. Terminal: the peer
	// is removed from membership and never retried.
	FailureDeadNode
	// FailureApplication marks a non-conflict 4xx/5xx from the peer.
	// Terminal for the target: ambiguous application errors are not
	// assumed transient.
	FailureApplication
)

// String returns the metric/log label for the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureConnection:
		return "connection"
	case FailureSuspicious:
		return "suspicious"
	case FailureDeadNode:
		return "dead_node"
	case FailureApplication:
		return "application"
	default:
		return "unknown"
	}
}

// OutcomeClass is the top-level classification of one dispatch attempt.
type OutcomeClass int

const (
	Acknowledged OutcomeClass = iota
	Retryable
	Terminal
)

// Outcome is the result of a single dispatch attempt against one target.
// Across its whole retry lifetime every target yields exactly one terminal
// outcome (Acknowledged or Terminal), and that outcome settles the call's
// counter exactly once.
type Outcome struct {
	Class   OutcomeClass
	Failure FailureKind // meaningful only for Retryable and Terminal
	Status  int         // HTTP status of the attempt, when one was made
}

func acknowledged(status int) Outcome {
	return Outcome{Class: Acknowledged, Status: status}
}

func retryable(kind FailureKind) Outcome {
	return Outcome{Class: Retryable, Failure: kind}
}

func terminal(kind FailureKind, status int) Outcome {
	return Outcome{Class: Terminal, Failure: kind, Status: status}
}

// classifyStatus maps a peer's HTTP response onto an outcome: any 2xx, or a
// 409 conflict (message already applied, idempotent), acknowledges the
// write; everything else is a terminal application failure.
func classifyStatus(status int) Outcome {
	if status >= 200 && status < 300 || status == http.StatusConflict {
		return acknowledged(status)
	}
	return terminal(FailureApplication, status)
}

package replication

import (
	"time"
)

// Attempts counts the retries already consumed by one target, split by the
// tier that consumed them.
type Attempts struct {
	Suspicious int
	Connection int
}

// Decision is the retry policy's verdict for one failed attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
}

var giveUp = Decision{}

// Policy drives bounded re-attempts for a single target. Two tiers compose
// over one attempt sequence: suspicious-node failures back off on the long
// SuspiciousPeriod, connection failures on the general RetryPeriod, each
// with its own budget of Attempts retries. Dead-node and application
// failures are never retried.
type Policy struct {
	Attempts         int
	RetryPeriod      time.Duration
	SuspiciousPeriod time.Duration
}

// Decide classifies one failure into retry-after-delay or give-up. Pure:
// all state lives in the caller's Attempts counters.
func (p Policy) Decide(kind FailureKind, a Attempts) Decision {
	switch kind {
	case FailureSuspicious:
		if a.Suspicious >= p.Attempts {
			return giveUp
		}
		return Decision{Retry: true, Delay: p.SuspiciousPeriod}
	case FailureConnection:
		if a.Connection >= p.Attempts {
			return giveUp
		}
		return Decision{Retry: true, Delay: p.RetryPeriod}
	default:
		// FailureDeadNode, FailureApplication: terminal by definition.
		return giveUp
	}
}

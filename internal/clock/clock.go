package clock

import (
	"sync/atomic"
)

// Clock issues sequence numbers for a single coordinator instance.
// Values are strictly increasing and unique for the lifetime of the
// instance. They are not persisted and carry no cluster-wide ordering.
type Clock interface {
	// Next returns a value strictly greater than every value previously
	// returned by this instance. Safe for concurrent use.
	Next() uint64

	// Current returns the last issued value without advancing the clock.
	Current() uint64
}

// SequenceClock is the atomic implementation of Clock.
type SequenceClock struct {
	counter atomic.Uint64
}

// New creates a SequenceClock starting at zero; the first Next returns 1.
func New() *SequenceClock {
	return &SequenceClock{}
}

// Next implements Clock.
func (c *SequenceClock) Next() uint64 {
	return c.counter.Add(1)
}

// Current implements Clock.
func (c *SequenceClock) Current() uint64 {
	return c.counter.Load()
}

package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrDuplicate is returned when a message with the same sequence number has
// already been applied. Callers treat it as a conflict, not a data error.
var ErrDuplicate = errors.New("storage: message already applied")

// Message is the immutable record replicated across the cluster. It is
// created once by the coordinator and never mutated afterwards.
type Message struct {
	Payload  string `json:"payload"`
	Sequence uint64 `json:"sequence"`
}

// String implements fmt.Stringer for log lines.
func (m Message) String() string {
	return fmt.Sprintf("Message{seq=%d, payload=%q}", m.Sequence, m.Payload)
}

// Store defines the interface for the local message log.
type Store interface {
	// Persist appends a message. Returns ErrDuplicate if the sequence
	// number has already been applied.
	Persist(msg Message) error
	// ReadAll returns all payloads ordered by sequence number.
	ReadAll() []string
	// Len returns the number of stored messages.
	Len() int
}

// InMemoryStore is an in-memory implementation of Store. Thread-safe.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[uint64]string
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data: make(map[uint64]string),
	}
}

// Persist appends a message, rejecting duplicated sequence numbers.
func (s *InMemoryStore) Persist(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[msg.Sequence]; exists {
		return errors.Wrapf(ErrDuplicate, "sequence %d", msg.Sequence)
	}
	s.data[msg.Sequence] = msg.Payload
	return nil
}

// ReadAll returns all payloads ordered by sequence number.
func (s *InMemoryStore) ReadAll() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seqs := make([]uint64, 0, len(s.data))
	for seq := range s.data {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	payloads := make([]string, 0, len(seqs))
	for _, seq := range seqs {
		payloads = append(payloads, s.data[seq])
	}
	return payloads
}

// Len returns the number of stored messages.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data)
}

package cluster

import (
	"sort"
	"sync"
)

// Set is a concurrency-safe set of remote peer addresses.
//
// Reads take copy-on-read snapshots so one replication call's target set is
// stable for the call's duration while removals still affect later calls.
type Set struct {
	mu    sync.RWMutex
	hosts map[string]struct{}
}

// New creates a Set containing the given hosts.
func New(hosts []string) *Set {
	s := &Set{hosts: make(map[string]struct{}, len(hosts))}
	for _, h := range hosts {
		s.hosts[h] = struct{}{}
	}
	return s
}

// Snapshot returns a sorted copy of the current members. Later removals do
// not affect the returned slice.
func (s *Set) Snapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hosts := make([]string, 0, len(s.hosts))
	for h := range s.hosts {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// Remove deletes a host from the set. Idempotent; returns true only for the
// call that actually removed it.
func (s *Set) Remove(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.hosts[host]; !ok {
		return false
	}
	delete(s.hosts, host)
	return true
}

// Contains reports whether host is currently a member.
func (s *Set) Contains(host string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.hosts[host]
	return ok
}

// Len returns the current member count.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.hosts)
}

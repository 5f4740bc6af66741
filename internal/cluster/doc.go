// Package cluster holds the mutable set of replication targets.
//
// The set is seeded from configuration and only ever shrinks: a peer the
// health tracker confirms dead is removed permanently and never dispatched
// to again. Rejoin and discovery are out of scope.
package cluster

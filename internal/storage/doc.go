// Package storage implements the local message log consumed by the
// replication coordinator.
package storage

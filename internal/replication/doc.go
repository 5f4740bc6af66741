// Package replication implements the quorum-write coordination logic: the
// coordinator fans a message out to the local store and all known peers,
// each target runs a health-aware dispatch with tiered retries, and the
// caller is released the instant W targets have settled.
package replication

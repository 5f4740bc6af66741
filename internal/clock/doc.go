// Package clock provides the per-coordinator logical clock used to
// assign sequence numbers to messages.
package clock

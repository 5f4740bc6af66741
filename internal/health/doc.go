// Package health tracks peer liveness and cluster quorum.
//
// A background loop probes every peer over the standard gRPC health
// protocol. Consecutive probe failures promote a peer from Alive to Suspect
// and from Suspect to Dead; death is terminal. The replication coordinator
// consults the tracker through the Checker interface before every dispatch.
package health

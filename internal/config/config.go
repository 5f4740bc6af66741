package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Defaults for the replication tuning knobs. The pool sizes and the
// suspicious-node retry period rarely need changing; the rest is routinely
// overridden per environment.
const (
	DefaultRetryAttempts         = 3
	DefaultRequestTimeout        = 2 * time.Second
	DefaultRetryPeriod           = 1 * time.Second
	DefaultSuspiciousRetryPeriod = 30 * time.Second
	DefaultProbeInterval         = 1 * time.Second
	DefaultProbeTimeout          = 2 * time.Second
	DefaultSuspectAfter          = 3
	DefaultDeadAfter             = 10
	DefaultQuorumWaitTimeout     = 60 * time.Second
	DefaultDispatchWorkers       = 50
	DefaultWaitWorkers           = 50
)

// Peer represents a peer node in the cluster. Addr is the replication
// (HTTP) address, HealthAddr the gRPC health-check address.
type Peer struct {
	ID         string
	Addr       string
	HealthAddr string
}

// Config holds the node configuration.
type Config struct {
	NodeID           string
	ListenAddr       string
	HealthListenAddr string
	Peers            []Peer

	// Replication tuning.
	RetryAttempts         int
	RequestTimeout        time.Duration
	RetryPeriod           time.Duration
	SuspiciousRetryPeriod time.Duration

	// Quorum wait. Zero disables the overall deadline; the wait then blocks
	// until W settlements arrive, however long that takes.
	QuorumWaitTimeout time.Duration

	// Health probing.
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	SuspectAfter  int
	DeadAfter     int

	// Worker pool sizes.
	DispatchWorkers int
	WaitWorkers     int
}

// Default returns a Config populated with the default tuning values.
// Identity, addresses and peers must still be filled in by the caller.
func Default() Config {
	return Config{
		RetryAttempts:         DefaultRetryAttempts,
		RequestTimeout:        DefaultRequestTimeout,
		RetryPeriod:           DefaultRetryPeriod,
		SuspiciousRetryPeriod: DefaultSuspiciousRetryPeriod,
		QuorumWaitTimeout:     DefaultQuorumWaitTimeout,
		ProbeInterval:         DefaultProbeInterval,
		ProbeTimeout:          DefaultProbeTimeout,
		SuspectAfter:          DefaultSuspectAfter,
		DeadAfter:             DefaultDeadAfter,
		DispatchWorkers:       DefaultDispatchWorkers,
		WaitWorkers:           DefaultWaitWorkers,
	}
}

// ParsePeers parses a comma-separated list of peers in the format:
// "id1=addr1=healthAddr1,id2=addr2=healthAddr2"
func ParsePeers(peersStr string) ([]Peer, error) {
	if peersStr == "" {
		return []Peer{}, nil
	}

	parts := strings.Split(peersStr, ",")
	peers := make([]Peer, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		fields := strings.SplitN(part, "=", 3)
		if len(fields) != 3 {
			return nil, errors.Newf("invalid peer format: %s (expected id=addr=healthAddr)", part)
		}

		id := strings.TrimSpace(fields[0])
		addr := strings.TrimSpace(fields[1])
		healthAddr := strings.TrimSpace(fields[2])

		if id == "" || addr == "" || healthAddr == "" {
			return nil, errors.Newf("peer ID and addresses cannot be empty: %s", part)
		}

		peers = append(peers, Peer{
			ID:         id,
			Addr:       addr,
			HealthAddr: healthAddr,
		})
	}

	return peers, nil
}

// Validate checks the configuration for values the node cannot run with.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return errors.New("node ID cannot be empty")
	}
	if c.ListenAddr == "" {
		return errors.New("listen address cannot be empty")
	}
	if c.HealthListenAddr == "" {
		return errors.New("health listen address cannot be empty")
	}
	if c.RetryAttempts < 0 {
		return errors.Newf("retry attempts cannot be negative: %d", c.RetryAttempts)
	}
	if c.RequestTimeout <= 0 {
		return errors.Newf("request timeout must be positive: %s", c.RequestTimeout)
	}
	if c.DispatchWorkers <= 0 || c.WaitWorkers <= 0 {
		return errors.Newf("worker pool sizes must be positive: dispatch=%d wait=%d",
			c.DispatchWorkers, c.WaitWorkers)
	}
	for _, p := range c.Peers {
		if p.ID == c.NodeID {
			return errors.Newf("peer list must not contain the local node: %s", p.ID)
		}
	}
	return nil
}

// PeerAddrs returns the replication addresses of all configured peers.
func (c *Config) PeerAddrs() []string {
	addrs := make([]string, 0, len(c.Peers))
	for _, p := range c.Peers {
		addrs = append(addrs, p.Addr)
	}
	return addrs
}

// HealthAddrs maps each peer's replication address to its health address.
func (c *Config) HealthAddrs() map[string]string {
	m := make(map[string]string, len(c.Peers))
	for _, p := range c.Peers {
		m[p.Addr] = p.HealthAddr
	}
	return m
}

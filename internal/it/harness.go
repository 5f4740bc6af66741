// Package it provides an in-process cluster harness for integration tests.
package it

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"msgstore/internal/config"
	"msgstore/internal/node"
)

// Cluster is a set of in-process nodes bound to loopback ports.
type Cluster struct {
	Nodes []*node.Node
	log   *zap.SugaredLogger
}

// NewCluster starts size nodes, each knowing every other as a peer.
func NewCluster(size int, tune func(*config.Config)) (*Cluster, error) {
	if size < 1 {
		return nil, errors.Newf("cluster size must be positive: %d", size)
	}

	log := zap.NewNop().Sugar()

	// Reserve an HTTP and a health port per node up front so every node
	// can be configured with the full peer list before any of them start.
	type slot struct {
		id         string
		addr       string
		healthAddr string
	}
	slots := make([]slot, size)
	for i := range slots {
		addr, err := reservePort()
		if err != nil {
			return nil, err
		}
		healthAddr, err := reservePort()
		if err != nil {
			return nil, err
		}
		slots[i] = slot{id: fmt.Sprintf("n%d", i+1), addr: addr, healthAddr: healthAddr}
	}

	c := &Cluster{log: log}
	for i, self := range slots {
		cfg := config.Default()
		cfg.NodeID = self.id
		cfg.ListenAddr = self.addr
		cfg.HealthListenAddr = self.healthAddr
		cfg.ProbeInterval = 50 * time.Millisecond
		cfg.ProbeTimeout = 200 * time.Millisecond
		cfg.RetryPeriod = 50 * time.Millisecond
		cfg.QuorumWaitTimeout = 10 * time.Second
		for j, peer := range slots {
			if j == i {
				continue
			}
			cfg.Peers = append(cfg.Peers, config.Peer{
				ID: peer.id, Addr: peer.addr, HealthAddr: peer.healthAddr,
			})
		}
		if tune != nil {
			tune(&cfg)
		}

		n, err := node.New(cfg, log)
		if err != nil {
			c.Stop()
			return nil, errors.Wrapf(err, "node %s", self.id)
		}
		if err := n.Start(); err != nil {
			c.Stop()
			return nil, errors.Wrapf(err, "start node %s", self.id)
		}
		c.Nodes = append(c.Nodes, n)
	}
	return c, nil
}

// Stop shuts every node down.
func (c *Cluster) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, n := range c.Nodes {
		n.Stop(ctx)
	}
}

// reservePort grabs a free loopback port and releases it for the node to
// re-bind. Racy in principle, fine for tests.
func reservePort() (string, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", errors.Wrap(err, "reserve port")
	}
	addr := lis.Addr().String()
	_ = lis.Close()
	return addr, nil
}

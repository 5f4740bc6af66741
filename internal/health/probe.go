package health

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// connCache caches gRPC client connections to peer health endpoints.
// gRPC connections reconnect internally, so one connection per peer is
// enough for the lifetime of a tracker.
type connCache struct {
	mu    sync.RWMutex
	conns map[string]*grpc.ClientConn
}

func newConnCache() *connCache {
	return &connCache{conns: make(map[string]*grpc.ClientConn)}
}

// get returns a cached connection, creating one if needed.
func (c *connCache) get(healthAddr string) (*grpc.ClientConn, error) {
	c.mu.RLock()
	conn, exists := c.conns[healthAddr]
	c.mu.RUnlock()

	if exists {
		return conn, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock.
	if conn, exists := c.conns[healthAddr]; exists {
		return conn, nil
	}

	conn, err := grpc.NewClient(healthAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", healthAddr)
	}
	c.conns[healthAddr] = conn
	return conn, nil
}

func (c *connCache) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for addr, conn := range c.conns {
		_ = conn.Close()
		delete(c.conns, addr)
	}
}

// grpcProbe checks a peer using the standard gRPC health protocol
// (grpc.health.v1.Health/Check). Any transport error or a non-SERVING
// response counts as a failed probe.
func (t *Tracker) grpcProbe(ctx context.Context, healthAddr string) error {
	conn, err := t.conns.get(healthAddr)
	if err != nil {
		return err
	}

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return errors.Wrapf(err, "health check %s", healthAddr)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return errors.Newf("peer %s reports status %s", healthAddr, resp.GetStatus())
	}
	return nil
}

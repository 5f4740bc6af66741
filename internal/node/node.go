package node

import (
	"context"
	"net"
	"net/http"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"msgstore/internal/clock"
	"msgstore/internal/cluster"
	"msgstore/internal/config"
	"msgstore/internal/health"
	"msgstore/internal/replication"
	"msgstore/internal/storage"
	"msgstore/internal/transport"
)

// Node wires one msgstore instance: the replication coordinator, its
// collaborators, the HTTP surface, and the gRPC health endpoint peers probe.
type Node struct {
	cfg config.Config
	log *zap.SugaredLogger

	store       storage.Store
	members     *cluster.Set
	tracker     *health.Tracker
	coordinator *replication.Coordinator

	httpListener net.Listener
	httpServer   *http.Server
	grpcListener net.Listener
	grpcServer   *grpc.Server
}

// New builds a node from its configuration.
func New(cfg config.Config, log *zap.SugaredLogger) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	store := storage.NewInMemoryStore()
	members := cluster.New(cfg.PeerAddrs())
	tracker := health.NewTracker(cfg.HealthAddrs(), cfg.ProbeInterval, cfg.ProbeTimeout,
		cfg.SuspectAfter, cfg.DeadAfter, log)

	dispatcher := replication.NewDispatcher(store, transport.NewHTTPClient(), tracker,
		members, cfg.RequestTimeout, log)
	policy := replication.Policy{
		Attempts:         cfg.RetryAttempts,
		RetryPeriod:      cfg.RetryPeriod,
		SuspiciousPeriod: cfg.SuspiciousRetryPeriod,
	}
	coordinator := replication.NewCoordinator(clock.New(), members, tracker, dispatcher,
		policy, cfg.DispatchWorkers, cfg.WaitWorkers, cfg.QuorumWaitTimeout, log)

	server := NewServer(cfg.NodeID, coordinator, store, members, log)

	return &Node{
		cfg:         cfg,
		log:         log,
		store:       store,
		members:     members,
		tracker:     tracker,
		coordinator: coordinator,
		httpServer:  &http.Server{Handler: server.Mux()},
		grpcServer:  grpc.NewServer(),
	}, nil
}

// Start binds both listeners and begins serving. It returns once the node
// is accepting connections; serving continues in the background.
func (n *Node) Start() error {
	grpcLis, err := net.Listen("tcp", n.cfg.HealthListenAddr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", n.cfg.HealthListenAddr)
	}
	n.grpcListener = grpcLis

	hs := grpchealth.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(n.grpcServer, hs)

	httpLis, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		_ = grpcLis.Close()
		return errors.Wrapf(err, "failed to listen on %s", n.cfg.ListenAddr)
	}
	n.httpListener = httpLis

	n.tracker.Start()

	go func() {
		if err := n.grpcServer.Serve(grpcLis); err != nil {
			n.log.Errorf("Health server stopped: %v", err)
		}
	}()
	go func() {
		if err := n.httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.log.Errorf("HTTP server stopped: %v", err)
		}
	}()

	n.log.Infof("[%s] Node serving HTTP on %s, health on %s",
		n.cfg.NodeID, httpLis.Addr(), grpcLis.Addr())
	return nil
}

// Stop gracefully stops the node.
func (n *Node) Stop(ctx context.Context) {
	n.log.Infof("[%s] Stopping node", n.cfg.NodeID)

	if n.httpServer != nil {
		_ = n.httpServer.Shutdown(ctx)
	}
	if n.grpcServer != nil {
		n.grpcServer.GracefulStop()
	}
	n.tracker.Stop()
	n.coordinator.Close()
}

// Addr returns the bound HTTP address, useful when configured with :0.
func (n *Node) Addr() string {
	if n.httpListener == nil {
		return n.cfg.ListenAddr
	}
	return n.httpListener.Addr().String()
}

// HealthAddr returns the bound gRPC health address.
func (n *Node) HealthAddr() string {
	if n.grpcListener == nil {
		return n.cfg.HealthListenAddr
	}
	return n.grpcListener.Addr().String()
}

// Replicate exposes the coordinator for in-process callers (the harness).
func (n *Node) Replicate(ctx context.Context, payload string, w int) error {
	return n.coordinator.Replicate(ctx, payload, w)
}

// Messages exposes the stored payloads for in-process callers.
func (n *Node) Messages() []string {
	return n.store.ReadAll()
}

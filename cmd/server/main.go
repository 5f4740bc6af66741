package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"msgstore/internal/config"
	"msgstore/internal/node"
)

func main() {
	cfg := config.Default()

	var peersStr string
	flag.StringVar(&cfg.NodeID, "id", "", "unique node ID")
	flag.StringVar(&cfg.ListenAddr, "listen", ":8080", "HTTP listen address")
	flag.StringVar(&cfg.HealthListenAddr, "health-listen", ":9090", "gRPC health listen address")
	flag.StringVar(&peersStr, "peers", "", "comma-separated peers as id=addr=healthAddr")
	flag.IntVar(&cfg.RetryAttempts, "retry-attempts", cfg.RetryAttempts, "retry budget per tier per target")
	flag.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "per-request replication timeout")
	flag.DurationVar(&cfg.RetryPeriod, "retry-period", cfg.RetryPeriod, "delay between general retries")
	flag.DurationVar(&cfg.SuspiciousRetryPeriod, "suspicious-retry-period", cfg.SuspiciousRetryPeriod, "delay between retries against a suspicious node")
	flag.DurationVar(&cfg.QuorumWaitTimeout, "quorum-wait-timeout", cfg.QuorumWaitTimeout, "overall quorum wait deadline (0 disables)")
	flag.DurationVar(&cfg.ProbeInterval, "probe-interval", cfg.ProbeInterval, "peer health probe interval")
	flag.DurationVar(&cfg.ProbeTimeout, "probe-timeout", cfg.ProbeTimeout, "per-probe timeout")
	flag.IntVar(&cfg.SuspectAfter, "suspect-after", cfg.SuspectAfter, "consecutive probe failures before a peer is suspect")
	flag.IntVar(&cfg.DeadAfter, "dead-after", cfg.DeadAfter, "consecutive probe failures before a peer is dead")
	flag.IntVar(&cfg.DispatchWorkers, "dispatch-workers", cfg.DispatchWorkers, "dispatch/retry worker pool size")
	flag.IntVar(&cfg.WaitWorkers, "wait-workers", cfg.WaitWorkers, "quorum wait worker pool size")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	cfg.Peers, err = config.ParsePeers(peersStr)
	if err != nil {
		log.Fatalf("Invalid -peers: %v", err)
	}

	n, err := node.New(cfg, log)
	if err != nil {
		log.Fatalf("Failed to build node: %v", err)
	}
	if err := n.Start(); err != nil {
		log.Fatalf("Failed to start node: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n.Stop(ctx)
}

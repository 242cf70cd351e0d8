// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/luxfi/dax/pkg/analytics"
	"github.com/luxfi/dax/pkg/api"
	"github.com/luxfi/dax/pkg/descriptor"
	"github.com/luxfi/dax/pkg/entropy"
	"github.com/luxfi/dax/pkg/ids"
	"github.com/luxfi/dax/pkg/ledger"
	"github.com/luxfi/dax/pkg/log"
	"github.com/luxfi/dax/pkg/metric"
	"github.com/luxfi/dax/pkg/registry"
	"github.com/luxfi/dax/pkg/schedule"
	"github.com/luxfi/dax/pkg/storage"
)

var (
	// Node configuration flags
	dataDir  = flag.String("data-dir", "/tmp/daxd", "Data directory")
	backend  = flag.String("backend", "badger", "Storage backend: badger, memory")
	port     = flag.Int("port", 8080, "HTTP port")
	logLevel = flag.String("log-level", "info", "Log level")

	// Platform configuration
	owner       = flag.String("owner", "", "Platform owner account (hex ID or name)")
	feeAccount  = flag.String("fee-account", "dax-fee-custody", "Fee custody account (hex ID or name)")
	feeBps      = flag.Uint("fee-bps", 1000, "Platform fee in basis points")
	entropySrc  = flag.String("entropy", "weak", "Schedule entropy source: weak, strong")
	minDuration = flag.Duration("min-duration", 2*time.Minute, "Minimum generated auction duration")
	maxDuration = flag.Duration("max-duration", 7*time.Minute, "Maximum generated auction duration (exclusive)")

	// Background work
	sweepInterval = flag.Duration("sweep-interval", 5*time.Second, "Expiry sweep interval")

	// Version info
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Node bundles the auction service components behind one HTTP listener.
type Node struct {
	kv          *storage.Storage
	store       *storage.Store
	descriptors *descriptor.Store
	ledger      *ledger.Ledger
	metrics     *metric.Metrics
	tracker     *analytics.Tracker
	hub         *api.Hub
	registry    *registry.Registry

	httpServer *http.Server

	done chan struct{}
	wg   sync.WaitGroup

	log log.Logger
}

func main() {
	flag.Parse()

	fmt.Printf("DAX Daemon (daxd) %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)

	if *owner == "" {
		fmt.Println("Error: --owner is required")
		os.Exit(1)
	}

	logger := log.NewWithLevel(*logLevel)
	defer logger.Sync()

	node, err := NewNode(logger)
	if err != nil {
		fmt.Printf("Failed to create node: %v\n", err)
		os.Exit(1)
	}

	node.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := node.Shutdown(ctx); err != nil {
		fmt.Printf("Error during shutdown: %v\n", err)
	}

	fmt.Println("Daemon stopped")
}

// NewNode wires storage, the ledger, analytics and the registry together.
func NewNode(logger log.Logger) (*Node, error) {
	kv, err := storage.NewStorage(*backend, *dataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	metrics, err := metric.NewMetrics()
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	node := &Node{
		kv:          kv,
		store:       storage.NewStore(kv, logger.Named("store")),
		descriptors: descriptor.NewStore(kv, logger.Named("descriptor")),
		ledger:      ledger.New(logger.Named("ledger")),
		metrics:     metrics,
		tracker:     analytics.NewTracker(),
		hub:         api.NewHub(logger.Named("hub")),
		done:        make(chan struct{}),
		log:         logger,
	}

	src, err := entropySource(*entropySrc)
	if err != nil {
		kv.Close()
		return nil, err
	}

	sched := schedule.DefaultConfig()
	sched.MinDuration = *minDuration
	sched.MaxDuration = *maxDuration

	node.registry, err = registry.New(registry.Config{
		Owner:      parseAccount(*owner),
		FeeAccount: parseAccount(*feeAccount),
		FeeBps:     uint32(*feeBps),
		Schedule:   sched,
		Entropy:    src,
	}, registry.Deps{
		Ledger:      node.ledger,
		Store:       node.store,
		Descriptors: node.descriptors,
		Metrics:     node.metrics,
		Tracker:     node.tracker,
		Events:      node.hub,
		Log:         logger.Named("registry"),
	})
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("building registry: %w", err)
	}

	return node, nil
}

// Start launches the HTTP listener and the expiry sweeper.
func (n *Node) Start() {
	server, err := api.NewServer(api.Deps{
		Registry:    n.registry,
		Ledger:      n.ledger,
		Descriptors: n.descriptors,
		Tracker:     n.tracker,
		Metrics:     n.metrics,
		Hub:         n.hub,
		Log:         n.log.Named("api"),
	})
	if err != nil {
		// Registry and ledger are always set here.
		n.log.Fatal("building API server", "error", err)
	}

	n.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: server.Router(),
	}

	go func() {
		n.log.Info("HTTP server listening", "addr", n.httpServer.Addr)
		if err := n.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			n.log.Error("HTTP server error", "error", err)
		}
	}()

	n.wg.Add(1)
	go n.runExpirySweeper()
}

// Shutdown stops the listener, the sweeper and the storage, in that
// order.
func (n *Node) Shutdown(ctx context.Context) error {
	n.log.Info("Shutting down node")

	var firstErr error
	if err := n.httpServer.Shutdown(ctx); err != nil {
		n.log.Error("HTTP server shutdown error", "error", err)
		firstErr = err
	}

	close(n.done)
	n.wg.Wait()

	if err := n.kv.Close(); err != nil {
		n.log.Error("storage close error", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// runExpirySweeper periodically retires auctions that outlived their
// schedule, so expiry does not depend on client polling.
func (n *Node) runExpirySweeper() {
	defer n.wg.Done()

	ticker := time.NewTicker(*sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			expired, err := n.registry.SweepExpiry(context.Background())
			if err != nil {
				n.log.Warn("expiry sweep failed", "error", err)
				continue
			}
			if expired > 0 {
				n.log.Info("expiry sweep retired auctions", "count", expired)
			}
		case <-n.done:
			return
		}
	}
}

// parseAccount accepts either a hex account ID or an arbitrary name that
// is hashed into one.
func parseAccount(s string) ids.ID {
	if id, err := ids.FromString(s); err == nil {
		return id
	}
	return ids.NewID([]byte(s))
}

// entropySource maps the -entropy flag to a draw source.
func entropySource(name string) (entropy.Source, error) {
	switch name {
	case "weak":
		return entropy.NewWeak(), nil
	case "strong":
		return entropy.Strong{}, nil
	default:
		return nil, fmt.Errorf("unknown entropy source %q", name)
	}
}

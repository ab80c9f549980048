// Package control wires configuration, storage, the node client and the
// indexing pipeline into a running feeder.
package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vietddude/bpxfeeder/internal/core/config"
	"github.com/vietddude/bpxfeeder/internal/indexing/health"
	"github.com/vietddude/bpxfeeder/internal/indexing/indexer"
	"github.com/vietddude/bpxfeeder/internal/infra/node"
	redisclient "github.com/vietddude/bpxfeeder/internal/infra/redis"
)

// Feeder is the main application struct that manages the pipeline lifecycle.
type Feeder struct {
	cfg          *config.AppConfig
	node         indexer.Node
	nodeCloser   io.Closer
	storage      *Storage
	redisClient  *redisclient.Client
	pipeline     *indexer.Pipeline
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger
	done         chan struct{}
}

// NewFeeder creates a Feeder talking to the configured node.
func NewFeeder(ctx context.Context, cfg *config.AppConfig) (*Feeder, error) {
	client, err := node.NewClient(cfg.Node)
	if err != nil {
		return nil, fmt.Errorf("failed to create node client: %w", err)
	}
	f, err := newFeeder(ctx, cfg, client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	f.nodeCloser = client
	return f, nil
}

func newFeeder(ctx context.Context, cfg *config.AppConfig, n indexer.Node) (*Feeder, error) {
	// 1. Storage
	store, err := OpenStorage(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	// 2. Redis (optional)
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("Redis enabled", "lock_key", cfg.Redis.LockKey, "owner", redisClient.Owner())
	}

	// 3. Health
	healthMon := health.NewMonitor(cfg.Sync.Interval)
	var healthServer *health.Server
	if cfg.Server.Port >= 0 {
		healthServer = health.NewServer(healthMon, cfg.Server.Port)
	}

	// 4. Pipeline
	idxCfg := indexer.Config{
		Node:           n,
		Open:           store.Open,
		Interval:       cfg.Sync.Interval,
		PassTimeout:    cfg.Sync.PassTimeout,
		PruneOrphans:   cfg.Sync.PruneOrphansEnabled(),
		NetspaceWindow: cfg.Sync.NetspaceWindow,
		Health:         healthMon,

		MaxBlocksPerPass: cfg.Sync.MaxBlocksPerPass,
		ImportBudget:     cfg.Sync.ImportBudget,
	}
	if redisClient != nil {
		idxCfg.Guard = redisClient
		idxCfg.Publisher = redisClient
		idxCfg.LockRefresh = cfg.Redis.LockTTL / 3
	}

	return &Feeder{
		cfg:          cfg,
		node:         n,
		storage:      store,
		redisClient:  redisClient,
		pipeline:     indexer.NewPipeline(idxCfg),
		healthMon:    healthMon,
		healthServer: healthServer,
		log:          slog.Default(),
		done:         make(chan struct{}),
	}, nil
}

// Start starts the feeder and all its components.
func (f *Feeder) Start(ctx context.Context) error {
	if info, err := f.node.GetNetworkInfo(ctx); err != nil {
		f.log.Warn("Failed to read network info", "error", err)
	} else {
		f.healthMon.SetNetwork(info.NetworkName)
		f.log.Info("Connected to node", "network", info.NetworkName, "prefix", info.NetworkPrefix)
	}

	if f.healthServer != nil {
		go func() {
			if err := f.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				f.log.Error("Health server failed", "error", err)
			}
		}()
	}

	if db := f.storage.DB(); db != nil {
		db.StartMetricsCollector(ctx)
	}

	go func() {
		defer close(f.done)
		if err := f.pipeline.Start(ctx); err != nil {
			f.log.Error("Pipeline failed", "error", err)
		}
	}()

	return nil
}

// Status returns the pipeline status.
func (f *Feeder) Status() indexer.Status {
	return f.pipeline.GetStatus()
}

// Stop stops the pipeline, waits for the running pass and releases resources.
func (f *Feeder) Stop(ctx context.Context) error {
	f.log.Info("Stopping Feeder...")

	f.pipeline.Stop()
	select {
	case <-f.done:
	case <-ctx.Done():
		f.log.Warn("Timed out waiting for pass to finish")
	}

	if f.redisClient != nil {
		if err := f.redisClient.Release(ctx); err != nil {
			f.log.Warn("Failed to release writer lock", "error", err)
		}
		if err := f.redisClient.Close(); err != nil {
			f.log.Warn("Failed to close Redis", "error", err)
		}
	}

	if f.nodeCloser != nil {
		_ = f.nodeCloser.Close()
	}

	if err := f.storage.Close(); err != nil {
		f.log.Warn("Failed to close database", "error", err)
	}

	if f.healthServer != nil {
		return f.healthServer.Stop(ctx)
	}
	return nil
}

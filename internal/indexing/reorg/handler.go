package reorg

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/bpxfeeder/internal/indexing/metrics"
	"github.com/vietddude/bpxfeeder/internal/infra/storage"
)

// Handler finds the fork point and, when configured, prunes the rows above it.
type Handler struct {
	config   Config
	detector *Detector
}

// NewHandler creates a new reorg handler.
func NewHandler(config Config, n RecordFetcher) *Handler {
	return &Handler{
		config:   config,
		detector: NewDetector(n),
	}
}

// Resolve returns the resume height for forward import.
func (h *Handler) Resolve(ctx context.Context, blocks storage.BlockRepository) (Result, error) {
	res, err := h.detector.FindForkPoint(ctx, blocks)
	if err != nil {
		return Result{}, err
	}
	if !h.config.PruneOrphans || !res.Detected() {
		return res, nil
	}

	n, err := blocks.DeleteAbove(ctx, res.ForkPoint)
	if err != nil {
		return Result{}, fmt.Errorf("failed to prune orphans above %d: %w", res.ForkPoint, err)
	}
	if n > 0 {
		metrics.OrphansPruned.Add(float64(n))
		slog.Info("Pruned orphaned blocks", "fork_point", res.ForkPoint, "count", n)
	}
	return res, nil
}

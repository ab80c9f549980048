package reorg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/bpxfeeder/internal/core/domain"
	"github.com/vietddude/bpxfeeder/internal/indexing/metrics"
	"github.com/vietddude/bpxfeeder/internal/infra/node"
	"github.com/vietddude/bpxfeeder/internal/infra/storage"
)

// Detector walks back from the local tip to the fork point.
type Detector struct {
	node RecordFetcher
}

// NewDetector creates a new fork point detector.
func NewDetector(n RecordFetcher) *Detector {
	return &Detector{node: n}
}

// FindForkPoint returns the highest height at which blocks agrees with the
// node. An empty store resolves to domain.NoHeight without touching the node.
func (d *Detector) FindForkPoint(ctx context.Context, blocks storage.BlockRepository) (Result, error) {
	tip, err := blocks.Tip(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read local tip: %w", err)
	}
	if tip.IsEmpty() {
		return Result{ForkPoint: domain.NoHeight}, nil
	}

	height := tip.Height
	localHash := tip.Hash
	for height > domain.NoHeight {
		remoteHash, found, err := d.remoteHash(ctx, height)
		if err != nil {
			return Result{}, err
		}
		if found && remoteHash == localHash {
			break
		}

		height--
		if height == domain.NoHeight {
			break
		}

		hash, ok, err := blocks.HashAt(ctx, height)
		if err != nil {
			return Result{}, fmt.Errorf("failed to read local block %d: %w", height, err)
		}
		if !ok {
			return Result{}, fmt.Errorf("%w: height %d missing below tip %d", ErrBrokenHistory, height, tip.Height)
		}
		localHash = hash
	}

	res := Result{ForkPoint: height, Depth: tip.Height - height}
	if res.Detected() {
		metrics.ReorgsTotal.Inc()
		metrics.ReorgDepth.Observe(float64(res.Depth))
		slog.Warn("Reorg detected",
			"local_tip", tip.Height,
			"fork_point", res.ForkPoint,
			"depth", res.Depth,
		)
	}
	return res, nil
}

// remoteHash returns the node's header hash at height. A height above the
// node's peak is reported as not found, which the walk treats as a mismatch.
func (d *Detector) remoteHash(ctx context.Context, height int64) (string, bool, error) {
	rec, err := d.node.GetBlockRecordByHeight(ctx, height)
	if errors.Is(err, node.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to fetch block record %d: %w", height, err)
	}
	return rec.HeaderHash, true, nil
}

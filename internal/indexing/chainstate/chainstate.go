// Package chainstate derives the chain summary row from a pass's outputs.
package chainstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/bpxfeeder/internal/core/domain"
	"github.com/vietddude/bpxfeeder/internal/indexing/chainsync"
	"github.com/vietddude/bpxfeeder/internal/indexing/metrics"
	"github.com/vietddude/bpxfeeder/internal/indexing/netspace"
	"github.com/vietddude/bpxfeeder/internal/infra/node"
	"github.com/vietddude/bpxfeeder/internal/infra/storage"
)

const (
	// SampleDistance is the height distance between the two timestamps used
	// for the sub-slot estimate.
	SampleDistance = 384
	// SubSlotsPerDistance is how many sub-slots SampleDistance spans.
	SubSlotsPerDistance = 12
)

// ErrInsufficientHistory is returned when the store holds no timestamped peak
// or no timestamped block far enough below it.
var ErrInsufficientHistory = errors.New("insufficient timestamped history")

// NetworkReader is the node capability the aggregator consumes.
type NetworkReader interface {
	GetNetworkInfo(ctx context.Context) (*node.NetworkInfo, error)
}

// Aggregator merges synchronizer and tracker output into the summary row.
type Aggregator struct {
	node NetworkReader
}

// NewAggregator creates an aggregator.
func NewAggregator(n NetworkReader) *Aggregator {
	return &Aggregator{node: n}
}

// SubSlotTime estimates the sub-slot duration in seconds from the highest
// timestamped block and the highest timestamped block strictly below it by
// more than SampleDistance heights.
func SubSlotTime(ctx context.Context, blocks storage.BlockRepository) (int64, error) {
	peak, err := blocks.LatestTimestamped(ctx, storage.MaxHeight)
	if err != nil {
		return 0, fmt.Errorf("failed to read timestamped peak: %w", err)
	}
	if peak == nil {
		return 0, fmt.Errorf("%w: no timestamped blocks", ErrInsufficientHistory)
	}

	limit := peak.Height - SampleDistance - 1
	if limit < 0 {
		return 0, fmt.Errorf("%w: timestamped peak %d too low", ErrInsufficientHistory, peak.Height)
	}
	ref, err := blocks.LatestTimestamped(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to read reference block: %w", err)
	}
	if ref == nil {
		return 0, fmt.Errorf("%w: no timestamped block below %d", ErrInsufficientHistory, peak.Height-SampleDistance)
	}

	return (peak.Timestamp - ref.Timestamp) / SubSlotsPerDistance, nil
}

// Build assembles the update for this pass. Netspace and network name are
// always set; peak and epoch only when the sync reported them; sub-slot time
// is left out when history is insufficient.
func (a *Aggregator) Build(
	ctx context.Context,
	blocks storage.BlockRepository,
	synced chainsync.Result,
	space netspace.Reading,
) (domain.ChainStateUpdate, error) {
	info, err := a.node.GetNetworkInfo(ctx)
	if err != nil {
		return domain.ChainStateUpdate{}, fmt.Errorf("failed to read network info: %w", err)
	}

	update := domain.ChainStateUpdate{
		NetworkName:  &info.NetworkName,
		PeakHeight:   synced.PeakHeight,
		Epoch:        synced.Epoch,
		NetspaceCurr: space.Current,
		NetspacePrev: space.Previous,
	}

	subSlot, err := SubSlotTime(ctx, blocks)
	switch {
	case errors.Is(err, ErrInsufficientHistory):
		slog.Warn("Skipping sub-slot estimate", "reason", err)
	case err != nil:
		return domain.ChainStateUpdate{}, err
	default:
		update.SubSlotTime = &subSlot
		metrics.SubSlotSeconds.Set(float64(subSlot))
	}

	if synced.Epoch != nil {
		metrics.EpochHeight.Set(float64(synced.Epoch.Height))
	}
	return update, nil
}

// Update builds the pass update and merges it into the summary row.
func (a *Aggregator) Update(
	ctx context.Context,
	store storage.Store,
	synced chainsync.Result,
	space netspace.Reading,
) (domain.ChainStateUpdate, error) {
	update, err := a.Build(ctx, store.Blocks(), synced, space)
	if err != nil {
		return update, err
	}
	if err := store.ChainState().Apply(ctx, update); err != nil {
		return update, fmt.Errorf("failed to update chain state: %w", err)
	}
	return update, nil
}

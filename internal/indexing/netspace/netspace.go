// Package netspace maintains the rolling window of netspace samples.
package netspace

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/vietddude/bpxfeeder/internal/core/domain"
	"github.com/vietddude/bpxfeeder/internal/indexing/metrics"
	"github.com/vietddude/bpxfeeder/internal/infra/node"
	"github.com/vietddude/bpxfeeder/internal/infra/storage"
)

// DefaultWindow is how long samples are retained.
const DefaultWindow = 24 * time.Hour

// StateReader is the node capability the tracker consumes.
type StateReader interface {
	GetChainState(ctx context.Context) (*node.ChainState, error)
}

// Reading is the outcome of one tracking step.
type Reading struct {
	Current  *big.Int
	Previous *big.Int
	// PreviousAt is when Previous was sampled (unix seconds).
	PreviousAt int64
}

// Tracker samples the node's netspace into a rolling window.
type Tracker struct {
	node   StateReader
	window time.Duration
}

// NewTracker creates a tracker; a non-positive window means DefaultWindow.
func NewTracker(n StateReader, window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{node: n, window: window}
}

// Track purges samples older than the window, inserts the node's current
// netspace stamped with now, and returns it with the oldest sample left.
// Purging runs first so the fresh sample survives, and the oldest read runs
// last so an emptied window yields Previous == Current.
func (t *Tracker) Track(ctx context.Context, samples storage.NetspaceRepository, now time.Time) (Reading, error) {
	if _, err := samples.DeleteOlderThan(ctx, now.Add(-t.window)); err != nil {
		return Reading{}, fmt.Errorf("failed to purge netspace window: %w", err)
	}

	state, err := t.node.GetChainState(ctx)
	if err != nil {
		return Reading{}, fmt.Errorf("failed to read chain state: %w", err)
	}

	sample := domain.NetspaceSample{Timestamp: now.Unix(), Netspace: state.Netspace}
	if err := samples.Insert(ctx, sample); err != nil {
		return Reading{}, fmt.Errorf("failed to store netspace sample: %w", err)
	}

	oldest, err := samples.Oldest(ctx)
	if err != nil {
		return Reading{}, fmt.Errorf("failed to read oldest netspace sample: %w", err)
	}
	if oldest == nil {
		return Reading{}, errors.New("netspace window empty after insert")
	}

	metrics.Netspace.Set(toFloat(state.Netspace))
	return Reading{
		Current:    new(big.Int).Set(state.Netspace),
		Previous:   oldest.Netspace,
		PreviousAt: oldest.Timestamp,
	}, nil
}

func toFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

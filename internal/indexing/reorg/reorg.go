// Package reorg resolves divergence between the locally stored chain and the
// node's canonical chain.
//
// # Fork point detection
//
// Starting at the local tip, the node's header hash at each height is
// compared with the stored hash. The first height where both agree is the
// fork point; everything stored above it belongs to an abandoned branch.
// If no height matches, the whole stored chain is stale and the fork point
// is domain.NoHeight.
//
// # Pruning
//
// When pruning is enabled, rows above the fork point are deleted before
// forward import so a chain that got shorter leaves no orphans behind.
package reorg

import (
	"context"
	"errors"

	"github.com/vietddude/bpxfeeder/internal/infra/node"
)

// ErrBrokenHistory is returned when a block the walk expects to find in the
// local store is missing.
var ErrBrokenHistory = errors.New("local block history is broken")

// RecordFetcher is the node capability the walk needs.
type RecordFetcher interface {
	GetBlockRecordByHeight(ctx context.Context, height int64) (*node.BlockRecord, error)
}

// Config holds reorg handling settings.
type Config struct {
	PruneOrphans bool
}

// Result describes the outcome of a fork point search.
type Result struct {
	// ForkPoint is the highest height where local and node agree, or
	// domain.NoHeight.
	ForkPoint int64
	// Depth is the number of stored heights above the fork point that the
	// walk visited.
	Depth int64
}

// Detected reports whether the walk stepped below the local tip.
func (r Result) Detected() bool {
	return r.Depth > 0
}

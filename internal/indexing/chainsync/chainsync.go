// Package chainsync keeps the local block table consistent with the node's
// canonical chain: it resolves divergence through the reorg handler, then
// imports blocks above the fork point until the node runs out of them or the
// pass's import limits are reached.
package chainsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/bpxfeeder/internal/core/domain"
	"github.com/vietddude/bpxfeeder/internal/indexing/metrics"
	"github.com/vietddude/bpxfeeder/internal/indexing/reorg"
	"github.com/vietddude/bpxfeeder/internal/infra/node"
	"github.com/vietddude/bpxfeeder/internal/infra/storage"
)

// ErrBodyMissing is returned when the node knows a block record but not the
// block it points to, typically because a reorg raced the import.
var ErrBodyMissing = errors.New("block body missing on node")

// Node is the node capability the synchronizer consumes.
type Node interface {
	GetBlockRecordByHeight(ctx context.Context, height int64) (*node.BlockRecord, error)
	GetBlock(ctx context.Context, headerHash string) (*node.FullBlock, error)
}

// Result is what a sync reports to the chain state aggregator.
type Result struct {
	// ResumeHeight is the fork point the import started above.
	ResumeHeight int64
	// PeakHeight is the highest height imported, nil when nothing was.
	PeakHeight *int64
	// Epoch is the last difficulty change crossed, nil when none was.
	Epoch *domain.Epoch
	// Imported counts upserted blocks.
	Imported int
	// Partial is set when the import stopped at a limit before the node's peak.
	Partial bool
}

// Config controls one sync.
type Config struct {
	Reorg reorg.Config
	// MaxBlocks caps the blocks imported per sync. Zero means no cap.
	MaxBlocks int
	// Budget bounds the time spent importing. When it runs out after at least
	// one block was stored the import ends early instead of failing, so the
	// rest of the pass still sees progress. Zero means no budget.
	Budget time.Duration
}

// Synchronizer runs reorg resolution followed by forward import.
type Synchronizer struct {
	cfg   Config
	node  Node
	reorg *reorg.Handler
}

// New creates a synchronizer.
func New(n Node, cfg Config) *Synchronizer {
	return &Synchronizer{
		cfg:   cfg,
		node:  n,
		reorg: reorg.NewHandler(cfg.Reorg, n),
	}
}

// Sync brings blocks in line with the node's canonical chain.
func (s *Synchronizer) Sync(ctx context.Context, blocks storage.BlockRepository) (Result, error) {
	fork, err := s.reorg.Resolve(ctx, blocks)
	if err != nil {
		return Result{}, err
	}

	importCtx := ctx
	if s.cfg.Budget > 0 {
		var cancel context.CancelFunc
		importCtx, cancel = context.WithTimeout(ctx, s.cfg.Budget)
		defer cancel()
	}

	res := Result{ResumeHeight: fork.ForkPoint}
	for height := fork.ForkPoint + 1; ; height++ {
		if s.cfg.MaxBlocks > 0 && res.Imported >= s.cfg.MaxBlocks {
			res.Partial = true
			break
		}
		if err := importCtx.Err(); err != nil {
			if s.budgetSpent(ctx, importCtx, res) {
				res.Partial = true
				break
			}
			return res, err
		}

		block, newDifficulty, err := s.fetch(importCtx, height)
		if errors.Is(err, node.ErrNotFound) {
			break
		}
		if err != nil {
			if s.budgetSpent(ctx, importCtx, res) {
				res.Partial = true
				break
			}
			return res, err
		}

		if err := blocks.Upsert(importCtx, block); err != nil {
			if s.budgetSpent(ctx, importCtx, res) {
				res.Partial = true
				break
			}
			return res, fmt.Errorf("failed to store block %d: %w", height, err)
		}
		metrics.BlocksImported.Inc()
		metrics.IndexerLatestBlock.Set(float64(height))

		h := height
		res.PeakHeight = &h
		res.Imported++
		if newDifficulty != nil {
			res.Epoch = &domain.Epoch{Height: height, Difficulty: *newDifficulty}
			slog.Info("Epoch boundary crossed", "height", height, "difficulty", *newDifficulty)
		}
	}

	if res.Imported > 0 {
		slog.Debug("Imported blocks",
			"from", fork.ForkPoint+1,
			"to", *res.PeakHeight,
			"count", res.Imported,
			"partial", res.Partial,
		)
	}
	return res, nil
}

// budgetSpent reports whether the import budget ran out while the pass itself
// is still live and something was stored.
func (s *Synchronizer) budgetSpent(ctx, importCtx context.Context, res Result) bool {
	return res.Imported > 0 && ctx.Err() == nil && errors.Is(importCtx.Err(), context.DeadlineExceeded)
}

// fetch reads the canonical record at height and its full body. It returns
// node.ErrNotFound only when height is past the node's peak.
func (s *Synchronizer) fetch(ctx context.Context, height int64) (*domain.Block, *uint64, error) {
	rec, err := s.node.GetBlockRecordByHeight(ctx, height)
	if err != nil {
		if errors.Is(err, node.ErrNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("failed to fetch block record %d: %w", height, err)
	}

	full, err := s.node.GetBlock(ctx, rec.HeaderHash)
	if errors.Is(err, node.ErrNotFound) {
		// the record was canonical a moment ago; do not end the import as if
		// the chain were exhausted
		return nil, nil, fmt.Errorf("%w: height %d hash %s", ErrBodyMissing, height, rec.HeaderHash)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch block %d (%s): %w", height, rec.HeaderHash, err)
	}

	block := &domain.Block{
		Height:              height,
		Hash:                rec.HeaderHash,
		Coinbase:            rec.Coinbase,
		Body:                full.Raw,
		Timestamp:           rec.Timestamp,
		ExecutionBlockHash:  rec.ExecutionBlockHash,
		FeeRecipient:        full.FeeRecipient(),
		WithdrawalAddresses: full.WithdrawalAddresses(),
	}

	var newDifficulty *uint64
	if d, ok := full.NewDifficulty(); ok {
		newDifficulty = &d
	}
	return block, newDifficulty, nil
}

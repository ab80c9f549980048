// Package memory provides an in-process implementation of the storage
// repositories, used when no database is configured and in tests.
package memory

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/vietddude/bpxfeeder/internal/core/domain"
	"github.com/vietddude/bpxfeeder/internal/infra/storage"
)

type MemoryStorage struct {
	blocks   map[int64]*domain.Block
	netspace map[int64]*big.Int
	state    domain.ChainState
	mu       sync.RWMutex
}

// NewMemoryStorage returns an empty store with a bootstrapped summary row.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		blocks:   make(map[int64]*domain.Block),
		netspace: make(map[int64]*big.Int),
		state: domain.ChainState{
			NetspaceCurr: new(big.Int),
			NetspacePrev: new(big.Int),
		},
	}
}

func (s *MemoryStorage) Blocks() storage.BlockRepository          { return &BlockRepo{store: s} }
func (s *MemoryStorage) Netspace() storage.NetspaceRepository     { return &NetspaceRepo{store: s} }
func (s *MemoryStorage) ChainState() storage.ChainStateRepository { return &ChainStateRepo{store: s} }
func (s *MemoryStorage) Close() error                             { return nil }

// Opener hands out the same storage for every pass.
func (s *MemoryStorage) Opener() storage.Opener {
	return func(ctx context.Context) (storage.Store, error) {
		return s, nil
	}
}

// -----------------------------------------------------------------------------
// Block Repository
// -----------------------------------------------------------------------------

type BlockRepo struct {
	store *MemoryStorage
}

func (r *BlockRepo) Tip(ctx context.Context) (domain.Tip, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	tip := domain.EmptyTip
	for h, b := range r.store.blocks {
		if h > tip.Height {
			tip = domain.Tip{Height: h, Hash: b.Hash}
		}
	}
	return tip, nil
}

func (r *BlockRepo) HashAt(ctx context.Context, height int64) (string, bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	b, ok := r.store.blocks[height]
	if !ok {
		return "", false, nil
	}
	return b.Hash, true, nil
}

func (r *BlockRepo) Get(ctx context.Context, height int64) (*domain.Block, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	b, ok := r.store.blocks[height]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (r *BlockRepo) Upsert(ctx context.Context, block *domain.Block) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *block
	r.store.blocks[block.Height] = &cp
	return nil
}

func (r *BlockRepo) DeleteAbove(ctx context.Context, height int64) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var deleted int64
	for h := range r.store.blocks {
		if h > height {
			delete(r.store.blocks, h)
			deleted++
		}
	}
	return deleted, nil
}

func (r *BlockRepo) LatestTimestamped(ctx context.Context, maxHeight int64) (*domain.BlockTime, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var best *domain.BlockTime
	for h, b := range r.store.blocks {
		if h > maxHeight || b.Timestamp == nil {
			continue
		}
		if best == nil || h > best.Height {
			best = &domain.BlockTime{Height: h, Timestamp: *b.Timestamp}
		}
	}
	return best, nil
}

// Len returns the number of stored blocks.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}

// -----------------------------------------------------------------------------
// Netspace Repository
// -----------------------------------------------------------------------------

type NetspaceRepo struct {
	store *MemoryStorage
}

func (r *NetspaceRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var deleted int64
	for ts := range r.store.netspace {
		if ts < cutoff.Unix() {
			delete(r.store.netspace, ts)
			deleted++
		}
	}
	return deleted, nil
}

func (r *NetspaceRepo) Insert(ctx context.Context, sample domain.NetspaceSample) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.netspace[sample.Timestamp] = new(big.Int).Set(sample.Netspace)
	return nil
}

func (r *NetspaceRepo) Oldest(ctx context.Context) (*domain.NetspaceSample, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var oldest *domain.NetspaceSample
	for ts, v := range r.store.netspace {
		if oldest == nil || ts < oldest.Timestamp {
			oldest = &domain.NetspaceSample{Timestamp: ts, Netspace: v}
		}
	}
	if oldest != nil {
		oldest.Netspace = new(big.Int).Set(oldest.Netspace)
	}
	return oldest, nil
}

// NetspaceLen returns the number of stored samples.
func (s *MemoryStorage) NetspaceLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.netspace)
}

// -----------------------------------------------------------------------------
// Chain State Repository
// -----------------------------------------------------------------------------

type ChainStateRepo struct {
	store *MemoryStorage
}

func (r *ChainStateRepo) Get(ctx context.Context) (*domain.ChainState, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	cp := r.store.state
	cp.NetspaceCurr = new(big.Int).Set(r.store.state.NetspaceCurr)
	cp.NetspacePrev = new(big.Int).Set(r.store.state.NetspacePrev)
	return &cp, nil
}

func (r *ChainStateRepo) Apply(ctx context.Context, update domain.ChainStateUpdate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.state.Apply(update)
	return nil
}

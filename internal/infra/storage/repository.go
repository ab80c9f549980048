package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/bpxfeeder/internal/core/domain"
)

// ErrStateNotFound is returned when the summary row has not been bootstrapped.
var ErrStateNotFound = errors.New("chain state row not found")

// BlockRepository handles block storage operations
type BlockRepository interface {
	// Tip returns the highest stored block, or domain.EmptyTip
	Tip(ctx context.Context) (domain.Tip, error)

	// HashAt returns the stored hash at height; ok is false when absent
	HashAt(ctx context.Context, height int64) (hash string, ok bool, err error)

	// Get retrieves a block by height, nil when absent
	Get(ctx context.Context, height int64) (*domain.Block, error)

	// Upsert inserts or replaces the block at its height
	Upsert(ctx context.Context, block *domain.Block) error

	// DeleteAbove deletes every block strictly above height
	DeleteAbove(ctx context.Context, height int64) (int64, error)

	// LatestTimestamped returns the highest block carrying a timestamp
	// at or below maxHeight, nil when none
	LatestTimestamped(ctx context.Context, maxHeight int64) (*domain.BlockTime, error)
}

// NetspaceRepository handles the rolling netspace sample window
type NetspaceRepository interface {
	// DeleteOlderThan removes samples taken strictly before cutoff
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Insert stores a sample, replacing one taken at the same second
	Insert(ctx context.Context, sample domain.NetspaceSample) error

	// Oldest returns the oldest stored sample, nil when empty
	Oldest(ctx context.Context) (*domain.NetspaceSample, error)
}

// ChainStateRepository handles the single summary row
type ChainStateRepository interface {
	// Get returns the summary row
	Get(ctx context.Context) (*domain.ChainState, error)

	// Apply merges a partial update into the summary row
	Apply(ctx context.Context, update domain.ChainStateUpdate) error
}

// Store is a connection to the relational store scoped to one pass.
type Store interface {
	Blocks() BlockRepository
	Netspace() NetspaceRepository
	ChainState() ChainStateRepository
	Close() error
}

// Opener establishes a fresh Store connection.
type Opener func(ctx context.Context) (Store, error)

// MaxHeight is an upper bound usable with LatestTimestamped.
const MaxHeight int64 = 1<<63 - 1

package indexer

import (
	"context"
	"time"

	"github.com/vietddude/bpxfeeder/internal/core/domain"
	"github.com/vietddude/bpxfeeder/internal/indexing/chainstate"
	"github.com/vietddude/bpxfeeder/internal/indexing/chainsync"
	"github.com/vietddude/bpxfeeder/internal/indexing/netspace"
	"github.com/vietddude/bpxfeeder/internal/infra/storage"
)

// Indexer is the main orchestrator that coordinates all components
type Indexer interface {
	// Start runs passes until the context ends or Stop is called
	Start(ctx context.Context) error

	// Stop gracefully stops the indexer
	Stop() error

	// GetStatus returns current indexing status
	GetStatus() Status
}

// Node is everything a pass asks of the full node.
type Node interface {
	chainsync.Node
	netspace.StateReader
	chainstate.NetworkReader
}

// Guard decides whether this process may write during a pass. Refresh
// extends a held lock and reports false once it belongs to someone else.
type Guard interface {
	Acquire(ctx context.Context) (bool, error)
	Refresh(ctx context.Context) (bool, error)
}

// Publisher receives the summary after every successful pass.
type Publisher interface {
	Publish(ctx context.Context, state *domain.ChainState) error
}

// Recorder observes pass outcomes.
type Recorder interface {
	RecordSuccess(passID string, peakHeight int64)
	RecordFailure(passID, category string, err error)
	RecordSkipped(passID string)
}

// Status is a point-in-time view of the pipeline for the CLI and logs.
type Status struct {
	Running      bool
	LastPassID   string
	LastOutcome  string
	PeakHeight   int64
	ResumeHeight int64
	Passes       uint64
}

// Config holds indexer configuration
type Config struct {
	Node           Node
	Open           storage.Opener
	Interval       time.Duration
	PassTimeout    time.Duration
	PruneOrphans   bool
	NetspaceWindow time.Duration

	// MaxBlocksPerPass caps the forward import; zero means no cap.
	MaxBlocksPerPass int
	// ImportBudget bounds the forward import inside a pass. It defaults to
	// three quarters of PassTimeout so the summary is still written.
	ImportBudget time.Duration

	// Optional collaborators
	Guard     Guard
	Publisher Publisher
	Health    Recorder

	// LockRefresh is how often a held writer lock is extended during a pass.
	LockRefresh time.Duration

	// Now defaults to time.Now
	Now func() time.Time
}

package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/bpxfeeder/internal/core/domain"
	"github.com/vietddude/bpxfeeder/internal/indexing/chainstate"
	"github.com/vietddude/bpxfeeder/internal/indexing/chainsync"
	"github.com/vietddude/bpxfeeder/internal/indexing/metrics"
	"github.com/vietddude/bpxfeeder/internal/indexing/netspace"
	"github.com/vietddude/bpxfeeder/internal/indexing/reorg"
	"github.com/vietddude/bpxfeeder/internal/infra/node"
)

// Pass outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Error categories.
const (
	CategoryTransient     = "transient"
	CategoryInconsistency = "inconsistency"
	CategoryCanceled      = "canceled"
	CategoryNode          = "node"
	CategoryLock          = "lock"
)

// DefaultLockRefresh is used when a Guard is set without LockRefresh.
const DefaultLockRefresh = 10 * time.Second

var (
	// ErrNotLeader is returned by RunPass when another replica holds the writer lock.
	ErrNotLeader = errors.New("writer lock held by another process")
	// ErrLockLost ends a pass whose writer lock could not be extended.
	ErrLockLost = errors.New("writer lock lost during pass")
)

// Pipeline implements the Indexer interface
type Pipeline struct {
	cfg        Config
	syncer     *chainsync.Synchronizer
	netspace   *netspace.Tracker
	aggregator *chainstate.Aggregator

	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once

	mu     sync.RWMutex
	status Status
}

// PassResult describes one completed pass.
type PassResult struct {
	ID     string
	Sync   chainsync.Result
	Update domain.ChainStateUpdate
	State  *domain.ChainState
}

// NewPipeline creates a new indexing pipeline
func NewPipeline(cfg Config) *Pipeline {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ImportBudget <= 0 && cfg.PassTimeout > 0 {
		cfg.ImportBudget = cfg.PassTimeout * 3 / 4
	}
	if cfg.Guard != nil && cfg.LockRefresh <= 0 {
		cfg.LockRefresh = DefaultLockRefresh
	}
	return &Pipeline{
		cfg: cfg,
		syncer: chainsync.New(cfg.Node, chainsync.Config{
			Reorg:     reorg.Config{PruneOrphans: cfg.PruneOrphans},
			MaxBlocks: cfg.MaxBlocksPerPass,
			Budget:    cfg.ImportBudget,
		}),
		netspace:   netspace.NewTracker(cfg.Node, cfg.NetspaceWindow),
		aggregator: chainstate.NewAggregator(cfg.Node),
		stop:       make(chan struct{}),
		status:     Status{PeakHeight: domain.NoHeight, ResumeHeight: domain.NoHeight},
	}
}

// Start runs passes back to back, sleeping Interval after each one
// completes. A failed pass is logged and retried; only ctx or Stop end the loop.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline already running")
	}
	defer p.running.Store(false)

	slog.Info("Pipeline started", "interval", p.cfg.Interval, "pass_timeout", p.cfg.PassTimeout)
	for {
		_, _ = p.RunPass(ctx)

		timer := time.NewTimer(p.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-p.stop:
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Stop stops the pipeline
func (p *Pipeline) Stop() error {
	p.stopOnce.Do(func() { close(p.stop) })
	return nil
}

// GetStatus returns the current status
func (p *Pipeline) GetStatus() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := p.status
	st.Running = p.running.Load()
	return st
}

// RunPass executes one synchronization pass on a fresh store connection.
// The error is already logged and recorded when returned.
func (p *Pipeline) RunPass(ctx context.Context) (*PassResult, error) {
	passID := uuid.NewString()
	log := slog.With("pass_id", passID)
	start := time.Now()

	if p.cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.PassTimeout)
		defer cancel()
	}

	if p.cfg.Guard != nil {
		ok, err := p.cfg.Guard.Acquire(ctx)
		if err != nil {
			return nil, p.fail(log, passID, fmt.Errorf("failed to acquire writer lock: %w", err))
		}
		if !ok {
			log.Debug("Skipping pass, not the writer")
			metrics.PassesTotal.WithLabelValues(OutcomeSkipped).Inc()
			if p.cfg.Health != nil {
				p.cfg.Health.RecordSkipped(passID)
			}
			p.setOutcome(passID, OutcomeSkipped)
			return nil, ErrNotLeader
		}

		var release func()
		ctx, release = p.holdLock(ctx, log)
		defer release()
	}

	res, err := p.runPass(ctx, passID)
	metrics.PassDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(context.Cause(ctx), ErrLockLost) {
			err = fmt.Errorf("%w: %w", ErrLockLost, err)
		}
		return nil, p.fail(log, passID, err)
	}

	peak := domain.NoHeight
	if res.State != nil {
		peak = res.State.PeakHeight
	}
	metrics.PassesTotal.WithLabelValues(OutcomeOK).Inc()
	if p.cfg.Health != nil {
		p.cfg.Health.RecordSuccess(passID, peak)
	}

	p.mu.Lock()
	p.status.LastPassID = passID
	p.status.LastOutcome = OutcomeOK
	p.status.PeakHeight = peak
	p.status.ResumeHeight = res.Sync.ResumeHeight
	p.status.Passes++
	p.mu.Unlock()

	log.Debug("Pass completed",
		"resume_height", res.Sync.ResumeHeight,
		"imported", res.Sync.Imported,
		"partial", res.Sync.Partial,
		"peak_height", peak,
		"duration", time.Since(start),
	)
	return res, nil
}

// holdLock extends the writer lock every LockRefresh until the returned stop
// func is called. The returned context is canceled with ErrLockLost as soon
// as the lock belongs to another process.
func (p *Pipeline) holdLock(ctx context.Context, log *slog.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	quit := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		ticker := time.NewTicker(p.cfg.LockRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			ok, err := p.cfg.Guard.Refresh(ctx)
			if err != nil {
				log.Warn("Failed to refresh writer lock", "error", err)
				continue
			}
			if !ok {
				log.Error("Writer lock taken over, abandoning pass")
				cancel(ErrLockLost)
				return
			}
		}
	}()

	return ctx, func() {
		close(quit)
		<-finished
		cancel(nil)
	}
}

func (p *Pipeline) runPass(ctx context.Context, passID string) (*PassResult, error) {
	store, err := p.cfg.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to release store connection", "pass_id", passID, "error", err)
		}
	}()

	synced, err := p.syncer.Sync(ctx, store.Blocks())
	if err != nil {
		return nil, fmt.Errorf("chain sync: %w", err)
	}

	space, err := p.netspace.Track(ctx, store.Netspace(), p.cfg.Now())
	if err != nil {
		return nil, fmt.Errorf("netspace: %w", err)
	}

	update, err := p.aggregator.Update(ctx, store, synced, space)
	if err != nil {
		return nil, fmt.Errorf("chain state: %w", err)
	}

	state, err := store.ChainState().Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain state: %w", err)
	}

	if p.cfg.Publisher != nil {
		if err := p.cfg.Publisher.Publish(ctx, state); err != nil {
			slog.Warn("Failed to publish chain state", "pass_id", passID, "error", err)
		}
	}

	return &PassResult{ID: passID, Sync: synced, Update: update, State: state}, nil
}

func (p *Pipeline) fail(log *slog.Logger, passID string, err error) error {
	category := Categorize(err)
	log.Error("Pass failed", "category", category, "error", err)
	metrics.PassesTotal.WithLabelValues(OutcomeFailed).Inc()
	metrics.PassErrorsTotal.WithLabelValues(category).Inc()
	if p.cfg.Health != nil {
		p.cfg.Health.RecordFailure(passID, category, err)
	}
	p.setOutcome(passID, OutcomeFailed)
	return err
}

func (p *Pipeline) setOutcome(passID, outcome string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.LastPassID = passID
	p.status.LastOutcome = outcome
	p.status.Passes++
}

// Categorize maps a pass error to the category used in logs and metrics.
func Categorize(err error) string {
	var apiErr *node.APIError
	switch {
	case errors.Is(err, ErrLockLost):
		return CategoryLock
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CategoryCanceled
	case errors.Is(err, reorg.ErrBrokenHistory):
		return CategoryInconsistency
	case errors.As(err, &apiErr):
		return CategoryNode
	default:
		return CategoryTransient
	}
}

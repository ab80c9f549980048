package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vietddude/bpxfeeder/internal/core/domain"
	"github.com/vietddude/bpxfeeder/internal/infra/storage"
)

// ChainStateRepo implements storage.ChainStateRepository using PostgreSQL.
type ChainStateRepo struct {
	q Querier
}

// NewChainStateRepo creates a new PostgreSQL chain state repository.
func NewChainStateRepo(q Querier) *ChainStateRepo {
	return &ChainStateRepo{q: q}
}

type stateRow struct {
	NetworkName    string `db:"network_name"`
	PeakHeight     int64  `db:"peak_height"`
	EpochHeight    int64  `db:"epoch_height"`
	Difficulty     string `db:"difficulty"`
	DifficultyPrev string `db:"difficulty_prev"`
	Netspace       string `db:"netspace"`
	NetspacePrev   string `db:"netspace_prev"`
	SubSlotTime    int64  `db:"sub_slot_time"`
}

// Get returns the summary row.
func (r *ChainStateRepo) Get(ctx context.Context) (*domain.ChainState, error) {
	query := `
		SELECT network_name, peak_height, epoch_height,
			difficulty::text AS difficulty, difficulty_prev::text AS difficulty_prev,
			netspace::text AS netspace, netspace_prev::text AS netspace_prev, sub_slot_time
		FROM state
		WHERE id = 1
	`

	var row stateRow
	err := r.q.GetContext(ctx, &row, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state: %w", err)
	}

	difficulty, err := parseDifficulty(row.Difficulty)
	if err != nil {
		return nil, err
	}
	difficultyPrev, err := parseDifficulty(row.DifficultyPrev)
	if err != nil {
		return nil, err
	}
	curr, err := parseNumeric(row.Netspace)
	if err != nil {
		return nil, err
	}
	prev, err := parseNumeric(row.NetspacePrev)
	if err != nil {
		return nil, err
	}

	return &domain.ChainState{
		NetworkName:    row.NetworkName,
		PeakHeight:     row.PeakHeight,
		EpochHeight:    row.EpochHeight,
		DifficultyCurr: difficulty,
		DifficultyPrev: difficultyPrev,
		NetspaceCurr:   curr,
		NetspacePrev:   prev,
		SubSlotTime:    row.SubSlotTime,
	}, nil
}

// Apply merges update into the summary row in a single statement. Postgres
// evaluates every SET expression against the old row, so difficulty_prev
// receives the difficulty stored before this update.
func (r *ChainStateRepo) Apply(ctx context.Context, update domain.ChainStateUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	query, args := buildStateUpdate(update)
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update state: %w", err)
	}
	if n == 0 {
		return storage.ErrStateNotFound
	}
	return nil
}

func buildStateUpdate(u domain.ChainStateUpdate) (string, []any) {
	var (
		sets []string
		args []any
	)
	set := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if u.NetworkName != nil {
		set("network_name = $%d", *u.NetworkName)
	}
	if u.PeakHeight != nil {
		set("peak_height = $%d", *u.PeakHeight)
	}
	if u.Epoch != nil {
		set("epoch_height = $%d", u.Epoch.Height)
		sets = append(sets, "difficulty_prev = difficulty")
		set("difficulty = $%d::numeric", strconv.FormatUint(u.Epoch.Difficulty, 10))
	}
	if u.NetspaceCurr != nil {
		set("netspace = $%d::numeric", u.NetspaceCurr.String())
	}
	if u.NetspacePrev != nil {
		set("netspace_prev = $%d::numeric", u.NetspacePrev.String())
	}
	if u.SubSlotTime != nil {
		set("sub_slot_time = $%d", *u.SubSlotTime)
	}

	return "UPDATE state SET " + strings.Join(sets, ", ") + " WHERE id = 1", args
}

func parseDifficulty(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid difficulty %q: %w", s, err)
	}
	return v, nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/vietddude/bpxfeeder/internal/core/domain"
)

// NetspaceRepo implements storage.NetspaceRepository using PostgreSQL.
type NetspaceRepo struct {
	q Querier
}

// NewNetspaceRepo creates a new PostgreSQL netspace repository.
func NewNetspaceRepo(q Querier) *NetspaceRepo {
	return &NetspaceRepo{q: q}
}

// DeleteOlderThan removes samples taken before cutoff.
func (r *NetspaceRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM netspace WHERE sampled_at < $1`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge netspace: %w", err)
	}
	return res.RowsAffected()
}

// Insert stores a sample.
func (r *NetspaceRepo) Insert(ctx context.Context, sample domain.NetspaceSample) error {
	query := `
		INSERT INTO netspace (sampled_at, netspace)
		VALUES ($1, $2::numeric)
		ON CONFLICT (sampled_at) DO UPDATE SET netspace = EXCLUDED.netspace
	`
	if _, err := r.q.ExecContext(ctx, query, sample.Timestamp, sample.Netspace.String()); err != nil {
		return fmt.Errorf("failed to insert netspace: %w", err)
	}
	return nil
}

// Oldest returns the oldest stored sample.
func (r *NetspaceRepo) Oldest(ctx context.Context) (*domain.NetspaceSample, error) {
	var row struct {
		SampledAt int64  `db:"sampled_at"`
		Netspace  string `db:"netspace"`
	}
	err := r.q.GetContext(ctx, &row, `SELECT sampled_at, netspace::text AS netspace FROM netspace ORDER BY sampled_at ASC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get oldest netspace: %w", err)
	}

	v, err := parseNumeric(row.Netspace)
	if err != nil {
		return nil, err
	}
	return &domain.NetspaceSample{Timestamp: row.SampledAt, Netspace: v}, nil
}

func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", s)
	}
	return v, nil
}

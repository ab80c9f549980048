package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/bpxfeeder/internal/core/domain"
)

// BlockRepo implements storage.BlockRepository using PostgreSQL.
type BlockRepo struct {
	q Querier
}

// NewBlockRepo creates a new PostgreSQL block repository.
func NewBlockRepo(q Querier) *BlockRepo {
	return &BlockRepo{q: q}
}

type blockRow struct {
	Height             int64          `db:"height"`
	Hash               string         `db:"hash"`
	Coinbase           string         `db:"coinbase"`
	Body               string         `db:"body"`
	Timestamp          sql.NullInt64  `db:"block_timestamp"`
	ExecutionBlockHash sql.NullString `db:"execution_block_hash"`
	FeeRecipient       sql.NullString `db:"fee_recipient"`
	WdAddresses        sql.NullString `db:"wd_addresses"`
}

func (b *blockRow) toDomain() *domain.Block {
	block := &domain.Block{
		Height:   b.Height,
		Hash:     b.Hash,
		Coinbase: b.Coinbase,
		Body:     []byte(b.Body),
	}
	if b.Timestamp.Valid {
		block.Timestamp = &b.Timestamp.Int64
	}
	if b.ExecutionBlockHash.Valid {
		block.ExecutionBlockHash = &b.ExecutionBlockHash.String
	}
	if b.FeeRecipient.Valid {
		block.FeeRecipient = &b.FeeRecipient.String
	}
	if b.WdAddresses.Valid {
		block.WithdrawalAddresses = domain.SplitWithdrawals(&b.WdAddresses.String)
	}
	return block
}

// Tip returns the highest stored block.
func (r *BlockRepo) Tip(ctx context.Context) (domain.Tip, error) {
	var row struct {
		Height int64  `db:"height"`
		Hash   string `db:"hash"`
	}
	err := r.q.GetContext(ctx, &row, `SELECT height, hash FROM blocks ORDER BY height DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EmptyTip, nil
	}
	if err != nil {
		return domain.EmptyTip, fmt.Errorf("failed to get tip: %w", err)
	}
	return domain.Tip{Height: row.Height, Hash: row.Hash}, nil
}

// HashAt returns the stored hash at height.
func (r *BlockRepo) HashAt(ctx context.Context, height int64) (string, bool, error) {
	var hash string
	err := r.q.GetContext(ctx, &hash, `SELECT hash FROM blocks WHERE height = $1`, height)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get hash at %d: %w", height, err)
	}
	return hash, true, nil
}

// Get retrieves a block by height.
func (r *BlockRepo) Get(ctx context.Context, height int64) (*domain.Block, error) {
	query := `
		SELECT height, hash, coinbase, body, block_timestamp, execution_block_hash, fee_recipient, wd_addresses
		FROM blocks
		WHERE height = $1
	`

	var row blockRow
	err := r.q.GetContext(ctx, &row, query, height)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get block: %w", err)
	}
	return row.toDomain(), nil
}

// Upsert inserts the block or replaces the one stored at its height.
func (r *BlockRepo) Upsert(ctx context.Context, block *domain.Block) error {
	query := `
		INSERT INTO blocks (height, hash, coinbase, body, block_timestamp, execution_block_hash, fee_recipient, wd_addresses)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (height) DO UPDATE SET
			hash = EXCLUDED.hash,
			coinbase = EXCLUDED.coinbase,
			body = EXCLUDED.body,
			block_timestamp = EXCLUDED.block_timestamp,
			execution_block_hash = EXCLUDED.execution_block_hash,
			fee_recipient = EXCLUDED.fee_recipient,
			wd_addresses = EXCLUDED.wd_addresses
	`

	_, err := r.q.ExecContext(ctx, query,
		block.Height,
		block.Hash,
		block.Coinbase,
		string(block.Body),
		block.Timestamp,
		block.ExecutionBlockHash,
		block.FeeRecipient,
		block.JoinedWithdrawals(),
	)
	if err != nil {
		return fmt.Errorf("failed to save block %d: %w", block.Height, err)
	}
	return nil
}

// DeleteAbove deletes every block strictly above height.
func (r *BlockRepo) DeleteAbove(ctx context.Context, height int64) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM blocks WHERE height > $1`, height)
	if err != nil {
		return 0, fmt.Errorf("failed to delete blocks above %d: %w", height, err)
	}
	return res.RowsAffected()
}

// LatestTimestamped returns the highest timestamped block at or below maxHeight.
func (r *BlockRepo) LatestTimestamped(ctx context.Context, maxHeight int64) (*domain.BlockTime, error) {
	query := `
		SELECT height, block_timestamp
		FROM blocks
		WHERE block_timestamp IS NOT NULL AND height <= $1
		ORDER BY height DESC
		LIMIT 1
	`

	var row struct {
		Height    int64 `db:"height"`
		Timestamp int64 `db:"block_timestamp"`
	}
	err := r.q.GetContext(ctx, &row, query, maxHeight)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get timestamped block: %w", err)
	}
	return &domain.BlockTime{Height: row.Height, Timestamp: row.Timestamp}, nil
}

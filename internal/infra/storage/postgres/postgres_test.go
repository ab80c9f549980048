package postgres

import (
	"context"
	"database/sql"
	"math/big"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/bpxfeeder/internal/core/domain"
	"github.com/vietddude/bpxfeeder/internal/infra/storage"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return sqlx.NewDb(db, "pgx"), mock
}

func TestBlockRepo_TipEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT height, hash FROM blocks ORDER BY height DESC LIMIT 1`)).
		WillReturnError(sql.ErrNoRows)

	tip, err := NewBlockRepo(db).Tip(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.EmptyTip, tip)
}

func TestBlockRepo_Tip(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT height, hash FROM blocks`)).
		WillReturnRows(sqlmock.NewRows([]string{"height", "hash"}).AddRow(int64(42), "0xabc"))

	tip, err := NewBlockRepo(db).Tip(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Tip{Height: 42, Hash: "0xabc"}, tip)
}

func TestBlockRepo_HashAtMissing(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT hash FROM blocks WHERE height = $1`)).
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)

	_, ok, err := NewBlockRepo(db).HashAt(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBlockRepo_UpsertWritesOptionalColumns(t *testing.T) {
	db, mock := newMockDB(t)
	ts := int64(1700000000)
	fee := "0xfee"
	block := &domain.Block{
		Height:              3,
		Hash:                "0x03",
		Coinbase:            "0xcb",
		Body:                []byte(`{"a":1}`),
		Timestamp:           &ts,
		FeeRecipient:        &fee,
		WithdrawalAddresses: []string{"0x1", "0x2"},
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO blocks`)).
		WithArgs(int64(3), "0x03", "0xcb", `{"a":1}`, ts, nil, fee, "0x1,0x2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewBlockRepo(db).Upsert(context.Background(), block))
}

func TestBlockRepo_Get(t *testing.T) {
	db, mock := newMockDB(t)
	cols := []string{"height", "hash", "coinbase", "body", "block_timestamp", "execution_block_hash", "fee_recipient", "wd_addresses"}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM blocks`)).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(5), "0x05", "0xcb", "{}", nil, "0xee", nil, "0x1,0x2"))

	block, err := NewBlockRepo(db).Get(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, block)
	assert.Nil(t, block.Timestamp)
	assert.Nil(t, block.FeeRecipient)
	require.NotNil(t, block.ExecutionBlockHash)
	assert.Equal(t, "0xee", *block.ExecutionBlockHash)
	assert.Equal(t, []string{"0x1", "0x2"}, block.WithdrawalAddresses)
}

func TestBlockRepo_DeleteAbove(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM blocks WHERE height > $1`)).
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := NewBlockRepo(db).DeleteAbove(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestBlockRepo_LatestTimestamped(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE block_timestamp IS NOT NULL AND height <= $1`)).
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"height", "block_timestamp"}).AddRow(int64(99), int64(1234)))

	bt, err := NewBlockRepo(db).LatestTimestamped(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, &domain.BlockTime{Height: 99, Timestamp: 1234}, bt)
}

func TestNetspaceRepo_PurgeInsertOldest(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewNetspaceRepo(db)
	ctx := context.Background()
	cutoff := time.Unix(5000, 0)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM netspace WHERE sampled_at < $1`)).
		WithArgs(int64(5000)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO netspace`)).
		WithArgs(int64(6000), "36893488147419103232").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT sampled_at, netspace::text AS netspace FROM netspace ORDER BY sampled_at ASC LIMIT 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"sampled_at", "netspace"}).AddRow(int64(5500), "36893488147419103231"))

	n, err := repo.DeleteOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	space, _ := new(big.Int).SetString("36893488147419103232", 10)
	require.NoError(t, repo.Insert(ctx, domain.NetspaceSample{Timestamp: 6000, Netspace: space}))

	oldest, err := repo.Oldest(ctx)
	require.NoError(t, err)
	require.NotNil(t, oldest)
	assert.Equal(t, int64(5500), oldest.Timestamp)
	assert.Equal(t, "36893488147419103231", oldest.Netspace.String())
}

func TestChainStateRepo_Get(t *testing.T) {
	db, mock := newMockDB(t)
	cols := []string{"network_name", "peak_height", "epoch_height", "difficulty", "difficulty_prev", "netspace", "netspace_prev", "sub_slot_time"}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM state`)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("mainnet", int64(10), int64(8), "3", "2", "100", "90", int64(19)))

	st, err := NewChainStateRepo(db).Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mainnet", st.NetworkName)
	assert.Equal(t, uint64(3), st.DifficultyCurr)
	assert.Equal(t, "90", st.NetspacePrev.String())
}

func TestChainStateRepo_GetMissingRow(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM state`)).WillReturnError(sql.ErrNoRows)

	_, err := NewChainStateRepo(db).Get(context.Background())
	assert.ErrorIs(t, err, storage.ErrStateNotFound)
}

func TestChainStateRepo_ApplyPartial(t *testing.T) {
	db, mock := newMockDB(t)
	sub := int64(18)
	update := domain.ChainStateUpdate{
		NetspaceCurr: big.NewInt(100),
		NetspacePrev: big.NewInt(90),
		SubSlotTime:  &sub,
	}

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE state SET netspace = $1::numeric, netspace_prev = $2::numeric, sub_slot_time = $3 WHERE id = 1`)).
		WithArgs("100", "90", int64(18)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewChainStateRepo(db).Apply(context.Background(), update))
}

func TestChainStateRepo_ApplyEpochRotatesDifficulty(t *testing.T) {
	db, mock := newMockDB(t)
	peak := int64(500)
	update := domain.ChainStateUpdate{
		PeakHeight: &peak,
		Epoch:      &domain.Epoch{Height: 384, Difficulty: 2048},
	}

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE state SET peak_height = $1, epoch_height = $2, difficulty_prev = difficulty, difficulty = $3::numeric WHERE id = 1`)).
		WithArgs(int64(500), int64(384), "2048").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewChainStateRepo(db).Apply(context.Background(), update))
}

func TestChainStateRepo_DifficultyAboveInt64(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChainStateRepo(db)
	huge := uint64(1<<63 + 5)

	mock.ExpectExec(regexp.QuoteMeta(`difficulty = $2::numeric WHERE id = 1`)).
		WithArgs(int64(10), "9223372036854775813").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Apply(context.Background(), domain.ChainStateUpdate{
		Epoch: &domain.Epoch{Height: 10, Difficulty: huge},
	}))

	cols := []string{"network_name", "peak_height", "epoch_height", "difficulty", "difficulty_prev", "netspace", "netspace_prev", "sub_slot_time"}
	mock.ExpectQuery(regexp.QuoteMeta(`difficulty::text AS difficulty`)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("mainnet", int64(12), int64(10), "9223372036854775813", "18446744073709551615", "0", "0", int64(0)))

	st, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, huge, st.DifficultyCurr)
	assert.Equal(t, uint64(18446744073709551615), st.DifficultyPrev)
}

func TestChainStateRepo_GetRejectsBadDifficulty(t *testing.T) {
	db, mock := newMockDB(t)
	cols := []string{"network_name", "peak_height", "epoch_height", "difficulty", "difficulty_prev", "netspace", "netspace_prev", "sub_slot_time"}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM state`)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("mainnet", int64(1), int64(0), "-1", "0", "0", "0", int64(0)))

	_, err := NewChainStateRepo(db).Get(context.Background())
	assert.Error(t, err)
}

func TestChainStateRepo_ApplyWithoutRow(t *testing.T) {
	db, mock := newMockDB(t)
	name := "mainnet"

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE state SET network_name = $1 WHERE id = 1`)).
		WithArgs("mainnet").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewChainStateRepo(db).Apply(context.Background(), domain.ChainStateUpdate{NetworkName: &name})
	assert.ErrorIs(t, err, storage.ErrStateNotFound)
}

func TestChainStateRepo_ApplyEmptyIsNoop(t *testing.T) {
	db, _ := newMockDB(t)
	require.NoError(t, NewChainStateRepo(db).Apply(context.Background(), domain.ChainStateUpdate{}))
}

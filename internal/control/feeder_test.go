package control

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/bpxfeeder/internal/core/config"
	"github.com/vietddude/bpxfeeder/internal/infra/node/nodetest"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Server: config.ServerConfig{Port: -1},
		Sync: config.SyncConfig{
			Interval:    10 * time.Millisecond,
			PassTimeout: time.Second,
		},
	}
}

func TestFeeder_Lifecycle(t *testing.T) {
	n := nodetest.New("mainnet")
	n.SetChain(nodetest.Chain("a", 20, 1_700_000_000, 18))
	n.SetNetspace(big.NewInt(1 << 50))

	f, err := newFeeder(context.Background(), testConfig(), n)
	require.NoError(t, err)
	require.Nil(t, f.healthServer, "negative port disables the health server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.Start(ctx))

	require.Eventually(t, func() bool {
		return f.Status().Passes >= 2
	}, 2*time.Second, 5*time.Millisecond)

	status := f.Status()
	assert.True(t, status.Running)
	assert.Equal(t, int64(19), status.PeakHeight)

	report := f.healthMon.Report()
	assert.Equal(t, "mainnet", report.Network)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, f.Stop(stopCtx))
	assert.False(t, f.Status().Running)
}

func TestFeeder_RedisWiring(t *testing.T) {
	mr := miniredis.RunT(t)
	n := nodetest.New("testnet")
	n.SetChain(nodetest.Chain("a", 3, 1_700_000_000, 18))

	cfg := testConfig()
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.Redis.LockKey = "bpxfeeder:writer"
	cfg.Redis.LockTTL = 30 * time.Second
	cfg.Redis.Channel = "chainstate"

	f, err := newFeeder(context.Background(), cfg, n)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.Start(ctx))

	require.Eventually(t, func() bool {
		return mr.Exists("chainstate:testnet")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "2", mr.HGet("chainstate:testnet", "peak_height"))
	assert.True(t, mr.Exists("bpxfeeder:writer"))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, f.Stop(stopCtx))
	assert.False(t, mr.Exists("bpxfeeder:writer"), "lock released on stop")
}

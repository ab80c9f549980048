// Package nodetest provides an in-process node serving a mutable canonical
// chain, for tests of code that consumes the node client.
package nodetest

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/vietddude/bpxfeeder/internal/infra/node"
)

// Block is one canonical block of a fake chain.
type Block struct {
	Hash          string
	Coinbase      string
	Timestamp     *int64
	NewDifficulty *uint64
	FeeRecipient  *string
	Withdrawals   []string
}

// Node is a fake full node. The zero value is not usable; use New.
type Node struct {
	mu       sync.Mutex
	network  string
	chain    []Block
	netspace *big.Int
	calls    map[string]int

	stateErr error
	delay    time.Duration

	// FailAt makes GetBlockRecordByHeight fail at the given height. Set it
	// before the node is in use.
	FailAt map[int64]error
}

// New returns a node on network with an empty chain.
func New(network string) *Node {
	return &Node{
		network:  network,
		netspace: big.NewInt(0),
		calls:    make(map[string]int),
		FailAt:   make(map[int64]error),
	}
}

// SetChain replaces the canonical chain.
func (n *Node) SetChain(blocks []Block) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.chain = append([]Block(nil), blocks...)
}

// SetNetspace sets the reported netspace.
func (n *Node) SetNetspace(v *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.netspace = new(big.Int).Set(v)
}

// SetStateErr makes GetChainState fail with err; nil restores it.
func (n *Node) SetStateErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stateErr = err
}

// SetDelay makes every block record fetch take d, or until ctx ends.
func (n *Node) SetDelay(d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delay = d
}

func (n *Node) wait(ctx context.Context) error {
	n.mu.Lock()
	d := n.delay
	n.mu.Unlock()
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Calls returns how often endpoint was served.
func (n *Node) Calls(endpoint string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[endpoint]
}

// Chain builds count blocks named "<prefix>-<height>", timestamped every
// blockTime seconds from genesis.
func Chain(prefix string, count int, genesis, blockTime int64) []Block {
	blocks := make([]Block, count)
	for i := range blocks {
		ts := genesis + int64(i)*blockTime
		blocks[i] = Block{
			Hash:      fmt.Sprintf("%s-%d", prefix, i),
			Coinbase:  fmt.Sprintf("cb-%d", i),
			Timestamp: &ts,
		}
	}
	return blocks
}

func (n *Node) GetNetworkInfo(ctx context.Context) (*node.NetworkInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls["get_network_info"]++
	return &node.NetworkInfo{NetworkName: n.network, NetworkPrefix: "xch"}, nil
}

func (n *Node) GetChainState(ctx context.Context) (*node.ChainState, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls["get_blockchain_state"]++
	if n.stateErr != nil {
		return nil, n.stateErr
	}
	return &node.ChainState{
		Netspace:   new(big.Int).Set(n.netspace),
		PeakHeight: int64(len(n.chain)) - 1,
		Synced:     true,
	}, nil
}

func (n *Node) GetBlockRecordByHeight(ctx context.Context, height int64) (*node.BlockRecord, error) {
	if err := n.wait(ctx); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls["get_block_record_by_height"]++
	if err, ok := n.FailAt[height]; ok {
		return nil, err
	}
	if height < 0 || height >= int64(len(n.chain)) {
		return nil, &node.APIError{
			Endpoint: "get_block_record_by_height",
			Message:  fmt.Sprintf("Height %d not in blockchain", height),
		}
	}
	b := n.chain[height]
	rec := &node.BlockRecord{
		Height:     height,
		HeaderHash: b.Hash,
		Coinbase:   b.Coinbase,
		Timestamp:  b.Timestamp,
	}
	if b.Timestamp != nil {
		exec := "exec-" + b.Hash
		rec.ExecutionBlockHash = &exec
	}
	return rec, nil
}

func (n *Node) GetBlock(ctx context.Context, headerHash string) (*node.FullBlock, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls["get_block"]++
	for _, b := range n.chain {
		if b.Hash == headerHash {
			return fullBlock(b), nil
		}
	}
	return nil, &node.APIError{Endpoint: "get_block", Message: fmt.Sprintf("Block %s not found", headerHash)}
}

func fullBlock(b Block) *node.FullBlock {
	fb := &node.FullBlock{}
	if b.NewDifficulty != nil {
		// a sub slot without a difficulty change precedes the announcing one
		var plain, announcing node.SubSlot
		d := *b.NewDifficulty
		announcing.ChallengeChain.NewDifficulty = &d
		fb.FinishedSubSlots = []node.SubSlot{plain, announcing}
	}
	if b.FeeRecipient != nil || len(b.Withdrawals) > 0 {
		payload := &node.ExecutionPayload{FeeRecipient: b.FeeRecipient}
		for _, addr := range b.Withdrawals {
			payload.Withdrawals = append(payload.Withdrawals, node.Withdrawal{Address: addr})
		}
		fb.ExecutionPayload = payload
	}

	raw, _ := json.Marshal(map[string]any{
		"header_hash":        b.Hash,
		"finished_sub_slots": fb.FinishedSubSlots,
		"execution_payload":  fb.ExecutionPayload,
	})
	fb.Raw = raw
	return fb
}

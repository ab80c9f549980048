package node

import (
	"encoding/json"
	"math/big"
)

// NetworkInfo is the response of get_network_info.
type NetworkInfo struct {
	NetworkName   string `json:"network_name"`
	NetworkPrefix string `json:"network_prefix"`
}

// ChainState is the subset of get_blockchain_state the feeder consumes.
type ChainState struct {
	Netspace   *big.Int
	PeakHeight int64 // -1 when the node has no peak yet
	Difficulty uint64
	Synced     bool
}

type blockchainState struct {
	Space      *big.Int `json:"space"`
	Difficulty uint64   `json:"difficulty"`
	Peak       *struct {
		Height int64 `json:"height"`
	} `json:"peak"`
	Sync struct {
		Synced bool `json:"synced"`
	} `json:"sync"`
}

// BlockRecord is the canonical block record at a height.
type BlockRecord struct {
	Height             int64   `json:"height"`
	HeaderHash         string  `json:"header_hash"`
	Coinbase           string  `json:"coinbase"`
	Timestamp          *int64  `json:"timestamp"`
	ExecutionBlockHash *string `json:"execution_block_hash"`
}

// SubSlot is a finished sub slot of a full block.
type SubSlot struct {
	ChallengeChain struct {
		NewDifficulty *uint64 `json:"new_difficulty"`
	} `json:"challenge_chain"`
}

// Withdrawal is a single execution payload withdrawal.
type Withdrawal struct {
	Address string `json:"address"`
}

// ExecutionPayload carries the execution layer part of a block.
type ExecutionPayload struct {
	FeeRecipient *string      `json:"feeRecipient"`
	Withdrawals  []Withdrawal `json:"withdrawals"`
}

// FullBlock is a block returned by get_block. Raw keeps the payload as sent by
// the node.
type FullBlock struct {
	Raw              json.RawMessage   `json:"-"`
	FinishedSubSlots []SubSlot         `json:"finished_sub_slots"`
	ExecutionPayload *ExecutionPayload `json:"execution_payload"`
}

// NewDifficulty returns the difficulty announced by the first finished sub slot
// carrying one.
func (b *FullBlock) NewDifficulty() (uint64, bool) {
	for _, ss := range b.FinishedSubSlots {
		if ss.ChallengeChain.NewDifficulty != nil {
			return *ss.ChallengeChain.NewDifficulty, true
		}
	}
	return 0, false
}

// WithdrawalAddresses returns the withdrawal addresses in payload order.
func (b *FullBlock) WithdrawalAddresses() []string {
	if b.ExecutionPayload == nil || len(b.ExecutionPayload.Withdrawals) == 0 {
		return nil
	}
	addrs := make([]string, 0, len(b.ExecutionPayload.Withdrawals))
	for _, wd := range b.ExecutionPayload.Withdrawals {
		addrs = append(addrs, wd.Address)
	}
	return addrs
}

// FeeRecipient returns the execution payload fee recipient, if any.
func (b *FullBlock) FeeRecipient() *string {
	if b.ExecutionPayload == nil {
		return nil
	}
	return b.ExecutionPayload.FeeRecipient
}

package domain

import "strings"

// NoHeight marks the absence of a block, one below genesis.
const NoHeight int64 = -1

// WithdrawalSeparator joins withdrawal addresses in the stored column.
const WithdrawalSeparator = ","

// Block represents a canonical chain block mirrored into the local store.
// Pointer fields are only present for blocks carrying an execution payload.
type Block struct {
	Height              int64
	Hash                string
	Coinbase            string
	Body                []byte
	Timestamp           *int64
	ExecutionBlockHash  *string
	FeeRecipient        *string
	WithdrawalAddresses []string
}

// JoinedWithdrawals returns the flattened withdrawal addresses, or nil when the
// block has none.
func (b *Block) JoinedWithdrawals() *string {
	if len(b.WithdrawalAddresses) == 0 {
		return nil
	}
	s := strings.Join(b.WithdrawalAddresses, WithdrawalSeparator)
	return &s
}

// SplitWithdrawals is the inverse of JoinedWithdrawals.
func SplitWithdrawals(s *string) []string {
	if s == nil || *s == "" {
		return nil
	}
	return strings.Split(*s, WithdrawalSeparator)
}

// Tip is the highest locally stored block.
type Tip struct {
	Height int64
	Hash   string
}

// EmptyTip is the tip of an empty store.
var EmptyTip = Tip{Height: NoHeight}

// IsEmpty reports whether the tip stands for an empty store.
func (t Tip) IsEmpty() bool {
	return t.Height < 0
}

// BlockTime pairs a height with the block's timestamp.
type BlockTime struct {
	Height    int64
	Timestamp int64
}

package domain

import "math/big"

// ChainState is the single summary row consumed by dashboards.
type ChainState struct {
	NetworkName    string
	PeakHeight     int64
	EpochHeight    int64
	DifficultyCurr uint64
	DifficultyPrev uint64
	NetspaceCurr   *big.Int
	NetspacePrev   *big.Int
	SubSlotTime    int64
}

// Epoch is a difficulty change observed at a height.
type Epoch struct {
	Height     int64
	Difficulty uint64
}

// ChainStateUpdate is a partial update of the summary row. Nil fields keep
// their stored value. A non-nil Epoch rotates difficulty: prev <- curr, curr <- new.
type ChainStateUpdate struct {
	NetworkName  *string
	PeakHeight   *int64
	Epoch        *Epoch
	NetspaceCurr *big.Int
	NetspacePrev *big.Int
	SubSlotTime  *int64
}

// IsEmpty reports whether the update changes nothing.
func (u ChainStateUpdate) IsEmpty() bool {
	return u.NetworkName == nil && u.PeakHeight == nil && u.Epoch == nil &&
		u.NetspaceCurr == nil && u.NetspacePrev == nil && u.SubSlotTime == nil
}

// Apply merges u into s field by field.
func (s *ChainState) Apply(u ChainStateUpdate) {
	if u.NetworkName != nil {
		s.NetworkName = *u.NetworkName
	}
	if u.PeakHeight != nil {
		s.PeakHeight = *u.PeakHeight
	}
	if u.Epoch != nil {
		s.EpochHeight = u.Epoch.Height
		s.DifficultyPrev = s.DifficultyCurr
		s.DifficultyCurr = u.Epoch.Difficulty
	}
	if u.NetspaceCurr != nil {
		s.NetspaceCurr = new(big.Int).Set(u.NetspaceCurr)
	}
	if u.NetspacePrev != nil {
		s.NetspacePrev = new(big.Int).Set(u.NetspacePrev)
	}
	if u.SubSlotTime != nil {
		s.SubSlotTime = *u.SubSlotTime
	}
}
